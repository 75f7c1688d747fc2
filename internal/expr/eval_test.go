package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want any
	}{
		{"add ints", "1 + 2", int64(3)},
		{"mixed float", "1 + 2.5", 3.5},
		{"floor div", "7 // 2", int64(3)},
		{"modulo", "7 % 2", int64(1)},
		{"precedence", "2 + 3 * 4", int64(14)},
		{"parens", "(2 + 3) * 4", int64(20)},
		{"string concat", `"a" + "b"`, "ab"},
		{"negative", "-5 + 2", int64(-3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_BooleanAndComparison(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want any
	}{
		{"and true", "True and False", false},
		{"or true", "False or True", true},
		{"not", "not False", true},
		{"equal", "1 == 1", true},
		{"chained compare", "1 < 2 < 3", true},
		{"chained compare false", "1 < 2 < 1", false},
		{"membership list", "2 in [1, 2, 3]", true},
		{"membership not in", "5 not in [1, 2, 3]", true},
		{"membership string", `"ell" in "hello"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Names(t *testing.T) {
	names := map[string]any{
		"body": map[string]any{"status": "ready", "count": int64(3)},
		"event_count": int64(7),
	}

	got, err := Eval(`body["status"] == "ready" and event_count > 5`, names)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestEval_UndefinedName(t *testing.T) {
	_, err := Eval("missing + 1", nil)
	require.Error(t, err)
}

func TestEval_Indexing(t *testing.T) {
	names := map[string]any{"items": []any{int64(10), int64(20), int64(30)}}

	got, err := Eval("items[1]", names)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got)

	got, err = Eval("items[-1]", names)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got)

	got, err = Eval("items[1:]", names)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(20), int64(30)}, got)
}

func TestEval_Builtins(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"len([1,2,3])", int64(3)},
		{"abs(-5)", int64(5)},
		{"max(1, 5, 3)", int64(5)},
		{"min([4, 2, 9])", int64(2)},
		{"str(5)", "5"},
		{"int(\"42\")", int64(42)},
		{"bool(0)", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Eval(tt.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_RejectsAttributeAccessAndCalls(t *testing.T) {
	_, err := Eval("body.status", map[string]any{"body": map[string]any{}})
	assert.Error(t, err, "attribute access is not valid syntax in this grammar")

	_, err = Eval("open('/etc/passwd')", nil)
	assert.Error(t, err, "unlisted function calls must be rejected")
}

func TestEval_StepBudget(t *testing.T) {
	deep := "1"
	for i := 0; i < 50; i++ {
		deep = "(" + deep + " + 1)"
	}
	_, err := EvalWithBudget(deep, nil, 10)
	require.Error(t, err)
}

func TestEvalTemplate_RewritesEvalSuffixedKeys(t *testing.T) {
	tmpl := map[string]any{
		"request_id": "fixed",
		"body": map[string]any{
			"value.=": "event_count * 2",
			"nested": map[string]any{
				"flag.=": "True",
			},
			"list": []any{
				map[string]any{"x.=": "1 + 1"},
			},
		},
	}
	names := map[string]any{"event_count": int64(5)}

	got, err := EvalTemplate(tmpl, names)
	require.NoError(t, err)

	m := got.(map[string]any)
	assert.Equal(t, "fixed", m["request_id"])
	body := m["body"].(map[string]any)
	assert.Equal(t, int64(10), body["value"])
	nested := body["nested"].(map[string]any)
	assert.Equal(t, true, nested["flag"])
	list := body["list"].([]any)
	assert.Equal(t, int64(2), list[0].(map[string]any)["x"])
}

func TestEvalTemplate_CollectsAllErrors(t *testing.T) {
	tmpl := map[string]any{
		"a.=": "undefined_one",
		"b.=": "undefined_two",
	}
	_, err := EvalTemplate(tmpl, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined_one")
	assert.Contains(t, err.Error(), "undefined_two")
}
