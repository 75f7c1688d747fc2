package expr

import (
	"fmt"
	"math"

	"github.com/c360studio/triggers/internal/errs"
)

// defaultMaxSteps bounds the number of evaluation steps a single Eval call
// may take, preventing a pathological expression (deep nesting, huge
// literals) from blocking a poller tick indefinitely.
const defaultMaxSteps = 100_000

type evaluator struct {
	names    map[string]any
	steps    int
	maxSteps int
}

// Eval parses and evaluates expression against names, the set of variables
// visible to it. The grammar excludes attribute access, function
// definitions, imports, and any I/O, so the result can only be built from
// names, literals, and the whitelisted pure builtins.
func Eval(expression string, names map[string]any) (any, error) {
	return EvalWithBudget(expression, names, defaultMaxSteps)
}

// EvalWithBudget is Eval with an explicit step budget, exposed for tests
// that want to exercise the overrun path deterministically.
func EvalWithBudget(expression string, names map[string]any, maxSteps int) (any, error) {
	node, err := parse(expression)
	if err != nil {
		return nil, &errs.ExpressionError{Msg: fmt.Sprintf("parse %q: %v", expression, err)}
	}
	ev := &evaluator{names: names, maxSteps: maxSteps}
	v, err := ev.eval(node)
	if err != nil {
		return nil, &errs.ExpressionError{Msg: fmt.Sprintf("eval %q: %v", expression, err)}
	}
	return v, nil
}

func (e *evaluator) step() error {
	e.steps++
	if e.steps > e.maxSteps {
		return fmt.Errorf("expression exceeded step budget of %d", e.maxSteps)
	}
	return nil
}

func (e *evaluator) eval(n Node) (any, error) {
	if err := e.step(); err != nil {
		return nil, err
	}
	switch v := n.(type) {
	case numberLit:
		return v.value, nil
	case intLit:
		return v.value, nil
	case stringLit:
		return v.value, nil
	case boolLit:
		return v.value, nil
	case noneLit:
		return nil, nil
	case identNode:
		val, ok := e.names[v.name]
		if !ok {
			return nil, fmt.Errorf("undefined name %q", v.name)
		}
		return val, nil
	case listLit:
		items := make([]any, 0, len(v.items))
		for _, it := range v.items {
			val, err := e.eval(it)
			if err != nil {
				return nil, err
			}
			items = append(items, val)
		}
		return items, nil
	case tupleLit:
		items := make([]any, 0, len(v.items))
		for _, it := range v.items {
			val, err := e.eval(it)
			if err != nil {
				return nil, err
			}
			items = append(items, val)
		}
		return items, nil
	case dictLit:
		m := make(map[string]any, len(v.keys))
		for i, k := range v.keys {
			kv, err := e.eval(k)
			if err != nil {
				return nil, err
			}
			ks, ok := kv.(string)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings, got %T", kv)
			}
			vv, err := e.eval(v.values[i])
			if err != nil {
				return nil, err
			}
			m[ks] = vv
		}
		return m, nil
	case unaryNode:
		return e.evalUnary(v)
	case binaryNode:
		return e.evalBinary(v)
	case boolOpNode:
		return e.evalBoolOp(v)
	case compareNode:
		return e.evalCompare(v)
	case indexNode:
		return e.evalIndex(v)
	case sliceNode:
		return e.evalSlice(v)
	case callNode:
		return e.evalCall(v)
	default:
		return nil, fmt.Errorf("unsupported node type %T", n)
	}
}

func (e *evaluator) evalUnary(n unaryNode) (any, error) {
	v, err := e.eval(n.operand)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "not":
		return !truthy(v), nil
	case "-":
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		return nil, fmt.Errorf("unary '-' requires a number, got %T", v)
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

func (e *evaluator) evalBoolOp(n boolOpNode) (any, error) {
	var result any = n.op == "and"
	for i, operand := range n.operands {
		v, err := e.eval(operand)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = v
		}
		if n.op == "and" {
			if !truthy(v) {
				return v, nil
			}
			result = v
		} else {
			if truthy(v) {
				return v, nil
			}
			result = v
		}
	}
	return result, nil
}

func (e *evaluator) evalCompare(n compareNode) (any, error) {
	left, err := e.eval(n.left)
	if err != nil {
		return nil, err
	}
	for i, op := range n.ops {
		right, err := e.eval(n.rest[i])
		if err != nil {
			return nil, err
		}
		ok, err := compareOne(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareOne(op string, left, right any) (bool, error) {
	switch op {
	case "in":
		return contains(right, left)
	case "not in":
		v, err := contains(right, left)
		return !v, err
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	switch op {
	case "==":
		return equalAny(left, right), nil
	case "!=":
		return !equalAny(left, right), nil
	}
	return false, fmt.Errorf("cannot compare %T %s %T", left, op, right)
}

func equalAny(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, v := range c {
			if equalAny(v, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string, got %T", item)
		}
		return containsSubstring(c, s), nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("dict membership requires string key, got %T", item)
		}
		_, ok = c[s]
		return ok, nil
	}
	return false, fmt.Errorf("'in' not supported for %T", container)
}

func containsSubstring(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (e *evaluator) evalBinary(n binaryNode) (any, error) {
	left, err := e.eval(n.left)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(n.right)
	if err != nil {
		return nil, err
	}

	if n.op == "+" {
		if ls, ok := left.(string); ok {
			rs, ok := right.(string)
			if !ok {
				return nil, fmt.Errorf("cannot concatenate str with %T", right)
			}
			return ls + rs, nil
		}
		if ll, ok := left.([]any); ok {
			rl, ok := right.([]any)
			if !ok {
				return nil, fmt.Errorf("cannot concatenate list with %T", right)
			}
			out := make([]any, 0, len(ll)+len(rl))
			out = append(out, ll...)
			out = append(out, rl...)
			return out, nil
		}
	}

	li, liok := left.(int64)
	ri, riok := right.(int64)
	if liok && riok && n.op != "/" {
		switch n.op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "//":
			if ri == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			return int64(math.Floor(float64(li) / float64(ri))), nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return li % ri, nil
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("unsupported operand types for %s: %T and %T", n.op, left, right)
	}
	switch n.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown binary operator %q", n.op)
}

func (e *evaluator) evalIndex(n indexNode) (any, error) {
	target, err := e.eval(n.target)
	if err != nil {
		return nil, err
	}
	idx, err := e.eval(n.index)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case []any:
		i, ok := toInt(idx)
		if !ok {
			return nil, fmt.Errorf("list index must be an integer, got %T", idx)
		}
		i = normalizeIndex(i, len(t))
		if i < 0 || i >= int64(len(t)) {
			return nil, fmt.Errorf("list index out of range")
		}
		return t[i], nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("dict key must be a string, got %T", idx)
		}
		v, ok := t[key]
		if !ok {
			return nil, fmt.Errorf("key %q not found", key)
		}
		return v, nil
	case string:
		i, ok := toInt(idx)
		if !ok {
			return nil, fmt.Errorf("string index must be an integer, got %T", idx)
		}
		runes := []rune(t)
		i = normalizeIndex(i, len(runes))
		if i < 0 || i >= int64(len(runes)) {
			return nil, fmt.Errorf("string index out of range")
		}
		return string(runes[i]), nil
	}
	return nil, fmt.Errorf("cannot index into %T", target)
}

func normalizeIndex(i int64, n int) int64 {
	if i < 0 {
		return i + int64(n)
	}
	return i
}

func (e *evaluator) evalSlice(n sliceNode) (any, error) {
	target, err := e.eval(n.target)
	if err != nil {
		return nil, err
	}

	length := 0
	switch t := target.(type) {
	case []any:
		length = len(t)
	case string:
		length = len([]rune(t))
	default:
		return nil, fmt.Errorf("cannot slice %T", target)
	}

	low := int64(0)
	if n.hasLow {
		v, err := e.eval(n.low)
		if err != nil {
			return nil, err
		}
		i, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("slice index must be an integer, got %T", v)
		}
		low = clampIndex(normalizeIndex(i, length), length)
	}
	high := int64(length)
	if n.hasHigh {
		v, err := e.eval(n.high)
		if err != nil {
			return nil, err
		}
		i, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("slice index must be an integer, got %T", v)
		}
		high = clampIndex(normalizeIndex(i, length), length)
	}
	if high < low {
		high = low
	}

	switch t := target.(type) {
	case []any:
		return append([]any{}, t[low:high]...), nil
	case string:
		return string([]rune(t)[low:high]), nil
	}
	return nil, fmt.Errorf("cannot slice %T", target)
}

func clampIndex(i int64, length int) int64 {
	if i < 0 {
		return 0
	}
	if i > int64(length) {
		return int64(length)
	}
	return i
}

func (e *evaluator) evalCall(n callNode) (any, error) {
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return callBuiltin(n.name, args)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	}
	return 0, false
}
