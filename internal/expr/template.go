package expr

import (
	"fmt"
	"strings"

	"github.com/c360studio/triggers/internal/errs"
)

// evalSuffix marks a map key whose value is an expression string to be
// evaluated; the suffix is stripped from the key in the output.
const evalSuffix = ".="

// EvalTemplate walks value (typically an event_template decoded from JSON)
// looking for map keys ending in ".=". Each such key's string value is
// evaluated as an expression against names and the result replaces it under
// the key with the suffix stripped. Plain maps and lists are recursed into
// unchanged; every other value passes through as-is. All evaluation errors
// encountered anywhere in the tree are collected and returned together as a
// single ExpressionError, mirroring a template author seeing every mistake
// in one pass rather than one at a time.
func EvalTemplate(value any, names map[string]any) (any, error) {
	var errsList []string
	result := walkTemplate(value, names, &errsList)
	if len(errsList) > 0 {
		return nil, &errs.ExpressionError{Msg: strings.Join(errsList, "; ")}
	}
	return result, nil
}

func walkTemplate(value any, names map[string]any, errsList *[]string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, raw := range v {
			if strings.HasSuffix(k, evalSuffix) {
				baseKey := strings.TrimSuffix(k, evalSuffix)
				exprStr, ok := raw.(string)
				if !ok {
					*errsList = append(*errsList, fmt.Sprintf("key %q: expression value must be a string, got %T", k, raw))
					continue
				}
				result, err := Eval(exprStr, names)
				if err != nil {
					*errsList = append(*errsList, fmt.Sprintf("key %q: %v", k, err))
					continue
				}
				out[baseKey] = result
				continue
			}
			out[k] = walkTemplate(raw, names, errsList)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = walkTemplate(item, names, errsList)
		}
		return out
	default:
		return value
	}
}
