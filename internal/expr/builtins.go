package expr

import (
	"fmt"
	"math"
	"strconv"
)

// callBuiltin implements the small whitelist of pure, argument-in
// value-out functions the grammar permits. There is no mechanism to
// register additional functions; adding one means editing this file and
// allowedCalls in parser.go together.
func callBuiltin(name string, args []any) (any, error) {
	switch name {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("len() takes exactly one argument")
		}
		switch v := args[0].(type) {
		case string:
			return int64(len([]rune(v))), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		}
		return nil, fmt.Errorf("object of type %T has no len()", args[0])
	case "abs":
		if len(args) != 1 {
			return nil, fmt.Errorf("abs() takes exactly one argument")
		}
		if i, ok := args[0].(int64); ok {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		f, ok := toFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("abs() requires a number, got %T", args[0])
		}
		return math.Abs(f), nil
	case "min", "max":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s() requires at least one argument", name)
		}
		values := args
		if len(args) == 1 {
			list, ok := args[0].([]any)
			if !ok {
				return nil, fmt.Errorf("%s() requires an iterable when called with one argument", name)
			}
			values = list
		}
		best := values[0]
		bestF, ok := toFloat(best)
		if !ok {
			return nil, fmt.Errorf("%s() requires numbers", name)
		}
		for _, v := range values[1:] {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("%s() requires numbers", name)
			}
			if (name == "min" && f < bestF) || (name == "max" && f > bestF) {
				best, bestF = v, f
			}
		}
		return best, nil
	case "str":
		if len(args) != 1 {
			return nil, fmt.Errorf("str() takes exactly one argument")
		}
		return fmt.Sprintf("%v", args[0]), nil
	case "int":
		if len(args) != 1 {
			return nil, fmt.Errorf("int() takes exactly one argument")
		}
		switch v := args[0].(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case string:
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid literal for int(): %q", v)
			}
			return i, nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return nil, fmt.Errorf("int() cannot convert %T", args[0])
	case "float":
		if len(args) != 1 {
			return nil, fmt.Errorf("float() takes exactly one argument")
		}
		switch v := args[0].(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid literal for float(): %q", v)
			}
			return f, nil
		}
		return nil, fmt.Errorf("float() cannot convert %T", args[0])
	case "bool":
		if len(args) != 1 {
			return nil, fmt.Errorf("bool() takes exactly one argument")
		}
		return truthy(args[0]), nil
	}
	return nil, fmt.Errorf("call to undefined function %q", name)
}
