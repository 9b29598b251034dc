package analyze

import (
	"fmt"
	"math"
	"reflect"

	ql "github.com/syssam/batchql/querylanguage"
)

// fold evaluates x op y for bound operands. It reports false for operand
// types it does not evaluate, leaving the operation to the database.
// Results that overflow int64 or float64 fail.
func fold(op ql.Op, x, y any) (any, bool, error) {
	if xs, ok := x.(string); ok {
		if ys, ok := y.(string); ok && op == ql.OpAdd {
			return xs + ys, true, nil
		}
		return nil, false, nil
	}
	xi, xInt := toInt(x)
	yi, yInt := toInt(y)
	if xInt && yInt {
		var (
			r        int64
			overflow bool
		)
		switch op {
		case ql.OpAdd:
			r = xi + yi
			overflow = (xi > 0 && yi > 0 && r < 0) || (xi < 0 && yi < 0 && r >= 0)
		case ql.OpSub:
			r = xi - yi
			overflow = (xi >= 0 && yi < 0 && r < 0) || (xi < 0 && yi > 0 && r >= 0)
		case ql.OpMul:
			r = xi * yi
			overflow = xi != 0 && (r/xi != yi || (xi == -1 && yi == math.MinInt64))
		case ql.OpDiv, ql.OpMod:
			if yi == 0 {
				return nil, false, unsupported(op.String(), "division by zero")
			}
			if op == ql.OpMod {
				return xi % yi, true, nil
			}
			r = xi / yi
			overflow = xi == math.MinInt64 && yi == -1
		default:
			return nil, false, nil
		}
		if overflow {
			return nil, false, unsupported(op.String(), fmt.Sprintf("%d %s %d overflows int64", xi, op, yi))
		}
		return r, true, nil
	}
	xf, xNum := toFloat(x)
	yf, yNum := toFloat(y)
	if !xNum || !yNum {
		return nil, false, nil
	}
	var r float64
	switch op {
	case ql.OpAdd:
		r = xf + yf
	case ql.OpSub:
		r = xf - yf
	case ql.OpMul:
		r = xf * yf
	case ql.OpDiv, ql.OpMod:
		if yf == 0 {
			return nil, false, unsupported(op.String(), "division by zero")
		}
		if op == ql.OpDiv {
			r = xf / yf
		} else {
			r = math.Mod(xf, yf)
		}
	default:
		return nil, false, nil
	}
	if math.IsInf(r, 0) && !math.IsInf(xf, 0) && !math.IsInf(yf, 0) {
		return nil, false, unsupported(op.String(), fmt.Sprintf("%g %s %g overflows float64", xf, op, yf))
	}
	return r, true, nil
}

func negate(v any) (any, bool, error) {
	if i, ok := toInt(v); ok {
		if i == math.MinInt64 {
			return nil, false, unsupported("-", fmt.Sprintf("-(%d) overflows int64", i))
		}
		return -i, true, nil
	}
	if f, ok := toFloat(v); ok {
		return -f, true, nil
	}
	return nil, false, nil
}

func toInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
