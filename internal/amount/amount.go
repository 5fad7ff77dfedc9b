// Package amount holds the money rounding rule shared by every aggregate:
// values are floored (toward negative infinity) to one fractional digit.
package amount

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Truncate floors d to one fractional digit. It never rounds half-up and does
// not truncate toward zero: -1.27 becomes -1.3.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Shift(1).Floor().Shift(-1)
}

// TruncateValue accepts a number, a numeric string or nothing. nil and the
// empty string produce an invalid NullDecimal; anything else that does not
// parse as a number is an error.
func TruncateValue(v any) (decimal.NullDecimal, error) {
	d, ok, err := parse(v)
	if err != nil || !ok {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(Truncate(d)), nil
}

func parse(v any) (decimal.Decimal, bool, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case decimal.Decimal:
		return x, true, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false, nil
		}
		return *x, true, nil
	case decimal.NullDecimal:
		return x.Decimal, x.Valid, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("amount %q is not numeric: %w", x, err)
		}
		return d, true, nil
	case float64:
		return decimal.NewFromFloat(x), true, nil
	case float32:
		return decimal.NewFromFloat32(x), true, nil
	case int:
		return decimal.NewFromInt(int64(x)), true, nil
	case int32:
		return decimal.NewFromInt32(x), true, nil
	case int64:
		return decimal.NewFromInt(x), true, nil
	case uint:
		return decimal.NewFromInt(int64(x)), true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("unsupported amount type %T", v)
	}
}
