package value

import (
	"math"

	"github.com/cockroachdb/apd/v3"
)

// DecimalCtx is the arithmetic context for NumberDecimal payloads, matching
// IEEE 754 decimal128: 34 significant digits, round half to even.
var DecimalCtx = apd.Context{
	Precision:   34,
	MaxExponent: 6144,
	MinExponent: -6143,
	Rounding:    apd.RoundHalfEven,
}

func NewDecimalFromInt64(i int64) Value {
	d := new(apd.Decimal)
	d.SetInt64(i)
	return NewDecimal(d)
}

func NewDecimalFromFloat64(f float64) Value {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		d.Form = apd.NaN
	}
	return NewDecimal(d)
}

func NewDecimalFromString(s string) (Value, error) {
	d, _, err := DecimalCtx.NewFromString(s)
	if err != nil {
		return Nothing, err
	}
	return NewDecimal(d), nil
}

// MustDecimal parses s and panics on malformed input. Test and constant use
// only.
func MustDecimal(s string) Value {
	v, err := NewDecimalFromString(s)
	if err != nil {
		panic("malformed decimal literal: " + s)
	}
	return v
}

// WidestNumericType selects the common type for a binary numeric operation.
// Any decimal operand forces decimal, then double, then int64, else int32.
func WidestNumericType(a, b TypeTag) TypeTag {
	if a == TypeNumberDecimal || b == TypeNumberDecimal {
		return TypeNumberDecimal
	}
	if a == TypeNumberDouble || b == TypeNumberDouble {
		return TypeNumberDouble
	}
	if a == TypeNumberInt64 || b == TypeNumberInt64 {
		return TypeNumberInt64
	}
	return TypeNumberInt32
}

// CastDouble converts any numeric value to float64. Panics on non-numeric
// tags.
func CastDouble(v Value) float64 {
	switch v.tag {
	case TypeNumberInt32:
		return float64(v.AsInt32())
	case TypeNumberInt64:
		return float64(v.AsInt64())
	case TypeNumberDouble:
		return v.AsDouble()
	case TypeNumberDecimal:
		f, err := v.AsDecimal().Float64()
		if err != nil {
			if v.AsDecimal().Negative {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
		return f
	}
	panic("value is not numeric")
}

// CastInt64 converts any numeric value to int64, truncating fractional
// parts. Panics on non-numeric tags.
func CastInt64(v Value) int64 {
	switch v.tag {
	case TypeNumberInt32:
		return int64(v.AsInt32())
	case TypeNumberInt64:
		return v.AsInt64()
	case TypeNumberDouble:
		return int64(v.AsDouble())
	case TypeNumberDecimal:
		if i, err := v.AsDecimal().Int64(); err == nil {
			return i
		}
		return int64(CastDouble(v))
	}
	panic("value is not numeric")
}

// CastInt32 converts any numeric value to int32, truncating.
func CastInt32(v Value) int32 {
	return int32(CastInt64(v))
}

// CastDecimal converts any numeric value to a decimal. The result is freshly
// allocated except for decimal input, which is returned as is.
func CastDecimal(v Value) *apd.Decimal {
	d := new(apd.Decimal)
	switch v.tag {
	case TypeNumberInt32:
		d.SetInt64(int64(v.AsInt32()))
	case TypeNumberInt64:
		d.SetInt64(v.AsInt64())
	case TypeNumberDouble:
		if _, err := d.SetFloat64(v.AsDouble()); err != nil {
			d.Form = apd.NaN
			if math.IsInf(v.AsDouble(), 0) {
				d.Form = apd.Infinite
				d.Negative = math.Signbit(v.AsDouble())
			}
		}
	case TypeNumberDecimal:
		return v.AsDecimal()
	default:
		panic("value is not numeric")
	}
	return d
}

// RepresentAsInt64 reports whether v is exactly representable as an int64 and
// returns the representation.
func RepresentAsInt64(v Value) (int64, bool) {
	switch v.tag {
	case TypeNumberInt32:
		return int64(v.AsInt32()), true
	case TypeNumberInt64:
		return v.AsInt64(), true
	case TypeNumberDouble:
		f := v.AsDouble()
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
			return 0, false
		}
		// Beyond 2^63 the conversion wraps.
		if f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	case TypeNumberDecimal:
		i, err := v.AsDecimal().Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// IsZero reports whether a numeric value is exactly zero, including -0.0.
func IsZero(v Value) bool {
	switch v.tag {
	case TypeNumberInt32:
		return v.AsInt32() == 0
	case TypeNumberInt64:
		return v.AsInt64() == 0
	case TypeNumberDouble:
		return v.AsDouble() == 0
	case TypeNumberDecimal:
		return v.AsDecimal().IsZero()
	}
	return false
}
