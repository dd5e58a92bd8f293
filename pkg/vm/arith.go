package vm

import (
	"math"

	"github.com/cockroachdb/apd/v3"

	"slotvm/pkg/value"
)

// Binary arithmetic follows a widening ladder: the computation happens in the
// widest operand type, and integer overflow promotes the result one more rung
// (int32 to int64, int64 to decimal). Doubles and decimals never overflow.

type arithOp uint8

const (
	arithAdd arithOp = iota
	arithSub
	arithMul
)

func addInt64Checked(a, b int64) (int64, bool) {
	r := a + b
	if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

func subInt64Checked(a, b int64) (int64, bool) {
	r := a - b
	if (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

func mulInt64Checked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, false
	}
	return r, true
}

func applyInt64(op arithOp, a, b int64) (int64, bool) {
	switch op {
	case arithAdd:
		return addInt64Checked(a, b)
	case arithSub:
		return subInt64Checked(a, b)
	default:
		return mulInt64Checked(a, b)
	}
}

func applyDouble(op arithOp, a, b float64) float64 {
	switch op {
	case arithAdd:
		return a + b
	case arithSub:
		return a - b
	default:
		return a * b
	}
}

func applyDecimal(op arithOp, a, b *apd.Decimal) *apd.Decimal {
	res := new(apd.Decimal)
	switch op {
	case arithAdd:
		value.DecimalCtx.Add(res, a, b)
	case arithSub:
		value.DecimalCtx.Sub(res, a, b)
	default:
		value.DecimalCtx.Mul(res, a, b)
	}
	return res
}

func genericArithmetic(op arithOp, lhs, rhs value.Value) (value.Value, bool, error) {
	if lhs.IsNumber() && rhs.IsNumber() {
		switch value.WidestNumericType(lhs.Tag(), rhs.Tag()) {
		case value.TypeNumberInt32:
			a, b := int64(lhs.AsInt32()), int64(rhs.AsInt32())
			if r, ok := applyInt64(op, a, b); ok {
				if r >= math.MinInt32 && r <= math.MaxInt32 {
					return value.NewInt32(int32(r)), false, nil
				}
				return value.NewInt64(r), false, nil
			}
			// Fall through to the int64 attempt below.
			fallthrough
		case value.TypeNumberInt64:
			if r, ok := applyInt64(op, value.CastInt64(lhs), value.CastInt64(rhs)); ok {
				return value.NewInt64(r), false, nil
			}
			return value.NewDecimal(applyDecimal(op, value.CastDecimal(lhs), value.CastDecimal(rhs))), true, nil
		case value.TypeNumberDouble:
			return value.NewDouble(applyDouble(op, value.CastDouble(lhs), value.CastDouble(rhs))), false, nil
		default:
			return value.NewDecimal(applyDecimal(op, value.CastDecimal(lhs), value.CastDecimal(rhs))), true, nil
		}
	}

	// Date arithmetic works on the millisecond payload. A date paired with a
	// number yields a date; two dates yield their int64 difference or sum.
	lhsDate, rhsDate := lhs.Tag() == value.TypeDate, rhs.Tag() == value.TypeDate
	if (lhsDate && (rhsDate || rhs.IsNumber())) || (rhsDate && lhs.IsNumber()) {
		var a, b int64
		if lhsDate {
			a = lhs.AsDate()
		} else {
			a = value.CastInt64(lhs)
		}
		if rhsDate {
			b = rhs.AsDate()
		} else {
			b = value.CastInt64(rhs)
		}
		r, ok := applyInt64(op, a, b)
		if !ok {
			return value.Nothing, false, errDateOverflow
		}
		if lhsDate && rhsDate {
			return value.NewInt64(r), false, nil
		}
		return value.NewDate(r), false, nil
	}

	return value.Nothing, false, nil
}

func genericAdd(lhs, rhs value.Value) (value.Value, bool, error) {
	return genericArithmetic(arithAdd, lhs, rhs)
}

func genericSub(lhs, rhs value.Value) (value.Value, bool, error) {
	return genericArithmetic(arithSub, lhs, rhs)
}

func genericMul(lhs, rhs value.Value) (value.Value, bool, error) {
	return genericArithmetic(arithMul, lhs, rhs)
}

// genericDiv computes in double regardless of integer operand widths, so
// 7 / 2 is 3.5. Decimal operands keep decimal precision.
func genericDiv(lhs, rhs value.Value) (value.Value, bool, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return value.Nothing, false, nil
	}
	if value.IsZero(rhs) {
		return value.Nothing, false, errDivisionByZero
	}
	if value.WidestNumericType(lhs.Tag(), rhs.Tag()) == value.TypeNumberDecimal {
		res := new(apd.Decimal)
		value.DecimalCtx.Quo(res, value.CastDecimal(lhs), value.CastDecimal(rhs))
		return value.NewDecimal(res), true, nil
	}
	return value.NewDouble(value.CastDouble(lhs) / value.CastDouble(rhs)), false, nil
}

// genericIDiv truncates toward zero. Double and decimal operands participate
// only when exactly representable as int64.
func genericIDiv(lhs, rhs value.Value) (value.Value, bool, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return value.Nothing, false, nil
	}
	switch value.WidestNumericType(lhs.Tag(), rhs.Tag()) {
	case value.TypeNumberInt32:
		a, b := lhs.AsInt32(), rhs.AsInt32()
		if b == 0 {
			return value.Nothing, false, errDivisionByZero
		}
		if a == math.MinInt32 && b == -1 {
			return value.NewInt64(-int64(a)), false, nil
		}
		return value.NewInt32(a / b), false, nil
	case value.TypeNumberInt64:
		a, b := value.CastInt64(lhs), value.CastInt64(rhs)
		if b == 0 {
			return value.Nothing, false, errDivisionByZero
		}
		if a == math.MinInt64 && b == -1 {
			return value.Nothing, false, nil
		}
		return value.NewInt64(a / b), false, nil
	default:
		a, aok := value.RepresentAsInt64(lhs)
		b, bok := value.RepresentAsInt64(rhs)
		if !aok || !bok {
			return value.Nothing, false, nil
		}
		if b == 0 {
			return value.Nothing, false, errDivisionByZero
		}
		if a == math.MinInt64 && b == -1 {
			return value.Nothing, false, nil
		}
		return value.NewInt64(a / b), false, nil
	}
}

func genericMod(lhs, rhs value.Value) (value.Value, bool, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return value.Nothing, false, nil
	}
	if value.IsZero(rhs) {
		return value.Nothing, false, errModByZero
	}
	switch value.WidestNumericType(lhs.Tag(), rhs.Tag()) {
	case value.TypeNumberInt32:
		return value.NewInt32(lhs.AsInt32() % rhs.AsInt32()), false, nil
	case value.TypeNumberInt64:
		return value.NewInt64(value.CastInt64(lhs) % value.CastInt64(rhs)), false, nil
	case value.TypeNumberDouble:
		return value.NewDouble(math.Mod(value.CastDouble(lhs), value.CastDouble(rhs))), false, nil
	default:
		res := new(apd.Decimal)
		value.DecimalCtx.Rem(res, value.CastDecimal(lhs), value.CastDecimal(rhs))
		return value.NewDecimal(res), true, nil
	}
}

// genericNegate is subtraction from int32 zero, which gives negation the same
// widening behavior as the other arithmetic ops.
func genericNegate(operand value.Value) (value.Value, bool, error) {
	return genericSub(value.NewInt32(0), operand)
}

func genericAbs(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32:
		i := operand.AsInt32()
		if i == math.MinInt32 {
			return value.NewInt64(-int64(i)), false, nil
		}
		if i < 0 {
			i = -i
		}
		return value.NewInt32(i), false, nil
	case value.TypeNumberInt64:
		i := operand.AsInt64()
		if i == math.MinInt64 {
			return value.Nothing, false, nil
		}
		if i < 0 {
			i = -i
		}
		return value.NewInt64(i), false, nil
	case value.TypeNumberDouble:
		return value.NewDouble(math.Abs(operand.AsDouble())), false, nil
	case value.TypeNumberDecimal:
		res := new(apd.Decimal)
		res.Abs(operand.AsDecimal())
		return value.NewDecimal(res), true, nil
	}
	return value.Nothing, false, nil
}

// decimalRound quantizes d to an integral value with the given rounding mode.
// Non-finite inputs pass through unchanged.
func decimalRound(d *apd.Decimal, rounding apd.Rounder) *apd.Decimal {
	res := new(apd.Decimal)
	if d.Form != apd.Finite {
		res.Set(d)
		return res
	}
	ctx := value.DecimalCtx
	ctx.Rounding = rounding
	ctx.Quantize(res, d, 0)
	return res
}

func genericCeil(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64:
		return operand, false, nil
	case value.TypeNumberDouble:
		return value.NewDouble(math.Ceil(operand.AsDouble())), false, nil
	case value.TypeNumberDecimal:
		return value.NewDecimal(decimalRound(operand.AsDecimal(), apd.RoundCeiling)), true, nil
	}
	return value.Nothing, false, nil
}

func genericFloor(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64:
		return operand, false, nil
	case value.TypeNumberDouble:
		return value.NewDouble(math.Floor(operand.AsDouble())), false, nil
	case value.TypeNumberDecimal:
		return value.NewDecimal(decimalRound(operand.AsDecimal(), apd.RoundFloor)), true, nil
	}
	return value.Nothing, false, nil
}

func genericTrunc(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64:
		return operand, false, nil
	case value.TypeNumberDouble:
		return value.NewDouble(math.Trunc(operand.AsDouble())), false, nil
	case value.TypeNumberDecimal:
		return value.NewDecimal(decimalRound(operand.AsDecimal(), apd.RoundDown)), true, nil
	}
	return value.Nothing, false, nil
}

func genericExp(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64, value.TypeNumberDouble:
		return value.NewDouble(math.Exp(value.CastDouble(operand))), false, nil
	case value.TypeNumberDecimal:
		res := new(apd.Decimal)
		value.DecimalCtx.Exp(res, operand.AsDecimal())
		return value.NewDecimal(res), true, nil
	}
	return value.Nothing, false, nil
}

// genericLn and genericLog10 return Nothing outside the positive domain, but
// a NaN operand is a legal input producing a NaN result.
func genericLn(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64, value.TypeNumberDouble:
		f := value.CastDouble(operand)
		if f <= 0 && !math.IsNaN(f) {
			return value.Nothing, false, nil
		}
		return value.NewDouble(math.Log(f)), false, nil
	case value.TypeNumberDecimal:
		d := operand.AsDecimal()
		if d.Form == apd.NaN {
			res := new(apd.Decimal)
			res.Set(d)
			return value.NewDecimal(res), true, nil
		}
		if d.Sign() <= 0 {
			return value.Nothing, false, nil
		}
		res := new(apd.Decimal)
		value.DecimalCtx.Ln(res, d)
		return value.NewDecimal(res), true, nil
	}
	return value.Nothing, false, nil
}

func genericLog10(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64, value.TypeNumberDouble:
		f := value.CastDouble(operand)
		if f <= 0 && !math.IsNaN(f) {
			return value.Nothing, false, nil
		}
		return value.NewDouble(math.Log10(f)), false, nil
	case value.TypeNumberDecimal:
		d := operand.AsDecimal()
		if d.Form == apd.NaN {
			res := new(apd.Decimal)
			res.Set(d)
			return value.NewDecimal(res), true, nil
		}
		if d.Sign() <= 0 {
			return value.Nothing, false, nil
		}
		res := new(apd.Decimal)
		value.DecimalCtx.Log10(res, d)
		return value.NewDecimal(res), true, nil
	}
	return value.Nothing, false, nil
}

func genericSqrt(operand value.Value) (value.Value, bool, error) {
	switch operand.Tag() {
	case value.TypeNumberInt32, value.TypeNumberInt64, value.TypeNumberDouble:
		f := value.CastDouble(operand)
		if f < 0 && !math.IsNaN(f) {
			return value.Nothing, false, nil
		}
		return value.NewDouble(math.Sqrt(f)), false, nil
	case value.TypeNumberDecimal:
		d := operand.AsDecimal()
		if d.Form != apd.NaN && d.Sign() < 0 {
			return value.Nothing, false, nil
		}
		res := new(apd.Decimal)
		value.DecimalCtx.Sqrt(res, d)
		return value.NewDecimal(res), true, nil
	}
	return value.Nothing, false, nil
}

// Trigonometric functions compute in double regardless of operand width;
// decimal operands are downcast. Bounded functions return Nothing outside
// their domain, with NaN a legal input as for ln and log10.
func genericTrig(operand value.Value, f func(float64) float64) (value.Value, bool, error) {
	if !operand.IsNumber() {
		return value.Nothing, false, nil
	}
	return value.NewDouble(f(value.CastDouble(operand))), false, nil
}

func genericBoundedTrig(operand value.Value, lo, hi float64, f func(float64) float64) (value.Value, bool, error) {
	if !operand.IsNumber() {
		return value.Nothing, false, nil
	}
	x := value.CastDouble(operand)
	if (x < lo || x > hi) && !math.IsNaN(x) {
		return value.Nothing, false, nil
	}
	return value.NewDouble(f(x)), false, nil
}

func genericAtan2(lhs, rhs value.Value) (value.Value, bool, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return value.Nothing, false, nil
	}
	return value.NewDouble(math.Atan2(value.CastDouble(lhs), value.CastDouble(rhs))), false, nil
}

func degreesToRadians(x float64) float64 { return x * math.Pi / 180 }
func radiansToDegrees(x float64) float64 { return x * 180 / math.Pi }

func genericNot(operand value.Value) (value.Value, bool, error) {
	if operand.Tag() == value.TypeBoolean {
		return value.NewBool(!operand.AsBool()), false, nil
	}
	return value.Nothing, false, nil
}

// genericNumConvert converts between numeric types only when the value
// survives the round trip exactly. Lossy conversions yield Nothing.
func genericNumConvert(operand value.Value, target value.TypeTag) (value.Value, bool) {
	if !operand.IsNumber() {
		return value.Nothing, false
	}
	switch target {
	case value.TypeNumberInt32:
		i, ok := value.RepresentAsInt64(operand)
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return value.Nothing, false
		}
		return value.NewInt32(int32(i)), false
	case value.TypeNumberInt64:
		i, ok := value.RepresentAsInt64(operand)
		if !ok {
			return value.Nothing, false
		}
		return value.NewInt64(i), false
	case value.TypeNumberDouble:
		switch operand.Tag() {
		case value.TypeNumberInt32, value.TypeNumberDouble:
			return value.NewDouble(value.CastDouble(operand)), false
		case value.TypeNumberInt64:
			i := operand.AsInt64()
			f := float64(i)
			if int64(f) != i || f >= math.MaxInt64 {
				return value.Nothing, false
			}
			return value.NewDouble(f), false
		default:
			d := operand.AsDecimal()
			f, err := d.Float64()
			if err != nil {
				return value.Nothing, false
			}
			back := new(apd.Decimal)
			if _, err := back.SetFloat64(f); err != nil || back.Cmp(d) != 0 {
				return value.Nothing, false
			}
			return value.NewDouble(f), false
		}
	case value.TypeNumberDecimal:
		if operand.Tag() == value.TypeNumberDecimal {
			return operand.Copy(), true
		}
		return value.NewDecimal(value.CastDecimal(operand)), true
	}
	return value.Nothing, false
}

// compare3way totally orders any two non-Nothing values, including across
// canonical classes.
func compare3way(lhs, rhs value.Value, coll *value.Collator) value.Value {
	if lhs.IsNothing() || rhs.IsNothing() {
		return value.Nothing
	}
	return value.NewInt32(int32(value.Compare(lhs, rhs, coll)))
}

type compareOp uint8

const (
	cmpLess compareOp = iota
	cmpLessEq
	cmpGreater
	cmpGreaterEq
	cmpEq
	cmpNeq
)

// genericCompare gates relational opcodes on canonical class: comparing a
// number to a string is Nothing, not false.
func genericCompare(op compareOp, lhs, rhs value.Value, coll *value.Collator) value.Value {
	if lhs.IsNothing() || rhs.IsNothing() || !value.SameCanonicalClass(lhs, rhs) {
		return value.Nothing
	}
	c := value.Compare(lhs, rhs, coll)
	switch op {
	case cmpLess:
		return value.NewBool(c < 0)
	case cmpLessEq:
		return value.NewBool(c <= 0)
	case cmpGreater:
		return value.NewBool(c > 0)
	case cmpGreaterEq:
		return value.NewBool(c >= 0)
	case cmpEq:
		return value.NewBool(c == 0)
	default:
		return value.NewBool(c != 0)
	}
}
