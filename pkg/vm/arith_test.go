package vm

import (
	"math"
	"testing"

	"slotvm/pkg/value"
)

// mustValue adapts a kernel call's three-value return so it can be used
// inline: v := mustValue(t)(genericAdd(lhs, rhs)).
func mustValue(t *testing.T) func(v value.Value, owned bool, err error) value.Value {
	return func(v value.Value, _ bool, err error) value.Value {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func TestAddWideningLadder(t *testing.T) {
	cases := []struct {
		name    string
		lhs     value.Value
		rhs     value.Value
		wantTag value.TypeTag
		check   func(t *testing.T, v value.Value)
	}{
		{
			"int32 stays int32", value.NewInt32(1), value.NewInt32(2), value.TypeNumberInt32,
			func(t *testing.T, v value.Value) {
				if v.AsInt32() != 3 {
					t.Errorf("got %d", v.AsInt32())
				}
			},
		},
		{
			"int32 overflow widens to int64", value.NewInt32(2_000_000_000), value.NewInt32(2_000_000_000), value.TypeNumberInt64,
			func(t *testing.T, v value.Value) {
				if v.AsInt64() != 4_000_000_000 {
					t.Errorf("got %d", v.AsInt64())
				}
			},
		},
		{
			"int64 overflow widens to decimal", value.NewInt64(math.MaxInt64), value.NewInt64(1), value.TypeNumberDecimal,
			func(t *testing.T, v value.Value) {
				want := value.MustDecimal("9223372036854775808")
				if value.Compare(v, want, nil) != 0 {
					t.Errorf("got %s", v)
				}
			},
		},
		{
			"double absorbs ints", value.NewInt64(2), value.NewDouble(0.5), value.TypeNumberDouble,
			func(t *testing.T, v value.Value) {
				if v.AsDouble() != 2.5 {
					t.Errorf("got %v", v.AsDouble())
				}
			},
		},
		{
			"decimal dominates", value.MustDecimal("0.1"), value.NewDouble(0.5), value.TypeNumberDecimal,
			func(t *testing.T, v value.Value) {
				if value.Compare(v, value.MustDecimal("0.6"), nil) != 0 {
					t.Errorf("got %s", v)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := mustValue(t)(genericAdd(tc.lhs, tc.rhs))
			if v.Tag() != tc.wantTag {
				t.Fatalf("tag = %s, want %s", v.Tag(), tc.wantTag)
			}
			tc.check(t, v)
		})
	}
}

func TestSubMulWidening(t *testing.T) {
	v := mustValue(t)(genericSub(value.NewInt32(math.MinInt32), value.NewInt32(1)))
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != int64(math.MinInt32)-1 {
		t.Errorf("sub underflow: %s", v)
	}

	v = mustValue(t)(genericMul(value.NewInt64(math.MaxInt64), value.NewInt64(2)))
	if v.Tag() != value.TypeNumberDecimal {
		t.Errorf("mul overflow must go decimal, got %s", v.Tag())
	}
}

func TestArithmeticNonNumeric(t *testing.T) {
	v := mustValue(t)(genericAdd(value.NewString("1"), value.NewInt32(1)))
	if !v.IsNothing() {
		t.Errorf("string + number = %s, want Nothing", v)
	}
	v = mustValue(t)(genericMul(value.Nothing, value.NewInt32(1)))
	if !v.IsNothing() {
		t.Error("Nothing operand must yield Nothing")
	}
}

func TestDateArithmetic(t *testing.T) {
	v := mustValue(t)(genericAdd(value.NewDate(1000), value.NewInt64(500)))
	if v.Tag() != value.TypeDate || v.AsDate() != 1500 {
		t.Errorf("date + number = %s", v)
	}

	v = mustValue(t)(genericSub(value.NewDate(2000), value.NewDate(500)))
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != 1500 {
		t.Errorf("date - date = %s", v)
	}

	_, _, err := genericAdd(value.NewDate(math.MaxInt64), value.NewInt64(1))
	if err == nil {
		t.Fatal("date overflow must raise")
	}
	if vmErr, ok := err.(*Error); !ok || vmErr.Code != CodeDateOverflow {
		t.Errorf("error = %v, want date overflow", err)
	}
}

func TestDivAlwaysDouble(t *testing.T) {
	v := mustValue(t)(genericDiv(value.NewInt32(7), value.NewInt32(2)))
	if v.Tag() != value.TypeNumberDouble || v.AsDouble() != 3.5 {
		t.Errorf("7 / 2 = %s, want 3.5", v)
	}

	v = mustValue(t)(genericDiv(value.MustDecimal("1"), value.MustDecimal("8")))
	if v.Tag() != value.TypeNumberDecimal || value.Compare(v, value.MustDecimal("0.125"), nil) != 0 {
		t.Errorf("decimal divide = %s", v)
	}
}

func TestDivisionByZeroRaises(t *testing.T) {
	zeros := []value.Value{
		value.NewInt32(0),
		value.NewInt64(0),
		value.NewDouble(0),
		value.NewDouble(math.Copysign(0, -1)),
		value.MustDecimal("0"),
	}
	for _, z := range zeros {
		t.Run(z.Tag().String(), func(t *testing.T) {
			if _, _, err := genericDiv(value.NewInt32(1), z); err == nil {
				t.Error("div must raise")
			}
			if _, _, err := genericIDiv(value.NewInt64(1), z); err == nil {
				t.Error("idiv must raise")
			}
			if _, _, err := genericMod(value.NewInt32(1), z); err == nil {
				t.Error("mod must raise")
			}
		})
	}

	if _, _, err := genericDiv(value.NewInt32(1), value.NewDouble(1e-300)); err != nil {
		t.Errorf("tiny nonzero divisor must not raise: %v", err)
	}
}

func TestIDivLosslessGate(t *testing.T) {
	v := mustValue(t)(genericIDiv(value.NewInt64(7), value.NewInt32(2)))
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != 3 {
		t.Errorf("7 idiv 2 = %s", v)
	}

	v = mustValue(t)(genericIDiv(value.NewDouble(8.0), value.NewDouble(2.0)))
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != 4 {
		t.Errorf("8.0 idiv 2.0 = %s", v)
	}

	// Fractional double operand is not losslessly an int64.
	v = mustValue(t)(genericIDiv(value.NewDouble(8.5), value.NewDouble(2.0)))
	if !v.IsNothing() {
		t.Errorf("8.5 idiv 2.0 = %s, want Nothing", v)
	}
}

func TestMod(t *testing.T) {
	v := mustValue(t)(genericMod(value.NewInt32(7), value.NewInt32(3)))
	if v.AsInt32() != 1 {
		t.Errorf("7 mod 3 = %s", v)
	}
	v = mustValue(t)(genericMod(value.NewDouble(7.5), value.NewDouble(2)))
	if v.AsDouble() != 1.5 {
		t.Errorf("7.5 mod 2 = %s", v)
	}
	v = mustValue(t)(genericMod(value.NewInt32(-7), value.NewInt32(3)))
	if v.AsInt32() != -1 {
		t.Errorf("-7 mod 3 = %s, remainder takes the dividend sign", v)
	}
}

func TestAbsEdgeCases(t *testing.T) {
	v := mustValue(t)(genericAbs(value.NewInt32(math.MinInt32)))
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != -int64(math.MinInt32) {
		t.Errorf("abs(MinInt32) = %s", v)
	}

	v = mustValue(t)(genericAbs(value.NewInt64(math.MinInt64)))
	if !v.IsNothing() {
		t.Errorf("abs(MinInt64) = %s, want Nothing", v)
	}

	v = mustValue(t)(genericAbs(value.NewDouble(-2.5)))
	if v.AsDouble() != 2.5 {
		t.Errorf("abs(-2.5) = %s", v)
	}

	v = mustValue(t)(genericAbs(value.MustDecimal("-1.5")))
	if value.Compare(v, value.MustDecimal("1.5"), nil) != 0 {
		t.Errorf("abs(-1.5m) = %s", v)
	}
}

func TestCeilFloorTruncIdentityOnInts(t *testing.T) {
	ops := map[string]func(value.Value) (value.Value, bool, error){
		"ceil":  genericCeil,
		"floor": genericFloor,
		"trunc": genericTrunc,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			for _, in := range []value.Value{value.NewInt32(-7), value.NewInt64(1 << 40)} {
				v := mustValue(t)(op(in))
				if v.Tag() != in.Tag() || value.Compare(v, in, nil) != 0 {
					t.Errorf("%s(%s) = %s, want identity", name, in, v)
				}
			}
		})
	}

	v := mustValue(t)(genericCeil(value.NewDouble(1.1)))
	if v.AsDouble() != 2.0 {
		t.Errorf("ceil(1.1) = %s", v)
	}
	v = mustValue(t)(genericFloor(value.NewDouble(-1.1)))
	if v.AsDouble() != -2.0 {
		t.Errorf("floor(-1.1) = %s", v)
	}
	v = mustValue(t)(genericTrunc(value.NewDouble(-1.9)))
	if v.AsDouble() != -1.0 {
		t.Errorf("trunc(-1.9) = %s", v)
	}

	v = mustValue(t)(genericFloor(value.MustDecimal("-1.1")))
	if value.Compare(v, value.MustDecimal("-2"), nil) != 0 {
		t.Errorf("floor(-1.1m) = %s", v)
	}
}

func TestLogSqrtDomains(t *testing.T) {
	v := mustValue(t)(genericLn(value.NewInt32(0)))
	if !v.IsNothing() {
		t.Errorf("ln(0) = %s, want Nothing", v)
	}
	v = mustValue(t)(genericLog10(value.NewDouble(-1)))
	if !v.IsNothing() {
		t.Errorf("log10(-1) = %s, want Nothing", v)
	}
	v = mustValue(t)(genericSqrt(value.NewDouble(-4)))
	if !v.IsNothing() {
		t.Errorf("sqrt(-4) = %s, want Nothing", v)
	}

	// NaN is a legal input producing a NaN output.
	v = mustValue(t)(genericLn(value.NewDouble(math.NaN())))
	if !v.IsNaN() {
		t.Errorf("ln(NaN) = %s, want NaN", v)
	}

	v = mustValue(t)(genericLn(value.NewDouble(math.E)))
	if math.Abs(v.AsDouble()-1) > 1e-12 {
		t.Errorf("ln(e) = %v", v.AsDouble())
	}
	v = mustValue(t)(genericLog10(value.NewInt32(1000)))
	if math.Abs(v.AsDouble()-3) > 1e-12 {
		t.Errorf("log10(1000) = %v", v.AsDouble())
	}
	v = mustValue(t)(genericSqrt(value.NewInt32(9)))
	if v.AsDouble() != 3 {
		t.Errorf("sqrt(9) = %v", v.AsDouble())
	}
	v = mustValue(t)(genericExp(value.NewInt32(0)))
	if v.AsDouble() != 1 {
		t.Errorf("exp(0) = %v", v.AsDouble())
	}
}

func TestNegate(t *testing.T) {
	v := mustValue(t)(genericNegate(value.NewInt32(5)))
	if v.AsInt32() != -5 {
		t.Errorf("negate(5) = %s", v)
	}
	// Negating MinInt32 widens like 0 - MinInt32 does.
	v = mustValue(t)(genericNegate(value.NewInt32(math.MinInt32)))
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != -int64(math.MinInt32) {
		t.Errorf("negate(MinInt32) = %s", v)
	}
}

func TestGenericNot(t *testing.T) {
	v := mustValue(t)(genericNot(value.True))
	if v.AsBool() {
		t.Error("not(true) must be false")
	}
	v = mustValue(t)(genericNot(value.NewInt32(0)))
	if !v.IsNothing() {
		t.Error("not(non-boolean) must be Nothing")
	}
}

func TestNumConvertLossless(t *testing.T) {
	v, _ := genericNumConvert(value.NewInt64(7), value.TypeNumberInt32)
	if v.Tag() != value.TypeNumberInt32 || v.AsInt32() != 7 {
		t.Errorf("int64(7) to int32 = %s", v)
	}

	v, _ = genericNumConvert(value.NewInt64(math.MaxInt64), value.TypeNumberInt32)
	if !v.IsNothing() {
		t.Error("out-of-range conversion must be Nothing")
	}

	v, _ = genericNumConvert(value.NewDouble(2.5), value.TypeNumberInt64)
	if !v.IsNothing() {
		t.Error("fractional double to int64 must be Nothing")
	}

	v, _ = genericNumConvert(value.NewDouble(2.0), value.TypeNumberInt64)
	if v.Tag() != value.TypeNumberInt64 || v.AsInt64() != 2 {
		t.Errorf("2.0 to int64 = %s", v)
	}

	v, _ = genericNumConvert(value.MustDecimal("0.1"), value.TypeNumberDouble)
	if !v.IsNothing() {
		t.Error("0.1m is not exactly a double")
	}

	v, _ = genericNumConvert(value.MustDecimal("0.5"), value.TypeNumberDouble)
	if v.Tag() != value.TypeNumberDouble || v.AsDouble() != 0.5 {
		t.Errorf("0.5m to double = %s", v)
	}

	v, owned := genericNumConvert(value.NewInt32(3), value.TypeNumberDecimal)
	if !owned || v.Tag() != value.TypeNumberDecimal {
		t.Errorf("int32 to decimal = %s (owned=%v)", v, owned)
	}

	v, _ = genericNumConvert(value.NewString("3"), value.TypeNumberInt32)
	if !v.IsNothing() {
		t.Error("non-numeric source must be Nothing")
	}
}

func TestCompare3Way(t *testing.T) {
	if v := compare3way(value.Nothing, value.NewInt32(1), nil); !v.IsNothing() {
		t.Error("Nothing operand must propagate")
	}
	if v := compare3way(value.NewInt32(2), value.NewInt64(10), nil); v.AsInt32() != -1 {
		t.Errorf("cmp3w(2, 10) = %s", v)
	}
	// Cross-class operands still totally order.
	if v := compare3way(value.NewInt32(1), value.NewString("1"), nil); v.AsInt32() != -1 {
		t.Errorf("cmp3w(number, string) = %s", v)
	}
}

func TestGenericCompareClassGate(t *testing.T) {
	if v := genericCompare(cmpLess, value.NewInt32(1), value.NewString("2"), nil); !v.IsNothing() {
		t.Error("cross-class relational compare must be Nothing")
	}
	if v := genericCompare(cmpLess, value.NewInt32(1), value.NewDouble(1.5), nil); !v.AsBool() {
		t.Error("1 < 1.5 must hold across numeric tags")
	}
	if v := genericCompare(cmpEq, value.NewString("a"), value.NewString("a"), nil); !v.AsBool() {
		t.Error("string equality broken")
	}
	if v := genericCompare(cmpNeq, value.NewInt32(1), value.NewInt32(1), nil); v.AsBool() {
		t.Error("1 != 1 must be false")
	}
}
