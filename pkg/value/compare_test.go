package value

import (
	"bytes"
	"math"
	"testing"
)

func TestCompareNumbersAcrossTags(t *testing.T) {
	cases := []struct {
		name string
		lhs  Value
		rhs  Value
		want int
	}{
		{"int32 vs int64", NewInt32(5), NewInt64(7), -1},
		{"int64 vs double", NewInt64(2), NewDouble(1.5), 1},
		{"double vs decimal", NewDouble(0.5), MustDecimal("0.5"), 0},
		{"int32 vs decimal", NewInt32(-3), MustDecimal("-2.99"), -1},
		{"nan below everything", NewDouble(math.NaN()), NewDouble(math.Inf(-1)), -1},
		{"nan equals nan", NewDouble(math.NaN()), MustDecimal("NaN"), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.lhs, tc.rhs, nil); got != tc.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tc.lhs, tc.rhs, got, tc.want)
			}
		})
	}
}

func TestCompareTypeBracketing(t *testing.T) {
	// Any number sorts before any string, strings before objects, objects
	// before arrays, arrays before booleans.
	ladder := []Value{
		Null,
		NewDouble(math.Inf(1)),
		NewString(""),
		NewObjectValue(NewObject()),
		NewArrayValue(NewArray()),
		False,
		NewDate(0),
		NewTimestamp(0),
	}
	for i := 0; i < len(ladder)-1; i++ {
		if got := Compare(ladder[i], ladder[i+1], nil); got != -1 {
			t.Errorf("ladder[%d] (%s) must sort before ladder[%d] (%s), got %d",
				i, ladder[i], i+1, ladder[i+1], got)
		}
	}
}

func TestCompareStringsWithCollator(t *testing.T) {
	coll, err := NewCaseInsensitiveCollator("en")
	if err != nil {
		t.Fatalf("NewCaseInsensitiveCollator: %v", err)
	}
	if got := Compare(NewString("HELLO"), NewString("hello"), coll); got != 0 {
		t.Errorf("case-insensitive compare = %d, want 0", got)
	}
	if got := Compare(NewString("HELLO"), NewString("hello"), nil); got == 0 {
		t.Error("byte-wise compare must distinguish case")
	}
}

func TestCompareArraysElementwise(t *testing.T) {
	a := NewArray()
	a.Push(NewInt32(1))
	a.Push(NewInt32(2))
	b := NewArray()
	b.Push(NewInt32(1))
	b.Push(NewInt32(3))
	if got := Compare(NewArrayValue(a), NewArrayValue(b), nil); got != -1 {
		t.Errorf("[1,2] vs [1,3] = %d, want -1", got)
	}

	shorter := NewArray()
	shorter.Push(NewInt32(1))
	if got := Compare(NewArrayValue(shorter), NewArrayValue(a), nil); got != -1 {
		t.Errorf("prefix array must sort first, got %d", got)
	}
}

func TestCompareObjectsFieldwise(t *testing.T) {
	a := NewObject()
	a.Set("x", NewInt32(1))
	b := NewObject()
	b.Set("x", NewInt32(2))
	if got := Compare(NewObjectValue(a), NewObjectValue(b), nil); got != -1 {
		t.Errorf("{x:1} vs {x:2} = %d, want -1", got)
	}

	c := NewObject()
	c.Set("y", NewInt32(0))
	// Field name decides before field value.
	if got := Compare(NewObjectValue(a), NewObjectValue(c), nil); got != -1 {
		t.Errorf("{x:1} vs {y:0} = %d, want -1", got)
	}
}

func TestCompareMixedRepresentationObjects(t *testing.T) {
	obj := NewObject()
	obj.Set("a", NewInt32(1))
	obj.Set("b", NewString("two"))
	native := NewObjectValue(obj)
	view := NewBSONObject(MarshalObject(obj))

	if got := Compare(native, view, nil); got != 0 {
		t.Errorf("native and encoded object must compare equal, got %d", got)
	}
}

func TestSameCanonicalClass(t *testing.T) {
	if !SameCanonicalClass(NewInt32(1), MustDecimal("2")) {
		t.Error("all numbers share a class")
	}
	if SameCanonicalClass(NewInt32(1), NewString("1")) {
		t.Error("number and string are different classes")
	}
	if !SameCanonicalClass(NewArrayValue(NewArray()), NewBSONArray(MarshalArray(NewArray()))) {
		t.Error("native and view arrays share a class")
	}
}

func TestKeyStringCompareIsBytewise(t *testing.T) {
	mk := func(i int64) Value {
		b := NewKeyStringBuilder(KeyStringV1, 0)
		b.AppendInt64(i)
		return NewKeyStringValue(b.Release(Inclusive))
	}
	lo, hi := mk(-5), mk(10)
	if got := Compare(lo, hi, nil); got != -1 {
		t.Errorf("KS(-5) vs KS(10) = %d, want -1", got)
	}
	if bytes.Compare(lo.AsKeyString().Bytes(), hi.AsKeyString().Bytes()) != -1 {
		t.Error("underlying buffers must memcmp in logical order")
	}
}
