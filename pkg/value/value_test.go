package value

import (
	"math"
	"testing"
)

func TestScalarRoundTrip(t *testing.T) {
	if got := NewInt32(-42).AsInt32(); got != -42 {
		t.Errorf("AsInt32 = %d, want -42", got)
	}
	if got := NewInt64(1 << 40).AsInt64(); got != 1<<40 {
		t.Errorf("AsInt64 = %d, want %d", got, int64(1)<<40)
	}
	if got := NewDouble(3.5).AsDouble(); got != 3.5 {
		t.Errorf("AsDouble = %v, want 3.5", got)
	}
	if got := NewDate(1600000000000).AsDate(); got != 1600000000000 {
		t.Errorf("AsDate = %d", got)
	}
	if got := NewTimestamp(0xDEAD0001).AsTimestamp(); got != 0xDEAD0001 {
		t.Errorf("AsTimestamp = %d", got)
	}
	if !NewBool(true).AsBool() || NewBool(false).AsBool() {
		t.Error("boolean constructors broken")
	}
}

func TestStringRepresentations(t *testing.T) {
	cases := []string{"", "a", "seven77", "an eight", "definitely longer than seven bytes"}
	for _, s := range cases {
		v := NewString(s)
		if got := v.AsString(); got != s {
			t.Errorf("AsString(%q) = %q", s, got)
		}
		if len(s) <= 7 && v.Tag() != TypeStringSmall {
			t.Errorf("%q should be stored inline, got tag %s", s, v.Tag())
		}
		if len(s) > 7 && v.Tag() != TypeStringBig {
			t.Errorf("%q should be heap allocated, got tag %s", s, v.Tag())
		}
	}
}

func TestAccessorPanicsOnWrongTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("AsInt32 on a string must panic")
		}
	}()
	NewString("oops").AsInt32()
}

func TestIsNaN(t *testing.T) {
	if !NewDouble(math.NaN()).IsNaN() {
		t.Error("NaN double not detected")
	}
	if NewDouble(1.0).IsNaN() || NewInt32(1).IsNaN() || NewString("NaN").IsNaN() {
		t.Error("false positive IsNaN")
	}
	if !MustDecimal("NaN").IsNaN() {
		t.Error("NaN decimal not detected")
	}
}

func TestCopyIsolation(t *testing.T) {
	arr := NewArray()
	arr.Push(NewString("left"))
	arr.Push(NewInt32(1))
	original := NewArrayValue(arr)

	cp := original.Copy()
	cp.Release()

	if original.AsArray().Len() != 2 {
		t.Fatal("releasing the copy damaged the original")
	}
	if got := original.AsArray().At(0).AsString(); got != "left" {
		t.Errorf("original element = %q, want %q", got, "left")
	}
}

func TestCopyIsolationObject(t *testing.T) {
	obj := NewObject()
	obj.Set("a", NewString("long enough to heap-allocate"))
	original := NewObjectValue(obj)

	cp := original.Copy()
	cp.Release()

	if got := original.AsObject().Get("a").AsString(); got != "long enough to heap-allocate" {
		t.Errorf("original field damaged: %q", got)
	}
}

func TestReleaseClearsContainers(t *testing.T) {
	arr := NewArray()
	arr.Push(NewInt32(1))
	v := NewArrayValue(arr)
	v.Release()
	if arr.Len() != 0 {
		t.Error("release must clear the array")
	}
}

func TestContainersSkipNothing(t *testing.T) {
	arr := NewArray()
	arr.Push(Nothing)
	arr.Push(NewInt32(1))
	if arr.Len() != 1 {
		t.Errorf("array length = %d, want 1 (Nothing dropped)", arr.Len())
	}

	obj := NewObject()
	obj.Set("gone", Nothing)
	if obj.Len() != 0 {
		t.Error("object must drop Nothing fields")
	}
	if got := obj.Get("gone"); !got.IsNothing() {
		t.Error("missing field lookup must be Nothing")
	}
}

func TestArraySetDedup(t *testing.T) {
	set := NewArraySet()
	if !set.Push(NewInt32(3)) {
		t.Error("first insert must succeed")
	}
	// Numerically equal across types counts as a duplicate.
	if set.Push(NewDouble(3.0)) {
		t.Error("cross-type duplicate must be rejected")
	}
	if set.Push(NewInt32(3)) {
		t.Error("duplicate must be rejected")
	}
	if set.Len() != 1 {
		t.Errorf("set length = %d, want 1", set.Len())
	}
	if !set.Contains(NewInt64(3)) {
		t.Error("Contains must use numeric equality")
	}
}

func TestArraySetCollatorDedup(t *testing.T) {
	coll, err := NewCaseInsensitiveCollator("en")
	if err != nil {
		t.Fatalf("NewCaseInsensitiveCollator: %v", err)
	}
	set := NewArraySetWithCollator(coll)
	set.Push(NewString("Apple"))
	if set.Push(NewString("apple")) {
		t.Error("case-insensitive collator must treat Apple/apple as equal")
	}
	if set.Len() != 1 {
		t.Errorf("set length = %d, want 1", set.Len())
	}
}
