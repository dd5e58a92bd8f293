package value

import (
	"bytes"
	"sort"
	"testing"
)

func buildKey(t *testing.T, ordering uint32, d Discriminator, components ...interface{}) *KeyString {
	t.Helper()
	b := NewKeyStringBuilder(KeyStringV1, ordering)
	for _, c := range components {
		switch c := c.(type) {
		case int:
			b.AppendInt64(int64(c))
		case int64:
			b.AppendInt64(c)
		case string:
			b.AppendString(c)
		default:
			t.Fatalf("unsupported component %T", c)
		}
	}
	return b.Release(d)
}

func TestKeyOrderMatchesComponentOrder(t *testing.T) {
	keys := []*KeyString{
		buildKey(t, 0, Inclusive, int64(-100)),
		buildKey(t, 0, Inclusive, int64(-1)),
		buildKey(t, 0, Inclusive, int64(0)),
		buildKey(t, 0, Inclusive, int64(1)),
		buildKey(t, 0, Inclusive, int64(1), "a"),
		buildKey(t, 0, Inclusive, int64(1), "b"),
		buildKey(t, 0, Inclusive, int64(2)),
	}
	for i := 0; i < len(keys)-1; i++ {
		if bytes.Compare(keys[i].Bytes(), keys[i+1].Bytes()) >= 0 {
			t.Errorf("key %d (%s) must memcmp before key %d (%s)", i, keys[i], i+1, keys[i+1])
		}
	}
}

func TestDescendingOrderingBit(t *testing.T) {
	// Bit 0 set flips the first component to descending.
	lo := buildKey(t, 1, Inclusive, int64(1))
	hi := buildKey(t, 1, Inclusive, int64(2))
	if bytes.Compare(lo.Bytes(), hi.Bytes()) <= 0 {
		t.Error("descending component must invert memcmp order")
	}

	// Second component still ascending.
	a := buildKey(t, 1, Inclusive, int64(1), "a")
	b := buildKey(t, 1, Inclusive, int64(1), "b")
	if bytes.Compare(a.Bytes(), b.Bytes()) >= 0 {
		t.Error("unflipped component must keep ascending order")
	}
}

func TestDiscriminatorBrackets(t *testing.T) {
	before := buildKey(t, 0, ExclusiveBefore, int64(5))
	inc := buildKey(t, 0, Inclusive, int64(5))
	after := buildKey(t, 0, ExclusiveAfter, int64(5))

	keys := [][]byte{after.Bytes(), before.Bytes(), inc.Bytes()}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	if !bytes.Equal(keys[0], before.Bytes()) || !bytes.Equal(keys[1], inc.Bytes()) || !bytes.Equal(keys[2], after.Bytes()) {
		t.Error("discriminators must sort exclusiveBefore < inclusive < exclusiveAfter")
	}
}

func TestNumberSortsBeforeString(t *testing.T) {
	num := buildKey(t, 0, Inclusive, int64(1<<62))
	str := buildKey(t, 0, Inclusive, "a")
	if bytes.Compare(num.Bytes(), str.Bytes()) >= 0 {
		t.Error("numeric components must sort before string components")
	}
}

func TestKeyStringRendering(t *testing.T) {
	k := buildKey(t, 0, Inclusive, int64(7), "x")
	if got := k.String(); got != `KS(7, "x")` {
		t.Errorf("String() = %s", got)
	}
}

func TestKeyStringClone(t *testing.T) {
	k := buildKey(t, 0, Inclusive, int64(1))
	c := k.Clone()
	if !bytes.Equal(k.Bytes(), c.Bytes()) {
		t.Fatal("clone must preserve bytes")
	}
	NewKeyStringValue(c).Release()
	if len(k.Bytes()) == 0 {
		t.Error("releasing the clone must not clear the original")
	}
}
