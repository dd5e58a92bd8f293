package value

import (
	"bytes"
	"math"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// canonicalClass brackets tags for cross-type ordering: every number sorts
// before every string, strings before objects, and so on. Within a class the
// type-specific comparison below applies.
func canonicalClass(t TypeTag) int {
	switch t {
	case TypeNothing:
		return 0
	case TypeNull:
		return 5
	case TypeNumberInt32, TypeNumberInt64, TypeNumberDouble, TypeNumberDecimal:
		return 10
	case TypeStringSmall, TypeStringBig, TypeBSONString:
		return 15
	case TypeObject, TypeBSONObject:
		return 20
	case TypeArray, TypeArraySet, TypeBSONArray:
		return 25
	case TypeBoolean:
		return 40
	case TypeDate:
		return 45
	case TypeTimestamp:
		return 47
	case TypePcreRegex:
		return 50
	case TypeKeyString:
		return 55
	case TypeCollator:
		return 60
	default:
		panic("unknown type tag")
	}
}

// SameCanonicalClass reports whether two values can be ordered against each
// other by the relational opcodes. Cross-class comparisons yield Nothing
// there, while the three-way comparison below still totally orders them.
func SameCanonicalClass(lhs, rhs Value) bool {
	return canonicalClass(lhs.tag) == canonicalClass(rhs.tag)
}

// Compare is the total order over non-Nothing values used by cmp3w, min/max
// accumulation, set membership and key ordering. A nil collator means
// byte-wise string comparison. NaN compares equal to NaN and below every
// other number.
func Compare(lhs, rhs Value, coll *Collator) int {
	lc, rc := canonicalClass(lhs.tag), canonicalClass(rhs.tag)
	if lc != rc {
		return cmpInt(lc, rc)
	}

	switch {
	case lhs.IsNumber():
		return compareNumbers(lhs, rhs)
	case lhs.IsString():
		ls, rs := lhs.AsString(), rhs.AsString()
		if coll != nil {
			return coll.CompareStrings(ls, rs)
		}
		return strings.Compare(ls, rs)
	case lhs.IsObject():
		return compareObjects(lhs, rhs, coll)
	case lhs.IsArray():
		return compareArrays(lhs, rhs, coll)
	}

	switch lhs.tag {
	case TypeNull:
		return 0
	case TypeBoolean:
		return cmpBool(lhs.AsBool(), rhs.AsBool())
	case TypeDate:
		return cmpInt64(lhs.AsDate(), rhs.AsDate())
	case TypeTimestamp:
		return cmpUint64(lhs.AsTimestamp(), rhs.AsTimestamp())
	case TypePcreRegex:
		return strings.Compare(lhs.AsPcreRegex().Pattern(), rhs.AsPcreRegex().Pattern())
	case TypeKeyString:
		return bytes.Compare(lhs.AsKeyString().Bytes(), rhs.AsKeyString().Bytes())
	case TypeCollator:
		return 0
	}
	panic("unknown type tag")
}

func compareNumbers(lhs, rhs Value) int {
	switch WidestNumericType(lhs.tag, rhs.tag) {
	case TypeNumberInt32:
		return cmpInt64(int64(lhs.AsInt32()), int64(rhs.AsInt32()))
	case TypeNumberInt64:
		return cmpInt64(CastInt64(lhs), CastInt64(rhs))
	case TypeNumberDouble:
		return cmpDouble(CastDouble(lhs), CastDouble(rhs))
	default:
		return cmpDecimal(CastDecimal(lhs), CastDecimal(rhs))
	}
}

func compareArrays(lhs, rhs Value, coll *Collator) int {
	le := arrayElements(lhs)
	re := arrayElements(rhs)
	for i := 0; i < len(le) && i < len(re); i++ {
		if c := Compare(le[i], re[i], coll); c != 0 {
			return c
		}
	}
	return cmpInt(len(le), len(re))
}

func compareObjects(lhs, rhs Value, coll *Collator) int {
	ln, lv := objectFields(lhs)
	rn, rv := objectFields(rhs)
	for i := 0; i < len(ln) && i < len(rn); i++ {
		if c := strings.Compare(ln[i], rn[i]); c != 0 {
			return c
		}
		if c := Compare(lv[i], rv[i], coll); c != 0 {
			return c
		}
	}
	return cmpInt(len(ln), len(rn))
}

// ArrayElements flattens any array-class value into unowned element views.
func ArrayElements(v Value) []Value { return arrayElements(v) }

// ObjectFields flattens any object-class value into names and unowned value
// views.
func ObjectFields(v Value) ([]string, []Value) { return objectFields(v) }

// arrayElements flattens any array-class value into element views.
func arrayElements(v Value) []Value {
	switch v.tag {
	case TypeArray:
		return v.AsArray().elements
	case TypeArraySet:
		return v.AsArraySet().values
	case TypeBSONArray:
		var out []Value
		it := newBSONIter(v.AsRawBytes())
		for {
			_, el, ok := it.next()
			if !ok {
				break
			}
			out = append(out, el)
		}
		return out
	}
	panic("value is not an array")
}

// objectFields flattens any object-class value into name and value views.
func objectFields(v Value) ([]string, []Value) {
	switch v.tag {
	case TypeObject:
		o := v.AsObject()
		return o.names, o.values
	case TypeBSONObject:
		var names []string
		var vals []Value
		it := newBSONIter(v.AsRawBytes())
		for {
			name, el, ok := it.next()
			if !ok {
				break
			}
			names = append(names, name)
			vals = append(vals, el)
		}
		return names, vals
	}
	panic("value is not an object")
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func cmpDouble(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpDecimal(a, b *apd.Decimal) int {
	an, bn := a.Form == apd.NaN, b.Form == apd.NaN
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	return a.Cmp(b)
}
