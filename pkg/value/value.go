package value

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/apd/v3"
)

// TypeTag discriminates every runtime value the engine can hold.
type TypeTag uint8

const (
	// TypeNothing marks an absent value. It appears transiently on the
	// operand stack and as a function result, never inside a container.
	TypeNothing TypeTag = iota
	TypeNull
	TypeBoolean

	TypeNumberInt32
	TypeNumberInt64
	TypeNumberDouble
	TypeNumberDecimal

	TypeStringSmall // up to 7 bytes, stored inline in the payload
	TypeStringBig
	TypeBSONString // unowned view into a raw document buffer

	TypeDate      // milliseconds since the Unix epoch, int64
	TypeTimestamp // opaque uint64

	TypeArray
	TypeArraySet // deduplicating array
	TypeObject

	TypeBSONObject // unowned view into a raw document buffer
	TypeBSONArray  // unowned view into a raw document buffer

	TypeKeyString
	TypePcreRegex
	TypeCollator
)

// String returns a human-readable name for the tag.
func (t TypeTag) String() string {
	switch t {
	case TypeNothing:
		return "Nothing"
	case TypeNull:
		return "Null"
	case TypeBoolean:
		return "Boolean"
	case TypeNumberInt32:
		return "NumberInt32"
	case TypeNumberInt64:
		return "NumberInt64"
	case TypeNumberDouble:
		return "NumberDouble"
	case TypeNumberDecimal:
		return "NumberDecimal"
	case TypeStringSmall:
		return "StringSmall"
	case TypeStringBig:
		return "StringBig"
	case TypeBSONString:
		return "bsonString"
	case TypeDate:
		return "Date"
	case TypeTimestamp:
		return "Timestamp"
	case TypeArray:
		return "Array"
	case TypeArraySet:
		return "ArraySet"
	case TypeObject:
		return "Object"
	case TypeBSONObject:
		return "bsonObject"
	case TypeBSONArray:
		return "bsonArray"
	case TypeKeyString:
		return "KeyString"
	case TypePcreRegex:
		return "PcreRegex"
	case TypeCollator:
		return "Collator"
	default:
		return "unknown"
	}
}

// Value is a fixed-size tagged value. Inline scalars live in payload; all
// heap-backed kinds hang off obj. Tag and payload are always set together.
type Value struct {
	tag     TypeTag
	payload uint64
	obj     unsafe.Pointer
}

type stringObject struct {
	value string
}

// bsonBytes backs the three view tags. The slice aliases a foreign buffer and
// is never written through.
type bsonBytes struct {
	data []byte
}

var (
	Nothing = Value{tag: TypeNothing}
	Null    = Value{tag: TypeNull}
	True    = Value{tag: TypeBoolean, payload: 1}
	False   = Value{tag: TypeBoolean, payload: 0}
)

func (v Value) Tag() TypeTag { return v.tag }

func NewInt32(i int32) Value {
	return Value{tag: TypeNumberInt32, payload: uint64(int64(i))}
}

func NewInt64(i int64) Value {
	return Value{tag: TypeNumberInt64, payload: uint64(i)}
}

func NewDouble(f float64) Value {
	return Value{tag: TypeNumberDouble, payload: math.Float64bits(f)}
}

func NewBool(b bool) Value {
	if b {
		return True
	}
	return False
}

func NewDate(millis int64) Value {
	return Value{tag: TypeDate, payload: uint64(millis)}
}

func NewTimestamp(ts uint64) Value {
	return Value{tag: TypeTimestamp, payload: ts}
}

// NewDecimal takes ownership of d; callers must not mutate it afterwards.
func NewDecimal(d *apd.Decimal) Value {
	return Value{tag: TypeNumberDecimal, obj: unsafe.Pointer(d)}
}

// NewString stores strings of up to 7 bytes inline and larger ones on the
// heap.
func NewString(s string) Value {
	if len(s) <= maxSmallStringLen {
		return newSmallString(s)
	}
	return Value{tag: TypeStringBig, obj: unsafe.Pointer(&stringObject{value: s})}
}

func NewArrayValue(a *Array) Value {
	return Value{tag: TypeArray, obj: unsafe.Pointer(a)}
}

func NewArraySetValue(s *ArraySet) Value {
	return Value{tag: TypeArraySet, obj: unsafe.Pointer(s)}
}

func NewObjectValue(o *Object) Value {
	return Value{tag: TypeObject, obj: unsafe.Pointer(o)}
}

// NewBSONObject wraps an encoded document without copying. The view is only
// valid while the backing buffer is.
func NewBSONObject(doc []byte) Value {
	return Value{tag: TypeBSONObject, obj: unsafe.Pointer(&bsonBytes{data: doc})}
}

func NewBSONArray(doc []byte) Value {
	return Value{tag: TypeBSONArray, obj: unsafe.Pointer(&bsonBytes{data: doc})}
}

// NewBSONString wraps a length-prefixed string element payload (4-byte
// little-endian length including the terminating NUL, then the bytes).
func NewBSONString(data []byte) Value {
	return Value{tag: TypeBSONString, obj: unsafe.Pointer(&bsonBytes{data: data})}
}

func NewKeyStringValue(ks *KeyString) Value {
	return Value{tag: TypeKeyString, obj: unsafe.Pointer(ks)}
}

func NewPcreRegexValue(re *PcreRegex) Value {
	return Value{tag: TypePcreRegex, obj: unsafe.Pointer(re)}
}

func NewCollatorValue(c *Collator) Value {
	return Value{tag: TypeCollator, obj: unsafe.Pointer(c)}
}

const maxSmallStringLen = 7

func newSmallString(s string) Value {
	var payload uint64
	for i := 0; i < len(s); i++ {
		payload |= uint64(s[i]) << (8 * i)
	}
	payload |= uint64(len(s)) << 56
	return Value{tag: TypeStringSmall, payload: payload}
}

func (v Value) smallString() string {
	n := int(v.payload >> 56)
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v.payload >> (8 * i))
	}
	return string(buf)
}

// Predicates.

func (v Value) IsNothing() bool { return v.tag == TypeNothing }

func (v Value) IsNumber() bool {
	switch v.tag {
	case TypeNumberInt32, TypeNumberInt64, TypeNumberDouble, TypeNumberDecimal:
		return true
	}
	return false
}

func (v Value) IsString() bool {
	switch v.tag {
	case TypeStringSmall, TypeStringBig, TypeBSONString:
		return true
	}
	return false
}

func (v Value) IsObject() bool {
	return v.tag == TypeObject || v.tag == TypeBSONObject
}

func (v Value) IsArray() bool {
	switch v.tag {
	case TypeArray, TypeArraySet, TypeBSONArray:
		return true
	}
	return false
}

func (v Value) IsBoolean() bool { return v.tag == TypeBoolean }

func (v Value) IsNaN() bool {
	switch v.tag {
	case TypeNumberDouble:
		return math.IsNaN(v.AsDouble())
	case TypeNumberDecimal:
		return v.AsDecimal().Form == apd.NaN
	}
	return false
}

// Accessors. Calling one with a mismatched tag is a programming error and
// panics.

func (v Value) AsInt32() int32 {
	if v.tag != TypeNumberInt32 {
		panic("value is not an int32")
	}
	return int32(v.payload)
}

func (v Value) AsInt64() int64 {
	if v.tag != TypeNumberInt64 {
		panic("value is not an int64")
	}
	return int64(v.payload)
}

func (v Value) AsDouble() float64 {
	if v.tag != TypeNumberDouble {
		panic("value is not a double")
	}
	return math.Float64frombits(v.payload)
}

func (v Value) AsDecimal() *apd.Decimal {
	if v.tag != TypeNumberDecimal {
		panic("value is not a decimal")
	}
	return (*apd.Decimal)(v.obj)
}

func (v Value) AsBool() bool {
	if v.tag != TypeBoolean {
		panic("value is not a boolean")
	}
	return v.payload != 0
}

func (v Value) AsDate() int64 {
	if v.tag != TypeDate {
		panic("value is not a date")
	}
	return int64(v.payload)
}

func (v Value) AsTimestamp() uint64 {
	if v.tag != TypeTimestamp {
		panic("value is not a timestamp")
	}
	return v.payload
}

// AsString works for all three string tags.
func (v Value) AsString() string {
	switch v.tag {
	case TypeStringSmall:
		return v.smallString()
	case TypeStringBig:
		return (*stringObject)(v.obj).value
	case TypeBSONString:
		data := (*bsonBytes)(v.obj).data
		n := int(leUint32(data))
		return string(data[4 : 4+n-1])
	}
	panic("value is not a string")
}

func (v Value) AsArray() *Array {
	if v.tag != TypeArray {
		panic("value is not an array")
	}
	return (*Array)(v.obj)
}

func (v Value) AsArraySet() *ArraySet {
	if v.tag != TypeArraySet {
		panic("value is not an array set")
	}
	return (*ArraySet)(v.obj)
}

func (v Value) AsObject() *Object {
	if v.tag != TypeObject {
		panic("value is not an object")
	}
	return (*Object)(v.obj)
}

// AsRawBytes returns the backing buffer of a view tag.
func (v Value) AsRawBytes() []byte {
	switch v.tag {
	case TypeBSONObject, TypeBSONArray, TypeBSONString:
		return (*bsonBytes)(v.obj).data
	}
	panic("value is not a raw document view")
}

func (v Value) AsKeyString() *KeyString {
	if v.tag != TypeKeyString {
		panic("value is not a key string")
	}
	return (*KeyString)(v.obj)
}

func (v Value) AsPcreRegex() *PcreRegex {
	if v.tag != TypePcreRegex {
		panic("value is not a regex")
	}
	return (*PcreRegex)(v.obj)
}

func (v Value) AsCollator() *Collator {
	if v.tag != TypeCollator {
		panic("value is not a collator")
	}
	return (*Collator)(v.obj)
}

// Copy deep-copies heap-backed payloads so the result owns independent
// storage. Inline scalars are returned unchanged; view tags materialize an
// owned copy of the bytes they alias.
func (v Value) Copy() Value {
	switch v.tag {
	case TypeStringBig:
		s := (*stringObject)(v.obj).value
		return Value{tag: TypeStringBig, obj: unsafe.Pointer(&stringObject{value: s})}
	case TypeNumberDecimal:
		d := new(apd.Decimal)
		d.Set(v.AsDecimal())
		return NewDecimal(d)
	case TypeArray:
		return NewArrayValue(v.AsArray().Clone())
	case TypeArraySet:
		return NewArraySetValue(v.AsArraySet().Clone())
	case TypeObject:
		return NewObjectValue(v.AsObject().Clone())
	case TypeBSONObject, TypeBSONArray, TypeBSONString:
		src := (*bsonBytes)(v.obj).data
		dst := make([]byte, len(src))
		copy(dst, src)
		return Value{tag: v.tag, obj: unsafe.Pointer(&bsonBytes{data: dst})}
	case TypeKeyString:
		return NewKeyStringValue(v.AsKeyString().Clone())
	case TypePcreRegex:
		return NewPcreRegexValue(v.AsPcreRegex().Clone())
	case TypeCollator:
		// Collators are immutable and shared.
		return v
	}
	return v
}

// Release drops a heap-backed payload. The caller must be the unique owner;
// the interpreter's owned-flag bookkeeping guarantees exactly one Release per
// ownership transfer. Containers are cleared so a released value cannot be
// read through stale references.
func (v Value) Release() {
	switch v.tag {
	case TypeArray:
		arr := v.AsArray()
		for _, el := range arr.elements {
			el.Release()
		}
		arr.elements = nil
	case TypeArraySet:
		set := v.AsArraySet()
		for _, el := range set.values {
			el.Release()
		}
		set.values = nil
	case TypeObject:
		obj := v.AsObject()
		for _, el := range obj.values {
			el.Release()
		}
		obj.names = nil
		obj.values = nil
	case TypeBSONObject, TypeBSONArray, TypeBSONString:
		(*bsonBytes)(v.obj).data = nil
	case TypeKeyString:
		v.AsKeyString().buf = nil
	}
}
