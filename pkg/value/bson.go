package value

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Minimal binary document codec. Framing is the classic length-prefixed
// little-endian layout: a document is
//
//	int32 totalLen | element* | 0x00
//
// and an element is a 1-byte type, a NUL-terminated field name, then a
// type-specific payload. Arrays are documents whose field names are the
// decimal element indexes. This layout is the interop contract with the
// upstream document producer and must not change.
const (
	bsonTypeDouble    = 0x01
	bsonTypeString    = 0x02
	bsonTypeObject    = 0x03
	bsonTypeArray     = 0x04
	bsonTypeBool      = 0x08
	bsonTypeDate      = 0x09
	bsonTypeNull      = 0x0A
	bsonTypeInt32     = 0x10
	bsonTypeTimestamp = 0x11
	bsonTypeInt64     = 0x12
	// Decimal payloads use the string wire shape carrying the textual form;
	// the fixed 16-byte IEEE encoding is not used here.
	bsonTypeDecimal = 0x13
)

func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func leUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

type bsonIter struct {
	data []byte
	pos  int
}

// newBSONIter positions an iterator on the first element of a document.
func newBSONIter(doc []byte) bsonIter {
	return bsonIter{data: doc, pos: 4}
}

// next decodes the element under the cursor and advances past it. The
// returned value is a view into the document except for decimals, which must
// be materialized.
func (it *bsonIter) next() (string, Value, bool) {
	if it.pos >= len(it.data) || it.data[it.pos] == 0 {
		return "", Nothing, false
	}
	typ := it.data[it.pos]
	it.pos++
	nameStart := it.pos
	for it.data[it.pos] != 0 {
		it.pos++
	}
	name := string(it.data[nameStart:it.pos])
	it.pos++

	v, size := decodeElement(typ, it.data[it.pos:])
	it.pos += size
	return name, v, true
}

func decodeElement(typ byte, data []byte) (Value, int) {
	switch typ {
	case bsonTypeDouble:
		return NewDouble(math.Float64frombits(leUint64(data))), 8
	case bsonTypeString:
		n := int(leUint32(data))
		return NewBSONString(data[:4+n]), 4 + n
	case bsonTypeObject:
		n := int(leUint32(data))
		return NewBSONObject(data[:n]), n
	case bsonTypeArray:
		n := int(leUint32(data))
		return NewBSONArray(data[:n]), n
	case bsonTypeBool:
		return NewBool(data[0] != 0), 1
	case bsonTypeDate:
		return NewDate(int64(leUint64(data))), 8
	case bsonTypeNull:
		return Null, 0
	case bsonTypeInt32:
		return NewInt32(int32(leUint32(data))), 4
	case bsonTypeTimestamp:
		return NewTimestamp(leUint64(data)), 8
	case bsonTypeInt64:
		return NewInt64(int64(leUint64(data))), 8
	case bsonTypeDecimal:
		n := int(leUint32(data))
		text := string(data[4 : 4+n-1])
		d, err := NewDecimalFromString(text)
		if err != nil {
			panic("malformed decimal element")
		}
		return d, 4 + n
	default:
		panic("unsupported element type " + strconv.Itoa(int(typ)))
	}
}

// BSONObjectGetField scans a document for the named field. The result is a
// view (owned = false) except for decimal elements, which are freshly
// allocated and owned. A missing field yields Nothing.
func BSONObjectGetField(doc []byte, field string) (Value, bool) {
	it := newBSONIter(doc)
	for {
		name, v, ok := it.next()
		if !ok {
			return Nothing, false
		}
		if name == field {
			return v, v.tag == TypeNumberDecimal
		}
	}
}

// BSONArrayGetElement returns the idx-th element of an encoded array, with
// the same ownership convention as BSONObjectGetField. Out-of-range indexes
// yield Nothing.
func BSONArrayGetElement(doc []byte, idx int) (Value, bool) {
	it := newBSONIter(doc)
	for i := 0; ; i++ {
		_, v, ok := it.next()
		if !ok {
			return Nothing, false
		}
		if i == idx {
			return v, v.tag == TypeNumberDecimal
		}
	}
}

// BSONArrayLen counts the elements of an encoded array.
func BSONArrayLen(doc []byte) int {
	it := newBSONIter(doc)
	n := 0
	for {
		if _, _, ok := it.next(); !ok {
			return n
		}
		n++
	}
}

// MarshalObject encodes an owned object into the binary document form.
func MarshalObject(o *Object) []byte {
	var body []byte
	for i := 0; i < o.Len(); i++ {
		name, v := o.FieldAt(i)
		body = appendElement(body, name, v)
	}
	return frameDocument(body)
}

// MarshalArray encodes an array as a document keyed by element index.
func MarshalArray(a *Array) []byte {
	var body []byte
	for i := 0; i < a.Len(); i++ {
		body = appendElement(body, strconv.Itoa(i), a.At(i))
	}
	return frameDocument(body)
}

func frameDocument(body []byte) []byte {
	total := 4 + len(body) + 1
	doc := make([]byte, 0, total)
	doc = binary.LittleEndian.AppendUint32(doc, uint32(total))
	doc = append(doc, body...)
	return append(doc, 0)
}

func appendElement(buf []byte, name string, v Value) []byte {
	appendHeader := func(typ byte) []byte {
		buf = append(buf, typ)
		buf = append(buf, name...)
		return append(buf, 0)
	}
	appendLenString := func(s string) []byte {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)+1))
		buf = append(buf, s...)
		return append(buf, 0)
	}

	switch v.tag {
	case TypeNumberDouble:
		buf = appendHeader(bsonTypeDouble)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.AsDouble()))
	case TypeStringSmall, TypeStringBig, TypeBSONString:
		buf = appendHeader(bsonTypeString)
		return appendLenString(v.AsString())
	case TypeObject:
		buf = appendHeader(bsonTypeObject)
		return append(buf, MarshalObject(v.AsObject())...)
	case TypeBSONObject:
		buf = appendHeader(bsonTypeObject)
		return append(buf, v.AsRawBytes()...)
	case TypeArray:
		buf = appendHeader(bsonTypeArray)
		return append(buf, MarshalArray(v.AsArray())...)
	case TypeArraySet:
		set := v.AsArraySet()
		arr := NewArray()
		for i := 0; i < set.Len(); i++ {
			arr.Push(set.At(i).Copy())
		}
		buf = appendHeader(bsonTypeArray)
		return append(buf, MarshalArray(arr)...)
	case TypeBSONArray:
		buf = appendHeader(bsonTypeArray)
		return append(buf, v.AsRawBytes()...)
	case TypeBoolean:
		buf = appendHeader(bsonTypeBool)
		if v.AsBool() {
			return append(buf, 1)
		}
		return append(buf, 0)
	case TypeDate:
		buf = appendHeader(bsonTypeDate)
		return binary.LittleEndian.AppendUint64(buf, uint64(v.AsDate()))
	case TypeNull:
		return appendHeader(bsonTypeNull)
	case TypeNumberInt32:
		buf = appendHeader(bsonTypeInt32)
		return binary.LittleEndian.AppendUint32(buf, uint32(v.AsInt32()))
	case TypeTimestamp:
		buf = appendHeader(bsonTypeTimestamp)
		return binary.LittleEndian.AppendUint64(buf, v.AsTimestamp())
	case TypeNumberInt64:
		buf = appendHeader(bsonTypeInt64)
		return binary.LittleEndian.AppendUint64(buf, uint64(v.AsInt64()))
	case TypeNumberDecimal:
		buf = appendHeader(bsonTypeDecimal)
		return appendLenString(v.AsDecimal().Text('f'))
	default:
		panic("cannot encode " + v.tag.String())
	}
}
