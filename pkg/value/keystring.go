package value

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// KeyString is a memcmp-orderable encoding of a component sequence. Two keys
// built with the same version and ordering compare with bytes.Compare exactly
// as their components compare logically.

type KeyStringVersion byte

const (
	KeyStringV0 KeyStringVersion = 0
	KeyStringV1 KeyStringVersion = 1
)

// Discriminator positions a key relative to identical component sequences,
// for exclusive range bounds.
type Discriminator byte

const (
	ExclusiveBefore Discriminator = iota
	Inclusive
	ExclusiveAfter
)

const (
	ksMarkerNumber = 0x10
	ksMarkerString = 0x3C
	ksTerminator   = 0x00
)

type KeyString struct {
	version  KeyStringVersion
	ordering uint32
	buf      []byte
	parts    []string
}

func (k *KeyString) Bytes() []byte { return k.buf }

func (k *KeyString) Version() KeyStringVersion { return k.version }

func (k *KeyString) Clone() *KeyString {
	return &KeyString{
		version:  k.version,
		ordering: k.ordering,
		buf:      append([]byte(nil), k.buf...),
		parts:    append([]string(nil), k.parts...),
	}
}

// String renders the components for diagnostics and the ksToString builtin.
func (k *KeyString) String() string {
	return fmt.Sprintf("KS(%s)", strings.Join(k.parts, ", "))
}

// KeyStringBuilder accumulates components. Each ordering bit, indexed by
// component position, flips that component to descending order.
type KeyStringBuilder struct {
	version  KeyStringVersion
	ordering uint32
	buf      []byte
	parts    []string
	idx      int
}

func NewKeyStringBuilder(version KeyStringVersion, ordering uint32) *KeyStringBuilder {
	return &KeyStringBuilder{
		version:  version,
		ordering: ordering,
		buf:      []byte{byte(version)},
	}
}

func (b *KeyStringBuilder) descending() bool {
	return b.ordering&(1<<uint(b.idx)) != 0
}

func (b *KeyStringBuilder) appendPayload(marker byte, payload []byte) {
	b.buf = append(b.buf, marker)
	if b.descending() {
		for _, c := range payload {
			b.buf = append(b.buf, ^c)
		}
	} else {
		b.buf = append(b.buf, payload...)
	}
	b.idx++
}

// AppendInt64 appends a numeric component. The sign bit flip makes the
// big-endian bytes order as signed integers.
func (b *KeyStringBuilder) AppendInt64(i int64) {
	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], uint64(i)^(1<<63))
	b.appendPayload(ksMarkerNumber, payload[:])
	b.parts = append(b.parts, fmt.Sprintf("%d", i))
}

// AppendString appends a string component. Embedded NUL bytes are not
// supported; callers must reject them up front.
func (b *KeyStringBuilder) AppendString(s string) {
	payload := make([]byte, 0, len(s)+1)
	payload = append(payload, s...)
	payload = append(payload, ksTerminator)
	b.appendPayload(ksMarkerString, payload)
	b.parts = append(b.parts, fmt.Sprintf("%q", s))
}

// Release finishes the key with the discriminator byte. The builder must not
// be reused afterwards.
func (b *KeyStringBuilder) Release(d Discriminator) *KeyString {
	b.buf = append(b.buf, byte(d)+1)
	return &KeyString{
		version:  b.version,
		ordering: b.ordering,
		buf:      b.buf,
		parts:    b.parts,
	}
}
