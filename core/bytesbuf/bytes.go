// Package bytesbuf implements the length-prefixed, NUL-terminated byte
// buffer that underpins all string and blob transport in the façade
// (spec.md §4.2). A nil *Bytes is a valid, empty value.
package bytesbuf

import (
	"encoding/binary"
	"fmt"
)

// headerSize is the on-wire header: length (u64 LE) + size (u64 LE).
const headerSize = 16

// Bytes is a size-tracked, NUL-terminated byte buffer. Size is the
// allocated capacity of payload; Length is the used prefix, always
// <= Size, with payload[Length] == 0 whenever capacity allows it.
type Bytes struct {
	size    int
	length  int
	payload []byte
}

// New returns an empty Bytes.
func New() *Bytes {
	return &Bytes{}
}

// FromString returns a Bytes containing a copy of s.
func FromString(s string) *Bytes {
	b := New()
	b.AddStr(s)
	return b
}

// FromData returns a Bytes containing a copy of p.
func FromData(p []byte) *Bytes {
	b := New()
	b.AddData(p)
	return b
}

// Allocate ensures the payload has at least the given capacity without
// changing Length.
func (b *Bytes) Allocate(capacity int) {
	if b == nil || capacity <= b.size {
		return
	}
	b.grow(capacity)
}

// grow reallocates payload to at least the requested capacity using
// amortized doubling, preserving the existing used prefix.
func (b *Bytes) grow(minCapacity int) {
	newCap := b.size
	if newCap == 0 {
		newCap = 16
	}
	for newCap < minCapacity {
		newCap *= 2
	}
	// +1 so payload[length] == 0 always has room.
	buf := make([]byte, newCap+1)
	copy(buf, b.payload[:b.length])
	b.payload = buf
	b.size = newCap
}

// terminate writes the trailing NUL at payload[length].
func (b *Bytes) terminate() {
	if cap(b.payload) <= b.length {
		b.grow(b.length)
	}
	b.payload[b.length] = 0
}

// AddData appends raw bytes to the buffer.
func (b *Bytes) AddData(p []byte) {
	if b == nil || len(p) == 0 {
		return
	}
	needed := b.length + len(p)
	if needed > b.size {
		b.grow(needed)
	}
	copy(b.payload[b.length:needed], p)
	b.length = needed
	b.terminate()
}

// AddStr appends a string to the buffer.
func (b *Bytes) AddStr(s string) {
	b.AddData([]byte(s))
}

// AddBytes appends the contents of another Bytes.
func (b *Bytes) AddBytes(other *Bytes) {
	if other == nil {
		return
	}
	b.AddData(other.Data())
}

// ReplaceStr discards the current contents and stores a copy of s.
func (b *Bytes) ReplaceStr(s string) {
	if b == nil {
		return
	}
	b.length = 0
	b.AddStr(s)
}

// SetLength truncates or (if within capacity) extends the used prefix.
// Extending beyond the previous length exposes zero bytes.
func (b *Bytes) SetLength(n int) {
	if b == nil || n < 0 {
		return
	}
	if n > b.size {
		b.grow(n)
	}
	if n > b.length {
		for i := b.length; i < n; i++ {
			b.payload[i] = 0
		}
	}
	b.length = n
	b.terminate()
}

// SetSize grows the allocated capacity to at least n.
func (b *Bytes) SetSize(n int) {
	b.Allocate(n)
}

// Length returns the used prefix length. Safe on a nil receiver.
func (b *Bytes) Length() int {
	if b == nil {
		return 0
	}
	return b.length
}

// Size returns the allocated capacity. Safe on a nil receiver.
func (b *Bytes) Size() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Data returns the used prefix as a slice (not a copy).
func (b *Bytes) Data() []byte {
	if b == nil || b.length == 0 {
		return nil
	}
	return b.payload[:b.length]
}

// String returns the used prefix as a string.
func (b *Bytes) String() string {
	if b == nil {
		return ""
	}
	return string(b.payload[:b.length])
}

// Compare does a byte-wise comparison, shorter-is-less on common prefix match.
func (b *Bytes) Compare(other *Bytes) int {
	a := b.Data()
	c := other.Data()
	n := len(a)
	if len(c) < n {
		n = len(c)
	}
	for i := 0; i < n; i++ {
		if a[i] != c[i] {
			if a[i] < c[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(c):
		return -1
	case len(a) > len(c):
		return 1
	default:
		return 0
	}
}

// Destroy clears the buffer's fields. In Go this does not free memory
// (the GC owns that) but it does make reuse-after-destroy visibly empty,
// matching the contract that a destroyed value behaves as NULL/empty.
func (b *Bytes) Destroy() {
	if b == nil {
		return
	}
	b.size = 0
	b.length = 0
	b.payload = nil
}

// Copy returns a deep copy.
func (b *Bytes) Copy() *Bytes {
	if b == nil {
		return nil
	}
	out := New()
	out.AddData(b.Data())
	return out
}

// ToBlob encodes the buffer in the on-wire format: [length u64 LE][size u64
// LE][payload bytes][NUL].
func (b *Bytes) ToBlob() []byte {
	length := b.Length()
	data := b.Data()
	out := make([]byte, headerSize+length+1)
	binary.LittleEndian.PutUint64(out[0:8], uint64(length))
	binary.LittleEndian.PutUint64(out[8:16], uint64(length)) // size == length on the wire, per spec.md §4.1 to_blob contract
	copy(out[headerSize:headerSize+length], data)
	out[headerSize+length] = 0
	return out
}

// FromBlob decodes a Bytes from its on-wire format. It validates that at
// least the header is present and that the declared size does not exceed
// the remaining input. Returns the decoded value and the number of bytes
// consumed from in.
func FromBlob(in []byte) (*Bytes, int, error) {
	if len(in) < headerSize {
		return nil, 0, fmt.Errorf("bytesbuf: truncated header: need %d bytes, have %d", headerSize, len(in))
	}
	length := int(binary.LittleEndian.Uint64(in[0:8]))
	size := int(binary.LittleEndian.Uint64(in[8:16]))
	if size > len(in)-headerSize {
		return nil, 0, fmt.Errorf("bytesbuf: declared size %d exceeds remaining input %d", size, len(in)-headerSize)
	}
	if length > size {
		return nil, 0, fmt.Errorf("bytesbuf: length %d exceeds size %d", length, size)
	}
	out := FromData(in[headerSize : headerSize+length])
	consumed := headerSize + size + 1 // +1 for the trailing NUL
	if consumed > len(in) {
		consumed = headerSize + size
	}
	return out, consumed, nil
}
