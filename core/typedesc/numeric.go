package typedesc

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/zeebo/blake3"
)

// Integer is the set of native Go integer kinds the registry wraps.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Float is the set of native Go floating kinds the registry wraps.
type Float interface {
	~float32 | ~float64
}

// formatUnsignedDecimal is the reverse-decimal routine from spec.md §4.1:
// grow a buffer by appending '0'+n%10, then reverse it.
func formatUnsignedDecimal(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf []byte
	for u > 0 {
		buf = append(buf, byte('0'+u%10))
		u /= 10
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// formatSignedDecimal handles the most-negative value safely by computing
// ~x+1 in the unsigned domain, per spec.md §4.1.
func formatSignedDecimal(v int64) string {
	if v >= 0 {
		return formatUnsignedDecimal(uint64(v))
	}
	u := uint64(^v) + 1
	return "-" + formatUnsignedDecimal(u)
}

// formatFloat formats with %f, falling back to %g for tiny nonzero values
// that %f would round away to "0.000000" (spec.md §4.1).
func formatFloat(v float64) string {
	s := fmt.Sprintf("%f", v)
	if s == "0.000000" || s == "-0.000000" {
		return fmt.Sprintf("%g", v)
	}
	return s
}

func putLittleEndian(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v)
		v >>= 8
	}
}

func getLittleEndian(buf []byte) uint64 {
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// signExtend sign-extends the low width*8 bits of v to a full int64.
func signExtend(v uint64, width int) int64 {
	shift := uint(64 - width*8)
	return int64(v<<shift) >> shift
}

func hashBytes(b []byte) uint64 {
	sum := blake3.Sum256(b)
	return binary.LittleEndian.Uint64(sum[:8])
}

// registerInt registers the owning and no-copy variants of a native
// integer kind. Values are represented as *T, mirroring the original's
// heap-allocated, pointer-referenced numeric cells.
func registerInt[T Integer](reg *Registry, name, xmlName string, kind Kind, width int, signed bool) (owning, noCopy *Descriptor) {
	toInt64 := func(v any) int64 {
		p := v.(*T)
		return int64(*p)
	}
	fromInt64 := func(v int64) *T {
		t := T(v)
		return &t
	}

	toBlob := func(v any) []byte {
		buf := make([]byte, width)
		putLittleEndian(buf, uint64(toInt64(v)))
		return buf
	}
	fromBlobFn := func(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
		if len(data) < width {
			return nil, 0, fmt.Errorf("typedesc: %s.from_blob needs %d bytes, have %d", name, width, len(data))
		}
		raw := getLittleEndian(data[:width])
		var iv int64
		if signed {
			iv = signExtend(raw, width)
		} else {
			iv = int64(raw)
		}
		return fromInt64(iv), width, nil
	}
	compare := func(a, b any) int {
		if signed {
			av, bv := toInt64(a), toInt64(b)
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
		av, bv := uint64(toInt64(a)), uint64(toInt64(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	create := func(init any) any {
		if init == nil {
			var z T
			return &z
		}
		switch val := init.(type) {
		case T:
			return &val
		case *T:
			cp := *val
			return &cp
		case int64:
			return fromInt64(val)
		default:
			var z T
			return &z
		}
	}
	toString := func(v any) string {
		if signed {
			return formatSignedDecimal(toInt64(v))
		}
		return formatUnsignedDecimal(uint64(toInt64(v)))
	}
	size := func(v any) int { return width }
	hash := func(v any) uint64 { return hashBytes(toBlob(v)) }
	clear := func(v any) any { return create(nil) }

	owning = &Descriptor{
		Name: name, Kind: kind, Ownership: Owning, DataIsPointer: true, XMLName: xmlName,
		Ops: Ops{
			ToString: toString,
			ToBytes:  func(v any) []byte { return []byte(toString(v)) },
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return create(toInt64(v)) },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	noCopy = &Descriptor{
		Name: name + "NoCopy", Kind: kind, Ownership: NoCopy, DataIsPointer: true, XMLName: xmlName,
		Ops: Ops{
			ToString: toString,
			ToBytes:  owning.Ops.ToBytes,
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return v },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	reg.Register(owning)
	reg.Register(noCopy)
	return owning, noCopy
}

// registerFloat mirrors registerInt for IEEE-754 float32/float64.
func registerFloat[T Float](reg *Registry, name, xmlName string, kind Kind, width int) (owning, noCopy *Descriptor) {
	toFloat64 := func(v any) float64 { return float64(*v.(*T)) }
	fromFloat64 := func(v float64) *T {
		t := T(v)
		return &t
	}
	toBlob := func(v any) []byte {
		buf := make([]byte, width)
		if width == 4 {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(toFloat64(v))))
		} else {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(toFloat64(v)))
		}
		return buf
	}
	fromBlobFn := func(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
		if len(data) < width {
			return nil, 0, fmt.Errorf("typedesc: %s.from_blob needs %d bytes, have %d", name, width, len(data))
		}
		if width == 4 {
			bits := binary.LittleEndian.Uint32(data[:4])
			return fromFloat64(float64(math.Float32frombits(bits))), 4, nil
		}
		bits := binary.LittleEndian.Uint64(data[:8])
		return fromFloat64(math.Float64frombits(bits)), 8, nil
	}
	compare := func(a, b any) int {
		av, bv := toFloat64(a), toFloat64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	create := func(init any) any {
		if init == nil {
			var z T
			return &z
		}
		switch val := init.(type) {
		case T:
			return &val
		case *T:
			cp := *val
			return &cp
		case float64:
			return fromFloat64(val)
		default:
			var z T
			return &z
		}
	}
	toString := func(v any) string { return formatFloat(toFloat64(v)) }
	size := func(v any) int { return width }
	hash := func(v any) uint64 { return hashBytes(toBlob(v)) }
	clear := func(v any) any { return create(nil) }

	owning = &Descriptor{
		Name: name, Kind: kind, Ownership: Owning, DataIsPointer: true, XMLName: xmlName,
		Ops: Ops{
			ToString: toString,
			ToBytes:  func(v any) []byte { return []byte(toString(v)) },
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return create(toFloat64(v)) },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	noCopy = &Descriptor{
		Name: name + "NoCopy", Kind: kind, Ownership: NoCopy, DataIsPointer: true, XMLName: xmlName,
		Ops: Ops{
			ToString: toString,
			ToBytes:  owning.Ops.ToBytes,
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return v },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	reg.Register(owning)
	reg.Register(noCopy)
	return owning, noCopy
}

// registerBig128 registers Int128/Uint128 backed by math/big, since Go has
// no native 128-bit integer. to_string delegates to big.Int's decimal
// conversion rather than the hand-rolled reverse-decimal routine.
func registerBig128(reg *Registry, name, xmlName string, kind Kind, signed bool) (owning, noCopy *Descriptor) {
	toBlob := func(v any) []byte {
		bi := v.(*big.Int)
		buf := make([]byte, 16)
		b := new(big.Int).Set(bi)
		if signed && b.Sign() < 0 {
			// two's complement over 128 bits
			mod := new(big.Int).Lsh(big.NewInt(1), 128)
			b.Add(b, mod)
		}
		be := b.Bytes() // big-endian, unsigned
		for i := 0; i < len(be) && i < 16; i++ {
			buf[15-i] = be[len(be)-1-i]
		}
		return buf
	}
	fromBlobFn := func(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
		if len(data) < 16 {
			return nil, 0, fmt.Errorf("typedesc: %s.from_blob needs 16 bytes, have %d", name, len(data))
		}
		be := make([]byte, 16)
		for i := 0; i < 16; i++ {
			be[15-i] = data[i]
		}
		u := new(big.Int).SetBytes(be)
		if signed {
			top := new(big.Int).Lsh(big.NewInt(1), 127)
			if u.Cmp(top) >= 0 {
				mod := new(big.Int).Lsh(big.NewInt(1), 128)
				u.Sub(u, mod)
			}
		}
		return u, 16, nil
	}
	create := func(init any) any {
		switch val := init.(type) {
		case nil:
			return big.NewInt(0)
		case *big.Int:
			return new(big.Int).Set(val)
		case int64:
			return big.NewInt(val)
		default:
			return big.NewInt(0)
		}
	}
	compare := func(a, b any) int { return a.(*big.Int).Cmp(b.(*big.Int)) }
	toString := func(v any) string { return v.(*big.Int).String() }
	size := func(v any) int { return 16 }
	hash := func(v any) uint64 { return hashBytes(toBlob(v)) }
	clear := func(v any) any { return create(nil) }

	owning = &Descriptor{
		Name: name, Kind: kind, Ownership: Owning, DataIsPointer: true, XMLName: xmlName,
		Ops: Ops{
			ToString: toString,
			ToBytes:  func(v any) []byte { return []byte(toString(v)) },
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return create(v.(*big.Int)) },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	noCopy = &Descriptor{
		Name: name + "NoCopy", Kind: kind, Ownership: NoCopy, DataIsPointer: true, XMLName: xmlName,
		Ops: Ops{
			ToString: toString,
			ToBytes:  owning.Ops.ToBytes,
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return v },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	reg.Register(owning)
	reg.Register(noCopy)
	return owning, noCopy
}

// registerBool registers the owning and no-copy bool variants; blob wire
// format is a single byte (spec.md §6).
func registerBool(reg *Registry) (owning, noCopy *Descriptor) {
	toBool := func(v any) bool { return *v.(*bool) }
	create := func(init any) any {
		switch val := init.(type) {
		case nil:
			b := false
			return &b
		case bool:
			return &val
		case *bool:
			cp := *val
			return &cp
		default:
			b := false
			return &b
		}
	}
	toBlob := func(v any) []byte {
		if toBool(v) {
			return []byte{1}
		}
		return []byte{0}
	}
	fromBlobFn := func(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("typedesc: bool.from_blob needs 1 byte, have 0")
		}
		return create(data[0] != 0), 1, nil
	}
	compare := func(a, b any) int {
		av, bv := toBool(a), toBool(b)
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	}
	toString := func(v any) string {
		if toBool(v) {
			return "true"
		}
		return "false"
	}
	size := func(v any) int { return 1 }
	hash := func(v any) uint64 { return hashBytes(toBlob(v)) }
	clear := func(v any) any { return create(nil) }

	owning = &Descriptor{
		Name: "bool", Kind: KindBool, Ownership: Owning, DataIsPointer: true, XMLName: "boolean",
		Ops: Ops{
			ToString: toString,
			ToBytes:  func(v any) []byte { return []byte(toString(v)) },
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return create(toBool(v)) },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	noCopy = &Descriptor{
		Name: "boolNoCopy", Kind: KindBool, Ownership: NoCopy, DataIsPointer: true, XMLName: "boolean",
		Ops: Ops{
			ToString: toString,
			ToBytes:  owning.Ops.ToBytes,
			ToBlob:   toBlob,
			FromBlob: fromBlobFn,
			Compare:  compare,
			Create:   create,
			Copy:     func(v any) any { return v },
			Destroy:  func(v any) {},
			Size:     size,
			Hash:     hash,
			Clear:    clear,
		},
	}
	reg.Register(owning)
	reg.Register(noCopy)
	return owning, noCopy
}
