package typedesc

import (
	"fmt"

	"github.com/go-dbfacade/dbfacade/core/bytesbuf"
)

// accumulatorHash implements the bytewise hash from spec.md §4.1:
//
//	for each byte b: h += b; h += h<<10; h ^= h>>6
//	then:            h += h<<3; h ^= h>>11; h += h<<15
func accumulatorHash(data []byte) uint64 {
	var h uint64
	for _, b := range data {
		h += uint64(b)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// foldUpper folds ASCII 'a'-'z' to upper-case, leaving everything else
// untouched, matching the original's case-insensitive hash pre-pass.
func foldUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func asBytes(v any) *bytesbuf.Bytes {
	switch val := v.(type) {
	case *bytesbuf.Bytes:
		return val
	case nil:
		return bytesbuf.New()
	default:
		return bytesbuf.New()
	}
}

// registerString registers the string and case-insensitive string types
// (owning and no-copy variants of each). Per spec.md §3, strings are
// stored internally as Bytes.
func registerString(reg *Registry) (str, strNoCopy, strCI, strCINoCopy *Descriptor) {
	toString := func(v any) string { return asBytes(v).String() }
	toBlobFn := func(v any) []byte { return asBytes(v).ToBlob() }
	fromBlobFn := func(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
		b, consumed, err := bytesbuf.FromBlob(data)
		if err != nil {
			return nil, 0, fmt.Errorf("typedesc: string.from_blob: %w", err)
		}
		return b, consumed, nil
	}
	create := func(init any) any {
		switch val := init.(type) {
		case nil:
			return bytesbuf.New()
		case string:
			return bytesbuf.FromString(val)
		case *bytesbuf.Bytes:
			return val.Copy()
		default:
			return bytesbuf.New()
		}
	}
	compare := func(a, b any) int { return asBytes(a).Compare(asBytes(b)) }
	size := func(v any) int { return asBytes(v).Length() }
	clear := func(v any) any { return create(nil) }

	hashOrdinal := func(v any) uint64 { return accumulatorHash(asBytes(v).Data()) }
	hashCI := func(v any) uint64 {
		data := asBytes(v).Data()
		folded := make([]byte, len(data))
		for i, b := range data {
			folded[i] = foldUpper(b)
		}
		return accumulatorHash(folded)
	}

	str = &Descriptor{
		Name: "string", Kind: KindString, Ownership: Owning, DataIsPointer: true, XMLName: "string",
		Ops: Ops{
			ToString: toString, ToBytes: func(v any) []byte { return asBytes(v).Data() },
			ToBlob: toBlobFn, FromBlob: fromBlobFn, Compare: compare,
			Create: create, Copy: func(v any) any { return asBytes(v).Copy() },
			Destroy: func(v any) { asBytes(v).Destroy() },
			Size:    size, Hash: hashOrdinal, Clear: clear,
		},
	}
	strNoCopy = &Descriptor{
		Name: "stringNoCopy", Kind: KindString, Ownership: NoCopy, DataIsPointer: true, XMLName: "string",
		Ops: Ops{
			ToString: toString, ToBytes: str.Ops.ToBytes, ToBlob: toBlobFn, FromBlob: fromBlobFn,
			Compare: compare, Create: create, Copy: func(v any) any { return v },
			Destroy: func(v any) {}, Size: size, Hash: hashOrdinal, Clear: clear,
		},
	}
	strCI = &Descriptor{
		Name: "stringCI", Kind: KindStringCI, Ownership: Owning, DataIsPointer: true, XMLName: "string",
		Ops: Ops{
			ToString: toString, ToBytes: str.Ops.ToBytes, ToBlob: toBlobFn, FromBlob: fromBlobFn,
			Compare: compare, Create: create, Copy: func(v any) any { return asBytes(v).Copy() },
			Destroy: func(v any) { asBytes(v).Destroy() }, Size: size, Hash: hashCI, Clear: clear,
		},
	}
	strCINoCopy = &Descriptor{
		Name: "stringCINoCopy", Kind: KindStringCI, Ownership: NoCopy, DataIsPointer: true, XMLName: "string",
		Ops: Ops{
			ToString: toString, ToBytes: str.Ops.ToBytes, ToBlob: toBlobFn, FromBlob: fromBlobFn,
			Compare: compare, Create: create, Copy: func(v any) any { return v },
			Destroy: func(v any) {}, Size: size, Hash: hashCI, Clear: clear,
		},
	}
	reg.Register(str)
	reg.Register(strNoCopy)
	reg.Register(strCI)
	reg.Register(strCINoCopy)
	return str, strNoCopy, strCI, strCINoCopy
}

// registerBytes registers the raw bytes/blob type (owning and no-copy).
func registerBytes(reg *Registry) (owning, noCopy *Descriptor) {
	toString := func(v any) string { return asBytes(v).String() }
	toBlobFn := func(v any) []byte { return asBytes(v).ToBlob() }
	fromBlobFn := func(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
		b, consumed, err := bytesbuf.FromBlob(data)
		if err != nil {
			return nil, 0, fmt.Errorf("typedesc: bytes.from_blob: %w", err)
		}
		return b, consumed, nil
	}
	create := func(init any) any {
		switch val := init.(type) {
		case nil:
			return bytesbuf.New()
		case []byte:
			return bytesbuf.FromData(val)
		case *bytesbuf.Bytes:
			return val.Copy()
		default:
			return bytesbuf.New()
		}
	}
	compare := func(a, b any) int { return asBytes(a).Compare(asBytes(b)) }
	size := func(v any) int { return asBytes(v).Length() }
	hash := func(v any) uint64 { return hashBytes(asBytes(v).Data()) }
	clear := func(v any) any { return create(nil) }

	owning = &Descriptor{
		Name: "bytes", Kind: KindBytes, Ownership: Owning, DataIsPointer: true, XMLName: "blob",
		Ops: Ops{
			ToString: toString, ToBytes: func(v any) []byte { return asBytes(v).Data() },
			ToBlob: toBlobFn, FromBlob: fromBlobFn, Compare: compare,
			Create: create, Copy: func(v any) any { return asBytes(v).Copy() },
			Destroy: func(v any) { asBytes(v).Destroy() }, Size: size, Hash: hash, Clear: clear,
		},
	}
	noCopy = &Descriptor{
		Name: "bytesNoCopy", Kind: KindBytes, Ownership: NoCopy, DataIsPointer: true, XMLName: "blob",
		Ops: Ops{
			ToString: toString, ToBytes: owning.Ops.ToBytes, ToBlob: toBlobFn, FromBlob: fromBlobFn,
			Compare: compare, Create: create, Copy: func(v any) any { return v },
			Destroy: func(v any) {}, Size: size, Hash: hash, Clear: clear,
		},
	}
	reg.Register(owning)
	reg.Register(noCopy)
	return owning, noCopy
}
