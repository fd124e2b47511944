package typedesc

// Kind identifies the base value type a Descriptor describes.
type Kind int

const (
	KindInt8 Kind = iota
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindInt128
	KindUint128
	KindFloat32
	KindFloat64
	KindFloat128 // represented as float64
	KindBool
	KindString
	KindStringCI
	KindBytes
)

// String names the Kind for logging and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "int8"
	case KindUint8:
		return "uint8"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindInt128:
		return "int128"
	case KindUint128:
		return "uint128"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindFloat128:
		return "long double"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindStringCI:
		return "string (case-insensitive)"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Ownership distinguishes the owning and no-copy variants of a type
// (spec.md §3): owning Copy duplicates and Destroy frees; no-copy Copy is
// identity and Destroy is a no-op, used when a structure must borrow data.
type Ownership int

const (
	Owning Ownership = iota
	NoCopy
)

func (o Ownership) String() string {
	if o == NoCopy {
		return "no-copy"
	}
	return "owning"
}
