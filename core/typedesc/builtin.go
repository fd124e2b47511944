package typedesc

// Built-in type descriptors, registered into Default at package init.
// Every numeric kind comes in owning and no-copy variants, per spec.md §3.
var (
	Int8, Int8NoCopy     *Descriptor
	Uint8, Uint8NoCopy   *Descriptor
	Int16, Int16NoCopy   *Descriptor
	Uint16, Uint16NoCopy *Descriptor
	Int32, Int32NoCopy   *Descriptor
	Uint32, Uint32NoCopy *Descriptor
	Int64, Int64NoCopy   *Descriptor
	Uint64, Uint64NoCopy *Descriptor

	Int128, Int128NoCopy   *Descriptor
	Uint128, Uint128NoCopy *Descriptor

	Float32, Float32NoCopy   *Descriptor
	Float64, Float64NoCopy   *Descriptor
	Float128, Float128NoCopy *Descriptor // long double, represented as float64

	Bool, BoolNoCopy *Descriptor

	String, StringNoCopy     *Descriptor
	StringCI, StringCINoCopy *Descriptor

	Bytes, BytesNoCopy *Descriptor
)

func init() {
	Int8, Int8NoCopy = registerInt[int8](Default, "i8", "byte", KindInt8, 1, true)
	Uint8, Uint8NoCopy = registerInt[uint8](Default, "u8", "unsignedByte", KindUint8, 1, false)
	Int16, Int16NoCopy = registerInt[int16](Default, "i16", "short", KindInt16, 2, true)
	Uint16, Uint16NoCopy = registerInt[uint16](Default, "u16", "unsignedShort", KindUint16, 2, false)
	Int32, Int32NoCopy = registerInt[int32](Default, "i32", "int", KindInt32, 4, true)
	Uint32, Uint32NoCopy = registerInt[uint32](Default, "u32", "unsignedInt", KindUint32, 4, false)
	Int64, Int64NoCopy = registerInt[int64](Default, "i64", "long", KindInt64, 8, true)
	Uint64, Uint64NoCopy = registerInt[uint64](Default, "u64", "unsignedLong", KindUint64, 8, false)

	Int128, Int128NoCopy = registerBig128(Default, "i128", "integer", KindInt128, true)
	Uint128, Uint128NoCopy = registerBig128(Default, "u128", "nonNegativeInteger", KindUint128, false)

	Float32, Float32NoCopy = registerFloat[float32](Default, "float", "float", KindFloat32, 4)
	Float64, Float64NoCopy = registerFloat[float64](Default, "double", "double", KindFloat64, 8)
	Float128, Float128NoCopy = registerFloat[float64](Default, "longDouble", "double", KindFloat128, 8)

	Bool, BoolNoCopy = registerBool(Default)

	String, StringNoCopy, StringCI, StringCINoCopy = registerString(Default)

	Bytes, BytesNoCopy = registerBytes(Default)
}
