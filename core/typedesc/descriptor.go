package typedesc

// Ops is the set of eleven function capabilities every TypeDescriptor must
// provide (spec.md §4.1).
type Ops struct {
	ToString func(v any) string
	ToBytes  func(v any) []byte
	ToBlob   func(v any) []byte
	// FromBlob reads at most len(data) bytes and returns the decoded value,
	// the number of bytes actually consumed, and an error. When inPlace is
	// true and the type allows it, the returned value aliases data instead
	// of allocating.
	FromBlob func(data []byte, inPlace bool, disableThreadSafety bool) (value any, consumed int, err error)
	Compare  func(a, b any) int
	Create   func(init any) any
	Copy     func(v any) any
	Destroy  func(v any)
	Size     func(v any) int
	Hash     func(v any) uint64
	Clear    func(v any) any
}

// Descriptor is a process-lifetime immutable record naming a value type
// and its operation capabilities (spec.md §3).
type Descriptor struct {
	Name          string
	Kind          Kind
	Ownership     Ownership
	DataIsPointer bool
	XMLName       string
	Ops           Ops
}

// String returns "<name> (<ownership>)", e.g. "i64 (owning)".
func (d *Descriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	return d.Name + " (" + d.Ownership.String() + ")"
}

func (d *Descriptor) ToString(v any) string { return d.Ops.ToString(v) }
func (d *Descriptor) ToBytes(v any) []byte  { return d.Ops.ToBytes(v) }
func (d *Descriptor) ToBlob(v any) []byte   { return d.Ops.ToBlob(v) }

func (d *Descriptor) FromBlob(data []byte, inPlace, disableThreadSafety bool) (any, int, error) {
	return d.Ops.FromBlob(data, inPlace, disableThreadSafety)
}

func (d *Descriptor) Compare(a, b any) int { return d.Ops.Compare(a, b) }
func (d *Descriptor) Create(init any) any  { return d.Ops.Create(init) }
func (d *Descriptor) Copy(v any) any       { return d.Ops.Copy(v) }
func (d *Descriptor) Destroy(v any)        { d.Ops.Destroy(v) }
func (d *Descriptor) Size(v any) int       { return d.Ops.Size(v) }
func (d *Descriptor) Hash(v any) uint64    { return d.Ops.Hash(v) }
func (d *Descriptor) Clear(v any) any      { return d.Ops.Clear(v) }

// IsString reports whether values of this type are stored internally as
// Bytes (spec.md §3: "Strings are universally stored internally as Bytes
// even when field_types[j] == typeString").
func (d *Descriptor) IsString() bool {
	return d != nil && (d.Kind == KindString || d.Kind == KindStringCI)
}

// IsBytesLike reports whether values of this type are stored as Bytes at
// the DbResult cell level (strings and raw bytes both are).
func (d *Descriptor) IsBytesLike() bool {
	return d.IsString() || (d != nil && d.Kind == KindBytes)
}
