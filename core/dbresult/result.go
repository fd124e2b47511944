// Package dbresult implements the tabular query-result container shared by
// every engine adapter: typed columns, owned cells, and the cost-modeled
// name→index map described in spec.md §4.3.
package dbresult

import (
	"fmt"
	"strings"

	"github.com/go-dbfacade/dbfacade/core/bytesbuf"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
)

// Source records where a result came from, so update_result and similar
// façade operations can trace a row back to a real table.
type Source struct {
	Database   string
	Table      string
	PrimaryKey []string
}

// DbResult is an owned, tabular query result. Field names are always held
// as Bytes; a nil entry in FieldTypes marks a polymorphic column (e.g. the
// typeInfo column of describe_table) whose cells are Bytes regardless of
// what they represent.
type DbResult struct {
	source     Source
	fieldNames []*bytesbuf.Bytes
	fieldTypes []*typedesc.Descriptor
	rows       [][]any
	nameIndex  map[string]int
}

// shouldBuildMap implements the cost model from spec.md §4.3: building the
// name→index hash only pays off once linear-scan cost would exceed it.
func shouldBuildMap(numResults, numFields int) bool {
	return numResults*numFields+numResults > 2+4*numResults
}

// Finalize constructs a DbResult from raw rows, deciding whether to build
// the name index per the cost model. fieldTypes[i] == nil marks a
// polymorphic column.
func Finalize(source Source, fieldNames []string, fieldTypes []*typedesc.Descriptor, rows [][]any) *DbResult {
	names := make([]*bytesbuf.Bytes, len(fieldNames))
	for i, n := range fieldNames {
		names[i] = bytesbuf.FromString(n)
	}

	r := &DbResult{
		source:     source,
		fieldNames: names,
		fieldTypes: fieldTypes,
		rows:       rows,
	}

	if shouldBuildMap(len(rows), len(fieldNames)) {
		r.buildNameIndex()
	}
	return r
}

func (r *DbResult) buildNameIndex() {
	r.nameIndex = make(map[string]int, len(r.fieldNames))
	for i, n := range r.fieldNames {
		r.nameIndex[n.String()] = i
	}
}

// NumResults returns the number of rows.
func (r *DbResult) NumResults() int { return len(r.rows) }

// NumFields returns the number of columns.
func (r *DbResult) NumFields() int { return len(r.fieldNames) }

// DatabaseName returns the source database name, if known.
func (r *DbResult) DatabaseName() string { return r.source.Database }

// TableName returns the source table name, if known.
func (r *DbResult) TableName() string { return r.source.Table }

// PrimaryKey returns the source table's primary-key field names, if known.
func (r *DbResult) PrimaryKey() []string { return r.source.PrimaryKey }

// SetSource attaches provenance to a result assembled from a raw engine
// query, so later calls (update_result and friends) can trace a row back
// to the table it came from.
func (r *DbResult) SetSource(s Source) { r.source = s }

// FieldName returns the name of column i.
func (r *DbResult) FieldName(i int) string {
	if i < 0 || i >= len(r.fieldNames) {
		return ""
	}
	return r.fieldNames[i].String()
}

// FieldType returns the TypeDescriptor for column i, or nil for a
// polymorphic column.
func (r *DbResult) FieldType(i int) *typedesc.Descriptor {
	if i < 0 || i >= len(r.fieldTypes) {
		return nil
	}
	return r.fieldTypes[i]
}

// FieldIndexByName resolves a column name to its index, consulting the
// name index when present and falling back to a linear scan otherwise.
// Returns -1 if not found.
func (r *DbResult) FieldIndexByName(name string) int {
	if r.nameIndex != nil {
		if idx, ok := r.nameIndex[name]; ok {
			return idx
		}
		return -1
	}
	for i, n := range r.fieldNames {
		if n.String() == name {
			return i
		}
	}
	return -1
}

func (r *DbResult) checkBounds(row, field int) error {
	if row < 0 || row >= len(r.rows) {
		return fmt.Errorf("dbresult: row %d out of range [0,%d)", row, len(r.rows))
	}
	if field < 0 || field >= len(r.fieldNames) {
		return fmt.Errorf("dbresult: field %d out of range [0,%d)", field, len(r.fieldNames))
	}
	return nil
}

// isBytesLikeColumn reports whether column i's cells are stored as Bytes,
// covering both concretely-typed string/bytes columns and polymorphic
// (nil field-type) columns.
func (r *DbResult) isBytesLikeColumn(i int) bool {
	t := r.FieldType(i)
	return t == nil || t.IsBytesLike()
}

// GetByIndex returns the value stored at (row, field). A NULL string/bytes
// cell returns an empty, non-nil Bytes sentinel rather than nil so callers
// can always safely invoke string operations on the result.
func (r *DbResult) GetByIndex(row, field int) (any, error) {
	if err := r.checkBounds(row, field); err != nil {
		return nil, err
	}
	v := r.rows[row][field]
	if v == nil && r.isBytesLikeColumn(field) {
		return bytesbuf.New(), nil
	}
	return v, nil
}

// GetByName resolves name to an index and delegates to GetByIndex.
func (r *DbResult) GetByName(row int, name string) (any, error) {
	idx := r.FieldIndexByName(name)
	if idx < 0 {
		return nil, fmt.Errorf("dbresult: no such field %q", name)
	}
	return r.GetByIndex(row, idx)
}

// SetByIndex destroys the existing cell via the column's destructor and
// installs a freshly-copied value.
func (r *DbResult) SetByIndex(row, field int, value any) error {
	if err := r.checkBounds(row, field); err != nil {
		return err
	}
	t := r.FieldType(field)
	old := r.rows[row][field]
	if t != nil {
		if old != nil {
			t.Destroy(old)
		}
		r.rows[row][field] = t.Copy(value)
		return nil
	}
	if b, ok := old.(*bytesbuf.Bytes); ok {
		b.Destroy()
	}
	if src, ok := value.(*bytesbuf.Bytes); ok {
		r.rows[row][field] = src.Copy()
		return nil
	}
	r.rows[row][field] = value
	return nil
}

// SetByName resolves name to an index and delegates to SetByIndex.
func (r *DbResult) SetByName(row int, name string, value any) error {
	idx := r.FieldIndexByName(name)
	if idx < 0 {
		return fmt.Errorf("dbresult: no such field %q", name)
	}
	return r.SetByIndex(row, idx, value)
}

// cellString stringifies a cell using its column's ToString, or the raw
// Bytes contents for a polymorphic column.
func (r *DbResult) cellString(row, field int) string {
	v, err := r.GetByIndex(row, field)
	if err != nil || v == nil {
		return ""
	}
	if t := r.FieldType(field); t != nil {
		return t.ToString(v)
	}
	if b, ok := v.(*bytesbuf.Bytes); ok {
		return b.String()
	}
	return fmt.Sprintf("%v", v)
}

// ResultIndexByLookup returns the first row index where every (field,
// value) pair in criteria string-equals the corresponding stringified
// cell, or -1 if no row matches.
func (r *DbResult) ResultIndexByLookup(criteria map[string]string) int {
	for row := 0; row < len(r.rows); row++ {
		matched := true
		for field, want := range criteria {
			idx := r.FieldIndexByName(field)
			if idx < 0 || r.cellString(row, idx) != want {
				matched = false
				break
			}
		}
		if matched {
			return row
		}
	}
	return -1
}

// GetRange produces a new owned DbResult containing copies of rows
// [start, end), carrying forward field types, names, and provenance.
func (r *DbResult) GetRange(start, end int) (*DbResult, error) {
	if start < 0 || end > len(r.rows) || start > end {
		return nil, fmt.Errorf("dbresult: invalid range [%d,%d) over %d rows", start, end, len(r.rows))
	}
	return &DbResult{
		source:     r.source,
		fieldNames: copyFieldNames(r.fieldNames),
		fieldTypes: append([]*typedesc.Descriptor(nil), r.fieldTypes...),
		rows:       copyRows(r.rows[start:end], r.fieldTypes),
	}, nil
}

// Copy deep-copies the entire result.
func (r *DbResult) Copy() *DbResult {
	return &DbResult{
		source:     r.source,
		fieldNames: copyFieldNames(r.fieldNames),
		fieldTypes: append([]*typedesc.Descriptor(nil), r.fieldTypes...),
		rows:       copyRows(r.rows, r.fieldTypes),
	}
}

func copyFieldNames(names []*bytesbuf.Bytes) []*bytesbuf.Bytes {
	out := make([]*bytesbuf.Bytes, len(names))
	for i, n := range names {
		out[i] = n.Copy()
	}
	return out
}

func copyCell(v any, t *typedesc.Descriptor) any {
	if v == nil {
		return nil
	}
	if t != nil {
		return t.Copy(v)
	}
	if b, ok := v.(*bytesbuf.Bytes); ok {
		return b.Copy()
	}
	return v
}

func copyRows(rows [][]any, fieldTypes []*typedesc.Descriptor) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		newRow := make([]any, len(row))
		for j, cell := range row {
			var t *typedesc.Descriptor
			if j < len(fieldTypes) {
				t = fieldTypes[j]
			}
			newRow[j] = copyCell(cell, t)
		}
		out[i] = newRow
	}
	return out
}

// Compare reports whether two results are equal: field counts, names, and
// types (by pointer identity) agree column-by-column, row counts agree,
// and every cell compares equal under its column's comparator.
func (r *DbResult) Compare(other *DbResult) bool {
	if other == nil {
		return false
	}
	if len(r.fieldNames) != len(other.fieldNames) || len(r.rows) != len(other.rows) {
		return false
	}
	for i := range r.fieldNames {
		if r.fieldNames[i].String() != other.fieldNames[i].String() {
			return false
		}
		if r.FieldType(i) != other.FieldType(i) {
			return false
		}
	}
	for row := range r.rows {
		for field := range r.fieldNames {
			a, _ := r.GetByIndex(row, field)
			b, _ := other.GetByIndex(row, field)
			t := r.FieldType(field)
			if t != nil {
				if t.Compare(a, b) != 0 {
					return false
				}
				continue
			}
			ab, aok := a.(*bytesbuf.Bytes)
			bb, bok := b.(*bytesbuf.Bytes)
			if aok && bok {
				if ab.Compare(bb) != 0 {
					return false
				}
				continue
			}
			if a != b {
				return false
			}
		}
	}
	return true
}

// Destroy frees every owned cell: header names as Bytes, data cells via
// their column's destructor (or as Bytes for polymorphic columns).
func (r *DbResult) Destroy() {
	for _, n := range r.fieldNames {
		n.Destroy()
	}
	for _, row := range r.rows {
		for field, cell := range row {
			if cell == nil {
				continue
			}
			if t := r.FieldType(field); t != nil {
				t.Destroy(cell)
				continue
			}
			if b, ok := cell.(*bytesbuf.Bytes); ok {
				b.Destroy()
			}
		}
	}
	r.rows = nil
	r.fieldNames = nil
	r.nameIndex = nil
}

// csvQuote quotes s per to_csv's rule: wrap in double quotes, doubling
// any embedded quote.
func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ToCSV renders the result as CSV: quoted headers, quoted string/bytes
// data cells, unquoted numeric cells, comma delimiter, CRLF line end.
func (r *DbResult) ToCSV() string {
	var sb strings.Builder
	for i, n := range r.fieldNames {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(csvQuote(n.String()))
	}
	sb.WriteString("\r\n")

	for row := 0; row < len(r.rows); row++ {
		for field := 0; field < len(r.fieldNames); field++ {
			if field > 0 {
				sb.WriteByte(',')
			}
			s := r.cellString(row, field)
			if r.isBytesLikeColumn(field) {
				sb.WriteString(csvQuote(s))
			} else {
				sb.WriteString(s)
			}
		}
		sb.WriteString("\r\n")
	}
	return sb.String()
}

// ToBytes renders the result with caller-specified delimiters and no
// quoting.
func (r *DbResult) ToBytes(recordDelim, fieldDelim string) []byte {
	var sb strings.Builder
	for i, n := range r.fieldNames {
		if i > 0 {
			sb.WriteString(fieldDelim)
		}
		sb.WriteString(n.String())
	}
	sb.WriteString(recordDelim)

	for row := 0; row < len(r.rows); row++ {
		for field := 0; field < len(r.fieldNames); field++ {
			if field > 0 {
				sb.WriteString(fieldDelim)
			}
			sb.WriteString(r.cellString(row, field))
		}
		sb.WriteString(recordDelim)
	}
	return []byte(sb.String())
}

// ResultToBytesTable converts the result to a row-major Bytes table: the
// header row plus one row per record, every cell re-typed as Bytes.
func (r *DbResult) ResultToBytesTable() [][]*bytesbuf.Bytes {
	table := make([][]*bytesbuf.Bytes, 0, len(r.rows)+1)

	header := make([]*bytesbuf.Bytes, len(r.fieldNames))
	for i, n := range r.fieldNames {
		header[i] = n.Copy()
	}
	table = append(table, header)

	for row := 0; row < len(r.rows); row++ {
		out := make([]*bytesbuf.Bytes, len(r.fieldNames))
		for field := 0; field < len(r.fieldNames); field++ {
			out[field] = bytesbuf.FromString(r.cellString(row, field))
		}
		table = append(table, out)
	}
	return table
}

// BytesTableToResult builds a DbResult from a row-major Bytes table whose
// first row holds the field names; every column is typed as Bytes.
func BytesTableToResult(source Source, table [][]*bytesbuf.Bytes) (*DbResult, error) {
	if len(table) == 0 {
		return Finalize(source, nil, nil, nil), nil
	}
	header := table[0]
	names := make([]string, len(header))
	types := make([]*typedesc.Descriptor, len(header))
	for i, h := range header {
		names[i] = h.String()
		types[i] = typedesc.Bytes
	}

	rows := make([][]any, 0, len(table)-1)
	for _, src := range table[1:] {
		if len(src) != len(header) {
			return nil, fmt.Errorf("dbresult: row has %d cells, want %d", len(src), len(header))
		}
		row := make([]any, len(src))
		for i, cell := range src {
			row[i] = cell.Copy()
		}
		rows = append(rows, row)
	}
	return Finalize(source, names, types, rows), nil
}
