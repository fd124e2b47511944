package database

import (
	"fmt"

	"github.com/go-dbfacade/dbfacade/core/typedesc"
)

// ColumnDescription is one column of a TableDescription: its name, its
// TypeDescriptor as mapped from the engine's native column type, and
// (for VARCHAR(n)) the declared length.
type ColumnDescription struct {
	Name       string
	Type       *typedesc.Descriptor
	EngineType string
	VarcharLen int
}

// TableDescription is the cached shape of a table: its columns in
// declaration order and its primary-key field names (spec.md §4.4,
// "cached table description, invalidated on DDL").
type TableDescription struct {
	Database   string
	Table      string
	Columns    []ColumnDescription
	PrimaryKey []string
}

// ColumnByName returns the column named name, or nil if absent.
func (t *TableDescription) ColumnByName(name string) *ColumnDescription {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnIndex returns the position of name within Columns, or -1.
func (t *TableDescription) ColumnIndex(name string) int {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// sqlTypeNameToDescriptor maps an engine-native column type name (as
// returned by DescribeTable, e.g. SQLite's PRAGMA table_info "type"
// column) to the TypeDescriptor the façade exposes at its public
// boundary. Unrecognized or affinity-less type names default to Bytes,
// matching SQLite's own "no declared type" behavior.
func sqlTypeNameToDescriptor(engineType string) *typedesc.Descriptor {
	switch normalizeTypeName(engineType) {
	case "INTEGER", "INT", "BIGINT", "TINYINT", "SMALLINT", "MEDIUMINT":
		return typedesc.Int64
	case "UNSIGNED BIGINT":
		return typedesc.Uint64
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		return typedesc.Float64
	case "BOOLEAN", "BOOL":
		return typedesc.Bool
	case "TEXT", "CLOB", "VARCHAR", "CHARACTER", "NCHAR", "NVARCHAR":
		return typedesc.String
	case "BLOB", "":
		return typedesc.Bytes
	default:
		return typedesc.Bytes
	}
}

// normalizeTypeName strips a VARCHAR(n)-style length suffix and
// uppercases the base type keyword for sqlTypeNameToDescriptor's switch.
func normalizeTypeName(engineType string) string {
	base := engineType
	for i, r := range engineType {
		if r == '(' {
			base = engineType[:i]
			break
		}
	}
	out := make([]byte, 0, len(base))
	for _, r := range base {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if r != ' ' || len(out) == 0 || out[len(out)-1] != ' ' {
			out = append(out, byte(r))
		}
	}
	n := len(out)
	for n > 0 && out[n-1] == ' ' {
		n--
	}
	return string(out[:n])
}

// typeToEngineTypeName is the reverse mapping used by CreateTableFromResult
// to re-derive DDL column types from a DbResult's TypeDescriptors.
func typeToEngineTypeName(t *typedesc.Descriptor) (string, error) {
	if t == nil {
		return "", fmt.Errorf("database: cannot derive a column type for a polymorphic field")
	}
	switch t.Kind {
	case typedesc.KindString, typedesc.KindStringCI:
		return "TEXT", nil
	case typedesc.KindBytes:
		return "BLOB", nil
	case typedesc.KindBool:
		return "BOOLEAN", nil
	case typedesc.KindFloat32, typedesc.KindFloat64, typedesc.KindFloat128:
		return "REAL", nil
	case typedesc.KindUint64, typedesc.KindUint128, typedesc.KindUint32, typedesc.KindUint16, typedesc.KindUint8:
		return "UNSIGNED BIGINT", nil
	default:
		return "INTEGER", nil
	}
}
