// Package sqlbuilder generates dialect-neutral SQL text for the façade's
// generic operations (spec.md §4.4). It never touches an engine directly;
// callers pass the rendered text to a VTable's query methods.
package sqlbuilder

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MakeStringLiteral wraps s in single quotes, doubling any embedded
// single quote, per spec.md §4.4 and the S4 scenario.
func MakeStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// MakeBytesLiteral renders b as a hex blob literal x'<HEX>'.
func MakeBytesLiteral(b []byte) string {
	return "x'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
}

// Field is a single name/value pair used to build vargs-style predicate
// and assignment lists. A nil Value renders as the unquoted SQL NULL.
type Field struct {
	Name   string
	Value  string // pre-rendered literal text, or "" with IsNull set
	IsNull bool
}

func renderValue(f Field) string {
	if f.IsNull {
		return "NULL"
	}
	return f.Value
}

func qualifiedTable(db, table string) string {
	return db + "." + table
}

func joinPredicates(fields []Field, op, comparison string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s%s%s", f.Name, comparison, renderValue(f))
	}
	return strings.Join(parts, " "+op+" ")
}

// SelectVargs renders:
//
//	SELECT select FROM db.table WHERE k1=v1 AND k2=v2 ... [ORDER BY order_by]
func SelectVargs(db, table, selectCols, orderBy string, where []Field) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectCols, qualifiedTable(db, table))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(joinPredicates(where, "AND", "="))
	}
	if orderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", orderBy)
	}
	return sb.String()
}

// SelectLikeVargs is SelectVargs with LIKE instead of = in the predicate.
func SelectLikeVargs(db, table, selectCols, orderBy string, where []Field) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectCols, qualifiedTable(db, table))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(joinPredicates(where, "AND", " LIKE "))
	}
	if orderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", orderBy)
	}
	return sb.String()
}

// SelectOrDict is get_or_values_dict: same as SelectVargs but the
// predicates are OR-joined.
func SelectOrDict(db, table, selectCols, orderBy string, where []Field) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectCols, qualifiedTable(db, table))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(joinPredicates(where, "OR", "="))
	}
	if orderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", orderBy)
	}
	return sb.String()
}

// InsertVargs renders INSERT INTO db.table VALUES (v1, v2, ...).
func InsertVargs(db, table string, values []string) string {
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", qualifiedTable(db, table), strings.Join(values, ", "))
}

// InsertDict renders INSERT INTO db.table (k1,k2,...) VALUES (v1,v2,...).
func InsertDict(db, table string, fields []Field) string {
	names := make([]string, len(fields))
	values := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
		values[i] = renderValue(f)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedTable(db, table), strings.Join(names, ","), strings.Join(values, ","))
}

// UpdateDict renders UPDATE db.table SET k=v,... WHERE <primary-key
// equality>.
func UpdateDict(db, table string, set []Field, where []Field) string {
	sets := make([]string, len(set))
	for i, f := range set {
		sets[i] = fmt.Sprintf("%s=%s", f.Name, renderValue(f))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualifiedTable(db, table), strings.Join(sets, ","), joinPredicates(where, "AND", "="))
}

// DeleteVargs renders DELETE FROM db.table WHERE k1=v1 AND k2=v2 ...
func DeleteVargs(db, table string, where []Field) string {
	stmt := fmt.Sprintf("DELETE FROM %s", qualifiedTable(db, table))
	if len(where) > 0 {
		stmt += " WHERE " + joinPredicates(where, "AND", "=")
	}
	return stmt
}

// DeleteLikeVargs is DeleteVargs with LIKE instead of =.
func DeleteLikeVargs(db, table string, where []Field) string {
	stmt := fmt.Sprintf("DELETE FROM %s", qualifiedTable(db, table))
	if len(where) > 0 {
		stmt += " WHERE " + joinPredicates(where, "AND", " LIKE ")
	}
	return stmt
}

// FieldDef is one entry in a CREATE TABLE field list: a plain type name
// ("INTEGER", "TEXT", ...) or, when VarcharLen > 0, a VARCHAR(n).
type FieldDef struct {
	Name       string
	Type       string
	VarcharLen int
}

func (f FieldDef) render() string {
	if f.VarcharLen > 0 {
		return fmt.Sprintf("%s VARCHAR(%d)", f.Name, f.VarcharLen)
	}
	return fmt.Sprintf("%s %s", f.Name, f.Type)
}

// CreateTable renders CREATE TABLE db.table (field defs..., PRIMARY
// KEY(...)).
func CreateTable(db, table string, primaryKey []string, fields []FieldDef) string {
	defs := make([]string, len(fields))
	for i, f := range fields {
		defs[i] = f.render()
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s", qualifiedTable(db, table), strings.Join(defs, ", "))
	if len(primaryKey) > 0 {
		stmt += fmt.Sprintf(", PRIMARY KEY(%s)", strings.Join(primaryKey, ","))
	}
	stmt += ")"
	return stmt
}

// RenameTable renders ALTER TABLE db.old RENAME TO new.
func RenameTable(db, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qualifiedTable(db, oldName), newName)
}

// RenameColumn renders ALTER TABLE db.table RENAME COLUMN old TO new.
func RenameColumn(db, table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", qualifiedTable(db, table), oldName, newName)
}

// DropTable renders DROP TABLE db.table.
func DropTable(db, table string) string {
	return fmt.Sprintf("DROP TABLE %s", qualifiedTable(db, table))
}

// SelectAll renders SELECT * FROM db.table, used by the copy-and-rename
// schema-evolution algorithm (spec.md §4.7) to load existing rows.
func SelectAll(db, table string) string {
	return fmt.Sprintf("SELECT * FROM %s", qualifiedTable(db, table))
}

// SelectAllLimit renders SELECT * FROM db.table LIMIT n, used by
// get_records_limit.
func SelectAllLimit(db, table string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualifiedTable(db, table), limit)
}

// DropColumn renders ALTER TABLE db.table DROP COLUMN column.
func DropColumn(db, table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", qualifiedTable(db, table), column)
}

// AddColumn renders ALTER TABLE db.table ADD COLUMN <field def>.
func AddColumn(db, table string, field FieldDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", qualifiedTable(db, table), field.render())
}
