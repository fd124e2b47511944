// Package database implements the Database Façade (spec.md §4.4-§4.7):
// generic, dialect-neutral CRUD and DDL built from core/sqlbuilder text
// and driven through a core/vtable.Engine, guarded by the concurrency
// primitives in locking.go.
package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-dbfacade/dbfacade/core/cache"
	"github.com/go-dbfacade/dbfacade/core/dbresult"
	"github.com/go-dbfacade/dbfacade/core/sqlbuilder"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
	"github.com/go-dbfacade/dbfacade/core/vtable"
)

// Database is the façade over a single vtable.Engine connection: every
// public method here is safe to call concurrently from many owners.
type Database struct {
	engine      vtable.Engine
	locks       *lockState
	schemaCache *cache.SchemaCache[*TableDescription]
}

// NewDatabase wraps engine in a façade with its own lock state and schema
// cache.
func NewDatabase(engine vtable.Engine) *Database {
	return &Database{
		engine:      engine,
		locks:       newLockState(),
		schemaCache: cache.NewDefaultSchemaCache[*TableDescription](),
	}
}

// Close releases the underlying engine connection.
func (d *Database) Close() error { return d.engine.Close() }

func fullTableName(db, table string) string { return db + "." + table }

// NamedValue is a (column, value) pair in the façade's own argument
// vocabulary; Value is an ordinary Go value (string, int64, []byte, ...),
// not yet rendered to SQL text.
type NamedValue struct {
	Name  string
	Value any
}

// renderLiteral turns a NamedValue into sqlbuilder.Field text using the
// column's TypeDescriptor: strings and bytes are quoted per the engine's
// own literal rules, everything else renders through ToString.
func renderLiteral(engine vtable.Engine, col *ColumnDescription, name string, value any) sqlbuilder.Field {
	if value == nil {
		return sqlbuilder.Field{Name: name, IsNull: true}
	}
	if col == nil || col.Type == nil {
		return sqlbuilder.Field{Name: name, Value: engine.MakeStringLiteral(fmt.Sprintf("%v", value))}
	}
	t := col.Type
	switch {
	case t.Kind == typedesc.KindBytes:
		b, ok := value.([]byte)
		if !ok {
			b = []byte(fmt.Sprintf("%v", value))
		}
		return sqlbuilder.Field{Name: name, Value: engine.MakeBytesLiteral(b)}
	case t.IsString():
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprintf("%v", value)
		}
		return sqlbuilder.Field{Name: name, Value: engine.MakeStringLiteral(s)}
	default:
		return sqlbuilder.Field{Name: name, Value: fmt.Sprintf("%v", value)}
	}
}

// renderTypedLiteral is renderLiteral's counterpart for values that are
// already boxed through a TypeDescriptor (DbResult cells, Type.Create
// defaults) rather than raw Go values supplied by a façade caller.
func renderTypedLiteral(engine vtable.Engine, t *typedesc.Descriptor, name string, value any) sqlbuilder.Field {
	if value == nil {
		return sqlbuilder.Field{Name: name, IsNull: true}
	}
	if t == nil {
		return sqlbuilder.Field{Name: name, Value: engine.MakeStringLiteral(fmt.Sprintf("%v", value))}
	}
	switch {
	case t.Kind == typedesc.KindBytes:
		return sqlbuilder.Field{Name: name, Value: engine.MakeBytesLiteral(t.ToBytes(value))}
	case t.IsString():
		return sqlbuilder.Field{Name: name, Value: engine.MakeStringLiteral(t.ToString(value))}
	default:
		return sqlbuilder.Field{Name: name, Value: t.ToString(value)}
	}
}

func renderLiterals(engine vtable.Engine, desc *TableDescription, values []NamedValue) []sqlbuilder.Field {
	out := make([]sqlbuilder.Field, len(values))
	for i, v := range values {
		out[i] = renderLiteral(engine, desc.ColumnByName(v.Name), v.Name, v.Value)
	}
	return out
}

// describeTableRaw queries the engine directly, bypassing the schema
// cache. The engine's DescribeTable result has one row per column with
// "name" (string), "type" (string, the engine-native type name), and
// "pk" (int64: 0 if not part of the primary key, else its 1-based
// ordinal position within it).
func (d *Database) describeTableRaw(ctx context.Context, dbName, table string) (*TableDescription, error) {
	raw, err := d.engine.DescribeTable(ctx, dbName, table)
	if err != nil {
		return nil, fmt.Errorf("database: describe %s.%s: %w", dbName, table, err)
	}
	defer raw.Destroy()

	type pkEntry struct {
		order int
		name  string
	}
	var pkEntries []pkEntry

	desc := &TableDescription{Database: dbName, Table: table}
	for row := 0; row < raw.NumResults(); row++ {
		nameV, err := raw.GetByName(row, "name")
		if err != nil {
			return nil, err
		}
		typeV, err := raw.GetByName(row, "type")
		if err != nil {
			return nil, err
		}
		pkV, err := raw.GetByName(row, "pk")
		if err != nil {
			return nil, err
		}

		name := typedesc.String.ToString(nameV)
		engineType := typedesc.String.ToString(typeV)
		pkOrder, err := strconv.Atoi(typedesc.Int64.ToString(pkV))
		if err != nil {
			return nil, fmt.Errorf("database: describe %s.%s: non-integer pk ordinal for column %s", dbName, table, name)
		}

		desc.Columns = append(desc.Columns, ColumnDescription{
			Name:       name,
			Type:       sqlTypeNameToDescriptor(engineType),
			EngineType: engineType,
			VarcharLen: parseVarcharLen(engineType),
		})
		if pkOrder > 0 {
			pkEntries = append(pkEntries, pkEntry{order: pkOrder, name: name})
		}
	}

	for i := 1; i <= len(pkEntries); i++ {
		for _, e := range pkEntries {
			if e.order == i {
				desc.PrimaryKey = append(desc.PrimaryKey, e.name)
			}
		}
	}
	return desc, nil
}

func parseVarcharLen(engineType string) int {
	open := strings.IndexByte(engineType, '(')
	closeIdx := strings.IndexByte(engineType, ')')
	if open < 0 || closeIdx < open {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(engineType[open+1 : closeIdx]))
	if err != nil {
		return 0
	}
	return n
}

// describeTableDescriptor returns table's cached description, populating
// the cache on a miss, for internal callers that need the typed
// ColumnDescription/PrimaryKey shape (SQL building, schema evolution).
func (d *Database) describeTableDescriptor(ctx context.Context, dbName, table string) (*TableDescription, error) {
	if desc, ok := d.schemaCache.Get(dbName, table); ok {
		return desc, nil
	}
	desc, err := d.describeTableRaw(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	d.schemaCache.Put(dbName, table, desc)
	return desc, nil
}

// DescribeTable is the public describe_table operation (spec.md §4.4): a
// 3-column DbResult with one row per column of dbName.table — "fieldName"
// (Bytes), "typeInfo" (the column's TypeDescriptor pointer, with the
// result column's own field type set to nil to mark it polymorphic), and
// "primaryKey" ("true"/"false").
func (d *Database) DescribeTable(ctx context.Context, dbName, table string) (*dbresult.DbResult, error) {
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}

	pk := make(map[string]bool, len(desc.PrimaryKey))
	for _, name := range desc.PrimaryKey {
		pk[name] = true
	}

	rows := make([][]any, len(desc.Columns))
	for i, col := range desc.Columns {
		primaryKey := "false"
		if pk[col.Name] {
			primaryKey = "true"
		}
		rows[i] = []any{
			typedesc.String.Create(col.Name),
			col.Type,
			typedesc.String.Create(primaryKey),
		}
	}

	fieldTypes := []*typedesc.Descriptor{typedesc.String, nil, typedesc.String}
	source := dbresult.Source{Database: dbName, Table: table, PrimaryKey: desc.PrimaryKey}
	return dbresult.Finalize(source, []string{"fieldName", "typeInfo", "primaryKey"}, fieldTypes, rows), nil
}

func (d *Database) invalidateTable(dbName, table string) {
	d.schemaCache.Invalidate(dbName, table)
}

// TableExists reports whether table exists within dbName.
func (d *Database) TableExists(ctx context.Context, dbName, table string) (bool, error) {
	return d.engine.TableExists(ctx, dbName, table)
}

// DatabaseExists reports whether dbName is attached.
func (d *Database) DatabaseExists(ctx context.Context, dbName string) (bool, error) {
	return d.engine.DatabaseExists(ctx, dbName)
}

// GetNumRecords returns table's row count.
func (d *Database) GetNumRecords(ctx context.Context, dbName, table string) (int64, error) {
	return d.engine.NumRecords(ctx, dbName, table)
}

// GetSize returns table's on-disk size, in engine-defined units.
func (d *Database) GetSize(ctx context.Context, dbName, table string) (int64, error) {
	return d.engine.Size(ctx, dbName, table)
}

// GetFieldTypeByName returns the TypeDescriptor of a named column, or nil
// if the column does not exist.
func (d *Database) GetFieldTypeByName(ctx context.Context, dbName, table, field string) (*typedesc.Descriptor, error) {
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	col := desc.ColumnByName(field)
	if col == nil {
		return nil, fmt.Errorf("database: no such field %q on %s.%s", field, dbName, table)
	}
	return col.Type, nil
}

// GetFieldTypeByIndex returns the TypeDescriptor of column i in
// declaration order.
func (d *Database) GetFieldTypeByIndex(ctx context.Context, dbName, table string, i int) (*typedesc.Descriptor, error) {
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(desc.Columns) {
		return nil, fmt.Errorf("database: field index %d out of range on %s.%s", i, dbName, table)
	}
	return desc.Columns[i].Type, nil
}

func (d *Database) attachResultSource(res *dbresult.DbResult, desc *TableDescription, dbName, table string) {
	res.SetSource(dbresult.Source{Database: dbName, Table: table, PrimaryKey: desc.PrimaryKey})
}

// GetValuesVargs is SELECT select FROM db.table WHERE k1=v1 AND k2=v2
// ... [ORDER BY order_by], waiting for any in-flight mutation to clear
// first.
func (d *Database) GetValuesVargs(ctx context.Context, owner, dbName, table, selectCols, orderBy string, where []NamedValue) (*dbresult.DbResult, error) {
	d.WaitForTableUnlocked(owner, fullTableName(dbName, table))
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	sqlText := sqlbuilder.SelectVargs(dbName, table, selectCols, orderBy, renderLiterals(d.engine, desc, where))
	res, err := d.engine.QueryString(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	d.attachResultSource(res, desc, dbName, table)
	return res, nil
}

// GetValuesLikeVargs is GetValuesVargs with LIKE predicates.
func (d *Database) GetValuesLikeVargs(ctx context.Context, owner, dbName, table, selectCols, orderBy string, where []NamedValue) (*dbresult.DbResult, error) {
	d.WaitForTableUnlocked(owner, fullTableName(dbName, table))
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	sqlText := sqlbuilder.SelectLikeVargs(dbName, table, selectCols, orderBy, renderLiterals(d.engine, desc, where))
	res, err := d.engine.QueryString(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	d.attachResultSource(res, desc, dbName, table)
	return res, nil
}

// GetOrValuesDict is GetValuesVargs with OR-joined predicates
// (get_or_values_dict).
func (d *Database) GetOrValuesDict(ctx context.Context, owner, dbName, table, selectCols, orderBy string, where []NamedValue) (*dbresult.DbResult, error) {
	d.WaitForTableUnlocked(owner, fullTableName(dbName, table))
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	sqlText := sqlbuilder.SelectOrDict(dbName, table, selectCols, orderBy, renderLiterals(d.engine, desc, where))
	res, err := d.engine.QueryString(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	d.attachResultSource(res, desc, dbName, table)
	return res, nil
}

// GetRecordsLimit is SELECT * FROM db.table LIMIT n, bypassing ordering
// and predicates entirely.
func (d *Database) GetRecordsLimit(ctx context.Context, owner, dbName, table string, limit int) (*dbresult.DbResult, error) {
	d.WaitForTableUnlocked(owner, fullTableName(dbName, table))
	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return nil, err
	}
	res, err := d.engine.QueryString(ctx, sqlbuilder.SelectAllLimit(dbName, table, limit))
	if err != nil {
		return nil, err
	}
	d.attachResultSource(res, desc, dbName, table)
	return res, nil
}

// AddRecordVargs inserts one row given values in column-declaration
// order, locking table for the duration.
func (d *Database) AddRecordVargs(ctx context.Context, owner, dbName, table string, values []any) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	if len(values) != len(desc.Columns) {
		return fmt.Errorf("database: add_record_vargs: %d values for %d columns on %s.%s", len(values), len(desc.Columns), dbName, table)
	}
	rendered := make([]string, len(values))
	for i, v := range values {
		f := renderLiteral(d.engine, &desc.Columns[i], desc.Columns[i].Name, v)
		if f.IsNull {
			rendered[i] = "NULL"
		} else {
			rendered[i] = f.Value
		}
	}
	return d.engine.Exec(ctx, sqlbuilder.InsertVargs(dbName, table, rendered))
}

// AddRecordDict inserts one row from named values, locking table for the
// duration.
func (d *Database) AddRecordDict(ctx context.Context, owner, dbName, table string, values []NamedValue) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	return d.engine.Exec(ctx, sqlbuilder.InsertDict(dbName, table, renderLiterals(d.engine, desc, values)))
}

// UpdateRecordDict issues UPDATE db.table SET ... WHERE ..., locking
// table for the duration.
func (d *Database) UpdateRecordDict(ctx context.Context, owner, dbName, table string, set, where []NamedValue) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	sqlText := sqlbuilder.UpdateDict(dbName, table, renderLiterals(d.engine, desc, set), renderLiterals(d.engine, desc, where))
	return d.engine.Exec(ctx, sqlText)
}

// UpdateResultVargs writes row's current cell values back to the table
// it came from, keyed by the table's primary key. The result must carry
// Source provenance (set by a prior Get*/QueryString call).
func (d *Database) UpdateResultVargs(ctx context.Context, owner string, row *dbresult.DbResult, rowIndex int) error {
	dbName, table := row.DatabaseName(), row.TableName()
	if dbName == "" || table == "" {
		return fmt.Errorf("database: update_result_vargs: result has no source table")
	}
	pk := row.PrimaryKey()
	if len(pk) == 0 {
		return fmt.Errorf("database: update_result_vargs: %s.%s has no primary key", dbName, table)
	}

	lockFields := make([]FieldValue, 0, len(pk))
	where := make([]sqlbuilder.Field, 0, len(pk))
	for _, name := range pk {
		idx := row.FieldIndexByName(name)
		v, err := row.GetByIndex(rowIndex, idx)
		if err != nil {
			return err
		}
		t := row.FieldType(idx)
		lockFields = append(lockFields, FieldValue{Name: name, Value: t.ToString(v)})
		where = append(where, renderTypedLiteral(d.engine, t, name, v))
	}
	recLock := d.LockRecords(owner, dbName, table, lockFields)
	defer d.UnlockRecords(recLock)

	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	set := make([]sqlbuilder.Field, 0, row.NumFields())
	for i := 0; i < row.NumFields(); i++ {
		name := row.FieldName(i)
		isPK := false
		for _, p := range pk {
			if p == name {
				isPK = true
				break
			}
		}
		if isPK {
			continue
		}
		v, err := row.GetByIndex(rowIndex, i)
		if err != nil {
			return err
		}
		set = append(set, renderTypedLiteral(d.engine, row.FieldType(i), name, v))
	}

	sqlText := sqlbuilder.UpdateDict(dbName, table, set, where)
	return d.engine.Exec(ctx, sqlText)
}

// DeleteRecordsVargs issues DELETE FROM db.table WHERE ..., locking
// table for the duration.
func (d *Database) DeleteRecordsVargs(ctx context.Context, owner, dbName, table string, where []NamedValue) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	return d.engine.Exec(ctx, sqlbuilder.DeleteVargs(dbName, table, renderLiterals(d.engine, desc, where)))
}

// DeleteRecordsLikeVargs is DeleteRecordsVargs with LIKE predicates.
func (d *Database) DeleteRecordsLikeVargs(ctx context.Context, owner, dbName, table string, where []NamedValue) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	return d.engine.Exec(ctx, sqlbuilder.DeleteLikeVargs(dbName, table, renderLiterals(d.engine, desc, where)))
}

// AttachDatabase and DetachDatabase manage the engine's multi-database
// namespace; detaching invalidates every cached description for name.
func (d *Database) AttachDatabase(ctx context.Context, name, connection string) error {
	return d.engine.AttachDatabase(ctx, name, connection)
}

func (d *Database) DetachDatabase(ctx context.Context, name string) error {
	if err := d.engine.DetachDatabase(ctx, name); err != nil {
		return err
	}
	d.schemaCache.InvalidateDatabase(name)
	return nil
}

// databaseFileManager is an optional engine capability (core/sqliteengine
// implements it) for the file-level delete/rename-database operations
// spec.md §4.6 describes; engines without on-disk files simply don't
// satisfy it.
type databaseFileManager interface {
	DeleteDatabase(ctx context.Context, name string) error
	RenameDatabase(ctx context.Context, oldName, newName string) error
}

// DeleteDatabase detaches name, forgets it, and removes its backing file
// (spec.md §4.6's delete-database).
func (d *Database) DeleteDatabase(ctx context.Context, name string) error {
	mgr, ok := d.engine.(databaseFileManager)
	if !ok {
		return fmt.Errorf("database: delete_database: engine does not manage database files")
	}
	if err := mgr.DeleteDatabase(ctx, name); err != nil {
		return err
	}
	d.schemaCache.InvalidateDatabase(name)
	return nil
}

// RenameDatabase moves name's backing file and re-attaches it under
// newName (spec.md §4.6's rename-database).
func (d *Database) RenameDatabase(ctx context.Context, oldName, newName string) error {
	mgr, ok := d.engine.(databaseFileManager)
	if !ok {
		return fmt.Errorf("database: rename_database: engine does not manage database files")
	}
	if err := mgr.RenameDatabase(ctx, oldName, newName); err != nil {
		return err
	}
	d.schemaCache.InvalidateDatabase(oldName)
	return nil
}
