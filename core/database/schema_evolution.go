package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/go-dbfacade/dbfacade/core/dbresult"
	"github.com/go-dbfacade/dbfacade/core/sqlbuilder"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
	"github.com/go-dbfacade/dbfacade/internal/dberrors"
)

func fieldDefFor(c ColumnDescription) (sqlbuilder.FieldDef, error) {
	if c.VarcharLen > 0 {
		return sqlbuilder.FieldDef{Name: c.Name, VarcharLen: c.VarcharLen}, nil
	}
	engineType, err := typeToEngineTypeName(c.Type)
	if err != nil {
		return sqlbuilder.FieldDef{}, err
	}
	return sqlbuilder.FieldDef{Name: c.Name, Type: engineType}, nil
}

// evolveSchema implements the copy-and-rename schema-change algorithm
// (spec.md §4.7): lock the table (which opens the surrounding
// transaction), load every existing row, build a temp table under
// mutate's new column list, bulk-copy the data (new columns default via
// TypeDescriptor.Create(nil)), drop the original, rename the temp table
// into its place, and release the lock to commit. Any failure along the
// way rolls the transaction back and invalidates the cached description.
func (d *Database) evolveSchema(ctx context.Context, owner, dbName, table string, mutate func(orig *TableDescription) (*TableDescription, error)) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		d.UnlockTablesRollback(ctx, handle)
		d.invalidateTable(dbName, table)
	}()

	orig, err := d.describeTableRaw(ctx, dbName, table)
	if err != nil {
		return err
	}
	newDesc, err := mutate(orig)
	if err != nil {
		return err
	}

	data, err := d.engine.QueryString(ctx, sqlbuilder.SelectAll(dbName, table))
	if err != nil {
		return err
	}
	defer data.Destroy()

	// The temp name carries a UUID fragment so a concurrently-running
	// evolution of the same table from another process attaching this
	// same file can't collide on "TEMP<table>TEMP".
	tempName := "TEMP" + table + uuid.NewString()[:8] + "TEMP"
	fields := make([]sqlbuilder.FieldDef, len(newDesc.Columns))
	for i, c := range newDesc.Columns {
		fd, err := fieldDefFor(c)
		if err != nil {
			return err
		}
		fields[i] = fd
	}

	if err := d.engine.Exec(ctx, sqlbuilder.CreateTable(dbName, tempName, newDesc.PrimaryKey, fields)); err != nil {
		return err
	}

	for row := 0; row < data.NumResults(); row++ {
		values := make([]string, len(newDesc.Columns))
		for i, c := range newDesc.Columns {
			var v any
			t := c.Type
			if origIdx := data.FieldIndexByName(c.Name); origIdx >= 0 {
				v, err = data.GetByIndex(row, origIdx)
				if err != nil {
					return err
				}
				// Render an existing value with the type it was read
				// as; the engine coerces it into the new column.
				t = data.FieldType(origIdx)
			} else if c.Type != nil {
				v = c.Type.Create(nil)
			}
			f := renderTypedLiteral(d.engine, t, c.Name, v)
			if f.IsNull {
				values[i] = "NULL"
			} else {
				values[i] = f.Value
			}
		}
		if err := d.engine.Exec(ctx, sqlbuilder.InsertVargs(dbName, tempName, values)); err != nil {
			return err
		}
	}

	if err := d.engine.Exec(ctx, sqlbuilder.DropTable(dbName, table)); err != nil {
		return err
	}
	if err := d.engine.Exec(ctx, sqlbuilder.RenameTable(dbName, tempName, table)); err != nil {
		return err
	}

	if err := d.UnlockTables(ctx, handle); err != nil {
		return err
	}
	committed = true
	d.invalidateTable(dbName, table)
	return nil
}

// AddField appends a new column, defaulted via its TypeDescriptor's zero
// value on every existing row.
func (d *Database) AddField(ctx context.Context, owner, dbName, table, field string, fieldType *typedesc.Descriptor, varcharLen int) error {
	return d.evolveSchema(ctx, owner, dbName, table, func(orig *TableDescription) (*TableDescription, error) {
		if orig.ColumnByName(field) != nil {
			return nil, fmt.Errorf("database: add_field: %s.%s already has a column %q", dbName, table, field)
		}
		newDesc := &TableDescription{Database: dbName, Table: table, PrimaryKey: orig.PrimaryKey}
		newDesc.Columns = append(append([]ColumnDescription(nil), orig.Columns...), ColumnDescription{
			Name: field, Type: fieldType, VarcharLen: varcharLen,
		})
		return newDesc, nil
	})
}

// ChangeFieldType re-creates field with a new TypeDescriptor, copying
// every existing value as a literal of its old type and leaving the
// conversion to the engine's own type coercion on insert (SQLite's
// dynamic typing).
func (d *Database) ChangeFieldType(ctx context.Context, owner, dbName, table, field string, newType *typedesc.Descriptor, varcharLen int) error {
	return d.evolveSchema(ctx, owner, dbName, table, func(orig *TableDescription) (*TableDescription, error) {
		idx := orig.ColumnIndex(field)
		if idx < 0 {
			return nil, fmt.Errorf("database: change_field_type: %s.%s has no column %q", dbName, table, field)
		}
		newDesc := &TableDescription{Database: dbName, Table: table, PrimaryKey: orig.PrimaryKey}
		newDesc.Columns = append([]ColumnDescription(nil), orig.Columns...)
		newDesc.Columns[idx] = ColumnDescription{Name: field, Type: newType, VarcharLen: varcharLen}
		return newDesc, nil
	})
}

// ChangeFieldName renames a column in place; no data conversion is
// needed so this issues ALTER TABLE ... RENAME COLUMN directly instead
// of going through evolveSchema's copy-and-rename.
func (d *Database) ChangeFieldName(ctx context.Context, owner, dbName, table, oldName, newName string) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	if desc.ColumnByName(oldName) == nil {
		return fmt.Errorf("database: change_field_name: %s.%s has no column %q", dbName, table, oldName)
	}
	if err := d.engine.Exec(ctx, sqlbuilder.RenameColumn(dbName, table, oldName, newName)); err != nil {
		return err
	}
	d.invalidateTable(dbName, table)
	return nil
}

// DeleteField drops a column outright via ALTER TABLE ... DROP COLUMN.
func (d *Database) DeleteField(ctx context.Context, owner, dbName, table, field string) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	if desc.ColumnByName(field) == nil {
		return fmt.Errorf("database: delete_field: %s.%s has no column %q", dbName, table, field)
	}
	if err := d.engine.Exec(ctx, sqlbuilder.DropColumn(dbName, table, field)); err != nil {
		return err
	}
	d.invalidateTable(dbName, table)
	return nil
}

// RenameTable renames table within dbName.
func (d *Database) RenameTable(ctx context.Context, owner, dbName, oldName, newName string) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, oldName)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	if err := d.engine.Exec(ctx, sqlbuilder.RenameTable(dbName, oldName, newName)); err != nil {
		return err
	}
	d.invalidateTable(dbName, oldName)
	return nil
}

// DeleteTable drops table outright.
func (d *Database) DeleteTable(ctx context.Context, owner, dbName, table string) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	if err := d.engine.Exec(ctx, sqlbuilder.DropTable(dbName, table)); err != nil {
		return err
	}
	d.invalidateTable(dbName, table)
	return nil
}

// TableSpec describes one table for AddTableList.
type TableSpec struct {
	Table      string
	PrimaryKey []string
	Columns    []ColumnDescription
}

// AddTableList creates every table in specs under a single lock covering
// all of them, so a reader never observes a partially-created batch.
func (d *Database) AddTableList(ctx context.Context, owner, dbName string, specs []TableSpec) error {
	fullNames := make([]string, len(specs))
	for i, s := range specs {
		fullNames[i] = fullTableName(dbName, s.Table)
	}
	handle, err := d.LockTablesDict(ctx, owner, fullNames)
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	for _, s := range specs {
		fields := make([]sqlbuilder.FieldDef, len(s.Columns))
		for i, c := range s.Columns {
			fd, err := fieldDefFor(c)
			if err != nil {
				return err
			}
			fields[i] = fd
		}
		if err := d.engine.Exec(ctx, sqlbuilder.CreateTable(dbName, s.Table, s.PrimaryKey, fields)); err != nil {
			return err
		}
	}
	return nil
}

// EnsureFieldIndexedVargs creates an index over fields if one covering
// exactly that ordered set does not already exist. The generated index
// name is the fields joined with "_"; per spec.md §9 Open Question #2
// this implementation hard-errors on a name collision with an existing
// column rather than silently creating a malformed index (see
// DESIGN.md).
func (d *Database) EnsureFieldIndexedVargs(ctx context.Context, owner, dbName, table string, fields []string) error {
	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	desc, err := d.describeTableDescriptor(ctx, dbName, table)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if desc.ColumnByName(f) == nil {
			return fmt.Errorf("database: ensure_field_indexed_vargs: %s.%s has no column %q", dbName, table, f)
		}
	}

	indexName := strings.Join(fields, "_")
	if desc.ColumnByName(indexName) != nil {
		return fmt.Errorf("%w: database: ensure_field_indexed_vargs: generated index name %q collides with an existing column on %s.%s", dberrors.ErrInvalidArgument, indexName, dbName, table)
	}

	exists, err := d.engine.TableExists(ctx, dbName, indexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	sqlText := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", indexName, fullTableName(dbName, table), strings.Join(fields, ","))
	return d.engine.Exec(ctx, sqlText)
}

// varcharLensForResult re-derives each of src's column's VARCHAR width
// from the source table's own describe-table output, when src carries
// provenance back to a real table (spec.md §4.4: "for VARCHAR columns,
// re-derive width from the source's describe-table output").
func (d *Database) varcharLensForResult(ctx context.Context, src *dbresult.DbResult) (map[string]int, error) {
	lens := make(map[string]int)
	if src.DatabaseName() == "" || src.TableName() == "" {
		return lens, nil
	}
	srcDesc, err := d.describeTableRaw(ctx, src.DatabaseName(), src.TableName())
	if err != nil {
		return nil, fmt.Errorf("database: create_table_from_result: re-deriving varchar width: %w", err)
	}
	for _, c := range srcDesc.Columns {
		if c.VarcharLen > 0 {
			lens[c.Name] = c.VarcharLen
		}
	}
	return lens, nil
}

// CreateTableFromResult creates table with a schema derived from src's
// own column names and TypeDescriptors, then bulk-inserts every row. If
// the destination already exists with a matching schema it is reused
// unchanged; if it exists with a different schema it is dropped and
// recreated from src's column list (spec.md §4.4).
func (d *Database) CreateTableFromResult(ctx context.Context, owner, dbName, table string, primaryKey []string, src *dbresult.DbResult) error {
	varcharLens, err := d.varcharLensForResult(ctx, src)
	if err != nil {
		return err
	}

	columns := make([]ColumnDescription, src.NumFields())
	fields := make([]sqlbuilder.FieldDef, src.NumFields())
	for i := 0; i < src.NumFields(); i++ {
		col := ColumnDescription{Name: src.FieldName(i), Type: src.FieldType(i), VarcharLen: varcharLens[src.FieldName(i)]}
		fd, err := fieldDefFor(col)
		if err != nil {
			return fmt.Errorf("database: create_table_from_result: column %q: %w", src.FieldName(i), err)
		}
		fields[i] = fd
		columns[i] = col
	}

	handle, err := d.LockTablesDict(ctx, owner, []string{fullTableName(dbName, table)})
	if err != nil {
		return err
	}
	defer d.UnlockTables(ctx, handle)

	exists, err := d.engine.TableExists(ctx, dbName, table)
	if err != nil {
		return err
	}
	if exists {
		existing, err := d.describeTableRaw(ctx, dbName, table)
		if err != nil {
			return err
		}
		if !schemaMatchesResult(existing, src) {
			if err := d.engine.Exec(ctx, sqlbuilder.DropTable(dbName, table)); err != nil {
				return err
			}
			exists = false
		}
	}
	if !exists {
		if err := d.engine.Exec(ctx, sqlbuilder.CreateTable(dbName, table, primaryKey, fields)); err != nil {
			return err
		}
		d.invalidateTable(dbName, table)
	}

	for row := 0; row < src.NumResults(); row++ {
		values := make([]string, src.NumFields())
		for i := range columns {
			v, err := src.GetByIndex(row, i)
			if err != nil {
				return err
			}
			f := renderTypedLiteral(d.engine, columns[i].Type, columns[i].Name, v)
			if f.IsNull {
				values[i] = "NULL"
			} else {
				values[i] = f.Value
			}
		}
		if err := d.engine.Exec(ctx, sqlbuilder.InsertVargs(dbName, table, values)); err != nil {
			return err
		}
	}

	d.invalidateTable(dbName, table)
	return nil
}

// schemaMatchesResult reports whether table's current description has
// the same column names, in the same order, as src — used to validate a
// CreateTableFromResult target before reusing an existing table.
func schemaMatchesResult(desc *TableDescription, src *dbresult.DbResult) bool {
	if len(desc.Columns) != src.NumFields() {
		return false
	}
	for i, c := range desc.Columns {
		if c.Name != src.FieldName(i) {
			return false
		}
	}
	return true
}
