// Package sqliteengine is the reference core/vtable.Engine implementation
// (spec.md §4.6): one SQLite "metadata" connection per Database, tracking
// every attached database file in a main.Databases table and driving
// queries through database/sql against core/sqlite's pure-Go/CGO driver
// selection.
package sqliteengine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-dbfacade/dbfacade/core/dbresult"
	"github.com/go-dbfacade/dbfacade/core/sqlbuilder"
	"github.com/go-dbfacade/dbfacade/core/sqlite"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
	"github.com/go-dbfacade/dbfacade/internal/dberrors"
	"github.com/go-dbfacade/dbfacade/internal/logging"
)

// attachedLimit mirrors spec.md §4.6 step 2: raise SQLite's default
// attached-database ceiling so a directory of many small databases still
// attaches cleanly.
const attachedLimit = 125

// Engine is one metadata connection plus every database ATTACHed to it.
// A single *sql.DB is shared by every attached alias, since SQLite
// ATTACH is scoped to the connection, not the file.
type Engine struct {
	mu       sync.Mutex
	db       *sql.DB
	dir      string
	instance string
	attached map[string]string // alias -> connection string (path)

	tx *sql.Tx // non-nil while a recursive transaction is open
}

func metadataName(instance string) string { return "main" + instance }

// Dir returns the directory this engine's databases live under, and
// Instance its dbInstance suffix — both needed by callers that manage
// database files directly (delete-database's unlink, rename-database).
func (e *Engine) Dir() string      { return e.dir }
func (e *Engine) Instance() string { return e.instance }

// Open opens or creates the metadata database under dir (spec.md §4.6),
// reattaching every database previously recorded in its Databases table.
func Open(ctx context.Context, dir, dbInstance string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberrors.Wrapf(err, "sqliteengine: create directory %s", dir)
	}
	name := metadataName(dbInstance)
	path := filepath.Join(dir, name+".sqlite")

	db, err := sqlite.Open(path)
	if err != nil {
		return nil, dberrors.Wrapf(err, "sqliteengine: open %s", path)
	}
	db.SetMaxOpenConns(1) // ATTACH state lives on one connection

	e := &Engine{db: db, dir: dir, instance: dbInstance, attached: map[string]string{}}

	for _, pragma := range []string{
		"PRAGMA extended_result_codes = ON",
		fmt.Sprintf("PRAGMA max_attached = %d", attachedLimit),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, dberrors.Wrapf(err, "sqliteengine: %s", pragma)
		}
	}

	if err := e.ensureDatabasesTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := e.reattachAll(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) ensureDatabasesTable(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS Databases (
		name varchar(40) PRIMARY KEY,
		type varchar(40),
		connection blob
	)`
	_, err := e.db.ExecContext(ctx, ddl)
	return dberrors.Wrapf(err, "sqliteengine: create Databases table")
}

func (e *Engine) reattachAll(ctx context.Context) error {
	rows, err := e.db.QueryContext(ctx, "SELECT name, connection FROM Databases WHERE type='sqlite'")
	if err != nil {
		return dberrors.Wrapf(err, "sqliteengine: list tracked databases")
	}
	defer rows.Close()

	type tracked struct{ name, connection string }
	var all []tracked
	for rows.Next() {
		var t tracked
		var conn []byte
		if err := rows.Scan(&t.name, &conn); err != nil {
			return dberrors.Wrapf(err, "sqliteengine: scan tracked database row")
		}
		t.connection = string(conn)
		all = append(all, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range all {
		if err := e.attachFile(ctx, t.name, t.connection); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) attachFile(ctx context.Context, alias, connection string) error {
	stmt := fmt.Sprintf("ATTACH DATABASE %s AS %s", sqlbuilder.MakeStringLiteral(connection), alias)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return dberrors.Wrapf(err, "sqliteengine: attach %s", alias)
	}
	e.attached[alias] = connection
	return nil
}

// AttachDatabase records name in the Databases table and ATTACHes its
// file, per spec.md §4.6's add-database operation.
func (e *Engine) AttachDatabase(ctx context.Context, name, connection string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.attached[name]; ok {
		return fmt.Errorf("%w: database %q already attached", dberrors.ErrAlreadyExists, name)
	}
	if _, err := e.db.ExecContext(ctx, "INSERT INTO Databases (name, type, connection) VALUES (?, 'sqlite', ?)", name, connection); err != nil {
		return dberrors.Wrapf(err, "sqliteengine: record database %s", name)
	}
	if err := e.attachFile(ctx, name, connection); err != nil {
		_, _ = e.db.ExecContext(ctx, "DELETE FROM Databases WHERE name=?", name)
		return err
	}
	return nil
}

// DetachDatabase DETACHes name and removes its Databases row. The file
// itself is left on disk; delete-database's unlink step belongs to
// DeleteDatabase, not this method.
func (e *Engine) DetachDatabase(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.attached[name]; !ok {
		return fmt.Errorf("%w: database %q is not attached", dberrors.ErrNotFound, name)
	}
	if _, err := e.db.ExecContext(ctx, "PRAGMA "+name+".optimize"); err != nil {
		logging.Warn("sqliteengine: optimize before detach failed", "database", name, "error", err.Error())
	}
	if _, err := e.db.ExecContext(ctx, "DETACH DATABASE "+name); err != nil {
		return dberrors.Wrapf(err, "sqliteengine: detach %s", name)
	}
	if _, err := e.db.ExecContext(ctx, "DELETE FROM Databases WHERE name=?", name); err != nil {
		return dberrors.Wrapf(err, "sqliteengine: forget database %s", name)
	}
	delete(e.attached, name)
	return nil
}

// DeleteDatabase detaches name, removes its Databases row, and unlinks
// its file on disk (spec.md §4.6's delete-database).
func (e *Engine) DeleteDatabase(ctx context.Context, name string) error {
	e.mu.Lock()
	path, ok := e.attached[name]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: database %q is not attached", dberrors.ErrNotFound, name)
	}
	if err := e.DetachDatabase(ctx, name); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return dberrors.Wrapf(err, "sqliteengine: unlink %s", path)
	}
	return nil
}

// RenameDatabase moves oldName's file to a path derived from newName and
// re-attaches it under the new alias, rolling back to the original
// attachment on any failed step (spec.md §4.6's rename-database).
func (e *Engine) RenameDatabase(ctx context.Context, oldName, newName string) error {
	e.mu.Lock()
	oldPath, ok := e.attached[oldName]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: database %q is not attached", dberrors.ErrNotFound, oldName)
	}
	newPath := filepath.Join(filepath.Dir(oldPath), newName+".sqlite")

	if err := e.DetachDatabase(ctx, oldName); err != nil {
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		_ = e.AttachDatabase(ctx, oldName, oldPath)
		return dberrors.Wrapf(err, "sqliteengine: rename database file %s", oldName)
	}
	if err := e.AttachDatabase(ctx, newName, newPath); err != nil {
		_ = os.Rename(newPath, oldPath)
		_ = e.AttachDatabase(ctx, oldName, oldPath)
		return err
	}
	return nil
}

// DatabaseExists reports whether name is currently attached.
func (e *Engine) DatabaseExists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.attached[name]
	return ok, nil
}

// AttachedNames returns every currently-attached database alias, used by
// the CLI's no-SQL listing mode (spec.md §6).
func (e *Engine) AttachedNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.attached))
	for name := range e.attached {
		names = append(names, name)
	}
	return names
}

// querier is satisfied by both *sql.DB and *sql.Tx, so query helpers
// work whether or not a recursive transaction is currently open.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e *Engine) conn() querier {
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

// QueryString runs sqlText and marshals every row into a DbResult,
// deriving each column's TypeDescriptor from the first row's runtime
// value (spec.md §4.6's query_bytes, adapted from raw sqlite3_column_type
// codes to the Go value kind database/sql's driver already decoded it
// into — see DESIGN.md).
func (e *Engine) QueryString(ctx context.Context, sqlText string) (*dbresult.DbResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.conn().QueryContext(ctx, sqlText)
	if err != nil {
		logging.EngineError("query", sqlText, err)
		return nil, &dberrors.EngineError{Op: "query", Query: sqlText, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, dberrors.Wrap(err, "sqliteengine: read column names")
	}

	var fieldTypes []*typedesc.Descriptor
	var out [][]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dberrors.Wrap(err, "sqliteengine: scan row")
		}
		if fieldTypes == nil {
			fieldTypes = make([]*typedesc.Descriptor, len(cols))
			for i, v := range raw {
				fieldTypes[i] = typeDescriptorFor(v)
			}
		}
		cells := make([]any, len(cols))
		for i, v := range raw {
			cells[i] = boxCell(fieldTypes[i], v)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.Wrap(err, "sqliteengine: iterate rows")
	}
	if fieldTypes == nil {
		// No rows: fall back to string/bytes for every column so a
		// DbResult with the right shape is still returned.
		fieldTypes = make([]*typedesc.Descriptor, len(cols))
		for i := range fieldTypes {
			fieldTypes[i] = typedesc.Bytes
		}
	}
	return dbresult.Finalize(dbresult.Source{}, cols, fieldTypes, out), nil
}

// QueryBytes is QueryString for callers holding raw UTF-8 SQL text as
// bytes.
func (e *Engine) QueryBytes(ctx context.Context, sqlText []byte) (*dbresult.DbResult, error) {
	return e.QueryString(ctx, string(sqlText))
}

// Exec runs a statement producing no rows.
func (e *Engine) Exec(ctx context.Context, sqlText string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.conn().ExecContext(ctx, sqlText); err != nil {
		logging.EngineError("exec", sqlText, err)
		return &dberrors.EngineError{Op: "exec", Query: sqlText, Err: err}
	}
	return nil
}

// typeDescriptorFor maps a database/sql-decoded SQLite cell (int64,
// float64, string, []byte, or nil) to the TypeDescriptor query_bytes
// would have derived from the raw column_type code.
func typeDescriptorFor(v any) *typedesc.Descriptor {
	switch v.(type) {
	case int64:
		return typedesc.Int64
	case float64:
		return typedesc.Float64
	case string:
		return typedesc.String
	case []byte:
		return typedesc.Bytes
	default:
		return typedesc.Bytes // SQLITE_NULL: zero-length Bytes per spec.md §4.6
	}
}

func boxCell(t *typedesc.Descriptor, v any) any {
	switch val := v.(type) {
	case int64:
		return t.Create(val)
	case float64:
		return t.Create(val)
	case string:
		return t.Create(val)
	case []byte:
		return t.Create(val)
	default:
		return t.Create(nil)
	}
}

// DescribeTable runs PRAGMA db.table_info(table) and projects it to the
// (name, type, pk) contract core/database's describeTableRaw expects.
func (e *Engine) DescribeTable(ctx context.Context, db, table string) (*dbresult.DbResult, error) {
	stmt := fmt.Sprintf("PRAGMA %s.table_info(%s)", db, table)
	e.mu.Lock()
	rows, err := e.conn().QueryContext(ctx, stmt)
	e.mu.Unlock()
	if err != nil {
		return nil, &dberrors.EngineError{Op: "describeTable", Query: stmt, Err: err}
	}
	defer rows.Close()

	var data [][]any
	for rows.Next() {
		var cid int64
		var name, colType string
		var notNull int64
		var dflt any
		var pk int64
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, dberrors.Wrap(err, "sqliteengine: scan table_info row")
		}
		data = append(data, []any{
			typedesc.String.Create(name),
			typedesc.String.Create(colType),
			typedesc.Int64.Create(pk),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	fieldNames := []string{"name", "type", "pk"}
	fieldTypes := []*typedesc.Descriptor{typedesc.String, typedesc.String, typedesc.Int64}
	return dbresult.Finalize(dbresult.Source{}, fieldNames, fieldTypes, data), nil
}

// TableExists queries db's sqlite_master directly rather than going
// through table_info, which returns an empty (not an error) result for a
// missing table.
func (e *Engine) TableExists(ctx context.Context, db, table string) (bool, error) {
	stmt := fmt.Sprintf("SELECT 1 FROM %s.sqlite_master WHERE type='table' AND name=?", db)
	e.mu.Lock()
	row := e.conn().QueryRowContext(ctx, stmt, table)
	e.mu.Unlock()
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, dberrors.Wrap(err, "sqliteengine: table_exists")
	}
}

// MakeStringLiteral and MakeBytesLiteral delegate to core/sqlbuilder,
// which already implements SQLite's own quoting rules.
func (e *Engine) MakeStringLiteral(s string) string { return sqlbuilder.MakeStringLiteral(s) }
func (e *Engine) MakeBytesLiteral(b []byte) string  { return sqlbuilder.MakeBytesLiteral(b) }

// Compare orders two already-decoded cell values the way SQLite's own
// type-affinity comparison rule would: NULL < numeric < TEXT < BLOB,
// with like-typed values compared natively.
func (e *Engine) Compare(a, b any) int {
	ra, rb := storageRank(a), storageRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case int64:
		bv := toFloat(b)
		return compareFloat(float64(av), bv)
	case float64:
		return compareFloat(av, toFloat(b))
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case []byte:
		bv, _ := b.([]byte)
		return strings.Compare(string(av), string(bv))
	default:
		return 0
	}
}

func storageRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case []byte:
		return 3
	default:
		return 2
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NumRecords is SELECT COUNT(*) FROM db.table.
func (e *Engine) NumRecords(ctx context.Context, db, table string) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", db, table)
	e.mu.Lock()
	row := e.conn().QueryRowContext(ctx, stmt)
	e.mu.Unlock()
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, dberrors.Wrap(err, "sqliteengine: num_records")
	}
	return n, nil
}

// Size estimates table's on-disk footprint as page_count*page_size for
// db (SQLite has no per-table size primitive).
func (e *Engine) Size(ctx context.Context, db, table string) (int64, error) {
	var pageCount, pageSize int64
	e.mu.Lock()
	err1 := e.conn().QueryRowContext(ctx, "PRAGMA "+db+".page_count").Scan(&pageCount)
	err2 := e.conn().QueryRowContext(ctx, "PRAGMA "+db+".page_size").Scan(&pageSize)
	e.mu.Unlock()
	if err1 != nil {
		return 0, dberrors.Wrap(err1, "sqliteengine: page_count")
	}
	if err2 != nil {
		return 0, dberrors.Wrap(err2, "sqliteengine: page_size")
	}
	return pageCount * pageSize, nil
}

// BeginTx, Commit, and Rollback back the façade's recursive transaction
// counter: the counter guarantees these are called only at the 0→1 and
// 1→0 transitions (spec.md §5).
func (e *Engine) BeginTx(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return dberrors.Wrap(err, "sqliteengine: begin")
	}
	e.tx = tx
	return nil
}

func (e *Engine) Commit(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx == nil {
		return nil
	}
	err := e.tx.Commit()
	e.tx = nil
	if err != nil {
		return dberrors.Wrap(err, "sqliteengine: commit")
	}
	return nil
}

func (e *Engine) Rollback(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx == nil {
		return nil
	}
	err := e.tx.Rollback()
	e.tx = nil
	if err != nil {
		return dberrors.Wrap(err, "sqliteengine: rollback")
	}
	return nil
}

// Close runs PRAGMA optimize against every non-metadata database, then
// DETACHes it, before closing the underlying connection (spec.md §4.6).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name := range e.attached {
		_, _ = e.db.Exec("PRAGMA " + name + ".optimize")
		_, _ = e.db.Exec("DETACH DATABASE " + name)
	}
	return e.db.Close()
}
