// Package vtable defines the engine-adapter boundary (spec.md §9's
// "SqlDatabase" conformance): everything a concrete SQL engine must
// provide so the façade in core/database can drive it generically.
package vtable

import (
	"context"

	"github.com/go-dbfacade/dbfacade/core/dbresult"
)

// Engine is implemented once per supported SQL backend (core/sqliteengine
// is the reference implementation). The façade never issues raw engine
// calls itself; every mutation and query passes through here.
type Engine interface {
	// QueryBytes runs sqlText (already fully rendered, including
	// literals) and returns the resulting rows. Used for queries built
	// from caller-supplied raw bytes.
	QueryBytes(ctx context.Context, sqlText []byte) (*dbresult.DbResult, error)

	// QueryString is QueryBytes for an already-UTF8 string; most
	// façade operations use this form since sqlbuilder renders strings.
	QueryString(ctx context.Context, sqlText string) (*dbresult.DbResult, error)

	// Exec runs a statement that produces no rows (DDL, INSERT/UPDATE/
	// DELETE without RETURNING).
	Exec(ctx context.Context, sqlText string) error

	// DescribeTable returns the engine-native column description: one
	// row per column with engine type names, not yet mapped to
	// TypeDescriptors (the façade does that mapping at its boundary).
	DescribeTable(ctx context.Context, db, table string) (*dbresult.DbResult, error)

	// TableExists and DatabaseExists back the façade's introspection
	// helpers (SPEC_FULL.md §11).
	TableExists(ctx context.Context, db, table string) (bool, error)
	DatabaseExists(ctx context.Context, db string) (bool, error)

	// MakeStringLiteral and MakeBytesLiteral implement the engine's
	// literal-quoting rules (spec.md §4.4, scenario S4).
	MakeStringLiteral(s string) string
	MakeBytesLiteral(b []byte) string

	// Compare orders two already-decoded cell values the way the
	// engine's own collation would, used by result_index_by_lookup
	// fallbacks and tests that need engine-consistent ordering.
	Compare(a, b any) int

	// AttachDatabase and DetachDatabase manage the engine's multi-
	// database namespace (spec.md §4.6).
	AttachDatabase(ctx context.Context, name, connection string) error
	DetachDatabase(ctx context.Context, name string) error

	// NumRecords and Size back get_num_records/get_size.
	NumRecords(ctx context.Context, db, table string) (int64, error)
	Size(ctx context.Context, db, table string) (int64, error)

	// BeginTx, Commit, and Rollback are issued exactly once per
	// outermost recursive transaction (spec.md §5, property #8); the
	// façade's transaction counter decides when to call them.
	BeginTx(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Close releases any resources held by the engine (open
	// connections, file handles).
	Close() error
}
