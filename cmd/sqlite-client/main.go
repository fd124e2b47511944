// Command sqlite-client is the reference CLI for the database façade
// (spec.md §6). Invocation: sqlite-client <database-directory> [<SQL>]
// [--dbInstance=<suffix>].
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/go-dbfacade/dbfacade/core/database"
	"github.com/go-dbfacade/dbfacade/core/sqliteengine"
	"github.com/go-dbfacade/dbfacade/internal/backup"
	"github.com/go-dbfacade/dbfacade/internal/kvparse"
	"github.com/go-dbfacade/dbfacade/internal/lockwatch"
	"github.com/go-dbfacade/dbfacade/internal/logging"
)

// CLI mirrors spec.md §6's invocation contract directly on the root
// command instead of a noun-first subcommand group, since the external
// interface names exactly this positional shape.
var CLI struct {
	DatabaseDirectory string `arg:"" help:"Directory holding the tracked SQLite database files"`
	SQL               string `arg:"" optional:"" help:"SQL statement to run; omit to list databases and tables"`

	DbInstance string `help:"Suffix distinguishing this process's attachment of the metadata database" default:""`
	WatchLocks string `help:"Address (e.g. :8089) to serve a debug WebSocket feed of table-lock events" default:""`

	Where string `help:"field=value[,field=value] predicate list for vargs-style lookups on the table given via --table; when set, any SQL argument is ignored"`
	Set   string `help:"field=value[,field=value] assignment list for vargs-style updates"`
	Table string `help:"Table name --where/--set apply to (database.table)"`

	Backup  string `help:"Write a tar.xz snapshot of the database directory to this path and exit"`
	Restore string `help:"Restore a tar.xz snapshot (produced by --backup) into the database directory and exit"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("sqlite-client"),
		kong.Description("Reference CLI for the polymorphic database façade"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		kctx.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	if CLI.Backup != "" {
		return backup.Archive(CLI.DatabaseDirectory, CLI.Backup)
	}
	if CLI.Restore != "" {
		return backup.Restore(CLI.Restore, CLI.DatabaseDirectory)
	}

	engine, err := sqliteengine.Open(ctx, CLI.DatabaseDirectory, CLI.DbInstance)
	if err != nil {
		return fmt.Errorf("sqlite-client: open %s: %w", CLI.DatabaseDirectory, err)
	}
	defer engine.Close()

	db := database.NewDatabase(engine)

	if CLI.WatchLocks != "" {
		watcher := lockwatch.NewServer()
		db.SetLockObserver(watcher)
		go func() {
			if err := watcher.ListenAndServe(CLI.WatchLocks); err != nil {
				logging.Error("sqlite-client: lock watcher stopped", "error", err.Error())
			}
		}()
		logging.Info("sqlite-client: watching locks", "addr", CLI.WatchLocks)
	}

	if CLI.Where != "" || CLI.Set != "" {
		return runVargs(ctx, db)
	}

	if CLI.SQL == "" {
		return listDatabases(ctx, engine)
	}

	result, err := engine.QueryString(ctx, CLI.SQL)
	if err != nil {
		return fmt.Errorf("sqlite-client: query failed: %w", err)
	}
	return printRows(result)
}

func listDatabases(ctx context.Context, engine *sqliteengine.Engine) error {
	names := engine.AttachedNames()
	for _, name := range names {
		fmt.Println(name)
		tables, err := engine.QueryString(ctx, fmt.Sprintf("SELECT name FROM %s.sqlite_master WHERE type='table'", name))
		if err != nil {
			return fmt.Errorf("sqlite-client: list tables for %s: %w", name, err)
		}
		for i := 0; i < tables.NumResults(); i++ {
			v, err := tables.GetByIndex(i, 0)
			if err != nil {
				return err
			}
			fmt.Printf("  %v\n", v)
		}
	}
	return nil
}

func printRows(rows interface {
	NumResults() int
	NumFields() int
	FieldName(i int) string
	GetByIndex(row, field int) (any, error)
}) error {
	for i := 0; i < rows.NumResults(); i++ {
		fields := make([]string, rows.NumFields())
		for f := 0; f < rows.NumFields(); f++ {
			v, err := rows.GetByIndex(i, f)
			if err != nil {
				return err
			}
			fields[f] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(fields, ", "))
	}
	return nil
}

func runVargs(ctx context.Context, db *database.Database) error {
	if CLI.Table == "" {
		return fmt.Errorf("sqlite-client: --where/--set require --table=database.table")
	}
	dbName, table, ok := strings.Cut(CLI.Table, ".")
	if !ok {
		return fmt.Errorf("sqlite-client: --table must be in database.table form")
	}

	where, err := kvparse.Parse(CLI.Where)
	if err != nil {
		return err
	}

	if CLI.Set != "" {
		set, err := kvparse.Parse(CLI.Set)
		if err != nil {
			return err
		}
		setNamed := make([]database.NamedValue, len(set))
		for i, p := range set {
			setNamed[i] = database.NamedValue{Name: p.Field, Value: p.Value}
		}
		whereNamed := make([]database.NamedValue, len(where))
		for i, p := range where {
			whereNamed[i] = database.NamedValue{Name: p.Field, Value: p.Value}
		}
		return db.UpdateRecordDict(ctx, "cli", dbName, table, setNamed, whereNamed)
	}

	whereNamed := make([]database.NamedValue, len(where))
	for i, p := range where {
		whereNamed[i] = database.NamedValue{Name: p.Field, Value: p.Value}
	}
	result, err := db.GetValuesVargs(ctx, "cli", dbName, table, "*", "", whereNamed)
	if err != nil {
		return err
	}
	return printRows(result)
}
