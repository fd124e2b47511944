package xmlschema

import (
	"strings"
	"testing"

	"github.com/go-dbfacade/dbfacade/core/database"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
)

func sampleDescription() *database.TableDescription {
	return &database.TableDescription{
		Database: "app",
		Table:    "users",
		Columns: []database.ColumnDescription{
			{Name: "id", Type: typedesc.Int64, EngineType: "INTEGER"},
			{Name: "name", Type: typedesc.String, EngineType: "TEXT"},
			{Name: "avatar", Type: typedesc.Bytes, EngineType: "BLOB"},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestExportTableSchemaXML(t *testing.T) {
	data := ExportTableSchemaXML(sampleDescription())
	out := string(data)
	if !strings.Contains(out, `<table name="users" database="app">`) {
		t.Errorf("missing table element: %s", out)
	}
	if !strings.Contains(out, `name="id"`) || !strings.Contains(out, `pk="true"`) {
		t.Errorf("missing primary key field: %s", out)
	}
	if !strings.Contains(out, `type="long"`) {
		t.Errorf("expected long XML type name for id column: %s", out)
	}
}

func TestQueryTableSchemaXMLRoundTrip(t *testing.T) {
	data := ExportTableSchemaXML(sampleDescription())

	fields, err := QueryTableSchemaXML(data, "")
	if err != nil {
		t.Fatalf("QueryTableSchemaXML failed: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}
	if fields[0].Name != "id" || !fields[0].PrimaryKey {
		t.Errorf("fields[0] = %+v, want primary-key id", fields[0])
	}

	pkOnly, err := QueryTableSchemaXML(data, "//field[@pk='true']")
	if err != nil {
		t.Fatalf("QueryTableSchemaXML with xpath failed: %v", err)
	}
	if len(pkOnly) != 1 || pkOnly[0].Name != "id" {
		t.Errorf("pkOnly = %+v, want just id", pkOnly)
	}
}

func TestTableName(t *testing.T) {
	data := ExportTableSchemaXML(sampleDescription())
	name, err := TableName(data)
	if err != nil {
		t.Fatalf("TableName failed: %v", err)
	}
	if name != "users" {
		t.Errorf("TableName = %q, want %q", name, "users")
	}
}

func TestQueryTableSchemaXMLInvalidXPath(t *testing.T) {
	data := ExportTableSchemaXML(sampleDescription())
	if _, err := QueryTableSchemaXML(data, "///["); err == nil {
		t.Error("expected error for invalid xpath expression")
	}
}
