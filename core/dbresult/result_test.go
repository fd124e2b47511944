package dbresult

import (
	"testing"

	"github.com/go-dbfacade/dbfacade/core/bytesbuf"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
)

func usersResult() *DbResult {
	fieldTypes := []*typedesc.Descriptor{typedesc.Int64, typedesc.String}
	rows := [][]any{
		{typedesc.Int64.Create(int64(1)), typedesc.String.Create("alice")},
		{typedesc.Int64.Create(int64(2)), typedesc.String.Create("bob")},
	}
	return Finalize(Source{Database: "app", Table: "users", PrimaryKey: []string{"id"}},
		[]string{"id", "name"}, fieldTypes, rows)
}

func TestGetByIndexAndName(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	v, err := r.GetByIndex(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typedesc.Int64.ToString(v) != "1" {
		t.Errorf("expected id 1, got %s", typedesc.Int64.ToString(v))
	}

	v2, err := r.GetByName(1, "name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typedesc.String.ToString(v2) != "bob" {
		t.Errorf("expected bob, got %s", typedesc.String.ToString(v2))
	}
}

func TestGetByIndexOutOfRange(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	if _, err := r.GetByIndex(10, 0); err == nil {
		t.Error("expected error for out-of-range row")
	}
	if _, err := r.GetByIndex(0, 10); err == nil {
		t.Error("expected error for out-of-range field")
	}
}

func TestNullStringCellReturnsSentinel(t *testing.T) {
	fieldTypes := []*typedesc.Descriptor{typedesc.String}
	rows := [][]any{{nil}}
	r := Finalize(Source{}, []string{"name"}, fieldTypes, rows)
	defer r.Destroy()

	v, err := r.GetByIndex(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := v.(*bytesbuf.Bytes)
	if !ok {
		t.Fatalf("expected *bytesbuf.Bytes sentinel, got %T", v)
	}
	if b.Length() != 0 {
		t.Errorf("expected empty sentinel, got length %d", b.Length())
	}
}

func TestSetByIndexReplacesAndOwns(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	if err := r.SetByName(0, "name", typedesc.String.Create("alicia")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := r.GetByName(0, "name")
	if typedesc.String.ToString(v) != "alicia" {
		t.Errorf("expected alicia, got %s", typedesc.String.ToString(v))
	}
}

func TestResultIndexByLookup(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	idx := r.ResultIndexByLookup(map[string]string{"name": "bob"})
	if idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}

	if idx := r.ResultIndexByLookup(map[string]string{"name": "nobody"}); idx != -1 {
		t.Errorf("expected -1, got %d", idx)
	}
}

func TestFieldIndexByName(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	if r.FieldIndexByName("name") != 1 {
		t.Errorf("expected index 1 for name")
	}
	if r.FieldIndexByName("missing") != -1 {
		t.Errorf("expected -1 for missing field")
	}
}

// TestDbResultOwnership verifies property #4: freeing a copy does not
// affect the original, and a result compares equal to its own copy.
func TestDbResultOwnership(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	cp := r.Copy()
	if !r.Compare(cp) {
		t.Error("expected result to equal its own copy")
	}
	cp.Destroy()

	v, err := r.GetByName(0, "name")
	if err != nil {
		t.Fatalf("original result should still be usable: %v", err)
	}
	if typedesc.String.ToString(v) != "alice" {
		t.Errorf("expected original to survive copy's destruction, got %s", typedesc.String.ToString(v))
	}
}

// TestGetRange verifies property #5: a valid [s,e) range has e-s rows and
// corresponds cell-for-cell with the source.
func TestGetRange(t *testing.T) {
	fieldTypes := []*typedesc.Descriptor{typedesc.Int64}
	rows := make([][]any, 10)
	for i := range rows {
		rows[i] = []any{typedesc.Int64.Create(int64(i))}
	}
	r := Finalize(Source{}, []string{"id"}, fieldTypes, rows)
	defer r.Destroy()

	s, err := r.GetRange(3, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Destroy()

	if s.NumResults() != 4 {
		t.Fatalf("expected 4 rows, got %d", s.NumResults())
	}
	a, _ := s.GetByIndex(0, 0)
	b, _ := r.GetByIndex(3, 0)
	if typedesc.Int64.Compare(a, b) != 0 {
		t.Error("expected range row 0 to match source row 3")
	}
}

func TestGetRangeInvalid(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	if _, err := r.GetRange(-1, 1); err == nil {
		t.Error("expected error for negative start")
	}
	if _, err := r.GetRange(0, 100); err == nil {
		t.Error("expected error for end beyond row count")
	}
	if _, err := r.GetRange(5, 1); err == nil {
		t.Error("expected error when start > end")
	}
}

func TestCompareDetectsDifference(t *testing.T) {
	r := usersResult()
	defer r.Destroy()
	cp := r.Copy()
	defer cp.Destroy()

	cp.SetByName(0, "name", typedesc.String.Create("changed"))
	if r.Compare(cp) {
		t.Error("expected results to differ after mutating the copy")
	}
}

func TestToCSV(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	csv := r.ToCSV()
	want := "\"id\",\"name\"\r\n1,\"alice\"\r\n2,\"bob\"\r\n"
	if csv != want {
		t.Errorf("ToCSV() = %q, want %q", csv, want)
	}
}

func TestToCSVQuoteEscaping(t *testing.T) {
	fieldTypes := []*typedesc.Descriptor{typedesc.String}
	rows := [][]any{{typedesc.String.Create(`say "hi"`)}}
	r := Finalize(Source{}, []string{"msg"}, fieldTypes, rows)
	defer r.Destroy()

	csv := r.ToCSV()
	want := "\"msg\"\r\n\"say \"\"hi\"\"\"\r\n"
	if csv != want {
		t.Errorf("ToCSV() = %q, want %q", csv, want)
	}
}

func TestToBytesCustomDelimiters(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	out := string(r.ToBytes("\n", "|"))
	want := "id|name\n1|alice\n2|bob\n"
	if out != want {
		t.Errorf("ToBytes() = %q, want %q", out, want)
	}
}

func TestResultToBytesTableRoundTrip(t *testing.T) {
	r := usersResult()
	defer r.Destroy()

	table := r.ResultToBytesTable()
	if len(table) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(table))
	}

	rt, err := BytesTableToResult(Source{Database: "app", Table: "users"}, table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Destroy()

	if rt.NumResults() != 2 || rt.NumFields() != 2 {
		t.Fatalf("unexpected shape: %d rows, %d fields", rt.NumResults(), rt.NumFields())
	}
	v, _ := rt.GetByName(1, "name")
	if typedesc.Bytes.ToString(v) != "bob" {
		t.Errorf("expected bob, got %s", typedesc.Bytes.ToString(v))
	}
}

func TestShouldBuildMapCostModel(t *testing.T) {
	if shouldBuildMap(1, 2) {
		t.Error("small result should not justify building the map")
	}
	if !shouldBuildMap(100, 20) {
		t.Error("large wide result should justify building the map")
	}
}

func TestNameIndexUsedWhenBuilt(t *testing.T) {
	fieldTypes := make([]*typedesc.Descriptor, 20)
	names := make([]string, 20)
	for i := range fieldTypes {
		fieldTypes[i] = typedesc.Int64
		names[i] = "f"
		if i > 0 {
			names[i] = names[i-1] + "x"
		}
	}
	rows := make([][]any, 100)
	for i := range rows {
		row := make([]any, 20)
		for j := range row {
			row[j] = typedesc.Int64.Create(int64(i))
		}
		rows[i] = row
	}
	r := Finalize(Source{}, names, fieldTypes, rows)
	defer r.Destroy()

	if r.nameIndex == nil {
		t.Fatal("expected name index to be built for a large wide result")
	}
	if r.FieldIndexByName(names[5]) != 5 {
		t.Errorf("expected index 5, got %d", r.FieldIndexByName(names[5]))
	}
}
