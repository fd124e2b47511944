package database

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-dbfacade/dbfacade/core/dbresult"
	"github.com/go-dbfacade/dbfacade/core/typedesc"
)

// fakeTable is an in-memory stand-in for a real SQLite table, storing
// already-decoded cell values rather than wire bytes.
type fakeTable struct {
	columns []ColumnDescription
	pk      []string
	rows    [][]any
}

func (t *fakeTable) columnIndex(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// fakeEngine implements vtable.Engine entirely in memory, parsing just
// enough of core/sqlbuilder's fixed output grammar to drive core/database
// without a real SQL engine underneath.
type fakeEngine struct {
	mu        sync.Mutex
	tables    map[string]*fakeTable
	databases map[string]bool

	txDepth   int
	begins    int
	commits   int
	rollbacks int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{tables: make(map[string]*fakeTable), databases: map[string]bool{"app": true}}
}

func (e *fakeEngine) key(db, table string) string { return db + "." + table }

func (e *fakeEngine) MakeStringLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

func (e *fakeEngine) MakeBytesLiteral(b []byte) string {
	return "x'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
}

func (e *fakeEngine) Compare(a, b any) int {
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func (e *fakeEngine) AttachDatabase(ctx context.Context, name, connection string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.databases[name] = true
	return nil
}

func (e *fakeEngine) DetachDatabase(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.databases, name)
	return nil
}

func (e *fakeEngine) DatabaseExists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.databases[name], nil
}

func (e *fakeEngine) TableExists(ctx context.Context, db, table string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tables[e.key(db, table)]
	return ok, nil
}

func (e *fakeEngine) NumRecords(ctx context.Context, db, table string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, table)]
	if !ok {
		return 0, fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}
	return int64(len(t.rows)), nil
}

func (e *fakeEngine) Size(ctx context.Context, db, table string) (int64, error) {
	n, err := e.NumRecords(ctx, db, table)
	return n * 64, err
}

func (e *fakeEngine) BeginTx(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.begins++
	e.txDepth++
	return nil
}

func (e *fakeEngine) Commit(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commits++
	e.txDepth--
	return nil
}

func (e *fakeEngine) Rollback(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollbacks++
	e.txDepth--
	return nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) DescribeTable(ctx context.Context, db, table string) (*dbresult.DbResult, error) {
	e.mu.Lock()
	t, ok := e.tables[e.key(db, table)]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}

	names := []string{"name", "type", "pk"}
	types := []*typedesc.Descriptor{typedesc.String, typedesc.String, typedesc.Int64}
	rows := make([][]any, len(t.columns))
	for i, c := range t.columns {
		order := 0
		for j, p := range t.pk {
			if p == c.Name {
				order = j + 1
			}
		}
		engineType := c.EngineType
		if engineType == "" {
			var err error
			engineType, err = typeToEngineTypeName(c.Type)
			if err != nil {
				return nil, err
			}
			if c.VarcharLen > 0 {
				engineType = fmt.Sprintf("VARCHAR(%d)", c.VarcharLen)
			}
		}
		rows[i] = []any{
			typedesc.String.Create(c.Name),
			typedesc.String.Create(engineType),
			typedesc.Int64.Create(int64(order)),
		}
	}
	return dbresult.Finalize(dbresult.Source{}, names, types, rows), nil
}

func literalToValue(lit string, t *typedesc.Descriptor) (any, error) {
	if lit == "NULL" {
		return nil, nil
	}
	if t == nil {
		return nil, fmt.Errorf("fakeengine: nil column type for literal %q", lit)
	}
	switch {
	case t.Kind == typedesc.KindBytes:
		if !strings.HasPrefix(lit, "x'") || !strings.HasSuffix(lit, "'") {
			return nil, fmt.Errorf("fakeengine: malformed blob literal %q", lit)
		}
		b, err := hex.DecodeString(lit[2 : len(lit)-1])
		if err != nil {
			return nil, err
		}
		return t.Create(b), nil
	case t.IsString():
		if !strings.HasPrefix(lit, "'") || !strings.HasSuffix(lit, "'") {
			return nil, fmt.Errorf("fakeengine: malformed string literal %q", lit)
		}
		inner := strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
		return t.Create(inner), nil
	case t.Kind == typedesc.KindBool:
		return t.Create(lit == "true"), nil
	case t.Kind == typedesc.KindFloat32 || t.Kind == typedesc.KindFloat64 || t.Kind == typedesc.KindFloat128:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, err
		}
		return t.Create(f), nil
	default:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, err
		}
		return t.Create(n), nil
	}
}

type fakePredicate struct {
	field string
	like  bool
	lit   string
}

func splitPredicates(clause string) (preds []fakePredicate, isOr bool) {
	var parts []string
	if strings.Contains(clause, " OR ") {
		parts = strings.Split(clause, " OR ")
		isOr = true
	} else {
		parts = strings.Split(clause, " AND ")
	}
	for _, p := range parts {
		if idx := strings.Index(p, " LIKE "); idx >= 0 {
			preds = append(preds, fakePredicate{field: p[:idx], like: true, lit: p[idx+len(" LIKE "):]})
			continue
		}
		idx := strings.Index(p, "=")
		preds = append(preds, fakePredicate{field: p[:idx], lit: p[idx+1:]})
	}
	return preds, isOr
}

func likeMatch(pattern, value string) bool {
	inner := pattern
	if strings.HasPrefix(inner, "'") && strings.HasSuffix(inner, "'") {
		inner = inner[1 : len(inner)-1]
	}
	prefix := strings.HasPrefix(inner, "%")
	suffix := strings.HasSuffix(inner, "%")
	core := strings.Trim(inner, "%")
	switch {
	case prefix && suffix:
		return strings.Contains(value, core)
	case prefix:
		return strings.HasSuffix(value, core)
	case suffix:
		return strings.HasPrefix(value, core)
	default:
		return value == core
	}
}

func (t *fakeTable) matches(row []any, preds []fakePredicate, isOr bool) (bool, error) {
	for _, p := range preds {
		idx := t.columnIndex(p.field)
		if idx < 0 {
			return false, fmt.Errorf("fakeengine: no such column %q", p.field)
		}
		col := t.columns[idx]
		ok := false
		if p.like {
			ok = likeMatch(p.lit, col.Type.ToString(row[idx]))
		} else {
			lit, err := literalToValue(p.lit, col.Type)
			if err != nil {
				return false, err
			}
			ok = col.Type.Compare(row[idx], lit) == 0
		}
		if isOr {
			if ok {
				return true, nil
			}
			continue
		}
		if !ok {
			return false, nil
		}
	}
	return !isOr || len(preds) == 0, nil
}

var (
	selectRe   = regexp.MustCompile(`^SELECT (.+) FROM (\S+)(?: WHERE (.+?))?(?: ORDER BY (\S+))?(?: LIMIT (\d+))?$`)
	insertRe   = regexp.MustCompile(`^INSERT INTO (\S+) (?:\(([^)]*)\) )?VALUES \((.*)\)$`)
	updateRe   = regexp.MustCompile(`^UPDATE (\S+) SET (.+) WHERE (.+)$`)
	deleteRe   = regexp.MustCompile(`^DELETE FROM (\S+)(?: WHERE (.+))?$`)
	createRe   = regexp.MustCompile(`^CREATE TABLE (\S+) \((.+)\)$`)
	renameRe   = regexp.MustCompile(`^ALTER TABLE (\S+) RENAME TO (\S+)$`)
	renameColR = regexp.MustCompile(`^ALTER TABLE (\S+) RENAME COLUMN (\S+) TO (\S+)$`)
	dropColRe  = regexp.MustCompile(`^ALTER TABLE (\S+) DROP COLUMN (\S+)$`)
	dropRe     = regexp.MustCompile(`^DROP TABLE (\S+)$`)
	indexRe    = regexp.MustCompile(`^CREATE INDEX (\S+) ON (\S+) \((.+)\)$`)
)

func splitQualified(name string) (db, table string) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "", parts[0]
	}
	return parts[0], parts[1]
}

func (e *fakeEngine) QueryString(ctx context.Context, sqlText string) (*dbresult.DbResult, error) {
	m := selectRe.FindStringSubmatch(sqlText)
	if m == nil {
		return nil, fmt.Errorf("fakeengine: unsupported query %q", sqlText)
	}
	cols, qualified, whereClause, orderBy, limitStr := m[1], m[2], m[3], m[4], m[5]
	db, table := splitQualified(qualified)

	e.mu.Lock()
	t, ok := e.tables[e.key(db, table)]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}

	selected := t.columns
	if cols != "*" {
		names := strings.Split(cols, ",")
		selected = make([]ColumnDescription, len(names))
		for i, n := range names {
			idx := t.columnIndex(strings.TrimSpace(n))
			if idx < 0 {
				return nil, fmt.Errorf("fakeengine: no such column %q", n)
			}
			selected[i] = t.columns[idx]
		}
	}

	var preds []fakePredicate
	var isOr bool
	if whereClause != "" {
		preds, isOr = splitPredicates(whereClause)
	}

	var matched [][]any
	for _, row := range t.rows {
		ok, err := t.matches(row, preds, isOr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out := make([]any, len(selected))
		for i, c := range selected {
			out[i] = row[t.columnIndex(c.Name)]
		}
		matched = append(matched, out)
	}

	if orderBy != "" {
		idx := 0
		for i, c := range selected {
			if c.Name == orderBy {
				idx = i
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return selected[idx].Type.Compare(matched[i][idx], matched[j][idx]) < 0
		})
	}
	if limitStr != "" {
		n, _ := strconv.Atoi(limitStr)
		if n < len(matched) {
			matched = matched[:n]
		}
	}

	names := make([]string, len(selected))
	types := make([]*typedesc.Descriptor, len(selected))
	for i, c := range selected {
		names[i] = c.Name
		types[i] = c.Type
	}
	return dbresult.Finalize(dbresult.Source{}, names, types, matched), nil
}

func (e *fakeEngine) QueryBytes(ctx context.Context, sqlText []byte) (*dbresult.DbResult, error) {
	return e.QueryString(ctx, string(sqlText))
}

func (e *fakeEngine) Exec(ctx context.Context, sqlText string) error {
	switch {
	case insertRe.MatchString(sqlText):
		return e.execInsert(sqlText)
	case updateRe.MatchString(sqlText):
		return e.execUpdate(sqlText)
	case deleteRe.MatchString(sqlText):
		return e.execDelete(sqlText)
	case createRe.MatchString(sqlText):
		return e.execCreate(sqlText)
	case renameColR.MatchString(sqlText):
		return e.execRenameColumn(sqlText)
	case renameRe.MatchString(sqlText):
		return e.execRename(sqlText)
	case dropColRe.MatchString(sqlText):
		return e.execDropColumn(sqlText)
	case dropRe.MatchString(sqlText):
		return e.execDrop(sqlText)
	case indexRe.MatchString(sqlText):
		return nil // indexes are not modeled; existence tracked via TableExists elsewhere
	default:
		return fmt.Errorf("fakeengine: unsupported statement %q", sqlText)
	}
}

func (e *fakeEngine) execInsert(sqlText string) error {
	m := insertRe.FindStringSubmatch(sqlText)
	qualified, colList, valueList := m[1], m[2], m[3]
	db, table := splitQualified(qualified)

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, table)]
	if !ok {
		return fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}

	values := splitTopLevel(valueList, ',')
	row := make([]any, len(t.columns))
	if colList == "" {
		if len(values) != len(t.columns) {
			return fmt.Errorf("fakeengine: %d values for %d columns", len(values), len(t.columns))
		}
		for i, v := range values {
			val, err := literalToValue(strings.TrimSpace(v), t.columns[i].Type)
			if err != nil {
				return err
			}
			row[i] = val
		}
	} else {
		names := strings.Split(colList, ",")
		for i, n := range names {
			idx := t.columnIndex(n)
			if idx < 0 {
				return fmt.Errorf("fakeengine: no such column %q", n)
			}
			val, err := literalToValue(strings.TrimSpace(values[i]), t.columns[idx].Type)
			if err != nil {
				return err
			}
			row[idx] = val
		}
	}
	t.rows = append(t.rows, row)
	return nil
}

func (e *fakeEngine) execUpdate(sqlText string) error {
	m := updateRe.FindStringSubmatch(sqlText)
	qualified, setClause, whereClause := m[1], m[2], m[3]
	db, table := splitQualified(qualified)

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, table)]
	if !ok {
		return fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}

	preds, isOr := splitPredicates(whereClause)
	sets := splitTopLevel(setClause, ',')
	for _, row := range t.rows {
		matched, err := t.matches(row, preds, isOr)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		for _, s := range sets {
			idx := strings.Index(s, "=")
			name, lit := s[:idx], s[idx+1:]
			colIdx := t.columnIndex(name)
			if colIdx < 0 {
				return fmt.Errorf("fakeengine: no such column %q", name)
			}
			val, err := literalToValue(lit, t.columns[colIdx].Type)
			if err != nil {
				return err
			}
			row[colIdx] = val
		}
	}
	return nil
}

func (e *fakeEngine) execDelete(sqlText string) error {
	m := deleteRe.FindStringSubmatch(sqlText)
	qualified, whereClause := m[1], m[2]
	db, table := splitQualified(qualified)

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, table)]
	if !ok {
		return fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}

	var preds []fakePredicate
	var isOr bool
	if whereClause != "" {
		preds, isOr = splitPredicates(whereClause)
	}
	kept := t.rows[:0]
	for _, row := range t.rows {
		matched, err := t.matches(row, preds, isOr)
		if err != nil {
			return err
		}
		if !matched {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	return nil
}

func (e *fakeEngine) execCreate(sqlText string) error {
	m := createRe.FindStringSubmatch(sqlText)
	qualified, body := m[1], m[2]
	db, table := splitQualified(qualified)

	parts := splitTopLevel(body, ',')
	var pk []string
	var columns []ColumnDescription
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "PRIMARY KEY(") {
			inner := strings.TrimSuffix(strings.TrimPrefix(p, "PRIMARY KEY("), ")")
			pk = strings.Split(inner, ",")
			continue
		}
		fields := strings.SplitN(p, " ", 2)
		name, typeText := fields[0], fields[1]
		varcharLen := 0
		if strings.HasPrefix(typeText, "VARCHAR(") {
			varcharLen = parseVarcharLen(typeText)
		}
		columns = append(columns, ColumnDescription{Name: name, Type: sqlTypeNameToDescriptor(typeText), EngineType: typeText, VarcharLen: varcharLen})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[e.key(db, table)] = &fakeTable{columns: columns, pk: pk}
	return nil
}

func (e *fakeEngine) execRename(sqlText string) error {
	m := renameRe.FindStringSubmatch(sqlText)
	qualified, newName := m[1], m[2]
	db, oldTable := splitQualified(qualified)

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, oldTable)]
	if !ok {
		return fmt.Errorf("fakeengine: no such table %s.%s", db, oldTable)
	}
	delete(e.tables, e.key(db, oldTable))
	e.tables[e.key(db, newName)] = t
	return nil
}

func (e *fakeEngine) execRenameColumn(sqlText string) error {
	m := renameColR.FindStringSubmatch(sqlText)
	qualified, oldName, newName := m[1], m[2], m[3]
	db, table := splitQualified(qualified)

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, table)]
	if !ok {
		return fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}
	idx := t.columnIndex(oldName)
	if idx < 0 {
		return fmt.Errorf("fakeengine: no such column %q", oldName)
	}
	t.columns[idx].Name = newName
	for i, p := range t.pk {
		if p == oldName {
			t.pk[i] = newName
		}
	}
	return nil
}

func (e *fakeEngine) execDropColumn(sqlText string) error {
	m := dropColRe.FindStringSubmatch(sqlText)
	qualified, col := m[1], m[2]
	db, table := splitQualified(qualified)

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[e.key(db, table)]
	if !ok {
		return fmt.Errorf("fakeengine: no such table %s.%s", db, table)
	}
	idx := t.columnIndex(col)
	if idx < 0 {
		return fmt.Errorf("fakeengine: no such column %q", col)
	}
	t.columns = append(t.columns[:idx], t.columns[idx+1:]...)
	for _, row := range t.rows {
		copy(row[idx:], row[idx+1:])
	}
	for i := range t.rows {
		t.rows[i] = t.rows[i][:len(t.columns)]
	}
	return nil
}

func (e *fakeEngine) execDrop(sqlText string) error {
	m := dropRe.FindStringSubmatch(sqlText)
	db, table := splitQualified(m[1])

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, e.key(db, table))
	return nil
}

// splitTopLevel splits s on sep, ignoring separators inside single quotes
// or parentheses (so a PRIMARY KEY(a,b) clause or a VARCHAR(n) type stays
// intact).
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if !inQuote {
			switch c {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		if c == sep && !inQuote && depth == 0 {
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, strings.TrimSpace(cur.String()))
	return parts
}
