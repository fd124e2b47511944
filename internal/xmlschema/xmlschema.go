// Package xmlschema exports a table description as XML and queries it
// back via XPath, grounded in the teacher's xmlquery/xpath-based XML
// package. It exists so a table's shape can be inspected or diffed
// offline without a live engine connection.
package xmlschema

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/go-dbfacade/dbfacade/core/database"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// ExportTableSchemaXML renders desc as a <table> element with one <field>
// child per column, carrying the TypeDescriptor's XMLName (spec.md §2's
// type registry) rather than the engine-native type name, so the
// document is portable across engine adapters.
func ExportTableSchemaXML(desc *database.TableDescription) []byte {
	var buf bytes.Buffer
	buf.WriteString("<table name=\"")
	buf.WriteString(xmlEscaper.Replace(desc.Table))
	buf.WriteString("\" database=\"")
	buf.WriteString(xmlEscaper.Replace(desc.Database))
	buf.WriteString("\">\n")

	pk := make(map[string]bool, len(desc.PrimaryKey))
	for _, name := range desc.PrimaryKey {
		pk[name] = true
	}

	for _, col := range desc.Columns {
		xmlType := "string"
		if col.Type != nil && col.Type.XMLName != "" {
			xmlType = col.Type.XMLName
		}
		buf.WriteString("  <field name=\"")
		buf.WriteString(xmlEscaper.Replace(col.Name))
		buf.WriteString("\" type=\"")
		buf.WriteString(xmlEscaper.Replace(xmlType))
		buf.WriteString("\" engineType=\"")
		buf.WriteString(xmlEscaper.Replace(col.EngineType))
		buf.WriteString("\" pk=\"")
		buf.WriteString(strconv.FormatBool(pk[col.Name]))
		buf.WriteString("\"/>\n")
	}

	buf.WriteString("</table>\n")
	return buf.Bytes()
}

// Field is one <field> element recovered from a schema document.
type Field struct {
	Name       string
	Type       string
	EngineType string
	PrimaryKey bool
}

// QueryTableSchemaXML parses an ExportTableSchemaXML document and
// evaluates expr against it, returning every matched <field> element.
// The default expression "//field" recovers the whole column list;
// narrower expressions (e.g. "//field[@pk='true']") recover just the
// primary key.
func QueryTableSchemaXML(data []byte, expr string) ([]Field, error) {
	if expr == "" {
		expr = "//field"
	}
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("xmlschema: invalid xpath %q: %w", expr, err)
	}

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xmlschema: parse: %w", err)
	}

	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("xmlschema: xpath query: %w", err)
	}

	fields := make([]Field, 0, len(nodes))
	for _, n := range nodes {
		pk, _ := strconv.ParseBool(n.SelectAttr("pk"))
		fields = append(fields, Field{
			Name:       n.SelectAttr("name"),
			Type:       n.SelectAttr("type"),
			EngineType: n.SelectAttr("engineType"),
			PrimaryKey: pk,
		})
	}
	return fields, nil
}

// TableName reads the enclosing <table name="..."> attribute out of a
// schema document, for callers that only have the bytes.
func TableName(data []byte) (string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("xmlschema: parse: %w", err)
	}
	node := xmlquery.FindOne(doc, "//table")
	if node == nil {
		return "", fmt.Errorf("xmlschema: no <table> element found")
	}
	return node.SelectAttr("name"), nil
}
