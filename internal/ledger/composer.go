package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ErrNoMappedColumns is returned when no requested field survives the allow-list.
var ErrNoMappedColumns = errors.New("no mapped column exists in the ledger table")

// Field is one logical field/value pair.
type Field struct {
	Name  string
	Value interface{}
}

// Statement is a parameterized ledger statement.
type Statement struct {
	SQL  string
	Args []interface{}
}

// Composer builds statements against mapped ledger tables.
type Composer struct {
	schema string
}

func NewComposer(schema string) *Composer {
	if schema == "" {
		schema = "public"
	}
	return &Composer{schema: schema}
}

func (c *Composer) Schema() string {
	return c.schema
}

// AllowList introspects the mapping's table and keeps the mapped columns that exist.
// Identifiers used by the builders come only from this set.
func (c *Composer) AllowList(ctx context.Context, q sqlx.QueryerContext, mapping *models.ResolvedMapping) (*AllowList, error) {
	if mapping == nil {
		return nil, common.ConfigurationMissing("compose", "mapping unavailable")
	}
	ts, err := DescribeTable(ctx, q, c.schema, mapping.TableName)
	if err != nil {
		return nil, err
	}
	if ts == nil {
		return nil, common.ConfigurationMissing("compose",
			fmt.Sprintf("table %s for %s not found in ledger", mapping.TableName, mapping.MappingType))
	}

	live := make(map[string]models.LedgerColumn, len(ts.Columns))
	for _, col := range ts.Columns {
		live[strings.ToLower(col.Name)] = col
	}

	al := &AllowList{
		schema:  c.schema,
		table:   ts.Name,
		mapping: mapping,
		columns: make(map[string]models.LedgerColumn),
	}
	for logical, physical := range mapping.Columns {
		if strings.TrimSpace(physical) == "" {
			continue
		}
		if col, ok := live[strings.ToLower(strings.TrimSpace(physical))]; ok {
			al.columns[logical] = col
		}
	}
	return al, nil
}

// AllowList is the validated column set of one mapped table.
type AllowList struct {
	schema  string
	table   string
	mapping *models.ResolvedMapping
	columns map[string]models.LedgerColumn // logical -> live column
}

// Column returns the live column for a logical field when it is mapped and exists.
func (a *AllowList) Column(logical string) (models.LedgerColumn, bool) {
	col, ok := a.columns[logical]
	return col, ok
}

// Has reports whether a logical field is usable.
func (a *AllowList) Has(logical string) bool {
	_, ok := a.columns[logical]
	return ok
}

// Fields lists usable logical fields.
func (a *AllowList) Fields() []string {
	out := make([]string, 0, len(a.columns))
	for logical := range a.columns {
		out = append(out, logical)
	}
	return out
}

// Table is the live spelling of the mapped table.
func (a *AllowList) Table() string {
	return a.table
}

func (a *AllowList) qualifiedTable() string {
	return quoteIdent(a.schema) + "." + quoteIdent(a.table)
}

func (a *AllowList) column(logical string) string {
	return quoteIdent(a.columns[logical].Name)
}

// Insert composes an INSERT from the fields that survive the allow-list.
func (a *AllowList) Insert(fields []Field) (*Statement, error) {
	var cols, placeholders []string
	var args []interface{}
	seen := make(map[string]bool)

	for _, f := range fields {
		col, ok := a.columns[f.Name]
		if !ok || seen[strings.ToLower(col.Name)] {
			continue
		}
		seen[strings.ToLower(col.Name)] = true
		args = append(args, BindValue(f.Name, col, f.Value))
		cols = append(cols, quoteIdent(col.Name))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	if len(cols) == 0 {
		return nil, ErrNoMappedColumns
	}

	return &Statement{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			a.qualifiedTable(), strings.Join(cols, ", "), strings.Join(placeholders, ", ")),
		Args: args,
	}, nil
}

// Select composes a read of the requested fields. It returns the logical names
// actually selected, in column order. The mapping filter, if any, is appended.
func (a *AllowList) Select(fields []string, where []Field, limit int) (*Statement, []string, error) {
	var cols, selected []string
	for _, logical := range fields {
		if !a.Has(logical) {
			continue
		}
		cols = append(cols, a.column(logical))
		selected = append(selected, logical)
	}
	if len(cols) == 0 {
		return nil, nil, ErrNoMappedColumns
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), a.qualifiedTable())
	conds, args, err := a.conditions(where, nil)
	if err != nil {
		return nil, nil, err
	}
	if a.mapping.Filter != nil && strings.TrimSpace(*a.mapping.Filter) != "" {
		if err := ValidateFilterClause(*a.mapping.Filter); err != nil {
			return nil, nil, common.ConfigurationMissing("compose", err.Error())
		}
		conds = append(conds, "("+*a.mapping.Filter+")")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return &Statement{SQL: query, Args: args}, selected, nil
}

// Exists composes an existence check for a row whose field equals value.
func (a *AllowList) Exists(f Field) (*Statement, error) {
	conds, args, err := a.conditions([]Field{f}, nil)
	if err != nil {
		return nil, err
	}
	return &Statement{
		SQL:  fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", a.qualifiedTable(), strings.Join(conds, " AND ")),
		Args: args,
	}, nil
}

// MaxInRange composes a MAX over [lo, hi] for a numbering column. Text columns
// are compared on fixed-width strings so lexical and numeric order agree.
func (a *AllowList) MaxInRange(logical string, lo, hi int64) (*Statement, error) {
	col, ok := a.columns[logical]
	if !ok {
		return nil, ErrNoMappedColumns
	}
	ident := quoteIdent(col.Name)
	if kindOf(col.DataType) == kindNumeric {
		return &Statement{
			SQL:  fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s BETWEEN $1 AND $2", ident, a.qualifiedTable(), ident),
			Args: []interface{}{decimal.NewFromInt(lo), decimal.NewFromInt(hi)},
		}, nil
	}
	loText, hiText := strconv.FormatInt(lo, 10), strconv.FormatInt(hi, 10)
	return &Statement{
		SQL: fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s BETWEEN $1 AND $2 AND LENGTH(%s) = $3",
			ident, a.qualifiedTable(), ident, ident),
		Args: []interface{}{loText, hiText, len(hiText)},
	}, nil
}

// Delete composes a DELETE restricted by where. An empty predicate is refused.
func (a *AllowList) Delete(where []Field) (*Statement, error) {
	conds, args, err := a.conditions(where, nil)
	if err != nil {
		return nil, err
	}
	if len(conds) == 0 {
		return nil, ErrNoMappedColumns
	}
	return &Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s", a.qualifiedTable(), strings.Join(conds, " AND ")),
		Args: args,
	}, nil
}

func (a *AllowList) conditions(where []Field, args []interface{}) ([]string, []interface{}, error) {
	var conds []string
	for _, f := range where {
		col, ok := a.columns[f.Name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoMappedColumns, f.Name)
		}
		args = append(args, BindValue(f.Name, col, f.Value))
		conds = append(conds, fmt.Sprintf("%s = $%d", quoteIdent(col.Name), len(args)))
	}
	return conds, args, nil
}

// LinkedDocumentLookup finds the newest downstream document (delivery note or
// invoice) referencing orderRef. The detail table is joined to its header on
// the document number; when the detail table carries no order reference the
// header is queried alone.
func LinkedDocumentLookup(header, detail *AllowList, numberField, dateField string, orderRef string) (*Statement, error) {
	if !header.Has(numberField) {
		return nil, common.ConfigurationMissing("compose", fmt.Sprintf("%s is not mapped on %s", numberField, header.table))
	}
	dateExpr := "NULL"
	if header.Has(dateField) {
		dateExpr = "h." + header.column(dateField)
	}

	switch {
	case detail != nil && detail.Has(FieldOrderNumber) && detail.Has(numberField):
		refCol := detail.columns[FieldOrderNumber]
		query := fmt.Sprintf(
			"SELECT h.%s, %s FROM %s h JOIN %s d ON d.%s = h.%s WHERE d.%s = $1",
			header.column(numberField), dateExpr,
			header.qualifiedTable(), detail.qualifiedTable(),
			detail.column(numberField), header.column(numberField),
			quoteIdent(refCol.Name),
		)
		if header.Has(dateField) {
			query += " ORDER BY " + dateExpr + " DESC NULLS LAST"
		}
		return &Statement{SQL: query + " LIMIT 1", Args: []interface{}{BindValue(FieldOrderNumber, refCol, orderRef)}}, nil
	case header.Has(FieldOrderNumber):
		refCol := header.columns[FieldOrderNumber]
		query := fmt.Sprintf("SELECT h.%s, %s FROM %s h WHERE h.%s = $1",
			header.column(numberField), dateExpr, header.qualifiedTable(), quoteIdent(refCol.Name))
		if header.Has(dateField) {
			query += " ORDER BY " + dateExpr + " DESC NULLS LAST"
		}
		return &Statement{SQL: query + " LIMIT 1", Args: []interface{}{BindValue(FieldOrderNumber, refCol, orderRef)}}, nil
	default:
		return nil, common.ConfigurationMissing("compose", "no order reference column mapped for document lookup")
	}
}

// BindValue applies the parameter typing policy for one field.
func BindValue(logical string, col models.LedgerColumn, v interface{}) interface{} {
	if isNil(v) {
		return typedNull(col)
	}
	if p, ok := v.(*time.Time); ok {
		v = *p
	}
	if p, ok := v.(*string); ok {
		v = *p
	}

	if IsPreservedText(logical) {
		switch val := v.(type) {
		case string:
			return val
		case decimal.Decimal:
			return val.String()
		case fmt.Stringer:
			return val.String()
		default:
			return fmt.Sprint(val)
		}
	}

	switch val := v.(type) {
	case time.Time:
		return val
	case decimal.Decimal:
		return val
	case int:
		return decimal.NewFromInt(int64(val))
	case int32:
		return decimal.NewFromInt32(val)
	case int64:
		return decimal.NewFromInt(val)
	case float64:
		return decimal.NewFromFloat(val)
	case bool:
		return val
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil && strings.TrimSpace(val) != "" {
			return d
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

func typedNull(col models.LedgerColumn) interface{} {
	switch kindOf(col.DataType) {
	case kindNumeric:
		return decimal.NullDecimal{}
	case kindTemporal:
		return sql.NullTime{}
	case kindBoolean:
		return sql.NullBool{}
	default:
		return sql.NullString{}
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
