package ledger

import (
	"context"
	"fmt"
	"strings"

	"orderbridge/internal/models"

	"github.com/jmoiron/sqlx"
)

const listTablesQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`

const listColumnsQuery = `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND LOWER(table_name) = LOWER($2)
		ORDER BY table_name = $2 DESC, table_name, ordinal_position
	`

// TableSchema is the live shape of one ledger table.
type TableSchema struct {
	Name    string
	Columns []models.LedgerColumn
}

// ListTables returns the tables and views visible in schema.
func ListTables(ctx context.Context, q sqlx.QueryerContext, schema string) ([]string, error) {
	rows, err := q.QueryxContext(ctx, listTablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan ledger table: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DescribeTable introspects one table. The table name is matched case-insensitively
// and the returned schema carries the spelling the store uses. When several tables
// differ only in case, an exact match wins, otherwise the first in name order.
func DescribeTable(ctx context.Context, q sqlx.QueryerContext, schema, table string) (*TableSchema, error) {
	rows, err := q.QueryxContext(ctx, listColumnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe ledger table %s: %w", table, err)
	}
	defer rows.Close()

	ts := &TableSchema{}
	for rows.Next() {
		var tableName, column, dataType, nullable string
		if err := rows.Scan(&tableName, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan ledger column: %w", err)
		}
		if ts.Name == "" {
			ts.Name = tableName
		}
		if tableName != ts.Name {
			continue
		}
		ts.Columns = append(ts.Columns, models.LedgerColumn{
			Name:       column,
			DataType:   dataType,
			IsNullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ts.Columns) == 0 {
		return nil, nil
	}
	return ts, nil
}

// columnKind buckets information_schema data types for parameter binding.
type columnKind int

const (
	kindText columnKind = iota
	kindNumeric
	kindTemporal
	kindBoolean
)

func kindOf(dataType string) columnKind {
	dt := strings.ToLower(dataType)
	switch {
	case strings.Contains(dt, "int"), strings.Contains(dt, "numeric"), strings.Contains(dt, "decimal"),
		strings.Contains(dt, "real"), strings.Contains(dt, "double"), strings.Contains(dt, "money"),
		strings.Contains(dt, "float"):
		return kindNumeric
	case strings.Contains(dt, "date"), strings.Contains(dt, "time"):
		return kindTemporal
	case strings.Contains(dt, "bool"), dt == "bit":
		return kindBoolean
	default:
		return kindText
	}
}
