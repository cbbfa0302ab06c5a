package database

import (
	"context"
	"fmt"

	"subwatch/shared/audit"
)

// exportTables are the tables included in admin and monthly exports, one
// worksheet each. channel_credentials is deliberately absent: sealed blobs
// have no business in a spreadsheet.
var exportTables = []string{
	"users",
	"subscriptions",
	"user_settings",
	"reminders",
	"notifications",
	"api_keys",
}

// ExportSheets dumps every export table into an audit sheet. Column order
// follows the table definition.
func (db *DB) ExportSheets(ctx context.Context) ([]audit.Sheet, error) {
	sheets := make([]audit.Sheet, 0, len(exportTables))
	for _, table := range exportTables {
		sheet, err := db.exportTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("export table %s: %w", table, err)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

func (db *DB) exportTable(ctx context.Context, table string) (audit.Sheet, error) {
	sheet := audit.Sheet{Name: table}

	// Table names come from the fixed whitelist above, never from input.
	cols, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return sheet, err
	}
	for cols.Next() {
		var cid, notNull, pk int
		var name, typeName string
		var dflt interface{}
		if err := cols.Scan(&cid, &name, &typeName, &notNull, &dflt, &pk); err != nil {
			cols.Close()
			return sheet, err
		}
		sheet.Columns = append(sheet.Columns, name)
	}
	cols.Close()
	if err := cols.Err(); err != nil {
		return sheet, err
	}
	if len(sheet.Columns) == 0 {
		return sheet, fmt.Errorf("table %s has no columns", table)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", table))
	if err != nil {
		return sheet, err
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]interface{}, len(sheet.Columns))
		ptrs := make([]interface{}, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return sheet, err
		}
		for i, v := range values {
			// Byte slices render as garbage in excelize, stringify them.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		sheet.Rows = append(sheet.Rows, values)
	}
	return sheet, rows.Err()
}
