package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Sheet is one worksheet of an export: ordered columns plus row data.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

// Source produces the sheets for an export run.
type Source interface {
	ExportSheets(ctx context.Context) ([]Sheet, error)
}

// ExcelWriter writes sheets into a workbook.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	SaveToFile(path string) error
	Close() error
}

// Cleaner removes data past its retention window.
type Cleaner interface {
	PurgeOldNotifications(ctx context.Context, before time.Time) (int64, error)
}

// Logger for export operations.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// Filename names a monthly report, e.g. "subwatch_2026-07.xlsx".
func Filename(t time.Time) string {
	return fmt.Sprintf("subwatch_%s.xlsx", t.Format("2006-01"))
}

// PreviousMonthFilename names the report covering the month that just ended.
func PreviousMonthFilename(now time.Time) string {
	return Filename(now.AddDate(0, -1, 0))
}
