package parser

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// DuckDBLoader reads tabular event logs through DuckDB's file readers.
// It works on local paths only and handles CSV (optionally gzipped),
// JSONL and Parquet. DuckDB sniffs delimiters and types itself.
type DuckDBLoader struct {
	cfg     Config
	once    sync.Once
	db      *sql.DB
	openErr error
	threads int
}

// NewDuckDBLoader creates a loader. The in-memory database is opened on
// first use.
func NewDuckDBLoader(cfg Config) *DuckDBLoader {
	return &DuckDBLoader{cfg: cfg.withDefaults(), threads: runtime.NumCPU()}
}

func (d *DuckDBLoader) open() (*sql.DB, error) {
	d.once.Do(func() {
		db, err := sql.Open("duckdb", "")
		if err != nil {
			d.openErr = lverrors.Wrap(err, lverrors.CodeSourceAccess, "open duckdb")
			return
		}
		if _, err := db.Exec(fmt.Sprintf("SET threads=%d", d.threads)); err != nil {
			db.Close()
			d.openErr = lverrors.Wrap(err, lverrors.CodeSourceAccess, "configure duckdb")
			return
		}
		d.db = db
	})
	return d.db, d.openErr
}

// Close releases the database.
func (d *DuckDBLoader) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// LoadFile reads the event table at path into a log. Rows keep file order
// so grouping matches the native parsers.
func (d *DuckDBLoader) LoadFile(ctx context.Context, path string, name string) (*model.Log, error) {
	table, err := tableFunction(path)
	if err != nil {
		return nil, err
	}
	db, err := d.open()
	if err != nil {
		return nil, err
	}

	header, err := d.describe(ctx, db, table)
	if err != nil {
		return nil, err
	}
	cols, err := resolveColumns(d.cfg, header)
	if err != nil {
		return nil, err
	}

	selected := []int{cols.caseIdx, cols.activityIdx, cols.timestampIdx, cols.resourceIdx}
	exprs := make([]string, len(selected))
	for i, c := range selected {
		if c < 0 {
			exprs[i] = "NULL"
			continue
		}
		exprs[i] = fmt.Sprintf("CAST(%s AS VARCHAR)", quoteIdent(header[c]))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), table)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "duckdb query failed").
			WithContext("path", path)
	}
	defer rows.Close()

	compact := columns{caseIdx: 0, activityIdx: 1, timestampIdx: 2, resourceIdx: 3}
	if cols.timestampIdx < 0 {
		compact.timestampIdx = -1
	}
	if cols.resourceIdx < 0 {
		compact.resourceIdx = -1
	}

	b := newTraceBuilder(cols.timestampIdx >= 0)
	vals := make([]sql.NullString, 4)
	row := make([]string, 4)
	for line := 1; rows.Next(); line++ {
		if err := rows.Scan(&vals[0], &vals[1], &vals[2], &vals[3]); err != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "scan duckdb row").
				WithContext("row", line)
		}
		for i := range vals {
			row[i] = vals[i].String
		}
		if err := b.addRow(compact, row, line); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read duckdb rows")
	}

	return b.build(name), nil
}

// describe returns the column names of a table expression.
func (d *DuckDBLoader) describe(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT 0")
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "duckdb schema inference failed")
	}
	defer rows.Close()
	header, err := rows.Columns()
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "duckdb schema inference failed")
	}
	return header, nil
}

// tableFunction picks the DuckDB reader for a path.
func tableFunction(path string) (string, error) {
	lit := "'" + escapePath(path) + "'"
	switch DetectFormat(path) {
	case FormatCSV:
		return "read_csv_auto(" + lit + ", header=true, all_varchar=true)", nil
	case FormatJSONL:
		return "read_json_auto(" + lit + ", format='newline_delimited')", nil
	case FormatParquet:
		return "read_parquet(" + lit + ")", nil
	default:
		return "", lverrors.Wrap(ErrUnsupportedFormat, lverrors.CodeInvalidFormat, "duckdb engine cannot read this format").
			WithContext("path", path)
	}
}

// escapePath escapes a path for a DuckDB string literal.
func escapePath(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
