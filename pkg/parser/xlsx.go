package parser

import (
	"context"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// XLSXParser parses Excel XLSX files. The first sheet is read; its first
// row is the header.
type XLSXParser struct {
	cfg Config
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{cfg: cfg.withDefaults()}
}

// Parse implements the Parser interface. XLSX needs random access, so
// non-file readers are buffered in memory by excelize.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, name string) (*model.Log, error) {
	var xlFile *excelize.File
	var err error

	if f, ok := r.(*os.File); ok {
		xlFile, err = excelize.OpenFile(f.Name())
	} else {
		xlFile, err = excelize.OpenReader(r)
	}
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "open xlsx")
	}
	defer xlFile.Close()

	sheetList := xlFile.GetSheetList()
	if len(sheetList) == 0 {
		return nil, lverrors.Wrap(ErrInvalidTabular, lverrors.CodeInvalidFormat, "no sheets found in xlsx file")
	}

	rows, err := xlFile.Rows(sheetList[0])
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read xlsx rows")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, lverrors.Wrap(ErrInvalidTabular, lverrors.CodeInvalidFormat, "xlsx sheet is empty").
			WithContext("sheet", sheetList[0])
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read xlsx header")
	}

	cols, err := resolveColumns(p.cfg, header)
	if err != nil {
		return nil, err
	}

	b := newTraceBuilder(cols.timestampIdx >= 0)
	for line := 2; rows.Next(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "xlsx parsing canceled")
		}

		row, err := rows.Columns()
		if err != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read xlsx row").
				WithContext("row", line)
		}
		if isBlankRow(row) {
			continue
		}

		// Dates stored as serial numbers come back as plain numbers.
		if ts := field(row, cols.timestampIdx); ts != "" {
			if nanos, ok := excelSerial(ts); ok {
				row[cols.timestampIdx] = formatNanos(nanos)
			}
		}
		if err := b.addRow(cols, row, line); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read xlsx rows")
	}

	return b.build(name), nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
