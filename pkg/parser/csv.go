package parser

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// CSVParser reads event tables with a header row, one event per row.
type CSVParser struct {
	cfg Config
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{cfg: cfg.withDefaults()}
}

// Parse implements the Parser interface.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, name string) (*model.Log, error) {
	reader := csv.NewReader(bufio.NewReaderSize(r, p.cfg.BufferSize))
	reader.Comma = p.cfg.Delimiter
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, lverrors.Wrap(ErrInvalidTabular, lverrors.CodeInvalidFormat, "csv has no header")
		}
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read csv header")
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	cols, err := resolveColumns(p.cfg, header)
	if err != nil {
		return nil, err
	}

	b := newTraceBuilder(cols.timestampIdx >= 0)
	for line := 2; ; line++ {
		if line&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "csv parsing canceled")
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read csv row").
				WithContext("line", line)
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		if err := b.addRow(cols, row, line); err != nil {
			return nil, err
		}
	}

	return b.build(name), nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
