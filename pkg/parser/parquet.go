package parser

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// parquetBatchSize is the number of rows per record read from a table.
const parquetBatchSize = 8192

// ParquetParser reads event tables stored as Parquet, one event per row.
type ParquetParser struct {
	cfg   Config
	alloc memory.Allocator
}

// NewParquetParser creates a new Parquet parser.
func NewParquetParser(cfg Config) *ParquetParser {
	return &ParquetParser{cfg: cfg.withDefaults(), alloc: memory.DefaultAllocator}
}

// Parse implements the Parser interface. Parquet needs random access;
// readers other than *os.File are buffered in memory.
func (p *ParquetParser) Parse(ctx context.Context, r io.Reader, name string) (*model.Log, error) {
	var src parquet.ReaderAtSeeker
	if f, ok := r.(*os.File); ok {
		src = f
	} else {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "read parquet")
		}
		src = bytes.NewReader(data)
	}

	pqReader, err := file.NewParquetReader(src)
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "open parquet")
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		Parallel:  true,
		BatchSize: parquetBatchSize,
	}, p.alloc)
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "open parquet as arrow")
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read parquet table")
	}
	defer table.Release()

	schema := table.Schema()
	header := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}
	cols, err := resolveColumns(p.cfg, header)
	if err != nil {
		return nil, err
	}

	b := newTraceBuilder(cols.timestampIdx >= 0)
	row := make([]string, len(header))
	line := 0

	tr := array.NewTableReader(table, parquetBatchSize)
	defer tr.Release()

	for tr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "parquet parsing canceled")
		}

		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			line++
			for _, c := range []int{cols.caseIdx, cols.activityIdx, cols.timestampIdx, cols.resourceIdx} {
				if c >= 0 {
					row[c] = cellString(rec.Column(c), i)
				}
			}
			if err := b.addRow(cols, row, line); err != nil {
				return nil, err
			}
		}
	}
	if err := tr.Err(); err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidFormat, "read parquet records")
	}

	return b.build(name), nil
}

// cellString renders one cell of an arrow column.
func cellString(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return ""
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return formatNanos(a.Value(i).ToTime(unit).UnixNano())
	default:
		return arr.ValueStr(i)
	}
}
