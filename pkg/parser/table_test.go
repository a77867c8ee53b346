package parser

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

const sampleCSV = "\xEF\xBB\xBFcase:concept:name,concept:name,time:timestamp,org:resource\n" +
	"2,X,2024-01-01T09:00:00Z,sue\n" +
	"1,B,2024-01-01T10:05:00Z,bob\n" +
	"1,A,2024-01-01T10:00:00Z,ann\n" +
	"\n" +
	"2,\"Y, quoted\",2024-01-01T09:30:00Z,\n" +
	"1,C,2024-01-01T10:05:00Z,bob\n"

// wantSample is sampleCSV grouped by case in order of first appearance,
// events ordered by time with ties kept in file order.
var wantSample = [][]string{
	{"X", "Y, quoted"},
	{"A", "B", "C"},
}

func requireTraces(t *testing.T, log *model.Log, want [][]string) {
	t.Helper()
	require.Len(t, log.Traces, len(want))
	for i, w := range want {
		require.Equal(t, w, log.Traces[i].Activities(), "trace %d", i)
	}
}

func TestCSVParser_Parse(t *testing.T) {
	log, err := NewCSVParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(sampleCSV), "csv")
	require.NoError(t, err)

	requireTraces(t, log, wantSample)
	require.Equal(t, "2", log.Traces[0].CaseID)
	require.Equal(t, "1", log.Traces[1].CaseID)
	require.Equal(t, "ann", log.Traces[1].Events[0].Resource)
}

func TestCSVParser_WithoutTimestampKeepsFileOrder(t *testing.T) {
	in := "case,activity\n1,B\n1,A\n2,C\n"
	cfg := DefaultConfig()
	cfg.CaseKey = "case"
	cfg.ActivityKey = "activity"

	log, err := NewCSVParser(cfg).Parse(context.Background(), strings.NewReader(in), "plain")
	require.NoError(t, err)
	requireTraces(t, log, [][]string{{"B", "A"}, {"C"}})
}

func TestCSVParser_MissingTimestampsStayInPlace(t *testing.T) {
	in := "case,activity,time\n" +
		"1,A,2024-01-01T10:00:00Z\n" +
		"1,B,\n" +
		"1,C,2024-01-01T11:00:00Z\n" +
		"2,X,2024-01-01T11:00:00Z\n" +
		"2,Y,\n" +
		"2,Z,2024-01-01T09:00:00Z\n"
	cfg := DefaultConfig()
	cfg.CaseKey = "case"
	cfg.ActivityKey = "activity"
	cfg.TimestampKey = "time"

	log, err := NewCSVParser(cfg).Parse(context.Background(), strings.NewReader(in), "gaps")
	require.NoError(t, err)
	requireTraces(t, log, [][]string{{"A", "B", "C"}, {"Z", "Y", "X"}})
}

func TestCSVParser_Semicolon(t *testing.T) {
	in := "case:concept:name;concept:name\n1;A\n1;B\n"
	cfg := DefaultConfig()
	cfg.Delimiter = ';'

	log, err := NewCSVParser(cfg).Parse(context.Background(), strings.NewReader(in), "semi")
	require.NoError(t, err)
	requireTraces(t, log, [][]string{{"A", "B"}})
}

func TestCSVParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		code lverrors.Code
	}{
		{"empty", "", lverrors.CodeInvalidFormat},
		{"missing activity column", "case:concept:name,other\n1,A\n", lverrors.CodeMissingColumn},
		{"missing case column", "concept:name\nA\n", lverrors.CodeMissingColumn},
		{"row without case", "case:concept:name,concept:name\n,A\n", lverrors.CodeInvalidFormat},
		{"row without activity", "case:concept:name,concept:name\n1,A\n1,\n2,A\n", lverrors.CodeInvalidFormat},
		{"bad timestamp", "case:concept:name,concept:name,time:timestamp\n1,A,yesterday\n", lverrors.CodeInvalidFormat},
		{"bad quoting", "case:concept:name,concept:name\n1,\"A\n", lverrors.CodeInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(tt.in), "bad")
			if got := lverrors.GetCode(err); got != tt.code {
				t.Errorf("code = %s, want %s (err = %v)", got, tt.code, err)
			}
		})
	}
}

func TestJSONLParser_Parse(t *testing.T) {
	in := `{"case:concept:name": "2", "concept:name": "X", "time:timestamp": "2024-01-01T09:00:00Z", "org:resource": "sue"}
{"case:concept:name": 1, "concept:name": "B", "time:timestamp": "2024-01-01T10:05:00Z"}

{"case:concept:name": 1, "concept:name": "A", "time:timestamp": "2024-01-01T10:00:00Z", "extra": {"k": [1,2]}}
{"case:concept:name": "2", "concept:name": "Y, quoted", "time:timestamp": "2024-01-01T09:30:00Z"}
{"case:concept:name": 1, "concept:name": "C", "time:timestamp": "2024-01-01T10:05:00Z"}`

	log, err := NewJSONLParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(in), "jsonl")
	require.NoError(t, err)
	requireTraces(t, log, wantSample)
	require.Equal(t, "1", log.Traces[1].CaseID, "numeric case ids are rendered as integers")
}

func TestJSONLParser_Errors(t *testing.T) {
	_, err := NewJSONLParser(DefaultConfig()).Parse(context.Background(), strings.NewReader("{not json}\n"), "bad")
	require.True(t, lverrors.IsCode(err, lverrors.CodeInvalidFormat), "error = %v", err)

	_, err = NewJSONLParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(`{"case:concept:name": "1"}`), "bad")
	require.True(t, lverrors.IsCode(err, lverrors.CodeMissingColumn), "error = %v", err)

	_, err = NewJSONLParser(DefaultConfig()).Parse(context.Background(), strings.NewReader(`{"case:concept:name": "1", "concept:name": ""}`), "bad")
	require.True(t, lverrors.IsCode(err, lverrors.CodeInvalidFormat), "error = %v", err)
}

func sampleRows() [][]interface{} {
	return [][]interface{}{
		{"case:concept:name", "concept:name", "time:timestamp", "org:resource"},
		{"2", "X", "2024-01-01T09:00:00Z", "sue"},
		{"1", "B", "2024-01-01T10:05:00Z", "bob"},
		{"1", "A", "2024-01-01T10:00:00Z", "ann"},
		{"2", "Y, quoted", "2024-01-01T09:30:00Z", ""},
		{"1", "C", "2024-01-01T10:05:00Z", "bob"},
	}
}

func TestXLSXParser_Parse(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range sampleRows() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	log, err := NewXLSXParser(DefaultConfig()).Parse(context.Background(), buf, "xlsx")
	require.NoError(t, err)
	requireTraces(t, log, wantSample)
}

func TestXLSXParser_MissingColumn(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"case:concept:name", "other"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = NewXLSXParser(DefaultConfig()).Parse(context.Background(), buf, "xlsx")
	require.True(t, errors.Is(err, ErrMissingColumn), "error = %v", err)
}

func writeSampleParquet(t *testing.T) []byte {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "case:concept:name", Type: arrow.BinaryTypes.String},
		{Name: "concept:name", Type: arrow.BinaryTypes.String},
		{Name: "time:timestamp", Type: arrow.BinaryTypes.String},
		{Name: "org:resource", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for _, row := range sampleRows()[1:] {
		for i, v := range row {
			b.Field(i).(*array.StringBuilder).Append(v.(string))
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, pqarrow.WriteTable(tbl, &buf, 1024, nil, pqarrow.DefaultWriterProps()))
	return buf.Bytes()
}

func TestParquetParser_Parse(t *testing.T) {
	data := writeSampleParquet(t)

	log, err := NewParquetParser(DefaultConfig()).Parse(context.Background(), bytes.NewReader(data), "parquet")
	require.NoError(t, err)
	requireTraces(t, log, wantSample)
}

func TestDuckDBLoader_LoadFile(t *testing.T) {
	if testing.Short() {
		t.Skip("duckdb loader in -short mode")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimPrefix(sampleCSV, "\xEF\xBB\xBF")), 0o644))

	loader := NewDuckDBLoader(DefaultConfig())
	defer loader.Close()

	log, err := loader.LoadFile(context.Background(), path, "duck")
	require.NoError(t, err)
	requireTraces(t, log, wantSample)

	_, err = loader.LoadFile(context.Background(), filepath.Join(dir, "events.xes"), "duck")
	require.True(t, errors.Is(err, ErrUnsupportedFormat), "error = %v", err)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"loan.xes", FormatXES},
		{"loan.XES.gz", FormatXES},
		{"events.csv", FormatCSV},
		{"events.tsv", FormatCSV},
		{"events.jsonl.gz", FormatJSONL},
		{"events.parquet", FormatParquet},
		{"sheet.xlsx", FormatXLSX},
		{"notes.txt", FormatUnknown},
		{"archive.gz", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestNewParser(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatXES, FormatJSONL, FormatXLSX, FormatParquet} {
		p, err := NewParser(f, Config{})
		require.NoError(t, err, f.String())
		require.NotNil(t, p)
	}
	_, err := NewParser(FormatUnknown, Config{})
	require.True(t, errors.Is(err, ErrUnsupportedFormat))
}
