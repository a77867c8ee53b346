// Package parser turns stored event logs into the in-memory trace model.
// XES, CSV, JSONL, XLSX and Parquet are supported; gzip compression is
// handled by the caller (see pkg/source) and is transparent here.
package parser

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/logflow/logvar/internal/model"
)

// Parser reads one complete event log.
// Implementations must be safe for concurrent use.
type Parser interface {
	// Parse reads r until EOF and returns the log named name.
	// It should respect context cancellation.
	Parse(ctx context.Context, r io.Reader, name string) (*model.Log, error)
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXES
	FormatJSONL
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXES:
		return "xes"
	case FormatJSONL:
		return "jsonl"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv", "tsv":
		return FormatCSV
	case "xes":
		return FormatXES
	case "json", "jsonl", "ndjson":
		return FormatJSONL
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat infers the format from a file name, ignoring a trailing .gz.
// "loan.xes.gz" -> FormatXES.
func DetectFormat(path string) Format {
	return ParseFormat(filepath.Ext(StripCompression(path)))
}

// IsGzip reports whether the path names a gzip-compressed file.
func IsGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// StripCompression removes a trailing .gz from a path.
func StripCompression(path string) string {
	if IsGzip(path) {
		return path[:len(path)-3]
	}
	return path
}

// Config holds parser configuration shared by all formats.
type Config struct {
	// CaseKey names the case column of tabular formats.
	CaseKey string

	// ActivityKey names the activity attribute (XES) or column.
	ActivityKey string

	// TimestampKey names the timestamp attribute or column. Tabular events
	// are ordered by it within a case when present.
	TimestampKey string

	// ResourceKey names the optional resource attribute or column.
	ResourceKey string

	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// Delimiter is the CSV field delimiter (default: comma).
	Delimiter rune
}

// DefaultConfig returns a Config using the XES standard extension keys.
func DefaultConfig() Config {
	return Config{
		CaseKey:      "case:concept:name",
		ActivityKey:  "concept:name",
		TimestampKey: "time:timestamp",
		ResourceKey:  "org:resource",
		BufferSize:   64 * 1024,
		Delimiter:    ',',
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CaseKey == "" {
		c.CaseKey = d.CaseKey
	}
	if c.ActivityKey == "" {
		c.ActivityKey = d.ActivityKey
	}
	if c.TimestampKey == "" {
		c.TimestampKey = d.TimestampKey
	}
	if c.ResourceKey == "" {
		c.ResourceKey = d.ResourceKey
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.Delimiter == 0 {
		c.Delimiter = d.Delimiter
	}
	return c
}

// NewParser creates a parser for the given format.
func NewParser(format Format, cfg Config) (Parser, error) {
	cfg = cfg.withDefaults()
	switch format {
	case FormatCSV:
		return NewCSVParser(cfg), nil
	case FormatXES:
		return NewXESParser(cfg), nil
	case FormatJSONL:
		return NewJSONLParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	case FormatParquet:
		return NewParquetParser(cfg), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
