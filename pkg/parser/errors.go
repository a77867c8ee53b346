package parser

import (
	lverrors "github.com/logflow/logvar/pkg/errors"
)

var (
	// ErrUnsupportedFormat is returned when the input format is not supported.
	ErrUnsupportedFormat = lverrors.New(lverrors.CodeInvalidFormat, "parser: unsupported format")

	// ErrInvalidXES is returned when XES parsing fails.
	ErrInvalidXES = lverrors.New(lverrors.CodeInvalidFormat, "parser: invalid XES")

	// ErrInvalidTabular is returned when a CSV, JSONL, XLSX or Parquet
	// input cannot be read as an event table.
	ErrInvalidTabular = lverrors.New(lverrors.CodeInvalidFormat, "parser: invalid event table")

	// ErrMissingColumn is returned when a required column is missing.
	ErrMissingColumn = lverrors.New(lverrors.CodeMissingColumn, "parser: required column missing")

	// ErrInvalidTimestamp is returned when timestamp parsing fails.
	ErrInvalidTimestamp = lverrors.New(lverrors.CodeInvalidFormat, "parser: invalid timestamp format")
)
