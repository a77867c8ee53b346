package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// JSONLParser reads newline-delimited JSON, one event object per line.
type JSONLParser struct {
	cfg Config
}

// NewJSONLParser creates a new JSONL parser.
func NewJSONLParser(cfg Config) *JSONLParser {
	return &JSONLParser{cfg: cfg.withDefaults()}
}

// Parse implements the Parser interface. Blank lines are skipped; any other
// line must be a JSON object.
func (p *JSONLParser) Parse(ctx context.Context, r io.Reader, name string) (*model.Log, error) {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)
	cols := columns{caseIdx: 0, activityIdx: 1, timestampIdx: 2, resourceIdx: 3}
	keys := []string{p.cfg.CaseKey, p.cfg.ActivityKey, p.cfg.TimestampKey, p.cfg.ResourceKey}

	b := newTraceBuilder(true)
	row := make([]string, len(keys))

	for line := 1; ; line++ {
		if line&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "jsonl parsing canceled")
			}
		}

		raw, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "read jsonl")
		}

		if raw = bytes.TrimSpace(raw); len(raw) > 0 {
			var obj map[string]any
			if jerr := json.Unmarshal(raw, &obj); jerr != nil {
				return nil, lverrors.Wrap(jerr, lverrors.CodeInvalidFormat, "invalid json object").
					WithContext("line", line)
			}
			if _, ok := obj[p.cfg.ActivityKey]; !ok {
				return nil, lverrors.MissingColumn(p.cfg.ActivityKey, nil).WithContext("line", line)
			}
			for i, k := range keys {
				row[i] = scalarString(obj[k])
			}
			if aerr := b.addRow(cols, row, line); aerr != nil {
				return nil, aerr
			}
		}

		if err == io.EOF {
			break
		}
	}

	return b.build(name), nil
}

// scalarString renders a decoded JSON scalar. Objects and arrays are
// rendered as compact JSON.
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
		return fmt.Sprint(x)
	}
}
