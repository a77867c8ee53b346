// Package output writes variability results to files.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/logflow/logvar/pkg/batch"
	lverrors "github.com/logflow/logvar/pkg/errors"
	"github.com/logflow/logvar/pkg/variability"
)

// Formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Write renders results in the given format.
func Write(w io.Writer, format string, results []batch.Result) error {
	switch format {
	case "", FormatText:
		return WriteText(w, results)
	case FormatJSON:
		return WriteJSON(w, results)
	}
	return lverrors.New(lverrors.CodeInvalidConfig, "unknown output format").WithContext("format", format)
}

// WriteText renders one block per log:
//
//	Results for <name>:
//	  <metric>: <value>
//
// Every block ends with a blank line. A failed log renders its error.
func WriteText(w io.Writer, results []batch.Result) error {
	bw := bufio.NewWriter(w)
	for _, res := range results {
		fmt.Fprintf(bw, "Results for %s:\n", res.Name)
		if res.Err != nil {
			fmt.Fprintf(bw, "  error: %s\n", oneLine(res.Err.Error()))
		} else {
			for _, m := range res.Report.Metrics() {
				fmt.Fprintf(bw, "  %s: %s\n", m.Name, m.Value)
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type jsonError struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

type jsonResult struct {
	Name   string              `json:"name"`
	Source string              `json:"source"`
	RunID  string              `json:"run_id"`
	Digest string              `json:"digest,omitempty"`
	Cached bool                `json:"cached"`
	Report *variability.Report `json:"report,omitempty"`
	Error  *jsonError          `json:"error,omitempty"`
}

// WriteJSON renders results as an indented JSON array.
func WriteJSON(w io.Writer, results []batch.Result) error {
	out := make([]jsonResult, len(results))
	for i, res := range results {
		out[i] = jsonResult{
			Name:   res.Name,
			Source: res.Source,
			RunID:  res.RunID,
			Digest: res.Digest,
			Cached: res.Cached,
			Report: res.Report,
		}
		if res.Err != nil {
			code := lverrors.GetCode(res.Err)
			out[i].Error = &jsonError{
				Code:    string(code),
				Class:   string(code.Class()),
				Message: res.Err.Error(),
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteFile replaces path with the rendered results. The file is written
// to a temporary sibling first, so a failed run leaves the old file intact.
func WriteFile(path, format string, results []batch.Result) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError(path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return writeError(path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, format, results); err != nil {
		tmp.Close()
		return writeError(path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return writeError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return writeError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return writeError(path, err)
	}
	return nil
}

func writeError(path string, err error) error {
	return lverrors.Wrap(err, lverrors.CodeWriteFailed, "write results").WithContext("path", path)
}
