// Package tui renders variability results on the terminal.
// Simple, streaming output: no full-screen UI, just styled lines.
package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/logvar/pkg/batch"
	lverrors "github.com/logflow/logvar/pkg/errors"
	"github.com/logflow/logvar/pkg/variability"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
	labelStyle   = mutedStyle.Width(32)
)

const rule = "─────────────────────────────────────"

// PrintHeader prints the banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  LOGVAR")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w, mutedStyle.Render("  Behavioral variability of event logs"))
	fmt.Fprintln(w)
}

// RenderResult renders one log's outcome as a block.
func RenderResult(res batch.Result) string {
	var sb strings.Builder

	if res.Err != nil {
		code := lverrors.GetCode(res.Err)
		fmt.Fprintf(&sb, "  %s %s %s\n",
			accentStyle.Render("✗"),
			titleStyle.Render(res.Name),
			mutedStyle.Render(fmt.Sprintf("(%s, %s)", code, code.Class())))
		fmt.Fprintf(&sb, "    %s\n", res.Err.Error())
		return sb.String()
	}

	status := formatDuration(res.Duration)
	if res.Cached {
		status = "cached"
	}
	fmt.Fprintf(&sb, "  %s %s %s\n",
		successStyle.Render("✓"),
		titleStyle.Render(res.Name),
		mutedStyle.Render("("+status+")"))

	rep := res.Report
	for _, m := range rep.Metrics() {
		value := m.Value
		switch {
		case m.Name == variability.MetricEditDistance && rep.EditDistanceUndefined:
			value += mutedStyle.Render("  fewer than two variants")
		case m.Name == variability.MetricEntropy && rep.EntropyUndefined:
			value += mutedStyle.Render("  no events")
		}
		fmt.Fprintf(&sb, "    %s %s\n", labelStyle.Render(m.Name+":"), value)
	}
	return sb.String()
}

// PrintSummary prints every result followed by the batch totals.
func PrintSummary(w io.Writer, s *batch.Summary) {
	for _, res := range s.Results {
		fmt.Fprint(w, RenderResult(res))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, mutedStyle.Render("  "+rule))
	line := fmt.Sprintf("%d analyzed", s.Succeeded)
	if s.Cached > 0 {
		line += fmt.Sprintf(", %d from checkpoint", s.Cached)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render(fmt.Sprintf("%d failed", s.Failed)), mutedStyle.Render(line))
	} else {
		fmt.Fprintf(w, "  %s\n", successStyle.Render(line))
	}
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Duration)))
	fmt.Fprintln(w)
}

// PrintVariants lists the variants of a table, most frequent first.
func PrintVariants(w io.Writer, name string, table *variability.VariantTable, limit int) {
	fmt.Fprintf(w, "  %s %s\n", titleStyle.Render(name),
		mutedStyle.Render(fmt.Sprintf("(%s traces, %s variants)",
			formatNumber(int64(table.TraceCount())), formatNumber(int64(table.Len())))))
	fmt.Fprintln(w, mutedStyle.Render("  "+rule))

	for i, v := range table.ByFrequency() {
		if limit > 0 && i == limit {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  … %d more", table.Len()-limit)))
			break
		}
		share := 100 * float64(v.Frequency) / float64(table.TraceCount())
		fmt.Fprintf(w, "  %8d %s  %s\n", v.Frequency,
			mutedStyle.Render(fmt.Sprintf("%5.1f%%", share)),
			v.String())
	}
}

// PrintDistance prints the edit distance between two label sequences.
func PrintDistance(w io.Writer, a, b []string, d int) {
	fmt.Fprintf(w, "  %s\n  %s\n", codeStyle.Render(strings.Join(a, ",")), codeStyle.Render(strings.Join(b, ",")))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Edit distance:"), titleStyle.Render(fmt.Sprint(d)))
}

// Progress shows a pair-evaluation bar per log. Logs analyzed in parallel
// share the terminal line; the bar follows whichever log reported last.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	current string
	bar     *progressbar.ProgressBar
}

// NewProgress creates a progress display writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

// Update reports that done of total pairs of log have been evaluated.
func (p *Progress) Update(log string, done, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.current != log {
		if p.bar != nil {
			p.bar.Finish()
		}
		p.bar = newBar(p.w, int64(total), "  "+log)
		p.current = log
	}
	p.bar.Set64(int64(done))
	if done >= total {
		p.bar.Finish()
		p.bar = nil
		p.current = ""
	}
}

// Done clears any unfinished bar. It may be called more than once.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
		p.current = ""
	}
}

func newBar(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
