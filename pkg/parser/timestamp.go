package parser

import (
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts ordered by likelihood.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// parseTimestamp parses a timestamp into nanoseconds since the Unix epoch.
// Plain integers are taken as epoch seconds, milliseconds or nanoseconds
// depending on magnitude.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidTimestamp
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case n > 1e17 || n < -1e17:
			return n, nil
		case n > 1e11 || n < -1e11:
			return n * int64(time.Millisecond), nil
		default:
			return n * int64(time.Second), nil
		}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	return 0, ErrInvalidTimestamp
}

// excelSerial converts an Excel serial date (days since 1899-12-30) to
// nanoseconds since the Unix epoch.
func excelSerial(s string) (int64, bool) {
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial <= 1 {
		return 0, false
	}
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(serial * float64(24*time.Hour))).UnixNano(), true
}

// formatNanos renders epoch nanoseconds in a layout parseTimestamp accepts.
func formatNanos(nanos int64) string {
	return time.Unix(0, nanos).UTC().Format(time.RFC3339Nano)
}
