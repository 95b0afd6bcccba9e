package router

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/aqua777/go-callrag/cdr"
)

// Coerce converts a raw record value to a number in the given unit.
// It accepts numbers, numeric strings, ISO-8601 durations, and strings with
// ms, s, % or dB suffixes. Missing or unparseable values report false.
func Coerce(v interface{}, unit Unit) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case *cdr.Duration:
		if n == nil {
			return 0, false
		}
		return durationIn(n.Duration, unit), true
	case cdr.Duration:
		return durationIn(n.Duration, unit), true
	case time.Duration:
		return durationIn(n, unit), true
	case string:
		return coerceString(n, unit)
	}
	return 0, false
}

func coerceString(raw string, unit Unit) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "n/a", "na", "null", "none", "nan":
		return 0, false
	}

	if strings.HasPrefix(s, "p") || strings.HasPrefix(s, "-p") {
		d, err := cdr.ParseDuration(s)
		if err != nil {
			return 0, false
		}
		return durationIn(d, unit), true
	}

	switch {
	case strings.HasSuffix(s, "%"):
		f, ok := parseFloat(strings.TrimSuffix(s, "%"))
		return f / 100, ok
	case strings.HasSuffix(s, "ms"):
		f, ok := parseFloat(strings.TrimSuffix(s, "ms"))
		if unit == UnitMilliseconds || !ok {
			return f, ok
		}
		return f / 1000, true
	case strings.HasSuffix(s, "dbfs"):
		return parseFloat(strings.TrimSuffix(s, "dbfs"))
	case strings.HasSuffix(s, "db"):
		return parseFloat(strings.TrimSuffix(s, "db"))
	case strings.HasSuffix(s, "s"):
		f, ok := parseFloat(strings.TrimSuffix(s, "s"))
		if unit == UnitMilliseconds && ok {
			return f * 1000, true
		}
		return f, ok
	}
	return parseFloat(s)
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func durationIn(d time.Duration, unit Unit) float64 {
	if unit == UnitMilliseconds {
		return float64(d) / float64(time.Millisecond)
	}
	return d.Seconds()
}
