package cdr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned for strings that are not ISO-8601 durations.
var ErrInvalidDuration = errors.New("invalid ISO-8601 duration")

// ParseDuration parses the ISO-8601 duration subset used by call records:
// an optional sign, then P[nD][T[nH][nM][n.nS]]. Years, months and weeks are
// rejected because their length is calendar dependent.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if len(s) < 2 || (s[0] != 'P' && s[0] != 'p') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
	}
	s = strings.ToUpper(s[1:])

	var total float64
	inTime := false
	seen := false
	timeSeen := false
	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
			}
			inTime = true
			s = s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.' || s[i] == ',') {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(s[:i], ",", "."), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		unit := s[i]
		s = s[i+1:]

		switch {
		case !inTime && unit == 'D':
			total += n * float64(24*time.Hour)
		case inTime && unit == 'H':
			total += n * float64(time.Hour)
		case inTime && unit == 'M':
			total += n * float64(time.Minute)
		case inTime && unit == 'S':
			total += n * float64(time.Second)
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		seen = true
		timeSeen = timeSeen || inTime
	}
	// A designator T must be followed by at least one time component.
	if !seen || (inTime && !timeSeen) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
	}
	// float64(math.MaxInt64) is 2^63, which time.Duration cannot hold.
	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, orig)
	}
	d := time.Duration(math.Round(total))
	if neg {
		d = -d
	}
	return d, nil
}

// FormatDuration renders d as an ISO-8601 duration such as PT0.045S or PT1M2.5S.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteString("PT")
	if h := d / time.Hour; h > 0 {
		b.WriteString(strconv.FormatInt(int64(h), 10))
		b.WriteByte('H')
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		b.WriteString(strconv.FormatInt(int64(m), 10))
		b.WriteByte('M')
		d -= m * time.Minute
	}
	if d > 0 {
		b.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
		b.WriteByte('S')
	}
	return b.String()
}

// Duration is a time.Duration that travels as an ISO-8601 string in JSON.
type Duration struct {
	time.Duration
}

// NewDuration returns a pointer suitable for optional metric fields.
func NewDuration(d time.Duration) *Duration {
	return &Duration{Duration: d}
}

// Millis returns a pointer to a Duration of ms milliseconds.
func Millis(ms float64) *Duration {
	return NewDuration(time.Duration(math.Round(ms * float64(time.Millisecond))))
}

// Ms returns the duration in fractional milliseconds.
func (d Duration) Ms() float64 {
	return float64(d.Duration) / float64(time.Millisecond)
}

// String implements fmt.Stringer with the ISO-8601 form.
func (d Duration) String() string {
	return FormatDuration(d.Duration)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatDuration(d.Duration))
}

// UnmarshalJSON accepts ISO-8601 strings, numbers of seconds and null.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, string(data))
	}
	d.Duration = time.Duration(math.Round(secs * float64(time.Second)))
	return nil
}
