// Package timeperiod resolves the time selector's range expressions.
//
// An expression is either relative to the current time, such as "now",
// "now-1h", "now/d" or "now-1w/w", or an absolute date with second, minute,
// hour, day, month or year precision ("2024-03-01 10:00:00" down to "2024").
// Resolving the start of a range rounds down to the beginning of the unit,
// resolving its end rounds up to the unit's last second.
package timeperiod

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for expressions that cannot be parsed.
var ErrInvalid = errors.New("invalid time expression")

var relativeRe = regexp.MustCompile(`^now(?:\s*([+-])\s*(\d+)\s*([smhdwMy]?))?(?:/([smhdwMy]))?$`)

var absoluteLayouts = []struct {
	layout string
	unit   byte
}{
	{"2006-01-02 15:04:05", 's'},
	{"2006-01-02 15:04", 'm'},
	{"2006-01-02 15", 'h'},
	{"2006-01-02", 'd'},
	{"2006-01", 'M'},
	{"2006", 'y'},
}

// Resolver resolves expressions against a clock and a location.
type Resolver struct {
	Now      func() time.Time
	Location *time.Location
}

// New returns a resolver using the wall clock in loc. A nil loc means UTC.
func New(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{Now: time.Now, Location: loc}
}

func (r *Resolver) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Truncate(time.Second)
}

// Resolve returns the point in time expr denotes. start selects rounding
// towards the beginning of the unit; otherwise towards its end.
func (r *Resolver) Resolve(expr string, start bool) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if strings.HasPrefix(expr, "now") {
		return r.resolveRelative(expr, start)
	}
	return r.resolveAbsolute(expr, start)
}

// IsRelative reports whether expr is relative to the current time.
func IsRelative(expr string) bool {
	return strings.HasPrefix(strings.TrimSpace(expr), "now")
}

func (r *Resolver) resolveRelative(expr string, start bool) (time.Time, error) {
	m := relativeRe.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, expr)
	}
	t := r.now()
	if m[1] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, expr)
		}
		if m[1] == "-" {
			n = -n
		}
		unit := byte('s')
		if m[3] != "" {
			unit = m[3][0]
		}
		t = shift(t, n, unit)
	}
	if m[4] != "" {
		t = round(t, m[4][0], start)
	}
	return t, nil
}

func (r *Resolver) resolveAbsolute(expr string, start bool) (time.Time, error) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, l := range absoluteLayouts {
		t, err := time.ParseInLocation(l.layout, expr, loc)
		if err != nil {
			continue
		}
		if l.unit == 's' {
			return t, nil
		}
		return round(t, l.unit, start), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, expr)
}

// Duration resolves a period such as "2y" or "30d" to the span between
// now-period and now, both inclusive.
func (r *Resolver) Duration(period string) (time.Duration, error) {
	now := r.now()
	from, err := r.Resolve("now-"+strings.TrimSpace(period), true)
	if err != nil {
		return 0, err
	}
	return now.Sub(from) + time.Second, nil
}

func shift(t time.Time, n int, unit byte) time.Time {
	switch unit {
	case 's':
		return t.Add(time.Duration(n) * time.Second)
	case 'm':
		return t.Add(time.Duration(n) * time.Minute)
	case 'h':
		return t.Add(time.Duration(n) * time.Hour)
	case 'd':
		return t.AddDate(0, 0, n)
	case 'w':
		return t.AddDate(0, 0, 7*n)
	case 'M':
		return t.AddDate(0, n, 0)
	case 'y':
		return t.AddDate(n, 0, 0)
	}
	return t
}

func round(t time.Time, unit byte, start bool) time.Time {
	y, mo, d := t.Date()
	loc := t.Location()
	var begin time.Time
	switch unit {
	case 's':
		return t
	case 'm':
		begin = time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, loc)
	case 'h':
		begin = time.Date(y, mo, d, t.Hour(), 0, 0, 0, loc)
	case 'd':
		begin = time.Date(y, mo, d, 0, 0, 0, 0, loc)
	case 'w':
		// weeks start on Monday
		offset := (int(t.Weekday()) + 6) % 7
		begin = time.Date(y, mo, d-offset, 0, 0, 0, 0, loc)
	case 'M':
		begin = time.Date(y, mo, 1, 0, 0, 0, 0, loc)
	case 'y':
		begin = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
	if start {
		return begin
	}
	return shift(begin, 1, unit).Add(-time.Second)
}
