// Package timeparsing provides layered parsing for the as-of expressions
// accepted by the CLI.
//
// The layers, tried in order:
//  1. Compact duration (-6h, -1d, -2w)
//  2. Absolute timestamp (RFC3339, date-only)
//  3. Natural language (yesterday, last monday at 5pm)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
// Examples: -6h, -1d, -2w
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseAsOf resolves an as-of expression to an instant, trying each layer
// in turn.
func ParseAsOf(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot interpret %q as a point in time", s)
	}
	return r.Time, nil
}

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Format: [+-]?(\d+)([hdwmy])
//
// Units: h = hours, d = days, w = weeks, m = months, y = years.
// A missing sign means positive.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	sign := matches[1]
	amountStr := matches[2]
	unit := matches[3]

	amount, err := strconv.Atoi(amountStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", amountStr)
	}

	if sign == "-" {
		amount = -amount
	}

	return applyDuration(now, amount, unit), nil
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}
