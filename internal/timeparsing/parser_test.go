package timeparsing

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestIsCompactDuration(t *testing.T) {
	yes := []string{"-6h", "-1d", "-2w", "-3m", "-1y", "6h", "+2d", "0h"}
	for _, s := range yes {
		if !IsCompactDuration(s) {
			t.Errorf("IsCompactDuration(%q) = false", s)
		}
	}
	no := []string{"", "h", "-h", "6", "-6x", "1.5h", "yesterday", "-6 h", "--6h"}
	for _, s := range no {
		if IsCompactDuration(s) {
			t.Errorf("IsCompactDuration(%q) = true", s)
		}
	}
}

func TestParseCompactDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"-6h", testNow.Add(-6 * time.Hour)},
		{"6h", testNow.Add(6 * time.Hour)},
		{"+6h", testNow.Add(6 * time.Hour)},
		{"-1d", testNow.AddDate(0, 0, -1)},
		{"-2w", testNow.AddDate(0, 0, -14)},
		{"-3m", testNow.AddDate(0, -3, 0)},
		{"-1y", testNow.AddDate(-1, 0, 0)},
		{"0h", testNow},
	}
	for _, c := range cases {
		got, err := ParseCompactDuration(c.in, testNow)
		if err != nil {
			t.Errorf("ParseCompactDuration(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseCompactDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := ParseCompactDuration("banana", testNow); err == nil {
		t.Fatalf("non-duration accepted")
	}
}

func TestParseAsOfAbsolute(t *testing.T) {
	got, err := ParseAsOf("2024-03-15T13:45:30Z", testNow)
	if err != nil {
		t.Fatalf("RFC3339: %v", err)
	}
	want := time.Date(2024, 3, 15, 13, 45, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("RFC3339 = %v", got)
	}

	got, err = ParseAsOf("2024-03-15", testNow)
	if err != nil {
		t.Fatalf("date-only: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.March || got.Day() != 15 {
		t.Fatalf("date-only = %v", got)
	}
	// Date-only parses in the reference location, midnight.
	if got.Hour() != 0 || got.Location() != testNow.Location() {
		t.Fatalf("date-only time portion = %v", got)
	}
}

func TestParseAsOfCompact(t *testing.T) {
	got, err := ParseAsOf("-6h", testNow)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if !got.Equal(testNow.Add(-6 * time.Hour)) {
		t.Fatalf("compact = %v", got)
	}
}

func TestParseAsOfNaturalLanguage(t *testing.T) {
	got, err := ParseAsOf("yesterday", testNow)
	if err != nil {
		t.Fatalf("yesterday: %v", err)
	}
	if got.Day() != testNow.AddDate(0, 0, -1).Day() {
		t.Fatalf("yesterday = %v", got)
	}

	if _, err := ParseAsOf("not a time at all xyzzy", testNow); err == nil {
		t.Fatalf("gibberish accepted")
	}
}
