package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPeriodOf(t *testing.T) {
	at := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	if got := PeriodOf(at); got != "2026-03" {
		t.Fatalf("PeriodOf = %q, want 2026-03", got)
	}
}

func TestPeriodBounds(t *testing.T) {
	start, end, err := PeriodBounds("2026-01")
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	if !start.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", end)
	}
}

func TestParsePeriodRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "2026", "2026-13", "march-2026"} {
		if _, err := ParsePeriod(bad); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("ParsePeriod(%q) err = %v, want ErrInvalidPeriod", bad, err)
		}
	}
}
