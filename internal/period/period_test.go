package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 30, 0, 0, time.UTC)
}

func TestWeekEnding(t *testing.T) {
	// 2025-01-10 is a Friday.
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"monday maps to friday three days prior", date(2025, 1, 13), "2025-01-10"},
		{"tuesday maps to upcoming friday", date(2025, 1, 7), "2025-01-10"},
		{"wednesday maps to friday two days later", date(2025, 1, 8), "2025-01-10"},
		{"thursday maps to next day", date(2025, 1, 9), "2025-01-10"},
		{"friday maps to itself", date(2025, 1, 10), "2025-01-10"},
		{"saturday maps to previous day", date(2025, 1, 11), "2025-01-10"},
		{"sunday maps to two days prior", date(2025, 1, 12), "2025-01-10"},
		{"crosses month boundary", date(2025, 2, 3), "2025-01-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(WeekEnding(tt.now))
			if got != tt.want {
				t.Errorf("WeekEnding(%s) = %s, want %s", tt.now.Weekday(), got, tt.want)
			}
		})
	}
}

func TestWeekEnding_Deterministic(t *testing.T) {
	now := date(2025, 1, 8)
	first := WeekEnding(now)
	for i := 0; i < 5; i++ {
		if got := WeekEnding(now); !got.Equal(first) {
			t.Fatalf("WeekEnding not deterministic: %v != %v", got, first)
		}
	}
	if first.Hour() != 0 || first.Minute() != 0 {
		t.Errorf("anchor should have zeroed clock, got %v", first)
	}
}

func TestInRollupWindow(t *testing.T) {
	in := []time.Time{date(2025, 1, 10), date(2025, 1, 11), date(2025, 1, 12), date(2025, 1, 13)}
	out := []time.Time{date(2025, 1, 7), date(2025, 1, 8), date(2025, 1, 9)}

	for _, d := range in {
		if !InRollupWindow(d) {
			t.Errorf("InRollupWindow(%s) = false, want true", d.Weekday())
		}
	}
	for _, d := range out {
		if InRollupWindow(d) {
			t.Errorf("InRollupWindow(%s) = true, want false", d.Weekday())
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	got, err := Parse("2025-01-10", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if Format(got) != "2025-01-10" {
		t.Errorf("Format(Parse) = %s", Format(got))
	}
	if _, err := Parse("10/01/2025", time.UTC); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
