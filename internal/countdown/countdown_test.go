package countdown

import (
	"testing"
	"time"
)

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"negative clamps", -5000, Zero},
		{"zero clamps", 0, Zero},
		{"sub-second rounds down", 999, "00:00:00"},
		{"one hour one minute one second", 3661000, "01:01:01"},
		{"thirty minutes", 30 * 60 * 1000, "00:30:00"},
		{"over a day", 26*3600*1000 + 5000, "26:00:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCountdown(tt.ms); got != tt.want {
				t.Errorf("FormatCountdown(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if got := FormatRemaining(now.Add(90*time.Second), now); got != "00:01:30" {
		t.Errorf("FormatRemaining = %q, want 00:01:30", got)
	}
	if got := FormatRemaining(now.Add(-time.Minute), now); got != Zero {
		t.Errorf("FormatRemaining in the past = %q, want %q", got, Zero)
	}
}

func TestFormatMinutes(t *testing.T) {
	if got := FormatMinutes(125 * time.Second); got != "2m 5s" {
		t.Errorf("FormatMinutes = %q, want '2m 5s'", got)
	}
	if got := FormatMinutes(-time.Second); got != "0m 0s" {
		t.Errorf("FormatMinutes negative = %q, want '0m 0s'", got)
	}
}

func TestDeadline(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	if got := Deadline(now, 30*time.Minute); got != 1_000_000+1_800_000 {
		t.Errorf("Deadline = %d, want %d", got, 1_000_000+1_800_000)
	}
}
