// Package countdown turns absolute deadlines into display strings.
package countdown

import (
	"fmt"
	"time"
)

// Zero is the clamped countdown for anything already elapsed
const Zero = "00:00:00"

// Placeholder is shown for cars that have not been assigned a window yet
const Placeholder = "--:--:--"

// FormatCountdown formats a remaining duration in milliseconds as HH:MM:SS.
// Values <= 0 yield Zero.
func FormatCountdown(ms int64) string {
	if ms <= 0 {
		return Zero
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// FormatRemaining formats end - now as HH:MM:SS
func FormatRemaining(end, now time.Time) string {
	return FormatCountdown(end.Sub(now).Milliseconds())
}

// FormatMinutes formats d as "Mm Ss" for the generic timer display
func FormatMinutes(d time.Duration) string {
	if d <= 0 {
		return "0m 0s"
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// Deadline returns now + d in epoch milliseconds
func Deadline(now time.Time, d time.Duration) int64 {
	return now.Add(d).UnixMilli()
}
