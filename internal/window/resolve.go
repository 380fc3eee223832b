package window

import (
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/countdown"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// ResolveWindow derives the auction window for item as observed at now.
//
// start: auctionStartTime, startTime, createdAt, now (first present wins)
// end:   auctionEndTime, endTime, start + duration
//
// An end at or before now is never trusted: the window is reset to
// {now, now + duration}.
func ResolveWindow(item models.AuctionItem, now time.Time, duration time.Duration) models.AuctionWindow {
	if duration <= 0 {
		duration = models.DefaultAuctionDuration
	}
	nowMs := now.UnixMilli()

	start, ok := firstPresent(item.AuctionStartTime, item.StartTime, item.CreatedAt)
	if !ok {
		start = nowMs
	}

	end, ok := firstPresent(item.AuctionEndTime, item.EndTime)
	if !ok {
		end = start + duration.Milliseconds()
	}

	if end <= nowMs {
		return models.AuctionWindow{Start: nowMs, End: countdown.Deadline(now, duration)}
	}
	return models.AuctionWindow{Start: start, End: end}
}

func firstPresent(candidates ...models.Timestamp) (int64, bool) {
	for _, c := range candidates {
		if ms, ok := c.Millis(); ok {
			return ms, true
		}
	}
	return 0, false
}
