package window

import (
	"context"
	"testing"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/countdown"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func car(id string) models.AuctionItem {
	return models.AuctionItem{ID: models.FlexID(id), Make: "Hyundai", Model: "i20"}
}

func TestResolveWindowPrefersExplicitAuctionFields(t *testing.T) {
	now := newClock().Now()
	item := car("1")
	item.AuctionStartTime = models.TimestampFromTime(now.Add(-time.Minute))
	item.StartTime = models.TimestampFromTime(now.Add(-2 * time.Minute))
	item.AuctionEndTime = models.TimestampFromTime(now.Add(10 * time.Minute))
	item.EndTime = models.TimestampFromTime(now.Add(20 * time.Minute))

	w := ResolveWindow(item, now, models.DefaultAuctionDuration)
	if w.Start != now.Add(-time.Minute).UnixMilli() {
		t.Errorf("Expected auctionStartTime to win, got start %d", w.Start)
	}
	if w.End != now.Add(10*time.Minute).UnixMilli() {
		t.Errorf("Expected auctionEndTime to win, got end %d", w.End)
	}
}

func TestResolveWindowCreatedAtRoundTrip(t *testing.T) {
	now := newClock().Now()
	created := now.Add(-5 * time.Minute)

	item := car("2")
	item.CreatedAt = models.TimestampFromTime(created)

	w := ResolveWindow(item, now, models.DefaultAuctionDuration)
	if w.Start != created.UnixMilli() || w.End != created.UnixMilli()+1800000 {
		t.Errorf("Expected {T, T+30m}, got %+v", w)
	}

	// createdAt so old that T+30m is already past: reset to now
	stale := car("3")
	stale.CreatedAt = models.TimestampFromTime(now.Add(-time.Hour))
	w = ResolveWindow(stale, now, models.DefaultAuctionDuration)
	if w.Start != now.UnixMilli() || w.End != now.UnixMilli()+1800000 {
		t.Errorf("Expected reset to {now, now+30m}, got %+v", w)
	}
}

func TestResolveWindowIsAlwaysInTheFuture(t *testing.T) {
	now := newClock().Now()
	cases := map[string]models.AuctionItem{
		"no fields":   car("a"),
		"end in past": func() models.AuctionItem { c := car("b"); c.EndTime = models.TimestampFromTime(now.Add(-time.Second)); return c }(),
		"end is now":  func() models.AuctionItem { c := car("c"); c.AuctionEndTime = models.TimestampFromTime(now); return c }(),
		"only start": func() models.AuctionItem { c := car("d"); c.StartTime = models.TimestampFromTime(now.Add(-29 * time.Minute)); return c }(),
	}

	for name, item := range cases {
		w := ResolveWindow(item, now, models.DefaultAuctionDuration)
		if w.End <= now.UnixMilli() {
			t.Errorf("%s: end %d is not after now %d", name, w.End, now.UnixMilli())
		}
	}
}

func TestTickExpiresExactlyOneItem(t *testing.T) {
	clock := newClock()
	tr := NewTracker(clock.Now)
	nowMs := clock.Now().UnixMilli()

	tr.order = []string{"old", "live"}
	tr.records["old"] = car("old")
	tr.records["live"] = car("live")
	tr.windows["old"] = models.AuctionWindow{Start: nowMs - 60000, End: nowMs - 1000}
	tr.windows["live"] = models.AuctionWindow{Start: nowMs - 60000, End: nowMs + 60000}

	snap := tr.Tick()

	if len(snap.Active) != 1 || snap.Active[0].Item.ID != "live" {
		t.Fatalf("Expected only 'live' to remain active, got %+v", snap.Active)
	}
	if snap.Active[0].Countdown != "00:01:00" {
		t.Errorf("Expected countdown 00:01:00, got %s", snap.Active[0].Countdown)
	}
	if len(snap.Expired) != 1 || snap.Expired[0].ID != "old" {
		t.Errorf("Expected 'old' to be reported expired, got %+v", snap.Expired)
	}
	if _, ok := tr.Window("old"); ok {
		t.Errorf("Expected window for 'old' to be deleted")
	}
}

func TestNewItemsShowPlaceholderUntilTick(t *testing.T) {
	clock := newClock()
	tr := NewTracker(clock.Now)

	tr.Observe([]models.AuctionItem{car("7")})

	active := tr.Active()
	if len(active) != 1 || active[0].Countdown != countdown.Placeholder {
		t.Fatalf("Expected placeholder before first tick, got %+v", active)
	}
	if cd, ok := tr.Countdown("7"); !ok || cd != countdown.Placeholder {
		t.Errorf("Expected placeholder countdown, got %q (%v)", cd, ok)
	}

	snap := tr.Tick()
	if len(snap.Active) != 1 || snap.Active[0].Countdown != "00:30:00" {
		t.Fatalf("Expected default 30 minute window after tick, got %+v", snap.Active)
	}
}

func TestWindowIsNeverRecomputed(t *testing.T) {
	clock := newClock()
	tr := NewTracker(clock.Now)

	first := car("9")
	first.EndTime = models.TimestampFromTime(clock.Now().Add(10 * time.Minute))
	tr.Observe([]models.AuctionItem{first})
	tr.Tick()
	original, _ := tr.Window("9")

	second := car("9")
	second.EndTime = models.TimestampFromTime(clock.Now().Add(50 * time.Minute))
	second.City = "Pune"
	tr.Observe([]models.AuctionItem{second})
	clock.Advance(time.Second)
	tr.Tick()

	got, _ := tr.Window("9")
	if got != original {
		t.Errorf("Expected window to stay %+v, got %+v", original, got)
	}
	if item, _ := tr.Item("9"); item.City != "Pune" {
		t.Errorf("Expected descriptive fields to follow the latest record")
	}
}

func TestExpiredItemStillListedGetsFreshWindow(t *testing.T) {
	clock := newClock()
	tr := NewTracker(clock.Now)

	item := car("5")
	item.EndTime = models.TimestampFromTime(clock.Now().Add(2 * time.Second))
	tr.Observe([]models.AuctionItem{item})
	tr.Tick()

	clock.Advance(3 * time.Second)
	snap := tr.Tick()
	if len(snap.Expired) != 1 || len(snap.Active) != 0 {
		t.Fatalf("Expected item to expire, got %+v", snap)
	}
	if _, ok := tr.Window("5"); ok {
		t.Fatalf("Expected window to be deleted on expiry")
	}

	// the feed still carries it: the next observation windows it again
	tr.Observe([]models.AuctionItem{item})
	snap = tr.Tick()
	if len(snap.Active) != 1 || snap.Active[0].Window == nil {
		t.Fatalf("Expected item to be re-windowed, got %+v", snap.Active)
	}
	w, _ := tr.Window("5")
	if w.Start != clock.Now().UnixMilli() || w.End != clock.Now().Add(models.DefaultAuctionDuration).UnixMilli() {
		t.Errorf("Expected fresh window {now, now+30m}, got %+v", w)
	}
	if snap.Active[0].Countdown != "00:30:00" {
		t.Errorf("Expected countdown 00:30:00, got %s", snap.Active[0].Countdown)
	}

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		tr.Observe([]models.AuctionItem{item})
		if snap := tr.Tick(); len(snap.Active) != 1 || len(snap.Expired) != 0 {
			t.Fatalf("Expected the fresh window to stay live, got %+v", snap)
		}
	}
	if got, _ := tr.Window("5"); got != w {
		t.Errorf("Expected window to stay %+v, got %+v", w, got)
	}
}

func TestItemLookupBySecondaryKeys(t *testing.T) {
	tr := NewTracker(newClock().Now)
	item := car("11")
	item.BeadingCarID = "B-11"
	item.BidCarID = "BID-11"
	tr.Observe([]models.AuctionItem{item})

	for _, key := range []string{"11", "B-11", "BID-11"} {
		if got, ok := tr.Item(key); !ok || got.ID != "11" {
			t.Errorf("Expected lookup by %q to find car 11", key)
		}
	}
	if _, ok := tr.Item("nope"); ok {
		t.Errorf("Expected unknown key to miss")
	}
}

func TestResetClearsEverything(t *testing.T) {
	tr := NewTracker(newClock().Now)
	tr.Observe([]models.AuctionItem{car("1"), car("2")})
	tr.Tick()
	tr.Reset()

	if tr.Tracking() || len(tr.Active()) != 0 || len(tr.ActiveIDs()) != 0 {
		t.Errorf("Expected empty tracker after Reset")
	}
}

func TestRunDeliversSnapshots(t *testing.T) {
	tr := NewTracker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := make(chan Snapshot, 4)
	go tr.Run(ctx, func(s Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})

	// give Run a moment to install its scheduler before observing
	time.Sleep(20 * time.Millisecond)
	tr.Observe([]models.AuctionItem{car("42")})

	select {
	case s := <-snaps:
		if len(s.Active) != 1 || s.Active[0].Window == nil {
			t.Errorf("Expected windowed car in snapshot, got %+v", s.Active)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a snapshot from Run")
	}
}
