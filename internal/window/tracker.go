// Package window keeps one auction window per live car and expires cars whose
// window has elapsed.
package window

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/countdown"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/schedule"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// TickInterval is the countdown refresh period
const TickInterval = time.Second

// ActiveItem is one car in the live view
type ActiveItem struct {
	Item        models.AuctionItem    `json:"item"`
	Window      *models.AuctionWindow `json:"window,omitempty"`
	Countdown   string                `json:"countdown"`
	RemainingMs int64                 `json:"remainingMs"`
}

// Snapshot is the outcome of one tick
type Snapshot struct {
	Active  []ActiveItem         `json:"active"`
	Expired []models.AuctionItem `json:"expired,omitempty"`
	At      time.Time            `json:"at"`
}

// Tracker owns the window map. All mutation goes through its mutex.
type Tracker struct {
	mu         sync.RWMutex
	now        func() time.Time
	duration   time.Duration
	order      []string
	records    map[string]models.AuctionItem
	windows    map[string]models.AuctionWindow
	countdowns map[string]string

	sched *schedule.Periodic
	log   *slog.Logger
}

// NewTracker creates a tracker. A nil clock means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		now:        now,
		duration:   models.DefaultAuctionDuration,
		records:    make(map[string]models.AuctionItem),
		windows:    make(map[string]models.AuctionWindow),
		countdowns: make(map[string]string),
		log:        slog.With("component", "window"),
	}
	return t
}

// Observe records the latest raw car list. Windows are assigned on the next
// tick; until then new cars show the placeholder countdown. A car whose
// window already elapsed gets a fresh one if the feed still lists it.
func (t *Tracker) Observe(items []models.AuctionItem) {
	t.mu.Lock()

	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		if id := item.ID.String(); id != "" {
			present[id] = struct{}{}
		}
	}
	// unwindowed cars that vanished from the feed are forgotten; windowed
	// ones live until their window elapses
	kept := t.order[:0]
	for _, id := range t.order {
		_, windowed := t.windows[id]
		if _, ok := present[id]; ok || windowed {
			kept = append(kept, id)
		} else {
			delete(t.records, id)
		}
	}
	t.order = kept

	for _, item := range items {
		id := item.ID.String()
		if id == "" {
			continue
		}
		if _, known := t.records[id]; !known {
			t.order = append(t.order, id)
		}
		t.records[id] = item
	}
	t.mu.Unlock()

	t.wake()
}

// Tick assigns windows to new cars, expires elapsed ones and recomputes
// every countdown.
func (t *Tracker) Tick() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// windows are created before any expiry check for the same id
	for _, id := range t.order {
		if _, ok := t.windows[id]; ok {
			continue
		}
		w := ResolveWindow(t.records[id], now, t.duration)
		t.windows[id] = w
		t.log.Debug("window created", "id", id, "start", w.Start, "end", w.End)
	}

	snap := Snapshot{At: now}
	kept := t.order[:0]
	for _, id := range t.order {
		item := t.records[id]
		w, ok := t.windows[id]
		if !ok {
			snap.Active = append(snap.Active, ActiveItem{Item: item, Countdown: countdown.Placeholder})
			kept = append(kept, id)
			continue
		}

		remaining := w.Remaining(now)
		if remaining <= 0 {
			delete(t.windows, id)
			delete(t.records, id)
			delete(t.countdowns, id)
			snap.Expired = append(snap.Expired, item)
			t.log.Info("auction window elapsed", "id", id)
			continue
		}

		cd := countdown.FormatRemaining(time.UnixMilli(w.End), now)
		t.countdowns[id] = cd
		wc := w
		snap.Active = append(snap.Active, ActiveItem{
			Item:        item,
			Window:      &wc,
			Countdown:   cd,
			RemainingMs: remaining.Milliseconds(),
		})
		kept = append(kept, id)
	}
	t.order = kept

	return snap
}

// Active returns the live view as of the last tick, with placeholders for
// cars that are not windowed yet.
func (t *Tracker) Active() []ActiveItem {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]ActiveItem, 0, len(t.order))
	for _, id := range t.order {
		ai := ActiveItem{Item: t.records[id], Countdown: countdown.Placeholder}
		if w, ok := t.windows[id]; ok {
			wc := w
			ai.Window = &wc
			ai.RemainingMs = w.Remaining(now).Milliseconds()
			if cd, ok := t.countdowns[id]; ok {
				ai.Countdown = cd
			} else {
				ai.Countdown = countdown.FormatRemaining(time.UnixMilli(w.End), now)
			}
		}
		out = append(out, ai)
	}
	return out
}

// ActiveIDs returns the ids currently in the live view
func (t *Tracker) ActiveIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

// Countdown returns the display string for id. ok is false when the car is
// not in the live view.
func (t *Tracker) Countdown(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if cd, ok := t.countdowns[id]; ok {
		return cd, true
	}
	if _, ok := t.records[id]; ok {
		return countdown.Placeholder, true
	}
	return "", false
}

// Window returns the window assigned to id, if any
func (t *Tracker) Window(id string) (models.AuctionWindow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.windows[id]
	return w, ok
}

// Item resolves a car by id, beadingCarId or bidCarId
func (t *Tracker) Item(key string) (models.AuctionItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if item, ok := t.records[key]; ok {
		return item, true
	}
	for _, item := range t.records {
		for _, k := range item.Keys() {
			if k == key {
				return item, true
			}
		}
	}
	return models.AuctionItem{}, false
}

// Tracking reports whether any car is in the live view
func (t *Tracker) Tracking() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order) > 0
}

// Reset forgets every car and window
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.records = make(map[string]models.AuctionItem)
	t.windows = make(map[string]models.AuctionWindow)
	t.countdowns = make(map[string]string)
}

// Run ticks every second while anything is tracked and hands each snapshot
// to onTick. Blocks until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, onTick func(Snapshot)) {
	sched := schedule.NewPeriodic(TickInterval, t.Tracking, func(time.Time) {
		snap := t.Tick()
		if onTick != nil {
			onTick(snap)
		}
	})

	t.mu.Lock()
	t.sched = sched
	t.mu.Unlock()

	sched.Run(ctx)
}

func (t *Tracker) wake() {
	t.mu.RLock()
	sched := t.sched
	t.mu.RUnlock()
	if sched != nil {
		sched.Wake()
	}
}
