// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"newsdigest/internal/database"
)

const dateFormat = "2006-01-02"

// markerAttempts bounds MarkFired retries; the store's busy timeout already
// absorbs lock contention within each attempt.
const markerAttempts = 3

// Subscriber is a read-only view of an externally owned subscriber record.
// The scheduler never writes subscriber identity or timezone.
type Subscriber struct {
	ID       string `json:"id"`
	Timezone string `json:"timezone"`
	Slots    []int  `json:"slots"`
}

// SlotTime is one of the fixed daily delivery time-points, identified by its
// index in the configured slot set.
type SlotTime struct {
	Index  int
	Hour   int
	Minute int
}

// ParseSlots parses a comma-separated "HH:MM,HH:MM,..." slot specification.
func ParseSlots(spec string) ([]SlotTime, error) {
	parts := strings.Split(spec, ",")
	slots := make([]SlotTime, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		hm := strings.SplitN(p, ":", 2)
		if len(hm) != 2 {
			return nil, fmt.Errorf("invalid slot %q", p)
		}
		h, err := strconv.Atoi(hm[0])
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid slot hour %q", p)
		}
		m, err := strconv.Atoi(hm[1])
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid slot minute %q", p)
		}
		slots = append(slots, SlotTime{Index: i, Hour: h, Minute: m})
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no slots configured")
	}
	return slots, nil
}

// CycleRunner runs one delivery cycle; implemented by digest.Orchestrator.
type CycleRunner interface {
	Run(ctx context.Context, subscriberID string, slot int) error
}

// Scheduler drives delivery cycles from a single periodic tick. Dueness is
// re-evaluated from UTC plus the subscriber's timezone on every tick, so DST
// transitions and timezone-policy changes need no special handling. Persisted
// last-fired markers make recovery idempotent: after downtime a missed slot
// fires exactly once, never a backlog.
type Scheduler struct {
	logger *log.Logger
	db     *database.DB
	subs   *SubscriberCache
	runner CycleRunner
	slots  []SlotTime
	tick   time.Duration

	mu     sync.Mutex
	firing map[string]bool
	// firedMemo remembers (subscriber, slot, local date) firings whose
	// marker could not be persisted. It backs up the last_fired table so a
	// marker-write outage never causes a same-day duplicate in-session.
	firedMemo map[string]bool

	wg        sync.WaitGroup
	done      chan struct{}
	lastSweep time.Time

	now func() time.Time
}

func New(logger *log.Logger, db *database.DB, subs *SubscriberCache, runner CycleRunner, slots []SlotTime, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		logger:    logger,
		db:        db,
		subs:      subs,
		runner:    runner,
		slots:     slots,
		tick:      tick,
		firing:    make(map[string]bool),
		firedMemo: make(map[string]bool),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	s.logger.Printf("Starting scheduler loop (tick %s, %d slots)", s.tick, len(s.slots))

	// Evaluate immediately so a restart right after a slot crossing does
	// not wait a full tick.
	s.Evaluate(context.Background())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Evaluate(context.Background())
			s.maybeSweep(context.Background())
		case <-s.done:
			s.logger.Printf("Scheduler shutting down")
			return
		}
	}
}

// Evaluate performs one tick: every (subscriber, slot) pair whose local
// time-of-day has crossed the slot time and has not fired for the local
// calendar day transitions to firing. Each firing runs in its own goroutine;
// one subscriber's failure never touches another's cycle.
func (s *Scheduler) Evaluate(ctx context.Context) {
	nowUTC := s.now()

	for _, sub := range s.subs.Subscribers(ctx) {
		loc, err := time.LoadLocation(sub.Timezone)
		if err != nil {
			s.logger.Printf("Skipping subscriber %s: bad timezone %q: %v", sub.ID, sub.Timezone, err)
			continue
		}
		local := nowUTC.In(loc)
		localDate := local.Format(dateFormat)

		for _, slotIdx := range sub.Slots {
			slot, ok := s.slotByIndex(slotIdx)
			if !ok {
				s.logger.Printf("Subscriber %s references unknown slot %d", sub.ID, slotIdx)
				continue
			}
			if !crossed(local, slot) {
				continue
			}

			key := fireKey(sub.ID, slot.Index)
			s.mu.Lock()
			if s.firing[key] || s.firedMemo[memoKey(key, localDate)] {
				s.mu.Unlock()
				continue
			}
			fired, err := s.db.HasFired(ctx, sub.ID, slot.Index, localDate)
			if err != nil {
				s.mu.Unlock()
				s.logger.Printf("Error checking fired state for %s slot %d: %v", sub.ID, slot.Index, err)
				continue
			}
			if fired {
				s.mu.Unlock()
				continue
			}
			s.firing[key] = true
			s.mu.Unlock()

			s.wg.Add(1)
			go s.fire(sub, slot, localDate)
		}
	}
}

// fire runs the delivery cycle and records the fired marker for the local
// day regardless of outcome: a recorded failure must not re-fire either.
func (s *Scheduler) fire(sub Subscriber, slot SlotTime, localDate string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.firing, fireKey(sub.ID, slot.Index))
		s.mu.Unlock()
	}()

	outcome := "delivered"
	if err := s.runner.Run(context.Background(), sub.ID, slot.Index); err != nil {
		outcome = "failed"
		s.logger.Printf("Cycle failed for subscriber %s slot %d: %v", sub.ID, slot.Index, err)
	}

	// The marker is the only thing standing between a completed cycle and a
	// same-day duplicate, so a failed write falls back to an in-memory
	// record of the firing.
	var err error
	for attempt := 0; attempt < markerAttempts; attempt++ {
		if err = s.db.MarkFired(context.Background(), sub.ID, slot.Index, localDate, outcome); err == nil {
			return
		}
	}
	s.logger.Printf("Error recording fired marker for %s slot %d, holding in memory: %v", sub.ID, slot.Index, err)
	s.mu.Lock()
	s.firedMemo[memoKey(fireKey(sub.ID, slot.Index), localDate)] = true
	s.mu.Unlock()
}

func (s *Scheduler) slotByIndex(idx int) (SlotTime, bool) {
	for _, slot := range s.slots {
		if slot.Index == idx {
			return slot, true
		}
	}
	return SlotTime{}, false
}

// crossed reports whether the local wall clock is at or past the slot's
// time-of-day.
func crossed(local time.Time, slot SlotTime) bool {
	h, m := local.Hour(), local.Minute()
	if h != slot.Hour {
		return h > slot.Hour
	}
	return m >= slot.Minute
}

func fireKey(subscriberID string, slot int) string {
	return subscriberID + "/" + strconv.Itoa(slot)
}

func memoKey(key, localDate string) string {
	return key + "/" + localDate
}

// maybeSweep prunes the dedup ledger and stale fired markers once per day.
func (s *Scheduler) maybeSweep(ctx context.Context) {
	nowUTC := s.now()
	if nowUTC.Sub(s.lastSweep) < 24*time.Hour {
		return
	}
	s.lastSweep = nowUTC

	retention := 30
	if v, err := s.db.GetSetting(ctx, "dedup_retention_days"); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retention = n
		}
	}

	cutoff := nowUTC.AddDate(0, 0, -retention)
	if n, err := s.db.PruneDedupRecords(ctx, cutoff); err != nil {
		s.logger.Printf("Error pruning dedup records: %v", err)
	} else if n > 0 {
		s.logger.Printf("Pruned %d dedup records older than %d days", n, retention)
	}

	markerCutoff := nowUTC.AddDate(0, 0, -7).Format(dateFormat)
	if _, err := s.db.PruneLastFired(ctx, markerCutoff); err != nil {
		s.logger.Printf("Error pruning fired markers: %v", err)
	}

	s.mu.Lock()
	for key := range s.firedMemo {
		if date := key[strings.LastIndex(key, "/")+1:]; date < markerCutoff {
			delete(s.firedMemo, key)
		}
	}
	s.mu.Unlock()
}
