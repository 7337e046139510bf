package history

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Retention purges entries older than a maximum age on a cron schedule.
// Pinned entries are exempt unless keepPinned is false.
type Retention struct {
	store      Store
	expr       string
	maxAge     time.Duration
	keepPinned bool

	running  bool
	stopChan chan struct{}
	next     time.Time
	mu       sync.Mutex
}

// NewRetention validates the cron expression and builds the service.
func NewRetention(store Store, expr string, maxAge time.Duration, keepPinned bool) (*Retention, error) {
	gx := gronx.New()
	if !gx.IsValid(expr) {
		return nil, fmt.Errorf("invalid retention schedule: %s", expr)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	return &Retention{store: store, expr: expr, maxAge: maxAge, keepPinned: keepPinned}, nil
}

// Start begins the scheduling loop.
func (r *Retention) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	next, err := gronx.NextTickAfter(r.expr, time.Now(), false)
	if err != nil {
		return fmt.Errorf("compute first retention run: %w", err)
	}
	r.next = next
	r.stopChan = make(chan struct{})
	r.running = true

	go r.runLoop(r.stopChan)

	slog.Info("history retention started", "schedule", r.expr, "max_age", r.maxAge, "next_run", next)
	return nil
}

// Stop halts the scheduling loop.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stopChan)
	r.running = false
	slog.Info("history retention stopped")
}

func (r *Retention) runLoop(stopChan chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			r.checkDue()
		}
	}
}

func (r *Retention) checkDue() {
	r.mu.Lock()
	due := !r.next.IsZero() && !time.Now().Before(r.next)
	if due {
		if next, err := gronx.NextTickAfter(r.expr, time.Now(), false); err == nil {
			r.next = next
		} else {
			slog.Error("retention: failed to compute next run", "expr", r.expr, "error", err)
			r.next = time.Time{}
		}
	}
	r.mu.Unlock()

	if due {
		r.purge()
	}
}

func (r *Retention) purge() {
	cutoff := time.Now().Add(-r.maxAge)
	n, err := r.store.PurgeOlderThan(cutoff)
	if err != nil {
		slog.Error("retention: purge failed", "error", err)
		return
	}
	// The store exempts pinned entries; when the config says pins age
	// out too, sweep them here.
	if !r.keepPinned {
		for _, e := range r.store.List(0) {
			if e.Pinned && e.UpdatedAt.Before(cutoff) {
				if err := r.store.Remove(e.ID); err != nil {
					slog.Error("retention: failed to remove pinned entry", "entry", e.ID, "error", err)
					continue
				}
				n++
			}
		}
	}
	if n > 0 {
		slog.Info("retention: purged old entries", "removed", n, "cutoff", cutoff)
	}
}
