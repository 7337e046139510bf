package history

import (
	"testing"
	"time"
)

func appendAged(s Store, id string, age time.Duration, pinned bool) {
	e := testEntry(id, id)
	e.CreatedAt = time.Now().Add(-age)
	e.UpdatedAt = e.CreatedAt
	e.Pinned = pinned
	s.Append(e)
}

// newDueRetention builds a service whose next run is already in the
// past, so a single checkDue triggers the purge.
func newDueRetention(t *testing.T, s Store, keepPinned bool) *Retention {
	t.Helper()
	r, err := NewRetention(s, "* * * * *", 24*time.Hour, keepPinned)
	if err != nil {
		t.Fatal(err)
	}
	r.next = time.Now().Add(-time.Minute)
	return r
}

func TestNewRetentionRejectsBadSchedule(t *testing.T) {
	s := newTestFileStore(t, Options{})
	if _, err := NewRetention(s, "not a cron", time.Hour, true); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, err := NewRetention(s, "0 3 * * *", time.Hour, true); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestNewRetentionRejectsNonPositiveMaxAge(t *testing.T) {
	s := newTestFileStore(t, Options{})
	if _, err := NewRetention(s, "0 3 * * *", 0, true); err == nil {
		t.Fatal("expected error for zero max age")
	}
	if _, err := NewRetention(s, "0 3 * * *", -time.Hour, true); err == nil {
		t.Fatal("expected error for negative max age")
	}
}

func TestRetentionPurgesWhenDue(t *testing.T) {
	s := newTestFileStore(t, Options{})
	appendAged(s, "stale", 48*time.Hour, false)
	appendAged(s, "stale-pinned", 48*time.Hour, true)
	appendAged(s, "fresh", time.Hour, false)

	r := newDueRetention(t, s, true)
	was := r.next
	r.checkDue()

	if _, ok := s.Get("stale"); ok {
		t.Error("stale entry survived")
	}
	if _, ok := s.Get("stale-pinned"); !ok {
		t.Error("pinned entry purged despite keep setting")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("fresh entry purged")
	}
	if r.next.IsZero() || !r.next.After(was) {
		t.Errorf("next run not rescheduled: %v", r.next)
	}
}

func TestRetentionSweepsPinnedWhenConfigured(t *testing.T) {
	s := newTestFileStore(t, Options{})
	appendAged(s, "stale-pinned", 48*time.Hour, true)
	appendAged(s, "fresh-pinned", time.Hour, true)

	r := newDueRetention(t, s, false)
	r.checkDue()

	if _, ok := s.Get("stale-pinned"); ok {
		t.Error("old pinned entry kept with keep_pinned disabled")
	}
	if _, ok := s.Get("fresh-pinned"); !ok {
		t.Error("recent pinned entry swept")
	}
}

func TestRetentionSkipsWhenNotDue(t *testing.T) {
	s := newTestFileStore(t, Options{})
	appendAged(s, "stale", 48*time.Hour, false)

	r, err := NewRetention(s, "* * * * *", 24*time.Hour, true)
	if err != nil {
		t.Fatal(err)
	}
	r.next = time.Now().Add(time.Hour)
	r.checkDue()

	if _, ok := s.Get("stale"); !ok {
		t.Error("purge ran before the scheduled time")
	}
}

func TestRetentionStartStopIdempotent(t *testing.T) {
	s := newTestFileStore(t, Options{})
	r, err := NewRetention(s, "0 3 * * *", time.Hour, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	r.mu.Lock()
	next := r.next
	r.mu.Unlock()
	if next.IsZero() {
		t.Error("Start did not schedule the first run")
	}
	r.Stop()
	r.Stop()
}
