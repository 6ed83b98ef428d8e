package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"eventpoints-bot/internal/catalog"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestRegistry() (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := NewRegistry()
	r.WithClock(clock)
	return r, clock
}

func TestCreateAndLookup(t *testing.T) {
	r, _ := newTestRegistry()

	s, err := r.Create("g1", "u1", "c1", catalog.CrystalSpider, catalog.Kill)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != CollectingParticipants {
		t.Fatalf("expected collecting_participants, got %s", snap.State)
	}
	if diff := cmp.Diff([]string{"u1"}, snap.Participants); diff != "" {
		t.Fatalf("participants mismatch (-want +got):\n%s", diff)
	}
	if snap.CorrelationToken == "" {
		t.Fatalf("expected correlation token")
	}

	got, ok := r.Lookup("u1", "c1")
	if !ok || got != s {
		t.Fatalf("lookup did not return created session")
	}
	if _, ok := r.Lookup("u1", "c2"); ok {
		t.Fatalf("unexpected hit for other channel")
	}
}

func TestCreateDuplicate(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Create("g1", "u1", "c1", catalog.CrystalSpider, catalog.Kill); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := r.Create("g1", "u1", "c1", catalog.SphereBlue, catalog.Transport)
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected duplicate session, got %v", err)
	}
	s, _ := r.Lookup("u1", "c1")
	if s.Snapshot().EventType != catalog.CrystalSpider {
		t.Fatalf("existing session was overwritten")
	}
}

func TestRebindPreservesIdentity(t *testing.T) {
	r, _ := newTestRegistry()
	s, _ := r.Create("g1", "u1", "c1", catalog.SphereGold, catalog.Transport)
	before := s.Snapshot()

	moved, err := r.Rebind("c1", "t1", "u1")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if moved != s {
		t.Fatalf("rebind returned a different session")
	}
	if _, ok := r.Lookup("u1", "c1"); ok {
		t.Fatalf("old key still live")
	}
	got, ok := r.Lookup("u1", "t1")
	if !ok {
		t.Fatalf("new key missing")
	}
	after := got.Snapshot()
	if after.ChannelID != "t1" {
		t.Fatalf("expected channel t1, got %s", after.ChannelID)
	}
	if diff := cmp.Diff(before.Participants, after.Participants); diff != "" {
		t.Fatalf("participants changed:\n%s", diff)
	}
	if before.EventType != after.EventType || before.Action != after.Action || before.Screenshot != after.Screenshot {
		t.Fatalf("session fields changed across rebind")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
}

func TestRebindRefusesOccupiedKey(t *testing.T) {
	r, _ := newTestRegistry()
	_, _ = r.Create("g1", "u1", "c1", catalog.SphereGold, catalog.Transport)
	_, _ = r.Create("g1", "u1", "t1", catalog.SphereBlue, catalog.Transport)

	if _, err := r.Rebind("c1", "t1", "u1"); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected duplicate session, got %v", err)
	}
	if _, err := r.Rebind("missing", "t2", "u1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRebindIfRespectsMatch(t *testing.T) {
	r, _ := newTestRegistry()
	s, _ := r.Create("g1", "u1", "c1", catalog.SphereGold, catalog.Transport)
	s.SetAnnouncement("c1", "m1", r.Now())
	owns := func(thread string) func(Snapshot) bool {
		return func(snap Snapshot) bool { return snap.AnnouncementMessageID == thread }
	}

	if _, err := r.RebindIf("c1", "m2", "u1", owns("m2")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for foreign thread, got %v", err)
	}
	if _, ok := r.Lookup("u1", "c1"); !ok {
		t.Fatalf("session left its key after refused rebind")
	}
	moved, err := r.RebindIf("c1", "m1", "u1", owns("m1"))
	if err != nil || moved != s {
		t.Fatalf("rebind into own thread: %v", err)
	}
}

func TestRescueScanPrefersOwner(t *testing.T) {
	r, _ := newTestRegistry()
	a, _ := r.Create("g1", "u1", "c1", catalog.CrystalSpider, catalog.Kill)
	b, _ := r.Create("g1", "u2", "c1", catalog.CrystalSpider, catalog.Kill)
	a.rebind("t1", r.Now())
	b.rebind("t1", r.Now())

	got, ok := r.RescueScan("t1", "u2")
	if !ok || got != b {
		t.Fatalf("expected owner match for u2")
	}
	if _, ok := r.Lookup("u2", "t1"); !ok {
		t.Fatalf("rescued session was not rekeyed")
	}
	if _, ok := r.Lookup("u2", "c1"); ok {
		t.Fatalf("stale key left behind")
	}
}

func TestRescueScanChannelOnlyNeedsSingleCandidate(t *testing.T) {
	r, _ := newTestRegistry()
	a, _ := r.Create("g1", "u1", "c1", catalog.CrystalSpider, catalog.Kill)
	a.rebind("t1", r.Now())

	got, ok := r.RescueScan("t1", "stranger")
	if !ok || got != a {
		t.Fatalf("expected single channel-only match")
	}
	if _, ok := r.Lookup("u1", "t1"); !ok {
		t.Fatalf("expected rekey to owner/thread")
	}

	b, _ := r.Create("g1", "u2", "c1", catalog.CrystalSpider, catalog.Kill)
	b.rebind("t1", r.Now())
	if _, ok := r.RescueScan("t1", "stranger"); ok {
		t.Fatalf("ambiguous channel-only match must not resolve")
	}
}

func TestRemove(t *testing.T) {
	r, _ := newTestRegistry()
	s, _ := r.Create("g1", "u1", "c1", catalog.CrystalSpider, catalog.Kill)
	if !r.Remove("u1", "c1") {
		t.Fatalf("expected remove to succeed")
	}
	if r.Remove("u1", "c1") {
		t.Fatalf("second remove should report false")
	}
	if r.RemoveSession(s) {
		t.Fatalf("session already gone")
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	r, clock := newTestRegistry()
	if n := r.Sweep(); n != 0 {
		t.Fatalf("sweep without ttl evicted %d", n)
	}
	r.WithTTL(10 * time.Minute)
	_, _ = r.Create("g1", "u1", "c1", catalog.CrystalSpider, catalog.Kill)
	clock.now = clock.now.Add(5 * time.Minute)
	fresh, _ := r.Create("g1", "u2", "c1", catalog.CrystalSpider, catalog.Kill)
	clock.now = clock.now.Add(6 * time.Minute)

	if n := r.Sweep(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if got, ok := r.Lookup("u2", "c1"); !ok || got != fresh {
		t.Fatalf("fresh session evicted")
	}
}

func TestRegistryNeverAliasesSessions(t *testing.T) {
	r, _ := newTestRegistry()
	rng := rand.New(rand.NewSource(42))
	users := []string{"u1", "u2", "u3"}
	channels := []string{"c1", "c2", "t1", "t2"}
	pick := func(values []string) string { return values[rng.Intn(len(values))] }

	for i := 0; i < 2000; i++ {
		switch rng.Intn(4) {
		case 0:
			_, _ = r.Create("g1", pick(users), pick(channels), catalog.CrystalSpider, catalog.Kill)
		case 1:
			_, _ = r.Rebind(pick(channels), pick(channels), pick(users))
		case 2:
			_, _ = r.RescueScan(pick(channels), pick(users))
		case 3:
			r.Remove(pick(users), pick(channels))
		}

		seen := make(map[*Session]Key)
		r.mu.RLock()
		for key, s := range r.entries {
			if prev, dup := seen[s]; dup {
				r.mu.RUnlock()
				t.Fatalf("step %d: session stored under %s and %s", i, prev, key)
			}
			seen[s] = key
			snap := s.Snapshot()
			if snap.SubmitterID != key.SubmitterID {
				r.mu.RUnlock()
				t.Fatalf("step %d: key %s holds session of %s", i, key, snap.SubmitterID)
			}
		}
		r.mu.RUnlock()
	}
}
