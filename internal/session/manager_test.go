package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/model"
)

func newTestManager(t *testing.T, store *fakeStore, now func() time.Time) *Manager {
	t.Helper()
	w := NewWriter(discardLogger())
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	m := NewManager(testCatalog(), store, w, &recorder{}, discardLogger(), Config{Now: now, TickInterval: time.Hour}, time.Minute)
	t.Cleanup(m.StopAll)
	return m
}

func TestManagerLoadsOnce(t *testing.T) {
	store := newFakeStore()
	store.users["u1"] = &model.User{ID: "u1", Points: 30, PersonalizedChallenges: []string{"h1", "m1", "l1"}}
	m := newTestManager(t, store, func() time.Time { return t0 })

	a, err := m.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := m.Get(context.Background(), "u1")
	if a != b {
		t.Error("expected the same session")
	}
	if store.getCalls != 1 {
		t.Errorf("store loads = %d, want 1", store.getCalls)
	}
	if a.Snapshot().Points != 30 {
		t.Errorf("points = %d, want 30", a.Snapshot().Points)
	}
}

func TestManagerNewUser(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store, func() time.Time { return t0 })
	s, err := m.Get(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	store.mu.Lock()
	first := store.patches[0]
	store.mu.Unlock()
	if first.SetChallenges || len(first.AddCompleted) != 0 {
		t.Errorf("first write = %+v, want an empty patch creating the row", first)
	}
	if s.UserID() != "fresh" {
		t.Errorf("user id = %q", s.UserID())
	}
	if _, ok := m.Lookup("fresh"); !ok {
		t.Error("lookup should find the loaded session")
	}
}

func TestManagerEvictIdle(t *testing.T) {
	c := &clock{now: t0}
	store := newFakeStore()
	store.users["busy"] = &model.User{ID: "busy", PersonalizedChallenges: []string{"m1", "h1", "l1"}}
	m := newTestManager(t, store, c.Now)

	m.Get(context.Background(), "idle")
	busy, _ := m.Get(context.Background(), "busy")
	if _, err := busy.StartChallenge("m1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if n := m.EvictIdle(c.Advance(30 * time.Second)); n != 0 {
		t.Errorf("evicted %d before timeout", n)
	}
	if n := m.EvictIdle(c.Advance(2 * time.Minute)); n != 1 {
		t.Errorf("evicted %d, want only the idle session", n)
	}
	if _, ok := m.Lookup("busy"); !ok {
		t.Error("session with a running timer must survive eviction")
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestManagerGetRefreshesActivity(t *testing.T) {
	c := &clock{now: t0}
	m := newTestManager(t, newFakeStore(), c.Now)

	first, _ := m.Get(context.Background(), "u1")
	c.Advance(50 * time.Second)
	m.Get(context.Background(), "u1")

	if n := m.EvictIdle(c.Advance(50 * time.Second)); n != 0 {
		t.Fatalf("evicted %d, want Get to count as activity", n)
	}
	if s, _ := m.Get(context.Background(), "u1"); s != first {
		t.Error("expected the same session after a refreshed Get")
	}
}

func TestManagerEvictedSessionKeepsNoTimers(t *testing.T) {
	c := &clock{now: t0}
	store := newFakeStore()
	store.users["u1"] = &model.User{ID: "u1", PersonalizedChallenges: []string{"h1", "m1", "l1"}}
	m := newTestManager(t, store, c.Now)

	stale, _ := m.Get(context.Background(), "u1")
	if n := m.EvictIdle(c.Advance(2 * time.Minute)); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, err := stale.StartChallenge("h1"); !errors.Is(err, ErrStopped) {
		t.Fatalf("start on evicted session err = %v, want ErrStopped", err)
	}

	fresh, err := m.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh == stale {
		t.Fatal("expected a new session after eviction")
	}
	tm, err := fresh.StartChallenge("h1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tm.State != challenge.StateRunning {
		t.Errorf("state = %q, want running", tm.State)
	}
	if n := m.EvictIdle(c.Advance(2 * time.Minute)); n != 0 {
		t.Errorf("evicted %d, want the running session kept", n)
	}
}
