package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/session"
)

func TestChallengeCatalog(t *testing.T) {
	env := setupHandlerTest(t)
	rec := env.do(t, "u1", "GET", "/api/challenges/catalog", nil)
	expectStatus(t, rec, http.StatusOK)

	items := decode[[]catalogItem](t, rec)
	if len(items) != env.catalog.Len() {
		t.Fatalf("catalog = %d items, want %d", len(items), env.catalog.Len())
	}
	for _, it := range items {
		if it.DurationMinutes <= 0 {
			t.Errorf("%s duration = %d", it.ID, it.DurationMinutes)
		}
	}
}

func TestChallengeStartAndCancel(t *testing.T) {
	env := setupHandlerTest(t)

	rec := env.do(t, "u1", "GET", "/api/challenges", nil)
	expectStatus(t, rec, http.StatusOK)
	view := decode[session.View](t, rec)
	if len(view.Active) != challenge.DefaultTarget {
		t.Fatalf("active = %d, want %d", len(view.Active), challenge.DefaultTarget)
	}
	id := view.Active[0].ID

	expectStatus(t, env.do(t, "u1", "POST", "/api/challenges/"+id+"/cancel", nil), http.StatusConflict)

	rec = env.do(t, "u1", "POST", "/api/challenges/"+id+"/start", nil)
	expectStatus(t, rec, http.StatusOK)
	tm := decode[challenge.Timer](t, rec)
	if tm.State != challenge.StateRunning || tm.Remaining != view.Active[0].DurationMinutes*60 {
		t.Errorf("timer = %+v", tm)
	}

	rec = env.do(t, "u1", "GET", "/api/challenges", nil)
	view = decode[session.View](t, rec)
	if view.Active[0].State != challenge.StateRunning || view.Active[0].EndsAt == nil {
		t.Errorf("active[0] = %+v, want running", view.Active[0])
	}

	expectStatus(t, env.do(t, "u1", "POST", "/api/challenges/"+id+"/cancel", nil), http.StatusNoContent)
}

func TestChallengeErrors(t *testing.T) {
	env := setupHandlerTest(t)
	view := decode[session.View](t, env.do(t, "u1", "GET", "/api/challenges", nil))

	offered := challenge.NewSet()
	for _, a := range view.Active {
		offered.Add(a.ID)
	}
	var notOffered string
	for _, d := range env.catalog.All() {
		if !offered.Has(d.ID) {
			notOffered = d.ID
			break
		}
	}

	expectStatus(t, env.do(t, "u1", "POST", "/api/challenges/no-such-thing/start", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, "u1", "POST", "/api/challenges/"+notOffered+"/start", nil), http.StatusConflict)
}

// evictedFirst hands out an already evicted session on the first call.
type evictedFirst struct {
	stale *session.Session
	next  Sessions
	calls int
}

func (e *evictedFirst) Get(ctx context.Context, userID string) (*session.Session, error) {
	e.calls++
	if e.calls == 1 {
		return e.stale, nil
	}
	return e.next.Get(ctx, userID)
}

func TestChallengeStartRetriesEvictedSession(t *testing.T) {
	env := setupHandlerTest(t)
	view := decode[session.View](t, env.do(t, "u1", "GET", "/api/challenges", nil))
	id := view.Active[0].ID
	env.flush(t)

	stale, err := env.manager.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := env.manager.EvictIdle(env.clock.Now().Add(2 * time.Hour)); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}

	sessions := &evictedFirst{stale: stale, next: env.manager}
	h := NewChallengeHandler(sessions, env.catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/challenges/{id}/start", h.Start)

	req := httptest.NewRequest("POST", "/api/challenges/"+id+"/start", nil)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: "u1"}))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)

	if sessions.calls != 2 {
		t.Errorf("session lookups = %d, want 2", sessions.calls)
	}
	live, _ := env.manager.Get(context.Background(), "u1")
	if live == stale {
		t.Fatal("expected a fresh session")
	}
	if st := live.Snapshot().Active[0]; st.ID != id || st.State != challenge.StateRunning {
		t.Errorf("active[0] = %+v, want %s running on the live session", st, id)
	}
}
