package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/database"
	"github.com/dukerupert/serene/internal/push"
	"github.com/dukerupert/serene/internal/session"
	"github.com/dukerupert/serene/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	mux     *http.ServeMux
	clock   *testClock
	writer  *session.Writer
	manager *session.Manager
	catalog *challenge.Catalog
	users   *store.UserStore
	vapid   string
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	writer := session.NewWriter(logger)
	writer.Start(context.Background())
	t.Cleanup(writer.Stop)

	catalog := challenge.MustCatalog(challenge.DefaultDefinitions())
	agg := store.NewUserAggregate(db)
	manager := session.NewManager(catalog, agg, writer, nil, logger,
		session.Config{Now: clock.Now, TickInterval: time.Hour}, time.Hour)
	t.Cleanup(manager.StopAll)

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate vapid keys: %v", err)
	}

	authH := NewAuthHandler(agg.UserStore, logger)
	assessH := NewAssessmentHandler(manager, agg.AssessmentStore, logger)
	moodH := NewMoodHandler(store.NewMoodStore(db, nil), manager, clock.Now, logger)
	challengeH := NewChallengeHandler(manager, catalog, logger)
	notifH := NewNotificationHandler(agg.NotificationStore, logger)
	notifH.now = clock.Now
	pushH := NewPushHandler(store.NewPushStore(db), push.NewService(pub, priv, "mailto:test@serene.test"), logger)
	crisisH := NewCrisisHandler(store.NewCrisisEventStore(db), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/verify", authH.Verify)
	mux.HandleFunc("GET /api/me", authH.Me)
	mux.HandleFunc("GET /api/assessment/questions", assessH.Questions)
	mux.HandleFunc("POST /api/assessments", assessH.Submit)
	mux.HandleFunc("GET /api/assessments", assessH.List)
	mux.HandleFunc("POST /api/moods", moodH.Create)
	mux.HandleFunc("GET /api/moods", moodH.List)
	mux.HandleFunc("GET /api/moods/summary", moodH.Summary)
	mux.HandleFunc("GET /api/challenges", challengeH.Snapshot)
	mux.HandleFunc("GET /api/challenges/catalog", challengeH.Catalog)
	mux.HandleFunc("POST /api/challenges/{id}/start", challengeH.Start)
	mux.HandleFunc("POST /api/challenges/{id}/cancel", challengeH.Cancel)
	mux.HandleFunc("GET /api/notifications", notifH.List)
	mux.HandleFunc("POST /api/notifications/{id}/seen", notifH.Seen)
	mux.HandleFunc("POST /api/push/subscribe", pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/crisis-events", crisisH.Create)
	mux.HandleFunc("GET /api/crisis-events", crisisH.List)

	return &testEnv{
		mux:     mux,
		clock:   clock,
		writer:  writer,
		manager: manager,
		catalog: catalog,
		users:   agg.UserStore,
		vapid:   pub,
	}
}

// do sends a request as userID. The user row is created first, as the
// EnsureUser middleware would.
func (e *testEnv) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	if _, err := e.users.EnsureUser(context.Background(), userID, userID+"@example.com"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, r)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, Email: userID + "@example.com"}))
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	if err := e.writer.Flush(context.Background()); err != nil {
		t.Fatalf("flush writer: %v", err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
