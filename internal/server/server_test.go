package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/serene/internal/config"
	"github.com/dukerupert/serene/internal/database"
	"github.com/dukerupert/serene/internal/session"
)

func setupServer(t *testing.T, env map[string]string) (*Server, *httptest.Server) {
	t.Helper()
	cfg, err := config.FromEnv(func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(context.Background(), db, cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Start(context.Background())
	t.Cleanup(srv.Stop)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func request(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func issue(t *testing.T, srv *Server, userID string) string {
	t.Helper()
	tok, err := srv.Tokens().Issue(userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestHealth(t *testing.T) {
	_, ts := setupServer(t, nil)
	resp := request(t, "GET", ts.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, ts := setupServer(t, nil)
	for _, path := range []string{"/api/me", "/api/challenges", "/api/moods"} {
		if resp := request(t, "GET", ts.URL+path, "", ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, resp.StatusCode)
		}
	}
	if resp := request(t, "GET", ts.URL+"/api/me", "not-a-token", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
}

func TestVerifyAndMe(t *testing.T) {
	srv, ts := setupServer(t, nil)
	tok := issue(t, srv, "uid-1")

	resp := request(t, "POST", ts.URL+"/api/auth/verify", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}

	resp = request(t, "GET", ts.URL+"/api/me", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	var u struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	json.NewDecoder(resp.Body).Decode(&u)
	if u.ID != "uid-1" || u.Email != "uid-1@example.com" {
		t.Errorf("me = %+v", u)
	}
}

func TestVerifyIsRateLimited(t *testing.T) {
	srv, ts := setupServer(t, nil)
	tok := issue(t, srv, "uid-1")

	var last *http.Response
	for i := 0; i < 11; i++ {
		last = request(t, "POST", ts.URL+"/api/auth/verify", tok, "")
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Errorf("11th verify status = %d, want 429", last.StatusCode)
	}
}

func TestPushRoutesNeedVAPIDKeys(t *testing.T) {
	srv, ts := setupServer(t, nil)
	tok := issue(t, srv, "uid-1")
	if resp := request(t, "GET", ts.URL+"/api/push/vapid-key", tok, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without push configured", resp.StatusCode)
	}
}

func TestJournalNotesEncryptedAtRest(t *testing.T) {
	srv, ts := setupServer(t, map[string]string{"SERENE_JOURNAL_PASSPHRASE": "correct horse battery staple"})
	tok := issue(t, srv, "uid-1")

	resp := request(t, "POST", ts.URL+"/api/moods", tok, `{"mood":3,"note":"slept well"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var stored string
	if err := srv.db.QueryRow(`SELECT note FROM mood_entries`).Scan(&stored); err != nil {
		t.Fatalf("read note: %v", err)
	}
	if stored == "slept well" || !strings.HasPrefix(stored, "v1:") {
		t.Errorf("stored note = %q, want sealed", stored)
	}

	resp = request(t, "GET", ts.URL+"/api/moods", tok, "")
	var entries []struct {
		Note string `json:"note"`
	}
	json.NewDecoder(resp.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].Note != "slept well" {
		t.Errorf("entries = %+v, want decrypted note", entries)
	}
}

func TestWebSocketStreamsSessionEvents(t *testing.T) {
	srv, ts := setupServer(t, nil)
	tok := issue(t, srv, "uid-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + tok
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var greeting struct {
		Type    string       `json:"type"`
		Session session.View `json:"session"`
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if err := json.Unmarshal(data, &greeting); err != nil {
		t.Fatalf("unmarshal greeting: %v", err)
	}
	if greeting.Type != "session_snapshot" || len(greeting.Session.Active) == 0 {
		t.Fatalf("greeting = %s", data)
	}

	for !srv.hub.Connected("uid-1") {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	id := greeting.Session.Active[0].ID
	if resp := request(t, "POST", ts.URL+"/api/challenges/"+id+"/start", tok, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		var ev session.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.Type == session.EventChallengeStarted {
			if ev.ChallengeID != id {
				t.Errorf("started %q, want %q", ev.ChallengeID, id)
			}
			return
		}
	}
}
