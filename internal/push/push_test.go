package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/serene/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestPayloadFor(t *testing.T) {
	p := PayloadFor(model.Notification{ID: "n1", Type: model.NotifTypeAssessmentAlert, Title: "Assessment result", Message: "m"})
	if p.Title != "Assessment result" || p.Body != "m" || p.URL != "/assessment" || p.Tag != "assessment_alert-n1" {
		t.Errorf("payload = %+v", p)
	}
}

// browserSubscription returns a subscription with real client keys pointing
// at endpoint.
func browserSubscription(t *testing.T, id int64, endpoint string) model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("client key: %v", err)
	}
	secret := make([]byte, 16)
	rand.Read(secret)
	return model.PushSubscription{
		ID:        id,
		UserID:    "u1",
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(secret),
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("vapid: %v", err)
	}
	return NewService(pub, priv, "mailto:test@example.com")
}

func TestServiceSend(t *testing.T) {
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" || r.Header.Get("TTL") == "" {
			t.Errorf("missing vapid headers: %v", r.Header)
		}
		got.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	svc := newTestService(t)
	sub := browserSubscription(t, 1, srv.URL+"/push/abc")
	if err := svc.Send(context.Background(), &sub, Payload{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Load() != 1 {
		t.Errorf("push service hit %d times", got.Load())
	}
}

func TestServiceSendExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	sub := browserSubscription(t, 1, srv.URL)
	if err := newTestService(t).Send(context.Background(), &sub, Payload{Title: "t"}); err != ErrExpired {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

type fakeSubs struct {
	mu      sync.Mutex
	subs    []model.PushSubscription
	deleted []string
}

func (f *fakeSubs) ListByUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PushSubscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) DeleteByEndpoint(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, _ Payload) error {
	f.mu.Lock()
	f.sent = append(f.sent, sub.Endpoint)
	n := len(f.sent)
	f.mu.Unlock()
	if n == 2 {
		close(f.done)
	}
	if sub.Endpoint == "gone" {
		return ErrExpired
	}
	return nil
}

func TestNotifierDeletesExpired(t *testing.T) {
	subs := &fakeSubs{subs: []model.PushSubscription{
		{ID: 1, UserID: "u1", Endpoint: "live"},
		{ID: 2, UserID: "u1", Endpoint: "gone"},
		{ID: 3, UserID: "u2", Endpoint: "other"},
	}}
	sender := &fakeSender{done: make(chan struct{})}
	n := NewNotifier(sender, subs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Start(context.Background())

	n.Notify("u1", model.Notification{ID: "x", Type: model.NotifTypeChallengeCompleted, Title: "Challenge completed"})

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	n.Stop()

	if len(sender.sent) != 2 {
		t.Errorf("sent = %v, want both of u1's subscriptions", sender.sent)
	}
	subs.mu.Lock()
	defer subs.mu.Unlock()
	if len(subs.deleted) != 1 || subs.deleted[0] != "gone" {
		t.Errorf("deleted = %v, want [gone]", subs.deleted)
	}
}
