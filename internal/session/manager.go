package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/model"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
	evictInterval      = time.Minute
)

// Manager lazily creates one session per user and evicts idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	catalog  *challenge.Catalog
	store    Store
	writer   *Writer
	pub      Publisher
	logger   *slog.Logger
	cfg      Config
	idle     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(catalog *challenge.Catalog, st Store, w *Writer, pub Publisher, logger *slog.Logger, cfg Config, idle time.Duration) *Manager {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Manager{
		sessions: make(map[string]*Session),
		catalog:  catalog,
		store:    st,
		writer:   w,
		pub:      pub,
		logger:   logger.With("component", "session"),
		cfg:      cfg.withDefaults(),
		idle:     idle,
		ctx:      context.Background(),
	}
}

// Start runs the eviction loop. Sessions created afterwards tick until ctx
// is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	ctx = m.ctx
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.EvictIdle(m.cfg.Now()); n > 0 {
					m.logger.Debug("evicted idle sessions", "count", n)
				}
			}
		}
	}()
}

// Stop halts the eviction loop and every session.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.StopAll()
}

// Get returns the user's session, loading it from the store on first use.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		s.touch(m.cfg.Now())
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if u == nil {
		// Queued writes reference the user row, so create it up front.
		if err := m.store.MergeUser(ctx, userID, model.UserPatch{}); err != nil {
			return nil, fmt.Errorf("create user %s: %w", userID, err)
		}
		u = &model.User{ID: userID}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.touch(m.cfg.Now())
		return s, nil
	}
	s := New(u, m.catalog, m.store, m.writer, m.pub, m.logger, m.cfg)
	s.Start(m.ctx)
	m.sessions[userID] = s
	return s, nil
}

// Lookup returns an already loaded session without touching the store.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// EvictIdle stops and drops sessions with no running timers that have been
// inactive for the idle timeout. It returns the number evicted. Callers
// still holding an evicted session get ErrStopped and should call Get again.
func (m *Manager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.retireIfIdle(now, m.idle) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Stop()
	}
	return len(idle)
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
