package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/config"
	"github.com/dukerupert/serene/internal/handler"
	"github.com/dukerupert/serene/internal/journal"
	"github.com/dukerupert/serene/internal/middleware"
	"github.com/dukerupert/serene/internal/push"
	"github.com/dukerupert/serene/internal/session"
	"github.com/dukerupert/serene/internal/store"
	ws "github.com/dukerupert/serene/internal/websocket"
)

const rateLimitCleanupInterval = 5 * time.Minute

var _ session.Store = (*store.UserAggregate)(nil)

type Server struct {
	db            *sql.DB
	cfg           config.Config
	hub           *ws.Hub
	tokens        *auth.Tokens
	users         *store.UserStore
	writer        *session.Writer
	manager       *session.Manager
	notifier      *push.Notifier
	rateLimiter   *middleware.RateLimiter
	authH         *handler.AuthHandler
	assessmentH   *handler.AssessmentHandler
	moodH         *handler.MoodHandler
	challengeH    *handler.ChallengeHandler
	notificationH *handler.NotificationHandler
	pushH         *handler.PushHandler
	crisisH       *handler.CrisisHandler
	logger        *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, db *sql.DB, cfg config.Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	agg := store.NewUserAggregate(db)
	settingsStore := store.NewSettingsStore(db)
	pushStore := store.NewPushStore(db)
	crisisStore := store.NewCrisisEventStore(db)

	// Mood notes are sealed at rest when a passphrase is configured
	var cipher store.NoteCipher
	if cfg.JournalPassphrase != "" {
		salt, err := settingsStore.GetOrCreate(ctx, store.SettingJournalSalt, journal.GenerateSalt)
		if err != nil {
			return nil, fmt.Errorf("load journal salt: %w", err)
		}
		sealer, err := journal.NewSealer(cfg.JournalPassphrase, salt)
		if err != nil {
			return nil, fmt.Errorf("create journal sealer: %w", err)
		}
		cipher = sealer
	}
	moodStore := store.NewMoodStore(db, cipher)

	catalog, err := challenge.NewCatalog(challenge.DefaultDefinitions())
	if err != nil {
		return nil, fmt.Errorf("load challenge catalog: %w", err)
	}

	// Push notification service + notifier
	var (
		pushSvc  *push.Service
		notifier *push.Notifier
		pushH    *handler.PushHandler
	)
	if cfg.PushEnabled() {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.PushSubject)
		notifier = push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	writer := session.NewWriter(logger.With("component", "writer"))
	manager := session.NewManager(catalog, agg, writer, newPublisher(hub, notifier), logger, session.Config{
		Target:       cfg.ChallengeTarget,
		Award:        cfg.PointsPerComplete,
		TickInterval: cfg.TickInterval,
	}, cfg.IdleTimeout)

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		tokens:        auth.NewTokens(cfg.JWTSecret, cfg.TokenIssuer),
		users:         agg.UserStore,
		writer:        writer,
		manager:       manager,
		notifier:      notifier,
		rateLimiter:   middleware.NewRateLimiter(),
		authH:         handler.NewAuthHandler(agg.UserStore, logger.With("component", "auth")),
		assessmentH:   handler.NewAssessmentHandler(manager, agg.AssessmentStore, logger.With("component", "assessment")),
		moodH:         handler.NewMoodHandler(moodStore, manager, time.Now, logger.With("component", "mood")),
		challengeH:    handler.NewChallengeHandler(manager, catalog, logger.With("component", "challenge")),
		notificationH: handler.NewNotificationHandler(agg.NotificationStore, logger.With("component", "notification")),
		pushH:         pushH,
		crisisH:       handler.NewCrisisHandler(crisisStore, logger.With("component", "crisis")),
		logger:        logger,
	}, nil
}

// newPublisher fans session events out to the user's WebSocket clients and,
// for notifications, to their push subscriptions.
func newPublisher(hub *ws.Hub, notifier *push.Notifier) session.Publisher {
	return session.PublisherFunc(func(userID string, ev session.Event) {
		hub.SendTo(userID, ev)
		if notifier != nil && ev.Type == session.EventNotification && ev.Notification != nil {
			notifier.Notify(userID, *ev.Notification)
		}
	})
}

// Start runs the background workers: the persistence writer, the session
// manager, push delivery and rate limiter cleanup.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.writer.Start(ctx)
	s.manager.Start(ctx)
	if s.notifier != nil {
		s.notifier.Start(ctx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.rateLimiter.RunCleanup(ctx, rateLimitCleanupInterval)
	}()
}

// Stop halts sessions first so no new writes are queued, then drains the
// writer and stops push delivery.
func (s *Server) Stop() {
	s.manager.Stop()
	s.writer.Stop()
	if s.notifier != nil {
		s.notifier.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Tokens returns the token signer for tooling and tests.
func (s *Server) Tokens() *auth.Tokens {
	return s.tokens
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(s.tokens)
	ensureUser := middleware.EnsureUser(s.ensureUser, s.logger.With("component", "auth"))
	protect := func(h http.Handler) http.Handler { return requireAuth(ensureUser(h)) }

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("POST /api/auth/verify", s.rateLimited(requireAuth(http.HandlerFunc(s.authH.Verify))))

	// Protected routes, wrapped with RequireAuth and EnsureUser
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", protect(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) ensureUser(ctx context.Context, userID, email string) error {
	_, err := s.users.EnsureUser(ctx, userID, email)
	return err
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   status,
		"sessions": s.manager.Len(),
		"clients":  s.hub.ClientCount(),
	})
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)(h)
}

func (s *Server) greet(ctx context.Context, userID string) (any, error) {
	sess, err := s.manager.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": "session_snapshot", "session": sess.Snapshot()}, nil
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Assessment routes
	mux.HandleFunc("GET /api/assessment/questions", s.assessmentH.Questions)
	mux.HandleFunc("POST /api/assessments", s.assessmentH.Submit)
	mux.HandleFunc("GET /api/assessments", s.assessmentH.List)

	// Mood routes
	mux.HandleFunc("POST /api/moods", s.moodH.Create)
	mux.HandleFunc("GET /api/moods", s.moodH.List)
	mux.HandleFunc("GET /api/moods/summary", s.moodH.Summary)

	// Challenge routes
	mux.HandleFunc("GET /api/challenges", s.challengeH.Snapshot)
	mux.HandleFunc("GET /api/challenges/catalog", s.challengeH.Catalog)
	mux.HandleFunc("POST /api/challenges/{id}/start", s.challengeH.Start)
	mux.HandleFunc("POST /api/challenges/{id}/cancel", s.challengeH.Cancel)

	// Notification routes
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("POST /api/notifications/{id}/seen", s.notificationH.Seen)

	// Crisis support routes
	mux.HandleFunc("POST /api/crisis-events", s.crisisH.Create)
	mux.HandleFunc("GET /api/crisis-events", s.crisisH.List)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// Live session events
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.greet, s.cfg.AllowedOrigins, s.logger.With("component", "websocket")))
}
