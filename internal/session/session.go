package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/serene/internal/assessment"
	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/model"
	"github.com/dukerupert/serene/internal/mood"
)

var (
	ErrNotActive  = errors.New("challenge is not in the active set")
	ErrNotRunning = errors.New("challenge is not running")
	ErrStopped    = errors.New("session stopped")
)

const (
	DefaultTickInterval = time.Second
	DefaultAward        = 10
)

// Config tunes session behaviour. Zero fields take defaults.
type Config struct {
	Target       int
	Award        int
	TickInterval time.Duration
	Now          func() time.Time
	NewRand      func() *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.Target <= 0 {
		c.Target = challenge.DefaultTarget
	}
	if c.Award <= 0 {
		c.Award = DefaultAward
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewRand == nil {
		c.NewRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	return c
}

// Session owns one user's challenge timers, active set, completion set and
// points. All state is guarded by mu; persistence goes through the writer
// and events are published after mu is released.
type Session struct {
	mu            sync.Mutex
	userID        string
	catalog       *challenge.Catalog
	tracker       *challenge.Tracker
	active        []challenge.Definition
	completed     challenge.Set
	points        int
	severity      assessment.Severity
	hasAssessment bool
	assessmentDue bool
	lastActive    time.Time
	stopped       bool
	rng           *rand.Rand

	store  Store
	writer *Writer
	pub    Publisher
	logger *slog.Logger
	cfg    Config

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New restores a session from the persisted user. A user with no stored
// active set gets an initial selection, and a stored set that has fallen
// below the low-water mark is replenished.
func New(u *model.User, catalog *challenge.Catalog, st Store, w *Writer, pub Publisher, logger *slog.Logger, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		userID:        u.ID,
		catalog:       catalog,
		tracker:       challenge.NewTracker(),
		completed:     challenge.NewSet(u.CompletedChallengeIDs...),
		points:        u.Points,
		assessmentDue: u.AssessmentDue,
		lastActive:    cfg.Now(),
		rng:           cfg.NewRand(),
		store:         st,
		writer:        w,
		pub:           pub,
		logger:        logger.With("user_id", u.ID),
		cfg:           cfg,
	}
	if u.LastAssessment != nil {
		s.hasAssessment = true
		s.severity = assessment.Severity(u.LastAssessment.Severity)
	}

	s.active = catalog.Lookup(u.PersonalizedChallenges)
	switch {
	case len(s.active) == 0:
		s.active = catalog.SelectInitial(s.severity, s.completed, cfg.Target, s.rng)
		if challenge.NeedsReplenish(s.active, s.completed) {
			s.replenishLocked()
		} else {
			s.persistActiveLocked(false)
		}
	case challenge.NeedsReplenish(s.active, s.completed):
		s.replenishLocked()
	}

	for _, d := range s.active {
		if s.completed.Has(d.ID) {
			s.tracker.MarkCompleted(d.ID)
		}
	}
	return s
}

func (s *Session) UserID() string { return s.userID }

// Start begins the tick loop.
func (s *Session) Start(ctx context.Context) {
	s.loopMu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.loopMu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(s.cfg.Now())
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit. Operations on a
// stopped session fail with ErrStopped.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.loopMu.Lock()
	cancel := s.cancel
	done := s.done
	s.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick advances every running timer. Completions in the same tick are
// awarded in one batched points update.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	res := s.tracker.Tick(now)
	if len(res.Updated) == 0 && len(res.Completed) == 0 {
		s.mu.Unlock()
		return
	}

	var events []Event
	for i := range res.Updated {
		tm := res.Updated[i]
		events = append(events, Event{Type: EventChallengeTick, ChallengeID: tm.ChallengeID, Timer: &tm})
	}
	if len(res.Completed) > 0 {
		events = append(events, s.completeLocked(res.Completed, now)...)
	}
	s.mu.Unlock()

	s.publish(events)
}

func (s *Session) completeLocked(done []challenge.Timer, now time.Time) []Event {
	var events []Event
	ids := make([]string, 0, len(done))
	for i := range done {
		tm := done[i]
		ids = append(ids, tm.ChallengeID)
		s.completed.Add(tm.ChallengeID)
		events = append(events, Event{Type: EventChallengeCompleted, ChallengeID: tm.ChallengeID, Timer: &tm})
	}

	award := s.cfg.Award * len(done)
	s.points += award
	s.enqueue("increment_points", func(ctx context.Context) error {
		return s.store.IncrementPoints(ctx, s.userID, award)
	})
	s.enqueue("add_completed", func(ctx context.Context) error {
		return s.store.MergeUser(ctx, s.userID, model.UserPatch{AddCompleted: ids})
	})
	events = append(events, Event{Type: EventPointsAwarded, Points: s.points, Awarded: award})

	for _, id := range ids {
		title := id
		if d, ok := s.catalog.Get(id); ok {
			title = d.Title
		}
		n := s.notifyLocked(model.NotifTypeChallengeCompleted, "Challenge completed",
			fmt.Sprintf("You completed %s and earned %d points.", title, s.cfg.Award), now)
		events = append(events, n)
	}

	if challenge.NeedsReplenish(s.active, s.completed) {
		events = append(events, s.replenishLocked()...)
	}
	s.lastActive = now
	return events
}

// StartChallenge starts or restarts the timer of an active challenge.
func (s *Session) StartChallenge(id string) (challenge.Timer, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return challenge.Timer{}, ErrStopped
	}
	def, err := s.activeLocked(id)
	if err != nil {
		s.mu.Unlock()
		return challenge.Timer{}, err
	}
	now := s.cfg.Now()
	tm := s.tracker.Start(id, def.Duration, now)
	s.lastActive = now
	s.mu.Unlock()

	s.publish([]Event{{Type: EventChallengeStarted, ChallengeID: id, Timer: &tm}})
	return tm, nil
}

func (s *Session) CancelChallenge(id string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, err := s.activeLocked(id); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.tracker.Cancel(id) {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.lastActive = s.cfg.Now()
	tm := s.tracker.Timer(id)
	tm.State = challenge.StateCancelled
	s.mu.Unlock()

	s.publish([]Event{{Type: EventChallengeCancelled, ChallengeID: id, Timer: &tm}})
	return nil
}

// SubmitAssessment scores answers, applies the new severity tier and
// reselects the active set. The record is then written to the store; when
// that write fails it is queued for retry and the returned record has no id.
func (s *Session) SubmitAssessment(ctx context.Context, answers []assessment.Answer) (*model.AssessmentRecord, error) {
	now := s.cfg.Now()
	res, err := assessment.Score(answers, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.severity = res.Severity
	s.hasAssessment = true
	s.assessmentDue = false
	s.lastActive = now

	due := false
	last := &model.LastAssessment{Score: res.Total, Severity: string(res.Severity), TakenAt: res.TakenAt}
	s.enqueue("set_last_assessment", func(ctx context.Context) error {
		return s.store.MergeUser(ctx, s.userID, model.UserPatch{LastAssessment: last, AssessmentDue: &due})
	})

	var events []Event
	if res.HighPriority() {
		events = append(events, s.notifyLocked(model.NotifTypeAssessmentAlert, "Assessment result",
			fmt.Sprintf("Your score of %d suggests %s symptoms. Please consider reaching out to a professional or a crisis line.",
				res.Total, res.Severity.Label()), now))
	}

	dropped := s.activeIDsLocked()
	s.active = s.catalog.SelectInitial(s.severity, s.completed, s.cfg.Target, s.rng)
	events = append(events, s.reconcileTimersLocked(dropped)...)
	if challenge.NeedsReplenish(s.active, s.completed) {
		events = append(events, s.replenishLocked()...)
	} else {
		s.persistActiveLocked(false)
		events = append(events, Event{Type: EventReplenished, Active: s.viewActiveLocked()})
	}
	s.mu.Unlock()

	s.publish(events)

	rec, err := s.store.AddAssessment(ctx, s.userID, res)
	if err != nil {
		s.logger.Error("record assessment, queued for retry", "score", res.Total, "error", err)
		s.enqueue("add_assessment", func(ctx context.Context) error {
			_, err := s.store.AddAssessment(ctx, s.userID, res)
			return err
		})
		rec = &model.AssessmentRecord{
			UserID:    s.userID,
			Responses: res.Responses,
			Score:     res.Total,
			Severity:  string(res.Severity),
			CreatedAt: res.TakenAt,
		}
	}
	return rec, nil
}

// ObserveMood evaluates the low-mood streak ending today. The first time a
// user with no assessment reaches the streak threshold the assessment-due
// flag is raised and a notification is sent.
func (s *Session) ObserveMood(entries []model.MoodEntry, now time.Time) (streak int, due bool, err error) {
	streak = mood.ConsecutiveLowDays(entries, now)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return streak, false, ErrStopped
	}
	s.lastActive = now
	var events []Event
	if mood.AssessmentDue(streak, s.hasAssessment) && !s.assessmentDue {
		s.assessmentDue = true
		flag := true
		s.enqueue("set_assessment_due", func(ctx context.Context) error {
			return s.store.MergeUser(ctx, s.userID, model.UserPatch{AssessmentDue: &flag})
		})
		events = append(events, s.notifyLocked(model.NotifTypeAssessmentDue, "Time for a check-in",
			fmt.Sprintf("Your mood has been low for %d days. Taking the PHQ-9 assessment can help find the right support.", streak), now))
	}
	due = s.assessmentDue
	s.mu.Unlock()

	s.publish(events)
	return streak, due, nil
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		UserID:        s.userID,
		Points:        s.points,
		Severity:      s.severity,
		AssessmentDue: s.assessmentDue,
		Active:        s.viewActiveLocked(),
		Completed:     s.completed.Sorted(),
	}
}

// touch records activity so the session is not evicted as idle.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// retireIfIdle marks an idle session stopped in the same critical section
// that checks idleness, so no operation can slip in between.
func (s *Session) retireIfIdle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.tracker.Running() > 0 || now.Sub(s.lastActive) < timeout {
		return false
	}
	s.stopped = true
	return true
}

func (s *Session) activeLocked(id string) (challenge.Definition, error) {
	for _, d := range s.active {
		if d.ID == id {
			return d, nil
		}
	}
	if _, ok := s.catalog.Get(id); ok {
		return challenge.Definition{}, ErrNotActive
	}
	return challenge.Definition{}, challenge.ErrUnknownChallenge
}

func (s *Session) activeIDsLocked() []string {
	ids := make([]string, len(s.active))
	for i, d := range s.active {
		ids[i] = d.ID
	}
	return ids
}

// replenishLocked replaces the active set with a fresh draw. When the draw
// resets the completion set the persisted set is cleared too.
func (s *Session) replenishLocked() []Event {
	dropped := s.activeIDsLocked()
	defs, reset := s.catalog.Replenish(s.completed, s.cfg.Target, s.rng)
	s.active = defs
	if reset {
		s.completed = challenge.NewSet()
		s.logger.Info("challenge catalog exhausted, completion set reset")
	}
	s.persistActiveLocked(reset)

	// Fresh draws start idle even when previously completed.
	s.tracker.Forget(challenge.NewSet())
	events := s.reconcileTimersLocked(dropped)
	return append(events, Event{Type: EventReplenished, Active: s.viewActiveLocked()})
}

// reconcileTimersLocked cancels timers of challenges that left the active set.
func (s *Session) reconcileTimersLocked(previous []string) []Event {
	keep := challenge.NewSet(s.activeIDsLocked()...)
	var events []Event
	for _, id := range previous {
		if keep.Has(id) {
			continue
		}
		if s.tracker.Cancel(id) {
			tm := challenge.Timer{ChallengeID: id, State: challenge.StateCancelled}
			events = append(events, Event{Type: EventChallengeCancelled, ChallengeID: id, Timer: &tm})
		}
	}
	s.tracker.Forget(keep)
	return events
}

func (s *Session) persistActiveLocked(reset bool) {
	patch := model.UserPatch{
		PersonalizedChallenges: s.activeIDsLocked(),
		SetChallenges:          true,
		ResetCompleted:         reset,
	}
	s.enqueue("set_challenges", func(ctx context.Context) error {
		return s.store.MergeUser(ctx, s.userID, patch)
	})
}

func (s *Session) viewActiveLocked() []ActiveChallenge {
	out := make([]ActiveChallenge, 0, len(s.active))
	for _, d := range s.active {
		tm := s.tracker.Timer(d.ID)
		ac := ActiveChallenge{
			Definition:      d,
			DurationMinutes: d.DurationMinutes(),
			State:           tm.State,
			Remaining:       tm.Remaining,
		}
		if tm.State == challenge.StateRunning {
			ends := tm.EndsAt.UTC().Format(time.RFC3339)
			ac.EndsAt = &ends
		}
		out = append(out, ac)
	}
	return out
}

func (s *Session) notifyLocked(typ, title, message string, now time.Time) Event {
	n := model.Notification{
		ID:        uuid.NewString(),
		UserID:    s.userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: now.UTC(),
	}
	s.enqueue("append_notification", func(ctx context.Context) error {
		return s.store.AppendNotification(ctx, n)
	})
	return Event{Type: EventNotification, Notification: &n}
}

func (s *Session) enqueue(name string, do func(ctx context.Context) error) {
	s.writer.Enqueue(Op{UserID: s.userID, Name: name, Do: do})
}

func (s *Session) publish(events []Event) {
	if s.pub == nil {
		return
	}
	for _, ev := range events {
		s.pub.Publish(s.userID, ev)
	}
}
