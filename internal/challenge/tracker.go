package challenge

import (
	"math"
	"sort"
	"time"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Timer is the countdown for one challenge. Remaining is derived from EndsAt
// and is refreshed on each tick.
type Timer struct {
	ChallengeID string    `json:"challenge_id"`
	State       State     `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	EndsAt      time.Time `json:"ends_at"`
	Remaining   int       `json:"remaining_seconds"`
}

// TickResult lists what changed during one tick. Updated holds running
// timers whose whole-second remaining value changed; Completed holds timers
// that reached their end.
type TickResult struct {
	Updated   []Timer
	Completed []Timer
}

// Tracker holds the running timers of a single user. It is not safe for
// concurrent use; the owning session serialises access.
type Tracker struct {
	running map[string]*Timer
	done    Set
}

func NewTracker() *Tracker {
	return &Tracker{
		running: make(map[string]*Timer),
		done:    make(Set),
	}
}

// Start replaces any timer for id and clears its completion flag.
func (t *Tracker) Start(id string, d time.Duration, now time.Time) Timer {
	t.done.Remove(id)
	timer := &Timer{
		ChallengeID: id,
		State:       StateRunning,
		StartedAt:   now,
		EndsAt:      now.Add(d),
		Remaining:   remainingSeconds(now.Add(d), now),
	}
	t.running[id] = timer
	return *timer
}

// Cancel stops a running timer without marking completion. It reports
// whether a timer was running.
func (t *Tracker) Cancel(id string) bool {
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

// Tick advances every running timer independently.
func (t *Tracker) Tick(now time.Time) TickResult {
	var res TickResult
	for id, timer := range t.running {
		if !now.Before(timer.EndsAt) {
			timer.State = StateCompleted
			timer.Remaining = 0
			res.Completed = append(res.Completed, *timer)
			delete(t.running, id)
			t.done.Add(id)
			continue
		}

		r := remainingSeconds(timer.EndsAt, now)
		if r != timer.Remaining {
			timer.Remaining = r
			res.Updated = append(res.Updated, *timer)
		}
	}

	sortTimers(res.Updated)
	sortTimers(res.Completed)
	return res
}

// Timer returns the timer state for id. Ids with no running timer report
// StateCompleted if they finished since their last start, otherwise StateIdle.
func (t *Tracker) Timer(id string) Timer {
	if timer, ok := t.running[id]; ok {
		return *timer
	}
	if t.done.Has(id) {
		return Timer{ChallengeID: id, State: StateCompleted}
	}
	return Timer{ChallengeID: id, State: StateIdle}
}

func (t *Tracker) IsCompleted(id string) bool {
	return t.done.Has(id)
}

func (t *Tracker) IsRunning(id string) bool {
	_, ok := t.running[id]
	return ok
}

// MarkCompleted flags id as finished without running a timer. Used when
// restoring a session from persisted completions.
func (t *Tracker) MarkCompleted(id string) {
	if _, ok := t.running[id]; !ok {
		t.done.Add(id)
	}
}

// Running returns the number of running timers.
func (t *Tracker) Running() int {
	return len(t.running)
}

// Forget drops the completion flags of ids no longer on offer.
func (t *Tracker) Forget(keep Set) {
	for id := range t.done {
		if !keep.Has(id) {
			t.done.Remove(id)
		}
	}
}

func remainingSeconds(end, now time.Time) int {
	return int(math.Ceil(end.Sub(now).Seconds()))
}

func sortTimers(ts []Timer) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ChallengeID < ts[j].ChallengeID })
}
