package trading

import (
	"sync"
	"time"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// TaskKind labels what a user is currently in the middle of.
type TaskKind string

const (
	// TaskConfirmOrder means the user owes a confirm/abandon reply for a
	// fired watch plan.
	TaskConfirmOrder TaskKind = "confirm_order"
)

// Confirmation carries a fired plan's parameters plus the realized trigger
// price and computed quantity, so the user never re-enters them, even
// across a re-authentication round trip.
type Confirmation struct {
	Plan         models.WatchPlan
	TriggerPrice float64
	Quantity     int
	StartedAt    time.Time
}

// Task is one in-progress interaction for a user.
type Task struct {
	Kind         TaskKind
	Confirmation *Confirmation
	StartedAt    time.Time
}

// Sessions tracks at most one in-progress task per user. A user already busy
// with an unrelated task cannot be moved into confirmation-pending state.
type Sessions struct {
	mu     sync.RWMutex
	active map[string]*Task
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]*Task)}
}

// Begin starts a task for a user. Returns ErrUserBusy if another task is
// already in progress.
func (s *Sessions) Begin(userID string, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[userID]; busy {
		return errors.ErrUserBusy
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now()
	}
	s.active[userID] = task
	return nil
}

// Confirmation returns the user's pending order confirmation, if any.
func (s *Sessions) Confirmation(userID string) (*Confirmation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.active[userID]
	if !ok || task.Kind != TaskConfirmOrder || task.Confirmation == nil {
		return nil, false
	}
	return task.Confirmation, true
}

// Busy reports whether the user has any task in progress.
func (s *Sessions) Busy(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, busy := s.active[userID]
	return busy
}

// End clears the user's task.
func (s *Sessions) End(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, userID)
}
