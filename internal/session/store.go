package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Session is a bounded conversation keyed by an opaque id. The remote
// backend owns the authoritative history; the local turn list is only a
// replay log for rendering.
type Session struct {
	ID             string    `json:"session_id"`
	Generation     uint64    `json:"generation"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	turns []Turn
}

// Store tracks per-session turn history in memory. Each session is
// single-writer in intended usage; the lock makes the janitor and
// concurrent reads safe regardless.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	onExpire    func(string)
}

func NewStore(idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Store{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

func (s *Store) SetExpireHook(hook func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Create registers a fresh session with an opaque id and empty history.
func (s *Store) Create() *Session {
	now := time.Now().UTC()
	sess := &Session{
		ID:             uuid.NewString(),
		Generation:     1,
		StartedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return snapshot(sess)
}

// Ensure registers the given id if it is not tracked yet. Clients mint
// their own ids at conversation start, so the first turn of a session
// arrives before any create call.
func (s *Store) Ensure(id string) *Session {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return snapshot(sess)
	}
	sess := &Session{
		ID:             id,
		Generation:     1,
		StartedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[id] = sess
	return snapshot(sess)
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(sess), nil
}

// Append adds a turn to the session's history.
func (s *Store) Append(id string, turn Turn) error {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.turns = append(sess.turns, turn)
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

// Clear drops all turns and bumps the generation. The id stays valid;
// in-flight replies captured under the old generation are discarded by
// their callers.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.turns = nil
	sess.Generation++
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

// Turns returns a read-only snapshot of the history in insertion order.
func (s *Store) Turns(id string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Generation reports the session's current clear-generation.
func (s *Store) Generation(id string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	return sess.Generation, nil
}

// AppendIfGeneration appends only when the session still carries the
// given generation. Reports whether the turn was appended.
func (s *Store) AppendIfGeneration(id string, gen uint64, turn Turn) (bool, error) {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if sess.Generation != gen {
		return false, nil
	}
	sess.turns = append(sess.turns, turn)
	sess.LastActivityAt = time.Now().UTC()
	return true, nil
}

func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor expires sessions idle longer than the store's timeout.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle()
			}
		}
	}()
}

func (s *Store) expireIdle() {
	now := time.Now().UTC()
	var expired []string

	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) < s.idleTimeout {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, id)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
}

func snapshot(sess *Session) *Session {
	c := *sess
	c.turns = nil
	return &c
}
