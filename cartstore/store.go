// Package cartstore keeps a client-side mirror of the server cart: an
// in-memory question list persisted to a local JSON file, reconciled against
// the server on hydrate and optimistically updated on add/remove.
package cartstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrServerUnavailable is the soft error returned when the server cannot be
// reached: the local mirror keeps the change and the caller may retry later.
var ErrServerUnavailable = errors.New("cart server unavailable")

type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateReady
)

// CartQuestion is the minimal question shape mirrored locally.
type CartQuestion struct {
	ID   int    `json:"id"`
	Text string `json:"text,omitempty"`
}

// Syncer is the server side of the mirror, implemented over the cart API.
type Syncer interface {
	FetchCart(testID string) ([]CartQuestion, error)
	AddQuestion(questionID int, testID string) error
	RemoveQuestion(questionID int, testID string) error
}

type persisted struct {
	TestID    string         `json:"testId"`
	Questions []CartQuestion `json:"questions"`
}

// Store is safe for concurrent use. All mutations are written through to the
// backing file.
type Store struct {
	mu     sync.Mutex
	path   string
	syncer Syncer

	state     State
	testID    string
	questions []CartQuestion
}

func New(path string, syncer Syncer) *Store {
	return &Store{path: path, syncer: syncer, questions: []CartQuestion{}}
}

// Hydrate loads the persisted local cart, resolves the active test id
// (explicit argument wins, then the locally remembered draft, then a fresh
// token) and reconciles against the server.
//
// The reconciliation rule: a server response with zero questions while the
// local mirror has entries means "not yet synced", so the local entries are
// kept; otherwise server items are merged in without duplicating ids already
// present. An unreachable server leaves the local mirror authoritative and
// returns ErrServerUnavailable.
func (s *Store) Hydrate(explicitTestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateHydrating
	s.loadLocked()

	switch {
	case explicitTestID != "":
		s.testID = explicitTestID
	case s.testID != "":
		// keep the remembered draft
	default:
		s.testID = uuid.NewString()
	}

	server, err := s.syncer.FetchCart(s.testID)
	if err != nil {
		s.state = StateReady
		s.persistLocked()
		log.Warn().Err(err).Msg("cart fetch failed, keeping local mirror")
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}

	if len(server) == 0 && len(s.questions) > 0 {
		// Server-empty does not win over a populated local cart.
	} else {
		for _, sq := range server {
			if !s.containsLocked(sq.ID) {
				s.questions = append(s.questions, sq)
			}
		}
	}

	s.state = StateReady
	s.persistLocked()
	return nil
}

// Add appends the question locally, then tells the server. A server
// rejection removes the optimistic entry again; an unreachable server keeps
// it and returns a soft error.
func (s *Store) Add(q CartQuestion) error {
	s.mu.Lock()
	if s.containsLocked(q.ID) {
		s.mu.Unlock()
		return nil
	}
	s.questions = append(s.questions, q)
	s.persistLocked()
	testID := s.testID
	s.mu.Unlock()

	err := s.syncer.AddQuestion(q.ID, testID)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrServerUnavailable) {
		return err
	}

	// compensate: the server rejected the add
	s.mu.Lock()
	s.removeLocked(q.ID)
	s.persistLocked()
	s.mu.Unlock()
	return err
}

// Remove drops the question locally, then tells the server. A server
// rejection re-adds the entry; an unreachable server keeps the removal and
// returns a soft error.
func (s *Store) Remove(questionID int) error {
	s.mu.Lock()
	removed, ok := s.removeLocked(questionID)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.persistLocked()
	testID := s.testID
	s.mu.Unlock()

	err := s.syncer.RemoveQuestion(questionID, testID)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrServerUnavailable) {
		return err
	}

	s.mu.Lock()
	if !s.containsLocked(removed.ID) {
		s.questions = append(s.questions, removed)
	}
	s.persistLocked()
	s.mu.Unlock()
	return err
}

// RememberDraft records the test id returned by a draft save as the current
// draft, so the next hydrate addresses the same cart.
func (s *Store) RememberDraft(testID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testID = testID
	s.persistLocked()
}

// Clear empties the mirror and forgets the current draft.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = []CartQuestion{}
	s.testID = ""
	s.persistLocked()
}

func (s *Store) Questions() []CartQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CartQuestion, len(s.questions))
	copy(out, s.questions)
	return out
}

func (s *Store) IsInCart(questionID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(questionID)
}

func (s *Store) TestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testID
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) containsLocked(questionID int) bool {
	for _, q := range s.questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func (s *Store) removeLocked(questionID int) (CartQuestion, bool) {
	for i, q := range s.questions {
		if q.ID == questionID {
			s.questions = append(s.questions[:i], s.questions[i+1:]...)
			return q, true
		}
	}
	return CartQuestion{}, false
}

func (s *Store) loadLocked() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("corrupt cart file, starting empty")
		return
	}
	s.testID = p.TestID
	if p.Questions != nil {
		s.questions = p.Questions
	}
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(persisted{TestID: s.testID, Questions: s.questions})
	if err != nil {
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to persist cart file")
	}
}
