package tables

import (
	"sync"

	"github.com/pollsync/pollsync/internal/core/observability/log"
)

// Store is the in-memory mirror of every replicated table. Tables are
// replaced wholesale; row-level updates do not exist. Every replacement is
// delivered synchronously to the hub's observers before Replace returns.
type Store struct {
	mu sync.RWMutex

	participants []Participant
	polls        []Poll
	options      []Option
	votes        []Vote
	presentation PresentationState

	hub    *Hub
	logger log.Log
}

func NewStore(logger log.Log) *Store {
	return &Store{
		presentation: PresentationState{State: StateWaiting},
		hub:          NewHub(logger),
		logger:       logger.With(log.String("component", "table_store")),
	}
}

// Replace overwrites the table named by snap.Table and notifies every
// observer registered for it, in registration order, before returning.
func (s *Store) Replace(snap Snapshot) error {
	if !snap.Table.Valid() {
		return ErrUnknownTable
	}

	s.mu.Lock()
	switch snap.Table {
	case Participants:
		s.participants = cloneParticipants(snap.Participants)
	case Polls:
		s.polls = clonePolls(snap.Polls)
	case Options:
		s.options = cloneOptions(snap.Options)
	case Votes:
		s.votes = cloneVotes(snap.Votes)
	case Presentation:
		s.presentation = snap.Presentation
	}
	s.mu.Unlock()

	s.logger.Debug("table replaced",
		log.String("table", snap.Table.String()),
		log.Int("rows", snap.rowCount()))

	s.hub.Notify(snap.Clone())
	return nil
}

func (s Snapshot) rowCount() int {
	switch s.Table {
	case Participants:
		return len(s.Participants)
	case Polls:
		return len(s.Polls)
	case Options:
		return len(s.Options)
	case Votes:
		return len(s.Votes)
	default:
		return 1
	}
}

// Get returns a copy of the named table.
func (s *Store) Get(name Name) (Snapshot, error) {
	if !name.Valid() {
		return Snapshot{}, ErrUnknownTable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Table: name}
	switch name {
	case Participants:
		snap.Participants = cloneParticipants(s.participants)
	case Polls:
		snap.Polls = clonePolls(s.polls)
	case Options:
		snap.Options = cloneOptions(s.options)
	case Votes:
		snap.Votes = cloneVotes(s.votes)
	case Presentation:
		snap.Presentation = s.presentation
	}
	return snap, nil
}

// Typed accessors. All return copies.

func (s *Store) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneParticipants(s.participants)
}

func (s *Store) Polls() []Poll {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePolls(s.polls)
}

func (s *Store) Options() []Option {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneOptions(s.options)
}

func (s *Store) Votes() []Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneVotes(s.votes)
}

func (s *Store) Presentation() PresentationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presentation
}

// Subscribe registers an observer for the named table. The returned
// subscription cancels delivery when closed.
func (s *Store) Subscribe(name Name, observer Observer) (*Subscription, error) {
	if !name.Valid() {
		return nil, ErrUnknownTable
	}
	return s.hub.Subscribe(name, observer), nil
}
