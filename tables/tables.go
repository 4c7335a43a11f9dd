// Package tables holds the in-memory replica of the server-owned tables and
// the subscriber fabric that fans replaced tables out to observers.
package tables

import (
	"errors"
	"fmt"
	"time"
)

// Name identifies one replicated table. The set is closed: every table the
// authority owns has exactly one Name, and routing is done by exhaustive
// switch, never by string lookup.
type Name uint8

const (
	Participants Name = iota
	Polls
	Options
	Votes
	Presentation

	nameCount
)

// Wire names match the authority's table names.
var wireNames = [nameCount]string{
	Participants: "user",
	Polls:        "poll",
	Options:      "poll_option",
	Votes:        "vote",
	Presentation: "presentation_state",
}

func (n Name) String() string {
	if n >= nameCount {
		return fmt.Sprintf("table(%d)", uint8(n))
	}
	return wireNames[n]
}

// Valid reports whether n names a known table.
func (n Name) Valid() bool {
	return n < nameCount
}

// ErrUnknownTable is returned when a table name does not resolve to a known
// table. Subscribing to an unknown table is a programmer error.
var ErrUnknownTable = errors.New("unknown table")

// ParseName resolves a wire table name to its Name.
func ParseName(s string) (Name, error) {
	for n, w := range wireNames {
		if w == s {
			return Name(n), nil
		}
	}
	return nameCount, fmt.Errorf("%w: %q", ErrUnknownTable, s)
}

// Role of a joined participant.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ValidRole reports whether r is one of the accepted roles.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleUser
}

// SessionState is the presentation state tag driving what every connected
// view renders.
type SessionState string

const (
	StateWaiting SessionState = "waiting"
	StateVoting  SessionState = "voting"
	StateResults SessionState = "results"
	StateEnded   SessionState = "ended"
)

// Participant is one joined session member.
type Participant struct {
	UserID      string
	SessionID   string
	Role        Role
	ConnectedAt time.Time
}

// Poll is a single question. At most one poll is active at any time.
type Poll struct {
	PollID    uint64
	Question  string
	IsActive  bool
	CreatedAt time.Time
}

// Option is one answer choice, created atomically with its poll.
type Option struct {
	OptionID uint64
	PollID   uint64
	Text     string
}

// Vote is one participant's choice on one poll. There is at most one vote
// row per (poll, participant) pair; a repeat vote replaces the option of the
// existing row.
type Vote struct {
	VoteID   uint64
	PollID   uint64
	UserID   string
	OptionID uint64
	VotedAt  time.Time
}

// PresentationState is the singleton record selecting the current poll and
// the view state every client should render.
type PresentationState struct {
	CurrentPollID uint64
	State         SessionState
}

// Snapshot is a full copy of one table, tagged by Name. Exactly the field
// matching the tag is populated. Snapshots are values; mutating one never
// affects the store.
type Snapshot struct {
	Table Name

	Participants []Participant
	Polls        []Poll
	Options      []Option
	Votes        []Vote
	Presentation PresentationState
}

func cloneParticipants(rows []Participant) []Participant {
	out := make([]Participant, len(rows))
	copy(out, rows)
	return out
}

func clonePolls(rows []Poll) []Poll {
	out := make([]Poll, len(rows))
	copy(out, rows)
	return out
}

func cloneOptions(rows []Option) []Option {
	out := make([]Option, len(rows))
	copy(out, rows)
	return out
}

func cloneVotes(rows []Vote) []Vote {
	out := make([]Vote, len(rows))
	copy(out, rows)
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	switch s.Table {
	case Participants:
		out.Participants = cloneParticipants(s.Participants)
	case Polls:
		out.Polls = clonePolls(s.Polls)
	case Options:
		out.Options = cloneOptions(s.Options)
	case Votes:
		out.Votes = cloneVotes(s.Votes)
	case Presentation:
		// value type, nothing to copy
	}
	return out
}
