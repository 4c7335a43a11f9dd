// Package sim is the fallback authority: when no remote endpoint is
// reachable it re-derives every authoritative mutation locally with the
// same externally observable semantics, persisting after each reducer and
// republishing touched tables to sibling instances.
package sim

import (
	"sync"
	"time"

	"github.com/pollsync/pollsync/internal/core/broadcast"
	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/internal/core/persist"
	"github.com/pollsync/pollsync/tables"
)

// Engine holds the locally authoritative state. Reducers are deliberately
// permissive about sequencing: out-of-order calls are applied literally,
// matching the remote authority's observable behavior.
type Engine struct {
	store   *tables.Store
	adapter *persist.Adapter
	member  *broadcast.Member
	logger  log.Log

	mu    sync.Mutex
	state persist.State

	clock func() time.Time
}

// NewEngine seeds from the last persisted snapshot when one exists and
// installs the seeded tables into the store.
func NewEngine(store *tables.Store, adapter *persist.Adapter, member *broadcast.Member, logger log.Log) *Engine {
	e := &Engine{
		store:   store,
		adapter: adapter,
		member:  member,
		logger:  logger.With(log.String("component", "simulation_engine")),
		clock:   microNow,
	}

	state, ok := adapter.Load()
	if !ok {
		state = persist.State{
			Presentation: tables.PresentationState{State: tables.StateWaiting},
			NextPollID:   1,
			NextOptionID: 1,
			NextVoteID:   1,
		}
	} else {
		e.logger.Info("seeded from persisted snapshot",
			log.Int("polls", len(state.Polls)),
			log.Int("votes", len(state.Votes)))
	}
	e.state = state

	e.install(tables.Participants, tables.Polls, tables.Options, tables.Votes, tables.Presentation)
	return e
}

// microNow is the default reducer clock. Timestamps carry microsecond
// precision, the same resolution the wire and snapshot codecs encode, so a
// row observed locally equals the same row after any codec round trip.
func microNow() time.Time {
	return time.UnixMicro(time.Now().UnixMicro())
}

// SetClock overrides the reducer timestamp source.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = clock
}

// JoinSession upserts the participant row. Roles outside {admin, user} are
// rejected; everything else about sequencing stays permissive.
func (e *Engine) JoinSession(userID, sessionID string, role tables.Role) error {
	if !tables.ValidRole(role) {
		return ErrInvalidRole
	}

	e.mu.Lock()
	row := tables.Participant{
		UserID:      userID,
		SessionID:   sessionID,
		Role:        role,
		ConnectedAt: e.clock(),
	}
	replaced := false
	for i, p := range e.state.Participants {
		if p.UserID == userID {
			e.state.Participants[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		e.state.Participants = append(e.state.Participants, row)
	}
	e.mu.Unlock()

	e.commit(tables.Participants)
	return nil
}

// CreatePoll creates a poll and one option per supplied text. The poll is
// not active until explicitly activated. Option texts are expected to be
// pre-filtered by the caller; no count validation happens here.
func (e *Engine) CreatePoll(question string, optionTexts []string) error {
	e.mu.Lock()
	pollID := e.state.NextPollID
	e.state.NextPollID++

	e.state.Polls = append(e.state.Polls, tables.Poll{
		PollID:    pollID,
		Question:  question,
		IsActive:  false,
		CreatedAt: e.clock(),
	})

	for _, text := range optionTexts {
		optionID := e.state.NextOptionID
		e.state.NextOptionID++
		e.state.Options = append(e.state.Options, tables.Option{
			OptionID: optionID,
			PollID:   pollID,
			Text:     text,
		})
	}
	e.mu.Unlock()

	e.logger.Info("poll created",
		log.Uint64("poll_id", pollID),
		log.Int("options", len(optionTexts)))

	e.commit(tables.Polls, tables.Options)
	return nil
}

// ActivatePoll flips the active flag on exactly the given poll and points
// the presentation at it in the voting state. An unknown poll id leaves no
// poll active; that is an accepted edge case, not an error.
func (e *Engine) ActivatePoll(pollID uint64) error {
	e.mu.Lock()
	for i := range e.state.Polls {
		e.state.Polls[i].IsActive = e.state.Polls[i].PollID == pollID
	}
	e.state.Presentation = tables.PresentationState{
		CurrentPollID: pollID,
		State:         tables.StateVoting,
	}
	e.mu.Unlock()

	e.commit(tables.Polls, tables.Presentation)
	return nil
}

// SubmitVote records the participant's choice. A repeat vote on the same
// poll replaces the option of the existing row; the original vote id and
// timestamp are kept, since downstream ordering may depend on insertion
// order. Option membership is not validated.
func (e *Engine) SubmitVote(userID string, pollID, optionID uint64) error {
	e.mu.Lock()
	replaced := false
	for i, v := range e.state.Votes {
		if v.PollID == pollID && v.UserID == userID {
			e.state.Votes[i].OptionID = optionID
			replaced = true
			break
		}
	}
	if !replaced {
		voteID := e.state.NextVoteID
		e.state.NextVoteID++
		e.state.Votes = append(e.state.Votes, tables.Vote{
			VoteID:   voteID,
			PollID:   pollID,
			UserID:   userID,
			OptionID: optionID,
			VotedAt:  e.clock(),
		})
	}
	e.mu.Unlock()

	e.commit(tables.Votes)
	return nil
}

// ShowResults points the presentation at the poll in the results state.
func (e *Engine) ShowResults(pollID uint64) error {
	e.mu.Lock()
	e.state.Presentation = tables.PresentationState{
		CurrentPollID: pollID,
		State:         tables.StateResults,
	}
	e.mu.Unlock()

	e.commit(tables.Presentation)
	return nil
}

// EndSession marks the presentation ended, leaving the current poll id
// untouched, and clears every active flag. Later reducer calls still
// execute; ending is a UI-level contract, not engine-enforced.
func (e *Engine) EndSession() error {
	e.mu.Lock()
	for i := range e.state.Polls {
		e.state.Polls[i].IsActive = false
	}
	e.state.Presentation.State = tables.StateEnded
	e.mu.Unlock()

	e.commit(tables.Polls, tables.Presentation)
	return nil
}

// Absorb installs a sibling instance's table replacement into both the
// engine state and the store, keeping the local authority coherent with
// the rest of the device. Counters are bumped past any absorbed ids so
// subsequent local ids never collide.
func (e *Engine) Absorb(snap tables.Snapshot) {
	e.mu.Lock()
	switch snap.Table {
	case tables.Participants:
		e.state.Participants = append([]tables.Participant(nil), snap.Participants...)
	case tables.Polls:
		e.state.Polls = append([]tables.Poll(nil), snap.Polls...)
		for _, p := range snap.Polls {
			if p.PollID >= e.state.NextPollID {
				e.state.NextPollID = p.PollID + 1
			}
		}
	case tables.Options:
		e.state.Options = append([]tables.Option(nil), snap.Options...)
		for _, o := range snap.Options {
			if o.OptionID >= e.state.NextOptionID {
				e.state.NextOptionID = o.OptionID + 1
			}
		}
	case tables.Votes:
		e.state.Votes = append([]tables.Vote(nil), snap.Votes...)
		for _, v := range snap.Votes {
			if v.VoteID >= e.state.NextVoteID {
				e.state.NextVoteID = v.VoteID + 1
			}
		}
	case tables.Presentation:
		e.state.Presentation = snap.Presentation
	}
	e.mu.Unlock()

	if err := e.store.Replace(snap); err != nil {
		e.logger.Warn("absorb failed", log.Error(err))
	}
}

// commit runs the reducer epilogue in contract order: persist the full
// state, republish every touched table to siblings, then notify local
// observers via the store. The state and the touched snapshots are cloned
// under the lock; serialization and delivery run on the clones, never on
// rows a concurrent reducer may be mutating.
func (e *Engine) commit(touched ...tables.Name) {
	e.mu.Lock()
	state := e.state
	state.Participants = append([]tables.Participant(nil), e.state.Participants...)
	state.Polls = append([]tables.Poll(nil), e.state.Polls...)
	state.Options = append([]tables.Option(nil), e.state.Options...)
	state.Votes = append([]tables.Vote(nil), e.state.Votes...)

	snaps := make([]tables.Snapshot, 0, len(touched))
	for _, name := range touched {
		snaps = append(snaps, e.snapshotLocked(name))
	}
	e.mu.Unlock()

	e.adapter.Save(state)

	if e.member != nil {
		for _, snap := range snaps {
			e.member.Publish(snap)
		}
	}

	for _, snap := range snaps {
		if err := e.store.Replace(snap); err != nil {
			e.logger.Warn("table replace failed", log.Error(err))
		}
	}
}

func (e *Engine) install(names ...tables.Name) {
	for _, name := range names {
		e.mu.Lock()
		snap := e.snapshotLocked(name)
		e.mu.Unlock()
		if err := e.store.Replace(snap); err != nil {
			e.logger.Warn("table install failed", log.Error(err))
		}
	}
}

// snapshotLocked clones one table. Callers hold e.mu.
func (e *Engine) snapshotLocked(name tables.Name) tables.Snapshot {
	snap := tables.Snapshot{Table: name}
	switch name {
	case tables.Participants:
		snap.Participants = append([]tables.Participant(nil), e.state.Participants...)
	case tables.Polls:
		snap.Polls = append([]tables.Poll(nil), e.state.Polls...)
	case tables.Options:
		snap.Options = append([]tables.Option(nil), e.state.Options...)
	case tables.Votes:
		snap.Votes = append([]tables.Vote(nil), e.state.Votes...)
	case tables.Presentation:
		snap.Presentation = e.state.Presentation
	}
	return snap
}
