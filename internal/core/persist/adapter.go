package persist

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"

	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/internal/core/protocol"
	"github.com/pollsync/pollsync/tables"
)

// stateKey is the fixed record the whole fallback state lives under.
var stateKey = []byte("pollsync/fallback_state")

// State is the full fallback-authority state: every locally owned table plus
// the monotonic id counters. Ids are never reused, so the counters must
// survive restarts alongside the rows.
type State struct {
	Participants []tables.Participant
	Polls        []tables.Poll
	Options      []tables.Option
	Votes        []tables.Vote
	Presentation tables.PresentationState

	NextPollID   uint64
	NextOptionID uint64
	NextVoteID   uint64
}

// serialized layout. Rows reuse the wire row codecs so timestamps stay
// micros-since-epoch and round-trip exactly.
type stateRecord struct {
	Participants      json.RawMessage `json:"participants"`
	Polls             json.RawMessage `json:"polls"`
	Options           json.RawMessage `json:"options"`
	Votes             json.RawMessage `json:"votes"`
	PresentationState json.RawMessage `json:"presentationState"`
	NextPollID        uint64          `json:"nextPollId"`
	NextOptionID      uint64          `json:"nextOptionId"`
	NextVoteID        uint64          `json:"nextVoteId"`
}

// envelope wraps the record with a checksum. A snapshot that fails the
// checksum on load is treated as absent.
type envelope struct {
	Sum   uint64          `json:"sum"`
	State json.RawMessage `json:"state"`
}

// Adapter persists and restores the fallback state, best effort: failures
// are logged and never surface to the engine.
type Adapter struct {
	kv     KV
	logger log.Log
}

func NewAdapter(kv KV, logger log.Log) *Adapter {
	return &Adapter{
		kv:     kv,
		logger: logger.With(log.String("component", "persistence")),
	}
}

// Save writes the full state snapshot under the fixed key.
func (a *Adapter) Save(state State) {
	payload, err := encodeState(state)
	if err != nil {
		a.logger.Warn("state snapshot encode failed", log.Error(err))
		return
	}

	env, err := json.Marshal(envelope{
		Sum:   xxhash.Sum64(payload),
		State: payload,
	})
	if err != nil {
		a.logger.Warn("state snapshot encode failed", log.Error(err))
		return
	}

	if err := a.kv.Set(stateKey, env); err != nil {
		a.logger.Warn("state snapshot write failed", log.Error(err))
	}
}

// Load returns the last saved snapshot, or false when there is none or it
// cannot be read back intact.
func (a *Adapter) Load() (State, bool) {
	data, err := a.kv.Get(stateKey)
	if err != nil {
		if err != ErrKeyNotFound {
			a.logger.Warn("state snapshot read failed", log.Error(err))
		}
		return State{}, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.logger.Warn("state snapshot corrupt, ignoring", log.Error(err))
		return State{}, false
	}
	if xxhash.Sum64(env.State) != env.Sum {
		a.logger.Warn("state snapshot checksum mismatch, ignoring",
			log.Uint64("expected", env.Sum))
		return State{}, false
	}

	state, err := decodeState(env.State)
	if err != nil {
		a.logger.Warn("state snapshot decode failed, ignoring", log.Error(err))
		return State{}, false
	}
	return state, true
}

func encodeState(state State) ([]byte, error) {
	participants, err := protocol.MarshalRows(tables.Snapshot{
		Table: tables.Participants, Participants: state.Participants,
	})
	if err != nil {
		return nil, err
	}
	polls, err := protocol.MarshalRows(tables.Snapshot{
		Table: tables.Polls, Polls: state.Polls,
	})
	if err != nil {
		return nil, err
	}
	options, err := protocol.MarshalRows(tables.Snapshot{
		Table: tables.Options, Options: state.Options,
	})
	if err != nil {
		return nil, err
	}
	votes, err := protocol.MarshalRows(tables.Snapshot{
		Table: tables.Votes, Votes: state.Votes,
	})
	if err != nil {
		return nil, err
	}
	presentation, err := protocol.MarshalRows(tables.Snapshot{
		Table: tables.Presentation, Presentation: state.Presentation,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(stateRecord{
		Participants:      participants,
		Polls:             polls,
		Options:           options,
		Votes:             votes,
		PresentationState: presentation,
		NextPollID:        state.NextPollID,
		NextOptionID:      state.NextOptionID,
		NextVoteID:        state.NextVoteID,
	})
}

func decodeState(payload []byte) (State, error) {
	var record stateRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return State{}, err
	}

	participants, err := protocol.UnmarshalRows(tables.Participants, record.Participants)
	if err != nil {
		return State{}, err
	}
	polls, err := protocol.UnmarshalRows(tables.Polls, record.Polls)
	if err != nil {
		return State{}, err
	}
	options, err := protocol.UnmarshalRows(tables.Options, record.Options)
	if err != nil {
		return State{}, err
	}
	votes, err := protocol.UnmarshalRows(tables.Votes, record.Votes)
	if err != nil {
		return State{}, err
	}
	presentation, err := protocol.UnmarshalRows(tables.Presentation, record.PresentationState)
	if err != nil {
		return State{}, err
	}

	return State{
		Participants: participants.Participants,
		Polls:        polls.Polls,
		Options:      options.Options,
		Votes:        votes.Votes,
		Presentation: presentation.Presentation,
		NextPollID:   record.NextPollID,
		NextOptionID: record.NextOptionID,
		NextVoteID:   record.NextVoteID,
	}, nil
}
