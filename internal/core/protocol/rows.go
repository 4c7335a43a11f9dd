package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pollsync/pollsync/tables"
)

// Wire row shapes. Field names and the micros-since-epoch timestamps match
// the authority's schema.

type wireParticipant struct {
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	ConnectedAt int64  `json:"connected_at"`
}

type wirePoll struct {
	PollID    uint64 `json:"poll_id"`
	Question  string `json:"question"`
	IsActive  bool   `json:"is_active"`
	CreatedAt int64  `json:"created_at"`
}

type wireOption struct {
	OptionID uint64 `json:"option_id"`
	PollID   uint64 `json:"poll_id"`
	Text     string `json:"text"`
}

type wireVote struct {
	VoteID   uint64 `json:"vote_id"`
	PollID   uint64 `json:"poll_id"`
	UserID   string `json:"user_id"`
	OptionID uint64 `json:"option_id"`
	VotedAt  int64  `json:"voted_at"`
}

type wirePresentation struct {
	ID            uint8  `json:"id"`
	CurrentPollID uint64 `json:"current_poll_id"`
	State         string `json:"state"`
}

// TableUpdate is one decoded table_update frame: a wholesale replacement of
// the named table.
type TableUpdate struct {
	Snapshot tables.Snapshot
}

type tableUpdateFrame struct {
	Type  string          `json:"type"`
	Table string          `json:"table"`
	Rows  json.RawMessage `json:"rows"`
}

func decodeTableUpdate(data []byte) (TableUpdate, error) {
	var frame tableUpdateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return TableUpdate{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	name, err := tables.ParseName(frame.Table)
	if err != nil {
		return TableUpdate{}, err
	}

	snap, err := UnmarshalRows(name, frame.Rows)
	if err != nil {
		return TableUpdate{}, err
	}
	return TableUpdate{Snapshot: snap}, nil
}

// UnmarshalRows decodes a wire rows array into a typed table snapshot.
// Shared by the remote table_update path and the cross-instance broadcast
// path, so both feed the store identically.
func UnmarshalRows(name tables.Name, raw json.RawMessage) (tables.Snapshot, error) {
	snap := tables.Snapshot{Table: name}
	if len(raw) == 0 {
		raw = json.RawMessage("[]")
	}

	switch name {
	case tables.Participants:
		var rows []wireParticipant
		if err := json.Unmarshal(raw, &rows); err != nil {
			return tables.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		snap.Participants = make([]tables.Participant, len(rows))
		for i, r := range rows {
			snap.Participants[i] = tables.Participant{
				UserID:      r.UserID,
				SessionID:   r.SessionID,
				Role:        tables.Role(r.Role),
				ConnectedAt: time.UnixMicro(r.ConnectedAt),
			}
		}
	case tables.Polls:
		var rows []wirePoll
		if err := json.Unmarshal(raw, &rows); err != nil {
			return tables.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		snap.Polls = make([]tables.Poll, len(rows))
		for i, r := range rows {
			snap.Polls[i] = tables.Poll{
				PollID:    r.PollID,
				Question:  r.Question,
				IsActive:  r.IsActive,
				CreatedAt: time.UnixMicro(r.CreatedAt),
			}
		}
	case tables.Options:
		var rows []wireOption
		if err := json.Unmarshal(raw, &rows); err != nil {
			return tables.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		snap.Options = make([]tables.Option, len(rows))
		for i, r := range rows {
			snap.Options[i] = tables.Option{
				OptionID: r.OptionID,
				PollID:   r.PollID,
				Text:     r.Text,
			}
		}
	case tables.Votes:
		var rows []wireVote
		if err := json.Unmarshal(raw, &rows); err != nil {
			return tables.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		snap.Votes = make([]tables.Vote, len(rows))
		for i, r := range rows {
			snap.Votes[i] = tables.Vote{
				VoteID:   r.VoteID,
				PollID:   r.PollID,
				UserID:   r.UserID,
				OptionID: r.OptionID,
				VotedAt:  time.UnixMicro(r.VotedAt),
			}
		}
	case tables.Presentation:
		var rows []wirePresentation
		if err := json.Unmarshal(raw, &rows); err != nil {
			return tables.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if len(rows) > 0 {
			snap.Presentation = tables.PresentationState{
				CurrentPollID: rows[0].CurrentPollID,
				State:         tables.SessionState(rows[0].State),
			}
		} else {
			snap.Presentation = tables.PresentationState{State: tables.StateWaiting}
		}
	default:
		return tables.Snapshot{}, tables.ErrUnknownTable
	}

	return snap, nil
}

// MarshalRows encodes a typed table snapshot back into the wire rows array.
func MarshalRows(snap tables.Snapshot) (json.RawMessage, error) {
	switch snap.Table {
	case tables.Participants:
		rows := make([]wireParticipant, len(snap.Participants))
		for i, r := range snap.Participants {
			rows[i] = wireParticipant{
				UserID:      r.UserID,
				SessionID:   r.SessionID,
				Role:        string(r.Role),
				ConnectedAt: r.ConnectedAt.UnixMicro(),
			}
		}
		return json.Marshal(rows)
	case tables.Polls:
		rows := make([]wirePoll, len(snap.Polls))
		for i, r := range snap.Polls {
			rows[i] = wirePoll{
				PollID:    r.PollID,
				Question:  r.Question,
				IsActive:  r.IsActive,
				CreatedAt: r.CreatedAt.UnixMicro(),
			}
		}
		return json.Marshal(rows)
	case tables.Options:
		rows := make([]wireOption, len(snap.Options))
		for i, r := range snap.Options {
			rows[i] = wireOption{
				OptionID: r.OptionID,
				PollID:   r.PollID,
				Text:     r.Text,
			}
		}
		return json.Marshal(rows)
	case tables.Votes:
		rows := make([]wireVote, len(snap.Votes))
		for i, r := range snap.Votes {
			rows[i] = wireVote{
				VoteID:   r.VoteID,
				PollID:   r.PollID,
				UserID:   r.UserID,
				OptionID: r.OptionID,
				VotedAt:  r.VotedAt.UnixMicro(),
			}
		}
		return json.Marshal(rows)
	case tables.Presentation:
		rows := []wirePresentation{{
			ID:            0,
			CurrentPollID: snap.Presentation.CurrentPollID,
			State:         string(snap.Presentation.State),
		}}
		return json.Marshal(rows)
	default:
		return nil, tables.ErrUnknownTable
	}
}
