// Package protocol defines the JSON frames exchanged with the remote
// authority and the codecs between wire rows and in-memory table rows.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame types on the wire.
const (
	FrameReducer       = "reducer"
	FrameTableUpdate   = "table_update"
	FrameReducerResult = "reducer_result"
)

// Reducer identifies one authoritative state-mutating operation. The set is
// closed; dispatch is by exhaustive switch.
type Reducer uint8

const (
	JoinSession Reducer = iota
	CreatePoll
	ActivatePoll
	SubmitVote
	ShowResults
	EndSession

	reducerCount
)

var reducerWireNames = [reducerCount]string{
	JoinSession:  "join_session",
	CreatePoll:   "create_poll",
	ActivatePoll: "activate_poll",
	SubmitVote:   "submit_vote",
	ShowResults:  "show_results",
	EndSession:   "end_session",
}

func (r Reducer) String() string {
	if r >= reducerCount {
		return fmt.Sprintf("reducer(%d)", uint8(r))
	}
	return reducerWireNames[r]
}

func (r Reducer) Valid() bool {
	return r < reducerCount
}

// ParseReducer resolves a wire reducer name.
func ParseReducer(s string) (Reducer, error) {
	for r, w := range reducerWireNames {
		if w == s {
			return Reducer(r), nil
		}
	}
	return reducerCount, fmt.Errorf("%w: %q", ErrUnknownReducer, s)
}

// ReducerFrame is the outbound command frame:
// {"type":"reducer","reducer":"submit_vote","args":[1,2]}.
type ReducerFrame struct {
	Type    string `json:"type"`
	Reducer string `json:"reducer"`
	Args    []any  `json:"args"`
}

// EncodeReducer builds the outbound frame for a reducer invocation.
func EncodeReducer(r Reducer, args ...any) ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownReducer
	}
	if args == nil {
		args = []any{}
	}
	return json.Marshal(ReducerFrame{
		Type:    FrameReducer,
		Reducer: r.String(),
		Args:    args,
	})
}

// ReducerResult is the informational acknowledgment frame sent back by the
// authority. Nothing is keyed off it today.
type ReducerResult struct {
	Reducer string `json:"reducer"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type envelope struct {
	Type string `json:"type"`
}

// FrameKind tags a decoded inbound frame.
type FrameKind uint8

const (
	KindTableUpdate FrameKind = iota
	KindReducerResult
)

// Inbound is one decoded frame from the authority.
type Inbound struct {
	Kind FrameKind

	// Populated when Kind == KindTableUpdate.
	Update TableUpdate

	// Populated when Kind == KindReducerResult.
	Result ReducerResult
}

// DecodeInbound parses one frame received from the authority.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case FrameTableUpdate:
		update, err := decodeTableUpdate(data)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: KindTableUpdate, Update: update}, nil
	case FrameReducerResult:
		var result ReducerResult
		if err := json.Unmarshal(data, &result); err != nil {
			return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Inbound{Kind: KindReducerResult, Result: result}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
}
