package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollsync/pollsync/tables"
)

func TestEncodeReducerFrame(t *testing.T) {
	data, err := EncodeReducer(SubmitVote, uint64(3), uint64(7))
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "reducer", frame["type"])
	assert.Equal(t, "submit_vote", frame["reducer"])
	assert.Equal(t, []any{float64(3), float64(7)}, frame["args"])
}

func TestEncodeReducerNoArgs(t *testing.T) {
	data, err := EncodeReducer(EndSession)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reducer","reducer":"end_session","args":[]}`, string(data))
}

func TestDecodeTableUpdateConvertsMicros(t *testing.T) {
	frame := `{
		"type": "table_update",
		"table": "poll",
		"rows": [
			{"poll_id": 1, "question": "Pick a color", "is_active": true, "created_at": 1700000000000000}
		]
	}`

	inbound, err := DecodeInbound([]byte(frame))
	require.NoError(t, err)
	require.Equal(t, KindTableUpdate, inbound.Kind)

	snap := inbound.Update.Snapshot
	assert.Equal(t, tables.Polls, snap.Table)
	require.Len(t, snap.Polls, 1)
	assert.Equal(t, "Pick a color", snap.Polls[0].Question)
	assert.True(t, snap.Polls[0].IsActive)
	assert.Equal(t, time.UnixMicro(1700000000000000), snap.Polls[0].CreatedAt)
}

func TestDecodePresentationSingleton(t *testing.T) {
	frame := `{"type":"table_update","table":"presentation_state","rows":[{"id":0,"current_poll_id":4,"state":"results"}]}`

	inbound, err := DecodeInbound([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, tables.PresentationState{CurrentPollID: 4, State: tables.StateResults},
		inbound.Update.Snapshot.Presentation)
}

func TestDecodeReducerResult(t *testing.T) {
	frame := `{"type":"reducer_result","reducer":"create_poll","status":"ok"}`

	inbound, err := DecodeInbound([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, KindReducerResult, inbound.Kind)
	assert.Equal(t, "create_poll", inbound.Result.Reducer)
}

func TestDecodeUnknownFrame(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"heartbeat"}`))
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestDecodeUnknownTable(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"table_update","table":"ghost","rows":[]}`))
	assert.ErrorIs(t, err, tables.ErrUnknownTable)
}

func TestParseReducer(t *testing.T) {
	r, err := ParseReducer("activate_poll")
	require.NoError(t, err)
	assert.Equal(t, ActivatePoll, r)

	_, err = ParseReducer("drop_tables")
	assert.ErrorIs(t, err, ErrUnknownReducer)
}

func TestRowsRoundTripVotes(t *testing.T) {
	snap := tables.Snapshot{
		Table: tables.Votes,
		Votes: []tables.Vote{
			{VoteID: 1, PollID: 2, UserID: "alice", OptionID: 3, VotedAt: time.UnixMicro(42)},
		},
	}

	raw, err := MarshalRows(snap)
	require.NoError(t, err)

	back, err := UnmarshalRows(tables.Votes, raw)
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}

func TestUnmarshalRowsEmpty(t *testing.T) {
	snap, err := UnmarshalRows(tables.Presentation, nil)
	require.NoError(t, err)
	assert.Equal(t, tables.StateWaiting, snap.Presentation.State)
}
