package persist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/tables"
)

func sampleState() State {
	return State{
		Participants: []tables.Participant{
			{UserID: "alice", SessionID: "s1", Role: tables.RoleAdmin, ConnectedAt: time.UnixMicro(1)},
		},
		Polls: []tables.Poll{
			{PollID: 1, Question: "Pick a color", IsActive: true, CreatedAt: time.UnixMicro(2)},
		},
		Options: []tables.Option{
			{OptionID: 1, PollID: 1, Text: "Red"},
			{OptionID: 2, PollID: 1, Text: "Blue"},
		},
		Votes: []tables.Vote{
			{VoteID: 1, PollID: 1, UserID: "alice", OptionID: 2, VotedAt: time.UnixMicro(3)},
		},
		Presentation: tables.PresentationState{CurrentPollID: 1, State: tables.StateVoting},
		NextPollID:   2,
		NextOptionID: 3,
		NextVoteID:   2,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	adapter := NewAdapter(NewMemoryKV(), log.Nop())

	want := sampleState()
	adapter.Save(want)

	got, ok := adapter.Load()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLoadAbsent(t *testing.T) {
	adapter := NewAdapter(NewMemoryKV(), log.Nop())
	_, ok := adapter.Load()
	assert.False(t, ok)
}

func TestLoadCorruptSnapshotIsAbsent(t *testing.T) {
	kv := NewMemoryKV()
	adapter := NewAdapter(kv, log.Nop())
	adapter.Save(sampleState())

	// Flip the stored bytes; the checksum must reject them.
	data, err := kv.Get(stateKey)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	require.NoError(t, kv.Set(stateKey, data))

	_, ok := adapter.Load()
	assert.False(t, ok, "a snapshot that fails verification is treated as no prior state")
}

func TestSaveOverwrites(t *testing.T) {
	adapter := NewAdapter(NewMemoryKV(), log.Nop())

	first := sampleState()
	adapter.Save(first)

	second := first
	second.NextVoteID = 42
	adapter.Save(second)

	got, ok := adapter.Load()
	require.True(t, ok)
	assert.Equal(t, uint64(42), got.NextVoteID)
}

func TestBadgerKVRoundTrip(t *testing.T) {
	kv, err := NewBadgerKV(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = kv.Close() }()

	_, err = kv.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, kv.Set([]byte("k"), []byte("v")))
	val, err := kv.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}
