package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollsync/pollsync/internal/core/connection"
	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/tables"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []string

	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.done:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) Done() <-chan struct{} {
	return c.done
}

func (c *fakeConn) sentFrames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func testConfig() Config {
	config := DefaultConfig()
	config.SessionID = "test"
	config.BroadcastChannel = "test:" + uuid.NewString()
	config.Connection.Endpoints = []string{"ws://primary/ws"}
	config.Connection.ConnectTimeout = 100 * time.Millisecond
	config.Connection.ReconnectInterval = time.Millisecond
	return config
}

func newFallbackClient(t *testing.T, config Config) *Client {
	t.Helper()
	dialer := func(context.Context, string) (connection.Conn, error) {
		return nil, errors.New("refused")
	}
	c := newWithDialer(config, dialer, log.Nop())
	t.Cleanup(func() { _ = c.Close() })

	outcome, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, connection.OutcomeFallback, outcome)
	require.Equal(t, ModeFallback, c.Mode())
	return c
}

func TestIssueBeforeConnect(t *testing.T) {
	c := New(testConfig(), log.Nop())
	defer func() { _ = c.Close() }()

	assert.ErrorIs(t, c.EndSession(), ErrNotConnected)
}

func TestCommandsRequireJoin(t *testing.T) {
	c := newFallbackClient(t, testConfig())
	assert.ErrorIs(t, c.CreatePoll("q", []string{"a", "b"}), ErrNotJoined)
}

func TestJoinSessionValidatesRole(t *testing.T) {
	c := newFallbackClient(t, testConfig())
	assert.ErrorIs(t, c.JoinSession(tables.Role("root")), ErrInvalidRole)
}

func TestCreatePollFiltersEmptyOptions(t *testing.T) {
	c := newFallbackClient(t, testConfig())
	require.NoError(t, c.JoinSession(tables.RoleAdmin))

	assert.ErrorIs(t, c.CreatePoll("q", []string{"only", "", "  "}), ErrTooFewOptions)

	require.NoError(t, c.CreatePoll("q", []string{"a", "", "b", " "}))
	snap, err := c.GetTable(tables.Options)
	require.NoError(t, err)
	assert.Len(t, snap.Options, 2, "blank option texts are filtered before the reducer runs")
}

func TestFallbackVotingScenario(t *testing.T) {
	// Create "Pick a color" with Red/Blue, activate, vote Red then revote
	// Blue from the same participant: one row, option Blue, Blue at 100%.
	c := newFallbackClient(t, testConfig())
	require.NoError(t, c.JoinSession(tables.RoleAdmin))

	require.NoError(t, c.CreatePoll("Pick a color", []string{"Red", "Blue"}))
	require.NoError(t, c.ActivatePoll(1))

	active, ok := c.ActivePoll()
	require.True(t, ok)
	assert.Equal(t, "Pick a color", active.Question)
	assert.Equal(t, tables.StateVoting, c.Presentation().State)

	options := c.PollOptions(1)
	require.Len(t, options, 2)
	red, blue := options[0], options[1]

	require.NoError(t, c.SubmitVote(1, red.OptionID))
	require.NoError(t, c.SubmitVote(1, blue.OptionID))

	snap, err := c.GetTable(tables.Votes)
	require.NoError(t, err)
	require.Len(t, snap.Votes, 1, "a revote replaces the existing row")
	assert.Equal(t, blue.OptionID, snap.Votes[0].OptionID)

	require.NoError(t, c.ShowResults(1))
	assert.Equal(t, tables.StateResults, c.Presentation().State)

	results := c.Results(1)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Percent)
	assert.Equal(t, 100, results[1].Percent)
	assert.Equal(t, 1, c.TotalVotes(1))
}

func TestFallbackSiblingsStayConsistent(t *testing.T) {
	config := testConfig()

	admin := newFallbackClient(t, config)
	voter := newFallbackClient(t, config)

	require.NoError(t, admin.JoinSession(tables.RoleAdmin))
	require.NoError(t, voter.JoinSession(tables.RoleUser))

	var notified int
	_, err := voter.Subscribe(tables.Polls, func(tables.Snapshot) { notified++ })
	require.NoError(t, err)

	require.NoError(t, admin.CreatePoll("Pick a color", []string{"Red", "Blue"}))
	require.NoError(t, admin.ActivatePoll(1))

	// The sibling sees the admin's tables through the broadcast channel.
	poll, ok := voter.ActivePoll()
	require.True(t, ok)
	assert.Equal(t, "Pick a color", poll.Question)
	assert.GreaterOrEqual(t, notified, 1)

	// And votes flow the other way.
	require.NoError(t, voter.SubmitVote(1, 2))
	assert.Equal(t, 1, admin.TotalVotes(1))
}

func TestRemoteModeSendsFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := func(context.Context, string) (connection.Conn, error) {
		return conn, nil
	}

	c := newWithDialer(testConfig(), dialer, log.Nop())
	defer func() { _ = c.Close() }()

	outcome, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, connection.OutcomeRemote, outcome)
	require.Equal(t, ModeRemote, c.Mode())

	require.NoError(t, c.JoinSession(tables.RoleUser))
	require.NoError(t, c.SubmitVote(1, 2))

	frames := conn.sentFrames()
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"reducer","reducer":"join_session","args":["test","user"]}`, frames[0])
	assert.JSONEq(t, `{"type":"reducer","reducer":"submit_vote","args":[1,2]}`, frames[1])
}

func TestRemoteTableUpdateNotifiesSubscribers(t *testing.T) {
	conn := newFakeConn()
	dialer := func(context.Context, string) (connection.Conn, error) {
		return conn, nil
	}

	c := newWithDialer(testConfig(), dialer, log.Nop())
	defer func() { _ = c.Close() }()

	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	updates := make(chan tables.Snapshot, 1)
	_, err = c.Subscribe(tables.Polls, func(snap tables.Snapshot) { updates <- snap })
	require.NoError(t, err)

	conn.inbound <- []byte(`{"type":"table_update","table":"poll","rows":[{"poll_id":9,"question":"remote","is_active":true,"created_at":0}]}`)

	select {
	case snap := <-updates:
		require.Len(t, snap.Polls, 1)
		assert.Equal(t, uint64(9), snap.Polls[0].PollID)
	case <-time.After(time.Second):
		t.Fatal("table update not delivered")
	}

	poll, ok := c.ActivePoll()
	require.True(t, ok)
	assert.Equal(t, "remote", poll.Question)
}

func TestConcurrentConnectIsDeduplicated(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conn := newFakeConn()
	dialer := func(context.Context, string) (connection.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return conn, nil
	}

	c := newWithDialer(testConfig(), dialer, log.Nop())
	defer func() { _ = c.Close() }()

	var wg sync.WaitGroup
	outcomes := make([]connection.Outcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := c.Connect(context.Background())
			require.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, dials)
	for _, outcome := range outcomes {
		assert.Equal(t, connection.OutcomeRemote, outcome)
	}
}
