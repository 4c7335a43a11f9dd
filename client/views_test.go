package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollsync/pollsync/tables"
)

func TestResultsPercentagesRound(t *testing.T) {
	c := newFallbackClient(t, testConfig())
	require.NoError(t, c.JoinSession(tables.RoleAdmin))
	require.NoError(t, c.CreatePoll("q", []string{"a", "b", "c"}))

	// Three voters split 2/1/0.
	votes := []tables.Vote{
		{VoteID: 1, PollID: 1, UserID: "u1", OptionID: 1},
		{VoteID: 2, PollID: 1, UserID: "u2", OptionID: 1},
		{VoteID: 3, PollID: 1, UserID: "u3", OptionID: 2},
	}
	require.NoError(t, c.store.Replace(tables.Snapshot{Table: tables.Votes, Votes: votes}))

	results := c.Results(1)
	require.Len(t, results, 3)
	assert.Equal(t, 2, results[0].Votes)
	assert.Equal(t, 67, results[0].Percent)
	assert.Equal(t, 33, results[1].Percent)
	assert.Equal(t, 0, results[2].Percent)
}

func TestResultsNoVotesIsAllZero(t *testing.T) {
	c := newFallbackClient(t, testConfig())
	require.NoError(t, c.JoinSession(tables.RoleAdmin))
	require.NoError(t, c.CreatePoll("q", []string{"a", "b"}))

	for _, r := range c.Results(1) {
		assert.Equal(t, 0, r.Percent)
		assert.Equal(t, 0, r.Votes)
	}
	assert.Equal(t, 0, c.TotalVotes(1))
}

func TestCurrentPollFollowsPresentation(t *testing.T) {
	c := newFallbackClient(t, testConfig())
	require.NoError(t, c.JoinSession(tables.RoleAdmin))
	require.NoError(t, c.CreatePoll("first", []string{"a", "b"}))
	require.NoError(t, c.CreatePoll("second", []string{"x", "y"}))

	_, ok := c.CurrentPoll()
	assert.False(t, ok, "no current poll before activation")

	require.NoError(t, c.ActivatePoll(2))
	poll, ok := c.CurrentPoll()
	require.True(t, ok)
	assert.Equal(t, "second", poll.Question)

	// Results keeps pointing at the shown poll even after the session
	// ends.
	require.NoError(t, c.ShowResults(2))
	require.NoError(t, c.EndSession())
	poll, ok = c.CurrentPoll()
	require.True(t, ok)
	assert.Equal(t, uint64(2), poll.PollID)
}
