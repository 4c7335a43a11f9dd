package client

import (
	"math"

	"github.com/pollsync/pollsync/tables"
)

// Derived read views over the table store. All of them compute from value
// snapshots; none of them hit the network.

// ActivePoll returns the poll whose active flag is set, if any. At most one
// poll is active at a time.
func (c *Client) ActivePoll() (tables.Poll, bool) {
	for _, p := range c.store.Polls() {
		if p.IsActive {
			return p, true
		}
	}
	return tables.Poll{}, false
}

// CurrentPoll joins the presentation state's current poll id against the
// poll table.
func (c *Client) CurrentPoll() (tables.Poll, bool) {
	presentation := c.store.Presentation()
	for _, p := range c.store.Polls() {
		if p.PollID == presentation.CurrentPollID {
			return p, true
		}
	}
	return tables.Poll{}, false
}

// Presentation returns the singleton presentation state.
func (c *Client) Presentation() tables.PresentationState {
	return c.store.Presentation()
}

// PollOptions returns the options belonging to one poll.
func (c *Client) PollOptions(pollID uint64) []tables.Option {
	var out []tables.Option
	for _, o := range c.store.Options() {
		if o.PollID == pollID {
			out = append(out, o)
		}
	}
	return out
}

// OptionResult is one option's aggregated outcome.
type OptionResult struct {
	Option  tables.Option
	Votes   int
	Percent int
}

// Results aggregates votes per option for one poll. Percent is
// round(100 * votes / total); every option reads 0% when the poll has no
// votes.
func (c *Client) Results(pollID uint64) []OptionResult {
	options := c.PollOptions(pollID)

	counts := make(map[uint64]int)
	total := 0
	for _, v := range c.store.Votes() {
		if v.PollID == pollID {
			counts[v.OptionID]++
			total++
		}
	}

	results := make([]OptionResult, len(options))
	for i, opt := range options {
		votes := counts[opt.OptionID]
		percent := 0
		if total > 0 {
			percent = int(math.Round(100 * float64(votes) / float64(total)))
		}
		results[i] = OptionResult{Option: opt, Votes: votes, Percent: percent}
	}
	return results
}

// TotalVotes counts the votes cast on one poll.
func (c *Client) TotalVotes(pollID uint64) int {
	total := 0
	for _, v := range c.store.Votes() {
		if v.PollID == pollID {
			total++
		}
	}
	return total
}
