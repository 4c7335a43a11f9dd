package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollsync/pollsync/internal/core/observability/log"
)

func TestHubDeliversInRegistrationOrder(t *testing.T) {
	hub := NewHub(log.Nop())

	var order []string
	hub.Subscribe(Votes, func(Snapshot) { order = append(order, "first") })
	hub.Subscribe(Votes, func(Snapshot) { order = append(order, "second") })
	hub.Subscribe(Votes, func(Snapshot) { order = append(order, "third") })

	hub.Notify(Snapshot{Table: Votes})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHubNotifyIsPerTable(t *testing.T) {
	hub := NewHub(log.Nop())

	pollCalls := 0
	voteCalls := 0
	hub.Subscribe(Polls, func(Snapshot) { pollCalls++ })
	hub.Subscribe(Votes, func(Snapshot) { voteCalls++ })

	hub.Notify(Snapshot{Table: Polls})
	assert.Equal(t, 1, pollCalls)
	assert.Equal(t, 0, voteCalls)
}

func TestSubscriptionCancel(t *testing.T) {
	hub := NewHub(log.Nop())

	calls := 0
	sub := hub.Subscribe(Polls, func(Snapshot) { calls++ })

	hub.Notify(Snapshot{Table: Polls})
	require.Equal(t, 1, calls)

	sub.Cancel()
	hub.Notify(Snapshot{Table: Polls})
	assert.Equal(t, 1, calls, "canceled observer must not be invoked")

	// Cancel is idempotent.
	sub.Cancel()
}

func TestCancelPreservesRemainingOrder(t *testing.T) {
	hub := NewHub(log.Nop())

	var order []string
	hub.Subscribe(Polls, func(Snapshot) { order = append(order, "a") })
	middle := hub.Subscribe(Polls, func(Snapshot) { order = append(order, "b") })
	hub.Subscribe(Polls, func(Snapshot) { order = append(order, "c") })

	middle.Cancel()
	hub.Notify(Snapshot{Table: Polls})
	assert.Equal(t, []string{"a", "c"}, order)
}
