package broadcast

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/tables"
)

func testChannel(t *testing.T) string {
	t.Helper()
	return "test:" + uuid.NewString()
}

func TestPublishReachesSiblingsNotSelf(t *testing.T) {
	name := testChannel(t)
	a := Join(name, log.Nop())
	b := Join(name, log.Nop())
	defer a.Leave()
	defer b.Leave()

	var aGot, bGot []tables.Snapshot
	a.OnReceive(func(snap tables.Snapshot) { aGot = append(aGot, snap) })
	b.OnReceive(func(snap tables.Snapshot) { bGot = append(bGot, snap) })

	a.Publish(tables.Snapshot{
		Table: tables.Polls,
		Polls: []tables.Poll{{PollID: 1, Question: "q", CreatedAt: time.UnixMicro(5)}},
	})

	assert.Empty(t, aGot, "a sender never hears its own publication")
	require.Len(t, bGot, 1)
	assert.Equal(t, tables.Polls, bGot[0].Table)
	require.Len(t, bGot[0].Polls, 1)
	assert.Equal(t, "q", bGot[0].Polls[0].Question)
	assert.Equal(t, time.UnixMicro(5), bGot[0].Polls[0].CreatedAt)
}

func TestDeliveryIsFIFOPerSender(t *testing.T) {
	name := testChannel(t)
	a := Join(name, log.Nop())
	b := Join(name, log.Nop())
	defer a.Leave()
	defer b.Leave()

	var order []string
	b.OnReceive(func(snap tables.Snapshot) {
		order = append(order, snap.Polls[0].Question)
	})

	for i := 0; i < 5; i++ {
		a.Publish(tables.Snapshot{
			Table: tables.Polls,
			Polls: []tables.Poll{{PollID: uint64(i), Question: fmt.Sprintf("q%d", i)}},
		})
	}

	assert.Equal(t, []string{"q0", "q1", "q2", "q3", "q4"}, order)
}

func TestLeaveStopsDelivery(t *testing.T) {
	name := testChannel(t)
	a := Join(name, log.Nop())
	b := Join(name, log.Nop())
	defer a.Leave()

	calls := 0
	b.OnReceive(func(tables.Snapshot) { calls++ })

	a.Publish(tables.Snapshot{Table: tables.Presentation})
	require.Equal(t, 1, calls)

	b.Leave()
	a.Publish(tables.Snapshot{Table: tables.Presentation})
	assert.Equal(t, 1, calls)
}

func TestMemberWithoutHandlerIsSkipped(t *testing.T) {
	name := testChannel(t)
	a := Join(name, log.Nop())
	b := Join(name, log.Nop())
	defer a.Leave()
	defer b.Leave()

	// b never registered a handler; publishing must not panic.
	a.Publish(tables.Snapshot{Table: tables.Votes})
}
