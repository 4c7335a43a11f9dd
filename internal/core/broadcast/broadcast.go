// Package broadcast is the same-device, cross-instance channel that keeps
// sibling fallback clients consistent. Messages cross an encode/decode
// boundary on a fixed, well-known channel name; delivery is best-effort,
// synchronous, and FIFO per sender.
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/internal/core/protocol"
	"github.com/pollsync/pollsync/tables"
)

// DefaultChannel is the well-known channel every instance joins.
const DefaultChannel = "pollsync:tables"

// Handler receives a sibling instance's table replacement.
type Handler func(tables.Snapshot)

var (
	registryMu sync.Mutex
	registry   = make(map[string]*channel)
)

type channel struct {
	name string

	mu      sync.Mutex
	members []*Member
}

func getChannel(name string) *channel {
	registryMu.Lock()
	defer registryMu.Unlock()

	ch, ok := registry[name]
	if !ok {
		ch = &channel{name: name}
		registry[name] = ch
	}
	return ch
}

// Member is one instance's handle on a channel.
type Member struct {
	id      string
	channel *channel
	logger  log.Log

	mu      sync.Mutex
	handler Handler
	left    bool
}

// Join attaches to the named channel. An empty name joins DefaultChannel.
func Join(name string, logger log.Log) *Member {
	if name == "" {
		name = DefaultChannel
	}

	ch := getChannel(name)
	m := &Member{
		id:      uuid.NewString(),
		channel: ch,
		logger:  logger.With(log.String("component", "broadcaster"), log.String("channel", name)),
	}

	ch.mu.Lock()
	ch.members = append(ch.members, m)
	ch.mu.Unlock()

	return m
}

// OnReceive registers the handler invoked for sibling publications.
func (m *Member) OnReceive(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Publish ships a full table replacement to every other member. The
// snapshot is serialized to the wire message shape and decoded on receipt,
// so siblings see exactly what a remote update would carry. Failures are
// logged and swallowed; delivery is best-effort.
func (m *Member) Publish(snap tables.Snapshot) {
	data, err := encodeMessage(snap)
	if err != nil {
		m.logger.Warn("broadcast encode failed", log.Error(err))
		return
	}

	m.channel.mu.Lock()
	members := make([]*Member, len(m.channel.members))
	copy(members, m.channel.members)
	m.channel.mu.Unlock()

	for _, member := range members {
		if member.id == m.id {
			continue
		}
		member.deliver(data)
	}
}

func (m *Member) deliver(data []byte) {
	m.mu.Lock()
	handler := m.handler
	left := m.left
	m.mu.Unlock()
	if left || handler == nil {
		return
	}

	snap, err := decodeMessage(data)
	if err != nil {
		m.logger.Warn("broadcast decode failed", log.Error(err))
		return
	}
	handler(snap)
}

// Leave detaches from the channel.
func (m *Member) Leave() {
	m.mu.Lock()
	m.left = true
	m.mu.Unlock()

	m.channel.mu.Lock()
	defer m.channel.mu.Unlock()
	for i, member := range m.channel.members {
		if member.id == m.id {
			m.channel.members = append(m.channel.members[:i:i], m.channel.members[i+1:]...)
			return
		}
	}
}

// Message shape: {"type": "<table>", "<table>": [rows...]}.

func encodeMessage(snap tables.Snapshot) ([]byte, error) {
	rows, err := protocol.MarshalRows(snap)
	if err != nil {
		return nil, err
	}

	name := snap.Table.String()
	typeName, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}

	msg := map[string]json.RawMessage{
		"type": typeName,
		name:   rows,
	}
	return json.Marshal(msg)
}

func decodeMessage(data []byte) (tables.Snapshot, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return tables.Snapshot{}, err
	}

	var typeName string
	if err := json.Unmarshal(msg["type"], &typeName); err != nil {
		return tables.Snapshot{}, err
	}

	name, err := tables.ParseName(typeName)
	if err != nil {
		return tables.Snapshot{}, err
	}
	return protocol.UnmarshalRows(name, msg[typeName])
}
