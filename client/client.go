// Package client is the single public entry point of pollsync: it unifies
// issuing commands and observing tables behind one object, hiding whether
// the authority is the remote endpoint or the local fallback engine.
package client

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pollsync/pollsync/internal/core/broadcast"
	"github.com/pollsync/pollsync/internal/core/connection"
	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/internal/core/persist"
	"github.com/pollsync/pollsync/internal/core/protocol"
	"github.com/pollsync/pollsync/internal/core/sim"
	"github.com/pollsync/pollsync/tables"
)

// Mode says which side currently owns state-mutating operations.
type Mode uint8

const (
	ModeDisconnected Mode = iota
	ModeRemote
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeFallback:
		return "fallback"
	default:
		return "disconnected"
	}
}

// Client is the sync facade. Construct one per process at startup and pass
// it by reference to every consumer.
type Client struct {
	config Config
	logger log.Log

	store   *tables.Store
	manager *connection.Manager

	mu     sync.Mutex
	mode   Mode
	joined bool
	role   tables.Role
	closed bool

	participantID string

	// Fallback collaborators, wired on a fallback connect outcome.
	engine  *sim.Engine
	member  *broadcast.Member
	kv      persist.KV
	adapter *persist.Adapter

	connectGroup singleflight.Group
}

// New creates a client. A nil logger builds one from config.LogLevel.
func New(config Config, logger log.Log) *Client {
	return newClient(config, nil, logger)
}

// newWithDialer is the test seam for injecting a fake transport.
func newWithDialer(config Config, dialer connection.Dialer, logger log.Log) *Client {
	return newClient(config, dialer, logger)
}

// newClient builds the one manager the client will ever own; a nil dialer
// selects the websocket transport.
func newClient(config Config, dialer connection.Dialer, logger log.Log) *Client {
	if logger == nil {
		logger = log.New(config.LogLevel)
	}

	participantID := config.ParticipantID
	if participantID == "" {
		participantID = uuid.NewString()
	}

	c := &Client{
		config:        config,
		logger:        logger.With(log.String("component", "client")),
		store:         tables.NewStore(logger),
		participantID: participantID,
	}

	c.manager = connection.NewManager(config.Connection, dialer, logger)
	c.manager.OnFrame(c.handleFrame)

	c.logger.Info("client created", log.String("participant_id", participantID))
	return c
}

// Connect negotiates the operating mode: the first reachable candidate
// endpoint wins, and when none is reachable with fallback permitted the
// local engine takes over as authority. Concurrent calls are deduplicated.
func (c *Client) Connect(ctx context.Context, endpoints ...string) (connection.Outcome, error) {
	result, err, _ := c.connectGroup.Do("connect", func() (any, error) {
		c.mu.Lock()
		switch c.mode {
		case ModeRemote:
			c.mu.Unlock()
			return connection.OutcomeRemote, nil
		case ModeFallback:
			c.mu.Unlock()
			return connection.OutcomeFallback, nil
		}
		c.mu.Unlock()

		outcome, err := c.manager.Connect(ctx, endpoints...)
		if err != nil {
			return outcome, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		switch outcome {
		case connection.OutcomeRemote:
			c.mode = ModeRemote
		case connection.OutcomeFallback:
			c.mode = ModeFallback
			c.wireFallbackLocked()
		}
		return outcome, nil
	})
	return result.(connection.Outcome), err
}

// wireFallbackLocked stands the local authority up: durable snapshot store,
// cross-instance channel, then the engine seeded from the snapshot.
func (c *Client) wireFallbackLocked() {
	var kv persist.KV
	if c.config.PersistencePath != "" {
		badgerKV, err := persist.NewBadgerKV(c.config.PersistencePath)
		if err != nil {
			c.logger.Warn("persistent store unavailable, using in-memory snapshot",
				log.Error(err))
			kv = persist.NewMemoryKV()
		} else {
			kv = badgerKV
		}
	} else {
		kv = persist.NewMemoryKV()
	}

	c.kv = kv
	c.adapter = persist.NewAdapter(kv, c.logger)
	c.member = broadcast.Join(c.config.BroadcastChannel, c.logger)
	c.engine = sim.NewEngine(c.store, c.adapter, c.member, c.logger)
	c.member.OnReceive(c.engine.Absorb)
}

// handleFrame applies one inbound frame from the remote authority. Table
// updates replace the table wholesale and notify observers; reducer results
// are informational.
func (c *Client) handleFrame(data []byte) {
	inbound, err := protocol.DecodeInbound(data)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", log.Error(err))
		return
	}

	switch inbound.Kind {
	case protocol.KindTableUpdate:
		if err := c.store.Replace(inbound.Update.Snapshot); err != nil {
			c.logger.Warn("table update rejected", log.Error(err))
		}
	case protocol.KindReducerResult:
		c.logger.Debug("reducer result",
			log.String("reducer", inbound.Result.Reducer),
			log.String("status", inbound.Result.Status))
	}
}

// JoinSession must precede any command issuance. The role is validated
// here; the participant identity was generated at construction if the
// config did not carry one.
func (c *Client) JoinSession(role tables.Role) error {
	if !tables.ValidRole(role) {
		return ErrInvalidRole
	}

	err := c.Issue(JoinSessionCommand{SessionID: c.config.SessionID, Role: role})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.joined = true
	c.role = role
	c.mu.Unlock()
	return nil
}

// Issue routes one command by mode. Remote mode is fire-and-forget: the
// call returns once the frame is accepted for sending (or queued while
// disconnected). Fallback mode executes the matching reducer synchronously;
// on return its side effects are persisted, broadcast, and delivered to
// local observers.
func (c *Client) Issue(cmd Command) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	mode := c.mode
	joined := c.joined
	c.mu.Unlock()

	if mode == ModeDisconnected {
		return ErrNotConnected
	}
	if _, isJoin := cmd.(JoinSessionCommand); !isJoin && !joined {
		return ErrNotJoined
	}

	if create, ok := cmd.(CreatePollCommand); ok {
		filtered := filterOptions(create.Options)
		if len(filtered) < 2 {
			return ErrTooFewOptions
		}
		cmd = CreatePollCommand{Question: create.Question, Options: filtered}
	}

	switch mode {
	case ModeRemote:
		frame, err := encodeCommand(cmd)
		if err != nil {
			return err
		}
		return c.manager.Send(frame)
	case ModeFallback:
		return c.reduce(cmd)
	default:
		return ErrNotConnected
	}
}

// reduce dispatches a command to the fallback engine.
func (c *Client) reduce(cmd Command) error {
	switch cm := cmd.(type) {
	case JoinSessionCommand:
		return c.engine.JoinSession(c.participantID, cm.SessionID, cm.Role)
	case CreatePollCommand:
		return c.engine.CreatePoll(cm.Question, cm.Options)
	case ActivatePollCommand:
		return c.engine.ActivatePoll(cm.PollID)
	case SubmitVoteCommand:
		return c.engine.SubmitVote(c.participantID, cm.PollID, cm.OptionID)
	case ShowResultsCommand:
		return c.engine.ShowResults(cm.PollID)
	case EndSessionCommand:
		return c.engine.EndSession()
	default:
		return protocol.ErrUnknownReducer
	}
}

func filterOptions(options []string) []string {
	filtered := make([]string, 0, len(options))
	for _, opt := range options {
		if strings.TrimSpace(opt) != "" {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}

// Convenience command methods.

func (c *Client) CreatePoll(question string, options []string) error {
	return c.Issue(CreatePollCommand{Question: question, Options: options})
}

func (c *Client) ActivatePoll(pollID uint64) error {
	return c.Issue(ActivatePollCommand{PollID: pollID})
}

func (c *Client) SubmitVote(pollID, optionID uint64) error {
	return c.Issue(SubmitVoteCommand{PollID: pollID, OptionID: optionID})
}

func (c *Client) ShowResults(pollID uint64) error {
	return c.Issue(ShowResultsCommand{PollID: pollID})
}

func (c *Client) EndSession() error {
	return c.Issue(EndSessionCommand{})
}

// GetTable returns a copy of the named table.
func (c *Client) GetTable(name tables.Name) (tables.Snapshot, error) {
	return c.store.Get(name)
}

// Subscribe registers an observer for the named table. Observers run
// synchronously, in registration order, whenever the table is replaced.
func (c *Client) Subscribe(name tables.Name, observer tables.Observer) (*tables.Subscription, error) {
	return c.store.Subscribe(name, observer)
}

// Mode returns the current operating mode.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status exposes the connection status for callers that need explicit
// signaling; most failure modes otherwise surface only as table staleness.
func (c *Client) Status() connection.Status {
	return c.manager.Status()
}

// ParticipantID returns this instance's participant identity.
func (c *Client) ParticipantID() string {
	return c.participantID
}

// Close tears the client down: transport first, then the fallback
// collaborators when they were wired.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	member := c.member
	kv := c.kv
	c.mu.Unlock()

	err := c.manager.Close()
	if member != nil {
		member.Leave()
	}
	if kv != nil {
		if closeErr := kv.Close(); err == nil {
			err = closeErr
		}
	}

	c.logger.Info("client closed")
	return err
}
