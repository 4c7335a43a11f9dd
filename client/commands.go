package client

import (
	"github.com/pollsync/pollsync/internal/core/protocol"
	"github.com/pollsync/pollsync/tables"
)

// Command is the closed set of operations a consumer can issue. Each
// variant carries its own typed arguments; routing is by exhaustive switch
// in both the remote and the fallback path.
type Command interface {
	isCommand()
}

// JoinSessionCommand joins the session under a role. Required before any
// other command.
type JoinSessionCommand struct {
	SessionID string
	Role      tables.Role
}

// CreatePollCommand creates a poll with one option per text.
type CreatePollCommand struct {
	Question string
	Options  []string
}

// ActivatePollCommand makes the given poll the single active one and moves
// the presentation to voting.
type ActivatePollCommand struct {
	PollID uint64
}

// SubmitVoteCommand casts or replaces the issuing participant's vote.
type SubmitVoteCommand struct {
	PollID   uint64
	OptionID uint64
}

// ShowResultsCommand moves the presentation to results for the given poll.
type ShowResultsCommand struct {
	PollID uint64
}

// EndSessionCommand ends the session.
type EndSessionCommand struct{}

func (JoinSessionCommand) isCommand()  {}
func (CreatePollCommand) isCommand()   {}
func (ActivatePollCommand) isCommand() {}
func (SubmitVoteCommand) isCommand()   {}
func (ShowResultsCommand) isCommand()  {}
func (EndSessionCommand) isCommand()   {}

// encodeCommand builds the outbound reducer frame for a command.
func encodeCommand(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case JoinSessionCommand:
		return protocol.EncodeReducer(protocol.JoinSession, c.SessionID, string(c.Role))
	case CreatePollCommand:
		return protocol.EncodeReducer(protocol.CreatePoll, c.Question, c.Options)
	case ActivatePollCommand:
		return protocol.EncodeReducer(protocol.ActivatePoll, c.PollID)
	case SubmitVoteCommand:
		return protocol.EncodeReducer(protocol.SubmitVote, c.PollID, c.OptionID)
	case ShowResultsCommand:
		return protocol.EncodeReducer(protocol.ShowResults, c.PollID)
	case EndSessionCommand:
		return protocol.EncodeReducer(protocol.EndSession)
	default:
		return nil, protocol.ErrUnknownReducer
	}
}
