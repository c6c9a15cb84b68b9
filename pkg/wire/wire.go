package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the wire protocol generation this build speaks.
// Commands carrying a different version are rejected before dispatch.
const ProtocolVersion = 1

// CommandType names an operation a client can request.
type CommandType string

const (
	CommandApply        CommandType = "apply"
	CommandRevert       CommandType = "revert"
	CommandAudit        CommandType = "audit"
	CommandDrift        CommandType = "drift"
	CommandListPolicies CommandType = "list_policies"
	CommandHistory      CommandType = "history"
	CommandGetState     CommandType = "get_state"
	CommandPing         CommandType = "ping"
)

// Tier is the authorization level a command demands.
type Tier string

const (
	// TierRead covers commands that only observe state.
	TierRead Tier = "read"

	// TierMutate covers commands that change host state.
	TierMutate Tier = "mutate"
)

// TierFor reports the authorization tier required by a command type.
// Unknown types demand mutate so that a gap here fails closed.
func TierFor(t CommandType) Tier {
	switch t {
	case CommandAudit, CommandDrift, CommandListPolicies, CommandHistory, CommandGetState, CommandPing:
		return TierRead
	case CommandApply, CommandRevert:
		return TierMutate
	default:
		return TierMutate
	}
}

// Error codes carried in Response envelopes. These are the only codes the
// daemon emits; clients switch on them rather than parsing messages.
const (
	CodeValidation    = "validation_error"
	CodeNotAuthorized = "not_authorized"
	CodeNotApplicable = "not_applicable"
	CodeExecutor      = "executor_failure"
	CodePersistence   = "persistence_failure"
	CodeCancelled     = "cancelled"
	CodeBusy          = "busy"
	CodeInternal      = "internal"
)

// Command is the client-to-daemon request envelope. Payload stays raw until
// the envelope and payload have both passed schema validation.
type Command struct {
	// Type selects the operation.
	Type CommandType `json:"type"`

	// ID correlates progress and response frames with this command.
	ID string `json:"id"`

	// ProtocolVersion must equal ProtocolVersion.
	ProtocolVersion int `json:"protocol_version"`

	// Timestamp is when the client built the command. Informational.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Payload holds the command-specific body.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewCommand builds an envelope with a fresh id and the current protocol
// version. The payload must already be marshaled.
func NewCommand(t CommandType, payload json.RawMessage) *Command {
	return &Command{
		Type:            t,
		ID:              uuid.NewString(),
		ProtocolVersion: ProtocolVersion,
		Timestamp:       time.Now().UTC(),
		Payload:         payload,
	}
}

// Error is one failure inside a Response. Code is from the Code* set.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// PolicyID is set when the failure concerns a single policy.
	PolicyID string `json:"policy_id,omitempty"`
}

// Response is the daemon-to-client terminal envelope. Exactly one Response
// ends every command, after any Progress frames. A failed command may still
// carry a Result when partial work persisted.
type Response struct {
	CommandID string          `json:"command_id"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Errors    []Error         `json:"errors,omitempty"`
}

// Progress is an interim frame reporting batch advancement. Percent runs
// 0-100; Message names the policy being worked.
type Progress struct {
	CommandID string `json:"command_id"`
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
	PolicyID  string `json:"policy_id,omitempty"`
}

// ServerFrame kinds.
const (
	FrameProgress = "progress"
	FrameResponse = "response"
)

// ServerFrame wraps every daemon-to-client frame so the client can tell
// interim progress from the terminal response.
type ServerFrame struct {
	Kind     string    `json:"kind"`
	Progress *Progress `json:"progress,omitempty"`
	Response *Response `json:"response,omitempty"`
}
