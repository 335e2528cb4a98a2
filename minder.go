// Package minder defines the request/response types for minder IPC.
// Messages are JSON-encoded and sent over a persistent stream socket, one per line.
package minder

import "encoding/json"

// Operation hints supplied by the client. An empty hint means the server
// classifies the command itself.
const (
	HintTodo  = "todo"
	HintQuery = "query"
)

// Todo operation kinds emitted by the model.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpRemove     = "remove"
	OpClear      = "clear"
	OpList       = "list"
	OpComplete   = "complete"
	OpUncomplete = "uncomplete"
)

// Error codes returned in Error.Code.
const (
	ErrInvalidJSON           = "invalid_json"
	ErrInvalidConfiguration  = "invalid_configuration"
	ErrModelInvocationFailed = "model_invocation_failed"
	ErrMalformedModelOutput  = "malformed_model_output"
	ErrEmptyResponse         = "empty_response"
	ErrCredentialsRemoved    = "credentials_removed"
	ErrConnectionLost        = "connection_lost"
	ErrTimeout               = "timeout"
)

// GenerationConfig carries per-request model sampling settings.
type GenerationConfig struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// Exchange is one prior command/response pair from the client's conversation.
type Exchange struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

// Command is sent from the client to the daemon.
type Command struct {
	// Text is the free-form natural-language command.
	Text string `json:"text"`
	// Credentials is the opaque API token forwarded to the model gateway.
	Credentials string `json:"credentials"`
	// ModelID selects the model invoked by the gateway.
	ModelID string `json:"modelId"`
	// GenerationConfig is required; a nil value fails envelope validation.
	GenerationConfig *GenerationConfig `json:"generationConfig"`
	// OperationHint is "todo", "query", or empty for server-side classification.
	OperationHint string `json:"operationHint,omitempty"`
	// ExistingTodosJSON is the client's todo list, serialized. Its presence
	// (non-empty string, even "[]") enables todo-mutation classification.
	ExistingTodosJSON string `json:"existingTodosJson,omitempty"`
	// NotesJSON and FoldersJSON carry the client's knowledge base, serialized.
	NotesJSON   string `json:"notesJson,omitempty"`
	FoldersJSON string `json:"foldersJson,omitempty"`
	// CorrelationID is echoed back in the response when present.
	CorrelationID string `json:"correlationId,omitempty"`
	// ConversationHistory holds prior exchanges, most recent first.
	ConversationHistory []Exchange `json:"conversationHistory,omitempty"`
}

// TodoFields is the model-produced field bag of a todo operation. Values are
// passed through to the client verbatim; the daemon does not validate them.
type TodoFields = json.RawMessage

// TodoOperation is the structured operation extracted from model output.
type TodoOperation struct {
	// Kind is one of the Op* constants. Required.
	Kind string `json:"type"`
	// TodoID identifies the target todo for update/remove operations.
	TodoID string `json:"todoId,omitempty"`
	// Fields holds the operation payload (title, dueDate, ...), untouched.
	Fields TodoFields `json:"data,omitempty"`
	// StorageCommand is the client-side storage command. Required.
	StorageCommand string `json:"localStorageCommand"`
}

// Error describes a daemon-side failure returned to the client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "invalid_json").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Response is sent from the daemon back to the client. Exactly one of the
// todo fields (Operation), the query field (Answer), or Error is populated.
type Response struct {
	Success bool `json:"success"`
	// Kind is "todo" or "query"; on failures it echoes the intent being
	// processed when the failure occurred, if known.
	Kind string `json:"kind,omitempty"`
	// CorrelationID is echoed from the command when the client supplied one.
	CorrelationID string `json:"correlationId,omitempty"`
	// Command echoes the storage command for todo operations.
	Command string `json:"command,omitempty"`
	// Operation is the validated todo operation.
	Operation *TodoOperation `json:"operation,omitempty"`
	// Todos echoes the client's todo list for list operations.
	Todos json.RawMessage `json:"todos,omitempty"`
	// Answer is the free-form reply for query commands.
	Answer string `json:"response,omitempty"`
	// Error is set when the daemon cannot fulfill the command.
	Error *Error `json:"error,omitempty"`
}

// ControlRequest is sent from a client for configuration operations.
type ControlRequest struct {
	// Action is the control operation: "get", "reload", or "defaults".
	Action string `json:"action"`
}

// ControlResponse is sent from the daemon in response to a ControlRequest.
type ControlResponse struct {
	// Config is the active configuration (for "get" and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
