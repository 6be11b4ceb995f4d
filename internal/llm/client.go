package llm

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool" // tool result
)

type Message struct {
	Role       Role       `json:"role" bson:"role"`
	Content    string     `json:"content,omitempty" bson:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"` // for tool result messages
	IsError    bool       `json:"is_error,omitempty" bson:"is_error,omitempty"`
}

type ToolCall struct {
	ID     string         `json:"id" bson:"id"`
	Name   string         `json:"name" bson:"name"`
	Params map[string]any `json:"params" bson:"params"`
}

type TurnKind int

const (
	TurnFinal TurnKind = iota
	TurnToolRequest
)

func (k TurnKind) String() string {
	switch k {
	case TurnFinal:
		return "final"
	case TurnToolRequest:
		return "tool_request"
	default:
		return fmt.Sprintf("TurnKind(%d)", int(k))
	}
}

// TurnResult is the outcome of one Complete call. Calls is only set for
// TurnToolRequest; Text may accompany a tool request as a preamble.
type TurnResult struct {
	Kind  TurnKind
	Text  string
	Calls []ToolCall
}

// NewTurnResult classifies a provider response: any tool call makes it a
// tool request.
func NewTurnResult(text string, calls []ToolCall) *TurnResult {
	if len(calls) == 0 {
		return &TurnResult{Kind: TurnFinal, Text: text}
	}
	return &TurnResult{Kind: TurnToolRequest, Text: text, Calls: calls}
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Client is the model gateway. Implementations must not mutate messages or
// tools and keep no conversation state between calls.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (*TurnResult, error)
}

// GatewayError reports a failed model call: network, auth, rate limit,
// malformed response or timeout.
type GatewayError struct {
	Provider string
	Cause    error
}

func (e *GatewayError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model gateway: %v", e.Cause)
	}
	return fmt.Sprintf("%s gateway: %v", e.Provider, e.Cause)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

func gatewayErr(provider string, err error) error {
	return &GatewayError{Provider: provider, Cause: err}
}

// splitSystem separates leading/any system messages from the rest, since
// every provider carries the system prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
