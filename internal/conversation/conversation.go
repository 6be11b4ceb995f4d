// Package conversation holds the ordered message log of one session and
// enforces the pairing between assistant tool calls and tool results.
package conversation

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/chris/whispr/internal/llm"
)

// ErrInvariantViolation is returned when an append would break the
// tool-call/tool-result pairing. It signals a programming error.
var ErrInvariantViolation = errors.New("conversation invariant violated")

// Conversation is safe for concurrent use; every operation is atomic.
type Conversation struct {
	id string

	mu          sync.Mutex
	messages    []llm.Message
	outstanding []string // unanswered call IDs of the latest assistant message
}

func New(id string) *Conversation {
	return &Conversation{id: id}
}

// Restore rebuilds a conversation by replaying every message through Append,
// so a history that breaks the pairing rules is rejected.
func Restore(id string, messages []llm.Message) (*Conversation, error) {
	c := New(id)
	for i, m := range messages {
		if i == 0 && m.Role == llm.RoleSystem {
			c.SeedSystemPrompt(m.Content)
			continue
		}
		if err := c.Append(m); err != nil {
			return nil, fmt.Errorf("restoring message %d: %w", i, err)
		}
	}
	return c, nil
}

func (c *Conversation) ID() string { return c.id }

// Append adds one message. On error the conversation is unchanged.
func (c *Conversation) Append(m llm.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	outstanding, err := next(c.outstanding, len(c.messages), m)
	if err != nil {
		return err
	}
	c.messages = append(c.messages, cloneMessage(m))
	c.outstanding = outstanding
	return nil
}

// next validates m against the current state and returns the outstanding
// call IDs after it is appended.
func next(outstanding []string, size int, m llm.Message) ([]string, error) {
	switch m.Role {
	case llm.RoleTool:
		idx := indexOf(outstanding, m.ToolCallID)
		if m.ToolCallID == "" || idx < 0 {
			return nil, fmt.Errorf("%w: tool result %q answers no outstanding call", ErrInvariantViolation, m.ToolCallID)
		}
		rest := make([]string, 0, len(outstanding)-1)
		rest = append(rest, outstanding[:idx]...)
		return append(rest, outstanding[idx+1:]...), nil

	case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		if len(outstanding) > 0 {
			return nil, fmt.Errorf("%w: %s message while %d tool call(s) are unanswered", ErrInvariantViolation, m.Role, len(outstanding))
		}
		if m.Role == llm.RoleSystem && size > 0 {
			return nil, fmt.Errorf("%w: system message must come first", ErrInvariantViolation)
		}
		if m.ToolCallID != "" {
			return nil, fmt.Errorf("%w: %s message carries a tool call ID", ErrInvariantViolation, m.Role)
		}
		if len(m.ToolCalls) == 0 {
			return nil, nil
		}
		if m.Role != llm.RoleAssistant {
			return nil, fmt.Errorf("%w: only assistant messages may request tools", ErrInvariantViolation)
		}
		ids := make([]string, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			if tc.ID == "" {
				return nil, fmt.Errorf("%w: tool call %q has no ID", ErrInvariantViolation, tc.Name)
			}
			if indexOf(ids, tc.ID) >= 0 {
				return nil, fmt.Errorf("%w: duplicate tool call ID %q", ErrInvariantViolation, tc.ID)
			}
			ids = append(ids, tc.ID)
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvariantViolation, m.Role)
	}
}

// SeedSystemPrompt puts text at position 0, replacing an existing system
// message rather than adding another one.
func (c *Conversation) SeedSystemPrompt(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) > 0 && c.messages[0].Role == llm.RoleSystem {
		c.messages[0].Content = text
		return
	}
	c.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: text}}, c.messages...)
}

// Snapshot returns a deep copy safe to hand to a model call.
func (c *Conversation) Snapshot() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]llm.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = cloneMessage(m)
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Outstanding returns the call IDs still waiting for a tool result.
func (c *Conversation) Outstanding() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.outstanding...)
}

// CloseOutstanding answers every unanswered call with an error result so a
// turn interrupted mid-execution can be replayed. It returns how many
// results were added.
func (c *Conversation) CloseOutstanding(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.outstanding)
	for _, id := range c.outstanding {
		c.messages = append(c.messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: id,
			Content:    "Error: " + reason,
			IsError:    true,
		})
	}
	c.outstanding = nil
	return n
}

// DiscardFrom drops messages[n:] as a single unit. It is used to retract a
// failed turn, so it never leaves half a turn behind.
func (c *Conversation) DiscardFrom(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n >= len(c.messages) {
		return
	}
	c.messages = c.messages[:n:n]
	c.outstanding = nil
	for i, m := range c.messages {
		// Prefix of a valid log, so replay cannot fail.
		c.outstanding, _ = next(c.outstanding, i, m)
	}
}

// Reset clears the conversation.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.outstanding = nil
}

func cloneMessage(m llm.Message) llm.Message {
	if m.ToolCalls == nil {
		return m
	}
	calls := make([]llm.ToolCall, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		tc.Params = maps.Clone(tc.Params)
		calls[i] = tc
	}
	m.ToolCalls = calls
	return m
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
