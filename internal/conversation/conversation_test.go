package conversation

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chris/whispr/internal/llm"
)

func assistantCalls(ids ...string) llm.Message {
	m := llm.Message{Role: llm.RoleAssistant}
	for _, id := range ids {
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{ID: id, Name: "active_tab", Params: map[string]any{}})
	}
	return m
}

func toolResult(id string) llm.Message {
	return llm.Message{Role: llm.RoleTool, ToolCallID: id, Content: "ok"}
}

func mustAppend(t *testing.T, c *Conversation, msgs ...llm.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := c.Append(m); err != nil {
			t.Fatalf("Append(%+v): %v", m, err)
		}
	}
}

func TestAppend_PairsResultsWithCalls(t *testing.T) {
	c := New("s1")
	mustAppend(t, c,
		llm.Message{Role: llm.RoleUser, Content: "bookmark this"},
		assistantCalls("a", "b"),
	)
	if got := c.Outstanding(); !cmp.Equal(got, []string{"a", "b"}) {
		t.Fatalf("outstanding = %v, want [a b]", got)
	}

	// Results may arrive in any order.
	mustAppend(t, c, toolResult("b"), toolResult("a"))
	if got := c.Outstanding(); len(got) != 0 {
		t.Fatalf("expected no outstanding calls, got %v", got)
	}
	mustAppend(t, c, llm.Message{Role: llm.RoleAssistant, Content: "Done."})
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestAppend_RejectsInvalidMessages(t *testing.T) {
	tests := []struct {
		name  string
		setup []llm.Message
		msg   llm.Message
	}{
		{"result without call", nil, toolResult("x")},
		{"result for unknown id", []llm.Message{assistantCalls("a")}, toolResult("b")},
		{"result answered twice", []llm.Message{assistantCalls("a"), toolResult("a")}, toolResult("a")},
		{"user while calls pending", []llm.Message{assistantCalls("a")}, llm.Message{Role: llm.RoleUser, Content: "hi"}},
		{"assistant while calls pending", []llm.Message{assistantCalls("a")}, llm.Message{Role: llm.RoleAssistant, Content: "hi"}},
		{"duplicate call ids", nil, assistantCalls("a", "a")},
		{"empty call id", nil, assistantCalls("")},
		{"user with tool calls", nil, llm.Message{Role: llm.RoleUser, ToolCalls: []llm.ToolCall{{ID: "a", Name: "x"}}}},
		{"late system message", []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Message{Role: llm.RoleSystem, Content: "sys"}},
		{"unknown role", nil, llm.Message{Role: "narrator", Content: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("s")
			mustAppend(t, c, tt.setup...)
			before := c.Snapshot()

			err := c.Append(tt.msg)
			if !errors.Is(err, ErrInvariantViolation) {
				t.Fatalf("expected ErrInvariantViolation, got %v", err)
			}
			if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
				t.Errorf("conversation changed after rejected append (-before +after):\n%s", diff)
			}
		})
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	c := New("s")
	mustAppend(t, c, llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "a", Name: "open_tab", Params: map[string]any{"url": "go.dev"}}},
	})

	snap := c.Snapshot()
	snap[0].ToolCalls[0].Params["url"] = "evil.example"
	snap[0].Content = "mutated"

	again := c.Snapshot()
	if again[0].ToolCalls[0].Params["url"] != "go.dev" {
		t.Errorf("snapshot mutation leaked into conversation: %v", again[0].ToolCalls[0].Params)
	}
	if again[0].Content != "" {
		t.Errorf("snapshot mutation leaked into content: %q", again[0].Content)
	}
}

func TestAppend_CopiesCallerMessage(t *testing.T) {
	c := New("s")
	params := map[string]any{"url": "go.dev"}
	mustAppend(t, c, llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "a", Name: "open_tab", Params: params}},
	})
	params["url"] = "changed"
	if got := c.Snapshot()[0].ToolCalls[0].Params["url"]; got != "go.dev" {
		t.Errorf("caller mutation leaked into conversation: %v", got)
	}
}

func TestSeedSystemPrompt(t *testing.T) {
	c := New("s")
	mustAppend(t, c, llm.Message{Role: llm.RoleUser, Content: "hi"})

	c.SeedSystemPrompt("first")
	c.SeedSystemPrompt("second")

	got := c.Snapshot()
	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "second"},
		{Role: llm.RoleUser, Content: "hi"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
}

func TestCloseOutstanding(t *testing.T) {
	c := New("s")
	mustAppend(t, c, llm.Message{Role: llm.RoleUser, Content: "go"}, assistantCalls("a", "b"), toolResult("a"))

	if n := c.CloseOutstanding("request cancelled"); n != 1 {
		t.Fatalf("CloseOutstanding() = %d, want 1", n)
	}
	last := c.Snapshot()[c.Len()-1]
	if last.ToolCallID != "b" || !last.IsError || last.Content != "Error: request cancelled" {
		t.Errorf("unexpected closing result: %+v", last)
	}
	// The log is valid again, so a new user turn is accepted.
	mustAppend(t, c, llm.Message{Role: llm.RoleUser, Content: "again"})
}

func TestDiscardFrom_RestoresPendingState(t *testing.T) {
	c := New("s")
	mustAppend(t, c,
		llm.Message{Role: llm.RoleUser, Content: "first"},
		llm.Message{Role: llm.RoleAssistant, Content: "ok"},
	)
	mark := c.Len()
	mustAppend(t, c, llm.Message{Role: llm.RoleUser, Content: "second"}, assistantCalls("a"))

	c.DiscardFrom(mark)
	if c.Len() != mark {
		t.Fatalf("Len() = %d after discard, want %d", c.Len(), mark)
	}
	if got := c.Outstanding(); len(got) != 0 {
		t.Errorf("expected outstanding cleared, got %v", got)
	}
	mustAppend(t, c, llm.Message{Role: llm.RoleUser, Content: "retry"})

	// Discarding mid-turn keeps the calls of the surviving prefix pending.
	c2 := New("s2")
	mustAppend(t, c2, llm.Message{Role: llm.RoleUser, Content: "go"}, assistantCalls("a", "b"), toolResult("a"))
	c2.DiscardFrom(2)
	if got := c2.Outstanding(); !cmp.Equal(got, []string{"a", "b"}) {
		t.Errorf("outstanding = %v, want [a b]", got)
	}
}

func TestRestore(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
		assistantCalls("a"),
		toolResult("a"),
		{Role: llm.RoleAssistant, Content: "done"},
	}
	c, err := Restore("s", history)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff(history, c.Snapshot()); diff != "" {
		t.Errorf("restored history differs (-want +got):\n%s", diff)
	}

	_, err = Restore("s", []llm.Message{{Role: llm.RoleUser, Content: "hi"}, toolResult("zzz")})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected ErrInvariantViolation for corrupt history, got %v", err)
	}
}

func TestReset(t *testing.T) {
	c := New("s")
	mustAppend(t, c, llm.Message{Role: llm.RoleUser, Content: "hi"}, assistantCalls("a"))
	c.Reset()
	if c.Len() != 0 || len(c.Outstanding()) != 0 {
		t.Errorf("expected empty conversation after Reset, got len=%d outstanding=%v", c.Len(), c.Outstanding())
	}
}

func TestConcurrentAppends(t *testing.T) {
	c := New("s")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Append(llm.Message{Role: llm.RoleUser, Content: "hi"})
			_ = c.Snapshot()
		}()
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Len() = %d, want 50", c.Len())
	}
}
