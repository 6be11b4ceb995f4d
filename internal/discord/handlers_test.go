package discord

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/bridge"
	"github.com/chris/whispr/internal/conversation"
	"github.com/chris/whispr/internal/llm"
)

func TestStripMention(t *testing.T) {
	tests := []struct {
		name, in, user, want string
	}{
		{"standard", "<@123456> hello", "123456", " hello"},
		{"nickname", "<@!123456> hello", "123456", " hello"},
		{"both", "<@123> and <@!123>", "123", " and "},
		{"no mention", "just text", "123", "just text"},
		{"wrong user", "<@999> hello", "123", "<@999> hello"},
		{"empty", "", "123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMention(tt.in, tt.user); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   []string
	}{
		{"short", "hello", 2000, []string{"hello"}},
		{"empty", "", 2000, []string{""}},
		{"exact limit", strings.Repeat("a", 20), 20, []string{strings.Repeat("a", 20)}},
		{"splits at newline", strings.Repeat("a", 15) + "\n" + strings.Repeat("b", 15), 20,
			[]string{strings.Repeat("a", 15) + "\n", strings.Repeat("b", 15)}},
		{"hard split", strings.Repeat("x", 50), 20,
			[]string{strings.Repeat("x", 20), strings.Repeat("x", 20), strings.Repeat("x", 10)}},
		{"last newline wins", "line1\nline2\nline3\nline4", 12,
			[]string{"line1\nline2\n", "line3\nline4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.in, tt.maxLen)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type runnerFunc func(ctx context.Context, conv *conversation.Conversation, text string, notify agent.Notifier) (string, error)

func (f runnerFunc) Run(ctx context.Context, conv *conversation.Conversation, text string, notify agent.Notifier) (string, error) {
	return f(ctx, conv, text, notify)
}

func newTestBot(r bridge.Runner) *Bot {
	return &Bot{sessions: bridge.NewManager(nil, nil), runner: r, logger: slog.Default()}
}

func TestReply_RoutesByChannel(t *testing.T) {
	echo := runnerFunc(func(_ context.Context, conv *conversation.Conversation, text string, _ agent.Notifier) (string, error) {
		conv.Append(llm.Message{Role: llm.RoleUser, Content: text})
		conv.Append(llm.Message{Role: llm.RoleAssistant, Content: "ok"})
		return conv.ID() + ": " + text, nil
	})
	b := newTestBot(echo)

	got := b.reply(context.Background(), "42", "hi", nil)
	if len(got) != 1 || got[0] != "discord:42: hi" {
		t.Errorf("unexpected reply %q", got)
	}
	b.reply(context.Background(), "42", "again", nil)
	b.reply(context.Background(), "7", "other", nil)

	s, _ := b.sessions.Open(context.Background(), sessionID("42"), echo)
	if s.Conversation().Len() != 4 {
		t.Errorf("expected 4 messages in channel 42, got %d", s.Conversation().Len())
	}
}

func TestReply_ResetCommand(t *testing.T) {
	echo := runnerFunc(func(_ context.Context, conv *conversation.Conversation, text string, _ agent.Notifier) (string, error) {
		conv.Append(llm.Message{Role: llm.RoleUser, Content: text})
		conv.Append(llm.Message{Role: llm.RoleAssistant, Content: "ok"})
		return "ok", nil
	})
	b := newTestBot(echo)
	b.reply(context.Background(), "1", "remember this", nil)

	got := b.reply(context.Background(), "1", "!RESET", nil)
	if len(got) != 1 || got[0] != bridge.MsgCleared {
		t.Errorf("unexpected reply %q", got)
	}
	s, _ := b.sessions.Open(context.Background(), sessionID("1"), echo)
	if s.Conversation().Len() != 0 {
		t.Errorf("expected cleared conversation, got %d messages", s.Conversation().Len())
	}
}

func TestReply_SplitsLongAnswers(t *testing.T) {
	long := runnerFunc(func(context.Context, *conversation.Conversation, string, agent.Notifier) (string, error) {
		return strings.Repeat("y", maxMessageLen+10), nil
	})
	got := newTestBot(long).reply(context.Background(), "1", "talk a lot", nil)
	if len(got) != 2 || len(got[0]) != maxMessageLen {
		t.Errorf("expected 2 chunks with the first at the limit, got %d chunks", len(got))
	}
}
