package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/bridge"
)

const (
	maxMessageLen = 2000
	resetCommand  = "!reset"
)

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author.ID == s.State.User.ID {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	s.ChannelTyping(m.ChannelID)
	typing := func(p agent.Progress) {
		if strings.HasPrefix(p.Stage, "tool:") {
			s.ChannelTyping(m.ChannelID)
		}
	}

	for _, chunk := range b.reply(context.Background(), m.ChannelID, content, typing) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.Warn("sending reply", "channel", m.ChannelID, "error", err)
		}
	}
}

// reply routes one message to the channel's session and returns the
// response split to Discord's message limit.
func (b *Bot) reply(ctx context.Context, channelID, content string, notify agent.Notifier) []string {
	session, err := b.sessions.Open(ctx, sessionID(channelID), b.runner)
	if err != nil {
		b.logger.Error("opening session", "channel", channelID, "error", err)
		return []string{bridge.MsgGatewayFailure}
	}

	var res bridge.Result
	if strings.EqualFold(content, resetCommand) {
		res = session.Reset(ctx)
	} else {
		res = session.Submit(ctx, content, notify)
	}
	return splitMessage(res.Message, maxMessageLen)
}

func sessionID(channelID string) string {
	return "discord:" + channelID
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := min(maxLen, len(s))
		// Prefer splitting at a newline
		if end < len(s) {
			if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
				end = idx + 1
			}
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
