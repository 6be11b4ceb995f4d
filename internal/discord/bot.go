// Package discord lets users talk to the agent from Discord. Each channel
// is its own session and the agent drives the local headless browser.
package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/chris/whispr/internal/bridge"
)

type Bot struct {
	session  *discordgo.Session
	sessions *bridge.Manager
	runner   bridge.Runner
	logger   *slog.Logger
}

func NewBot(token string, sessions *bridge.Manager, runner bridge.Runner, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	bot := &Bot{session: s, sessions: sessions, runner: runner, logger: logger.With("host", "discord")}
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	bot.logger.Info("Discord bot connected", "user", s.State.User.Username)
	return bot, nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}
