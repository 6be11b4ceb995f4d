// Package bridge connects chat hosts (the browser extension, Discord, the
// CLI) to the agent. It owns sessions, enforces one request at a time per
// session and turns failures into user-facing text.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/conversation"
	"github.com/chris/whispr/internal/llm"
)

const (
	MsgGatewayFailure = "Error: Sorry, I couldn't process that request."
	MsgIterationLimit = "Error: I could not complete that request."
	MsgCancelled      = "Error: request cancelled."
	MsgBusy           = "Error: I'm still working on your previous request."
	MsgEmpty          = "Error: I didn't catch that. Please try again."
	MsgCleared        = "Chat history cleared."
)

// Runner runs one user request against a conversation. *agent.Agent
// implements it.
type Runner interface {
	Run(ctx context.Context, conv *conversation.Conversation, userText string, notify agent.Notifier) (string, error)
}

// Store persists conversations between process restarts. LoadConversation
// returns nil, nil when the session does not exist.
type Store interface {
	SaveConversation(ctx context.Context, id string, messages []llm.Message) error
	LoadConversation(ctx context.Context, id string) ([]llm.Message, error)
	DeleteConversation(ctx context.Context, id string) error
	DeleteIdleConversations(ctx context.Context, before time.Time) (int64, error)
}

// Result is what a host shows the user.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Manager tracks open sessions. A nil store keeps history in memory only.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session with the given ID, restoring it from the store
// when it is not in memory. An empty id starts a new session. runner
// replaces the session's runner, since a resumed session may come back on
// a different connection.
func (m *Manager) Open(ctx context.Context, id string, runner Runner) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.setRunner(runner)
		return s, nil
	}

	conv := conversation.New(id)
	if m.store != nil {
		history, err := m.store.LoadConversation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading session %s: %w", id, err)
		}
		if len(history) > 0 {
			conv, err = conversation.Restore(id, history)
			if err != nil {
				// A corrupt history is dropped rather than blocking the session.
				m.logger.Warn("discarding unreadable session history", "session", id, "error", err)
				conv = conversation.New(id)
			}
		}
	}

	s := &Session{id: id, conv: conv, store: m.store, logger: m.logger.With("session", id), now: m.now}
	s.setRunner(runner)
	s.touch()
	m.sessions[id] = s
	return s, nil
}

// Close forgets an in-memory session. Persisted history is kept.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type SweepResult struct {
	Evicted int   // sessions dropped from memory
	Deleted int64 // persisted sessions removed
}

// Sweep drops sessions idle for longer than ttl from memory and the store.
// Busy sessions are never evicted.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) (SweepResult, error) {
	cutoff := m.now().Add(-ttl)
	var res SweepResult

	m.mu.Lock()
	for id, s := range m.sessions {
		if !s.busy.Load() && s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			res.Evicted++
		}
	}
	m.mu.Unlock()

	if m.store != nil {
		n, err := m.store.DeleteIdleConversations(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("deleting idle sessions: %w", err)
		}
		res.Deleted = n
	}
	return res, nil
}

// Session is one user's conversation with the agent.
type Session struct {
	id     string
	conv   *conversation.Conversation
	store  Store
	logger *slog.Logger
	now    func() time.Time

	runner     atomic.Pointer[Runner]
	busy       atomic.Bool
	lastActive atomic.Int64
}

func (s *Session) ID() string { return s.id }

// Conversation exposes the session's log, mainly for hosts that render
// history.
func (s *Session) Conversation() *conversation.Conversation { return s.conv }

func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) setRunner(r Runner) { s.runner.Store(&r) }

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// Submit runs one request. A second Submit while one is in flight is
// rejected with MsgBusy. When the run fails, everything the failed request
// added to the conversation is removed, so the user can simply retry.
func (s *Session) Submit(ctx context.Context, text string, notify agent.Notifier) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Message: MsgEmpty}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Result{Message: MsgBusy}
	}
	defer s.busy.Store(false)
	s.touch()
	defer s.touch()

	start := s.now()
	mark := s.conv.Len()
	answer, err := (*s.runner.Load()).Run(ctx, s.conv, text, notify)
	if err != nil {
		s.conv.DiscardFrom(mark)
		s.logger.Warn("request failed", "error", err, "elapsed", s.now().Sub(start))
		return Result{Message: failureMessage(ctx, err)}
	}
	s.logger.Info("request completed", "elapsed", s.now().Sub(start), "messages", s.conv.Len())

	s.persist(ctx)
	return Result{Success: true, Message: answer}
}

// Reset clears the conversation and its persisted copy.
func (s *Session) Reset(ctx context.Context) Result {
	if !s.busy.CompareAndSwap(false, true) {
		return Result{Message: MsgBusy}
	}
	defer s.busy.Store(false)
	s.touch()

	s.conv.Reset()
	if s.store != nil {
		if err := s.store.DeleteConversation(ctx, s.id); err != nil {
			s.logger.Warn("deleting persisted session", "error", err)
		}
	}
	return Result{Success: true, Message: MsgCleared}
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	// A request that finished should be saved even if the host hung up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.SaveConversation(ctx, s.id, s.conv.Snapshot()); err != nil {
		s.logger.Warn("saving session", "error", err)
	}
}

func failureMessage(ctx context.Context, err error) string {
	var gerr *llm.GatewayError
	switch {
	case errors.Is(err, agent.ErrIterationLimitExceeded):
		return MsgIterationLimit
	case errors.As(err, &gerr):
		return MsgGatewayFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return MsgCancelled
	default:
		return MsgGatewayFailure
	}
}
