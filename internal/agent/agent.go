package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chris/whispr/internal/conversation"
	"github.com/chris/whispr/internal/llm"
	"github.com/chris/whispr/internal/tools"
)

// Config bounds a single Run. Zero values take the defaults below.
type Config struct {
	MaxTurns            int
	ModelTimeout        time.Duration
	ToolTimeout         time.Duration
	MaxToolCallsPerTurn int
	MaxParallelTools    int
	MaxContextTokens    int
	SystemPrompt        string
}

const (
	DefaultMaxTurns            = 10
	DefaultModelTimeout        = 60 * time.Second
	DefaultToolTimeout         = 15 * time.Second
	DefaultMaxToolCallsPerTurn = 8
	DefaultMaxParallelTools    = 4
	DefaultMaxContextTokens    = 100000

	minMessageBudget = 1000
	interruptedCall  = "tool call was interrupted before it finished"
)

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.MaxToolCallsPerTurn <= 0 {
		c.MaxToolCallsPerTurn = DefaultMaxToolCallsPerTurn
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = DefaultMaxParallelTools
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	return c
}

// Agent drives the model/tool loop. It holds no conversation state, so one
// Agent can serve many conversations at once.
type Agent struct {
	client   llm.Client
	registry *tools.Registry
	cfg      Config
	logger   *slog.Logger
}

func New(client llm.Client, registry *tools.Registry, cfg Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{client: client, registry: registry, cfg: cfg.withDefaults(), logger: logger}
}

func (a *Agent) Config() Config { return a.cfg }

// Run appends userText to conv and loops until the model answers without
// requesting tools. The returned text is also appended to conv.
//
// Failures are *llm.GatewayError, ErrIterationLimitExceeded or the context
// error. Tool failures never end the run; they are shown to the model as
// error results. On failure conv keeps everything appended so far and is
// always left with every tool call answered.
func (a *Agent) Run(ctx context.Context, conv *conversation.Conversation, userText string, notify Notifier) (string, error) {
	log := a.logger.With("conversation", conv.ID())

	if n := conv.CloseOutstanding(interruptedCall); n > 0 {
		log.Warn("closed tool calls left by an interrupted run", "count", n)
	}
	toolSchemas := a.registry.Schemas()
	conv.SeedSystemPrompt(buildSystemPrompt(a.cfg.SystemPrompt, toolSchemas))
	if err := conv.Append(llm.Message{Role: llm.RoleUser, Content: userText}); err != nil {
		return "", fmt.Errorf("appending user message: %w", err)
	}

	// Tool definitions are sent with every call and count against the window.
	budget := a.cfg.MaxContextTokens - llm.EstimateToolsTokens(toolSchemas)
	if budget < minMessageBudget {
		budget = minMessageBudget
	}

	fail := func(err error) (string, error) {
		log.Warn("agent run failed", "state", StateFailed, "error", err)
		notify.send(StageError, err.Error())
		return "", err
	}

	for turn := 0; ; turn++ {
		if turn >= a.cfg.MaxTurns {
			return fail(fmt.Errorf("%w: no final answer after %d model calls", ErrIterationLimitExceeded, turn))
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		log.Debug("agent state", "state", StateAwaitingModel, "turn", turn)
		notify.send(StageModel, "")
		res, err := a.complete(ctx, conv, toolSchemas, budget)
		if err != nil {
			return fail(err)
		}

		if res.Kind == llm.TurnFinal {
			if err := conv.Append(llm.Message{Role: llm.RoleAssistant, Content: res.Text}); err != nil {
				return fail(fmt.Errorf("appending final answer: %w", err))
			}
			log.Debug("agent state", "state", StateFinal, "turn", turn)
			notify.send(StageFinal, "")
			return res.Text, nil
		}

		calls := assignCallIDs(res.Calls)
		if err := conv.Append(llm.Message{Role: llm.RoleAssistant, Content: res.Text, ToolCalls: calls}); err != nil {
			return fail(fmt.Errorf("appending tool request: %w", err))
		}

		log.Debug("agent state", "state", StateExecutingTools, "turn", turn, "calls", len(calls))
		for _, result := range a.executeTools(ctx, log, calls, notify) {
			if err := conv.Append(result); err != nil {
				return fail(fmt.Errorf("appending tool result: %w", err))
			}
		}
	}
}

func (a *Agent) complete(ctx context.Context, conv *conversation.Conversation, toolSchemas []llm.Tool, budget int) (*llm.TurnResult, error) {
	snapshot := conv.Snapshot()
	trimmed := llm.TrimMessages(snapshot, budget)
	if len(trimmed) < len(snapshot) {
		a.logger.Info("context trimmed", "conversation", conv.ID(), "from", len(snapshot), "to", len(trimmed))
	}

	mctx, cancel := context.WithTimeout(ctx, a.cfg.ModelTimeout)
	defer cancel()
	res, err := a.client.Complete(mctx, trimmed, toolSchemas)
	if err != nil {
		// The caller gave up; that is a cancellation, not a gateway fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var gerr *llm.GatewayError
		if errors.As(err, &gerr) {
			return nil, err
		}
		return nil, &llm.GatewayError{Cause: err}
	}
	if res == nil {
		return nil, &llm.GatewayError{Cause: errors.New("empty model response")}
	}
	return res, nil
}

// assignCallIDs gives every call a unique ID. Some providers omit IDs or
// reuse them across a turn.
func assignCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

// executeTools runs one turn's calls concurrently and returns their results
// in call order. Calls past the per-turn limit are answered without running.
func (a *Agent) executeTools(ctx context.Context, log *slog.Logger, calls []llm.ToolCall, notify Notifier) []llm.Message {
	results := make([]llm.Message, len(calls))

	var g errgroup.Group
	g.SetLimit(a.cfg.MaxParallelTools)
	for i, call := range calls {
		if i >= a.cfg.MaxToolCallsPerTurn {
			results[i] = errorResult(call.ID, fmt.Sprintf("Error: too many tool calls in one turn (limit %d); %s was not run.", a.cfg.MaxToolCallsPerTurn, call.Name))
			continue
		}
		g.Go(func() error {
			results[i] = a.invoke(ctx, log, call, notify)
			return nil
		})
	}
	_ = g.Wait() // invoke never returns an error

	return results
}

func (a *Agent) invoke(ctx context.Context, log *slog.Logger, call llm.ToolCall, notify Notifier) llm.Message {
	notify.send(StageTool(call.Name), "")

	tctx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	out, err := a.registry.Invoke(tctx, call.Name, call.Params)
	if err != nil {
		log.Warn("tool failed", "tool", call.Name, "id", call.ID, "error", err, "elapsed", time.Since(start))
		return errorResult(call.ID, a.describeError(call.Name, err))
	}
	log.Info("tool ran", "tool", call.Name, "id", call.ID, "result", truncate(out, 200), "elapsed", time.Since(start))
	return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: out}
}

// describeError renders a dispatch failure as text the model can act on.
func (a *Agent) describeError(name string, err error) string {
	var verr *tools.ValidationError
	var eerr *tools.ExecutionError
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return fmt.Sprintf("Error: tool %q does not exist. Available tools: %s", name, strings.Join(a.registry.Names(), ", "))
	case errors.As(err, &verr):
		return "Error: " + verr.Error()
	case errors.As(err, &eerr):
		return "Error: " + eerr.Error()
	default:
		return fmt.Sprintf("Error: %s failed: %v", name, err)
	}
}

func errorResult(id, content string) llm.Message {
	return llm.Message{Role: llm.RoleTool, ToolCallID: id, Content: content, IsError: true}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
