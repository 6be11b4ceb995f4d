package agent

import (
	"errors"
	"fmt"
)

// ErrIterationLimitExceeded is returned when the model keeps requesting
// tools past Config.MaxTurns.
var ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTools
	StateFinal
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateFinal:
		return "final"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Progress stages reported to a Notifier.
const (
	StageModel = "model"
	StageFinal = "final"
	StageError = "error"
)

// StageTool is the stage reported while a tool runs.
func StageTool(name string) string { return "tool:" + name }

type Progress struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

// Notifier receives progress updates. It is called from the loop's
// goroutine and from tool goroutines, so it must be safe for concurrent use
// and must not block.
type Notifier func(Progress)

func (n Notifier) send(stage, detail string) {
	if n != nil {
		n(Progress{Stage: stage, Detail: detail})
	}
}
