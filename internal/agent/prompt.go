package agent

import (
	"fmt"
	"strings"

	"github.com/chris/whispr/internal/llm"
)

const DefaultSystemPrompt = `You are Whispr, a voice assistant that drives the user's web browser. Requests arrive as speech transcripts, so expect filler words and small transcription mistakes.

Guidelines:
- Be brief. Your reply is read out loud.
- Use the tools to act on the browser. Never claim you did something a tool did not confirm.
- If a tool returns an error, explain it plainly or try another approach. Do not repeat the same failing call.
- When the user refers to "this page" or "here", they mean the active tab.
- Ask for clarification only when the request cannot be carried out otherwise.`

// buildSystemPrompt appends the current tool list to the base prompt so the
// model sees the same catalog the registry dispatches against.
func buildSystemPrompt(base string, tools []llm.Tool) string {
	if base == "" {
		base = DefaultSystemPrompt
	}
	if len(tools) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## Available Tools\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
