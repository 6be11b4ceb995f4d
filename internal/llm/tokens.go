package llm

import (
	"encoding/json"
	"unicode/utf8"
)

// charsPerToken approximates ASCII English text; real tokenizers vary.
const charsPerToken = 4

// EstimateTokens returns a rough token count for a string. Page text often
// carries other scripts, which tokenizers split far more finely than ASCII,
// so every non-ASCII rune counts as a token of its own.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	ascii, other := 0, 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+charsPerToken-1)/charsPerToken + other // round up
}

// EstimateMessageTokens counts content, tool calls and per-message framing.
func EstimateMessageTokens(m Message) int {
	tokens := 4 // per-message overhead (role tokens, delimiters)
	tokens += EstimateTokens(m.Content)
	for _, tc := range m.ToolCalls {
		tokens += EstimateTokens(tc.Name)
		if params, err := json.Marshal(tc.Params); err == nil {
			tokens += EstimateTokens(string(params))
		}
		tokens += 4 // tool call framing overhead
	}
	if m.ToolCallID != "" {
		tokens += EstimateTokens(m.ToolCallID) + 2
	}
	if m.IsError {
		tokens++ // error flag on tool results
	}
	return tokens
}

// EstimateMessagesTokens returns the total estimated tokens for a slice of messages.
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// EstimateToolsTokens estimates the tool schemas sent with every request.
func EstimateToolsTokens(tools []Tool) int {
	total := 0
	for _, t := range tools {
		total += EstimateTokens(t.Name)
		total += EstimateTokens(t.Description)
		if schema, err := json.Marshal(t.Parameters); err == nil {
			total += EstimateTokens(string(schema))
		}
		total += 10 // per-tool framing overhead
	}
	return total
}
