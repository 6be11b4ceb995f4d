package llm

// TrimMessages trims a message history to fit within a token budget.
//
// A leading system message is always kept and counts against the budget.
// The remaining messages are grouped into units that must be kept or dropped
// together (a tool-call assistant message plus its results), the newest
// group is always kept, and the oldest groups are dropped first.
func TrimMessages(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 {
		return messages
	}

	var pinned []Message
	body := messages
	if messages[0].Role == RoleSystem {
		pinned = messages[:1]
		body = messages[1:]
		maxTokens -= EstimateMessageTokens(messages[0])
	}
	if len(body) == 0 {
		return messages
	}

	groups := groupMessages(body)

	total := 0
	for _, g := range groups {
		total += g.tokens
	}

	if total <= maxTokens {
		return messages
	}

	kept := total
	dropUntil := 0
	for dropUntil < len(groups)-1 && kept > maxTokens {
		kept -= groups[dropUntil].tokens
		dropUntil++
	}

	trimmed := append([]Message(nil), pinned...)
	for _, g := range groups[dropUntil:] {
		trimmed = append(trimmed, g.messages...)
	}
	return trimmed
}

type messageGroup struct {
	messages []Message
	tokens   int
}

// groupMessages splits messages into logical groups:
//
//   - An assistant message with tool calls and the tool results that follow
//     it form a single group.
//   - Every other message is its own group.
func groupMessages(messages []Message) []messageGroup {
	var groups []messageGroup
	i := 0
	for i < len(messages) {
		msg := messages[i]

		if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 {
			group := messageGroup{}
			group.messages = append(group.messages, msg)
			group.tokens += EstimateMessageTokens(msg)
			i++
			for i < len(messages) && messages[i].Role == RoleTool {
				group.messages = append(group.messages, messages[i])
				group.tokens += EstimateMessageTokens(messages[i])
				i++
			}
			groups = append(groups, group)
			continue
		}

		groups = append(groups, messageGroup{
			messages: []Message{msg},
			tokens:   EstimateMessageTokens(msg),
		})
		i++
	}
	return groups
}
