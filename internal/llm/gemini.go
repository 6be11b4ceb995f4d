package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

func NewGeminiClient(ctx context.Context, apiKey, model string, gen GenerationOptions) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	gen = gen.withDefaults()
	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   int32(gen.MaxTokens),
		temperature: float32(gen.Temperature),
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, messages []Message, tools []Tool) (*TurnResult, error) {
	system, rest := splitSystem(messages)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(tools))
		for i, t := range tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, toGeminiContents(rest), cfg)
	if err != nil {
		return nil, gatewayErr("gemini", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, gatewayErr("gemini", fmt.Errorf("response has no candidates"))
	}

	var text string
	var calls []ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			calls = append(calls, ToolCall{
				ID:     part.FunctionCall.ID,
				Name:   part.FunctionCall.Name,
				Params: paramsOrEmpty(part.FunctionCall.Args),
			})
			continue
		}
		if !part.Thought {
			text += part.Text
		}
	}
	return NewTurnResult(text, calls), nil
}

// toGeminiContents maps the conversation onto user/model turns. Function
// responses need the function name, which only the assistant call carries.
func toGeminiContents(messages []Message) []*genai.Content {
	names := make(map[string]string) // tool call ID -> name
	var contents []*genai.Content
	var responses []*genai.Part
	flush := func() {
		if len(responses) > 0 {
			contents = append(contents, &genai.Content{Role: "user", Parts: responses})
			responses = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case RoleTool:
			key := "output"
			if m.IsError {
				key = "error"
			}
			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     names[m.ToolCallID],
				Response: map[string]any{key: m.Content},
			}})
		case RoleUser:
			flush()
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		case RoleAssistant:
			flush()
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: paramsOrEmpty(tc.Params),
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		}
	}
	flush()
	return contents
}
