package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewOpenAIClient(apiKey, model, baseURL string, gen GenerationOptions) *OpenAIClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	gen = gen.withDefaults()
	return &OpenAIClient{
		client:      client,
		model:       model,
		maxTokens:   int64(gen.MaxTokens),
		temperature: gen.Temperature,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []Tool) (*TurnResult, error) {
	// Convert tools
	oaiTools := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		oaiTools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		})
	}

	// Convert messages
	var oaiMsgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			oaiMsgs = append(oaiMsgs, openai.SystemMessage(m.Content))
		case RoleUser:
			oaiMsgs = append(oaiMsgs, openai.UserMessage(m.Content))
		case RoleTool:
			oaiMsgs = append(oaiMsgs, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, len(m.ToolCalls))
				for j, tc := range m.ToolCalls {
					argsJSON, err := json.Marshal(paramsOrEmpty(tc.Params))
					if err != nil {
						return nil, gatewayErr("openai", fmt.Errorf("encoding arguments for %s: %w", tc.Name, err))
					}
					toolCalls[j] = openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: string(argsJSON),
							},
						},
					}
				}
				oaiMsgs = append(oaiMsgs, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: param.NewOpt(m.Content),
						},
						ToolCalls: toolCalls,
					},
				})
			} else {
				oaiMsgs = append(oaiMsgs, openai.AssistantMessage(m.Content))
			}
		}
	}

	req := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            oaiMsgs,
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxTokens),
	}
	if len(oaiTools) > 0 {
		req.Tools = oaiTools
	}

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, gatewayErr("openai", err)
	}

	if len(resp.Choices) == 0 {
		return nil, gatewayErr("openai", fmt.Errorf("response has no choices"))
	}

	choice := resp.Choices[0]
	var calls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		ftc := tc.AsFunction()
		args := map[string]any{}
		if ftc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(ftc.Function.Arguments), &args); err != nil {
				return nil, gatewayErr("openai", fmt.Errorf("parsing arguments for %s: %w", ftc.Function.Name, err))
			}
		}
		calls = append(calls, ToolCall{
			ID:     ftc.ID,
			Name:   ftc.Function.Name,
			Params: args,
		})
	}

	return NewTurnResult(choice.Message.Content, calls), nil
}
