package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/pkg/session"
)

// OpenAIProvider streams chat completions from the OpenAI API.
type OpenAIProvider struct {
	client       openai.Client
	effortModels map[string]string
	logger       zerolog.Logger
}

// NewOpenAIProvider creates an OpenAI provider. effortModels maps effort
// levels (low, medium, high) to model names and may be nil.
func NewOpenAIProvider(apiKey string, effortModels map[string]string, logger zerolog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		effortModels: effortModels,
		logger:       logger,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Stream performs one streaming chat completion, forwarding text and
// tool-call fragments to fn as they arrive.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request, fn DeltaFunc) error {
	messages, err := toOpenAIMessages(req)
	if err != nil {
		return err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(resolveModel(req, p.effortModels)),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if err := fn(Delta{Text: choice.Delta.Content}); err != nil {
				return err
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			delta := Delta{ToolCall: &ToolCallDelta{
				Index:             int(tc.Index),
				ID:                tc.ID,
				Name:              tc.Function.Name,
				ArgumentsFragment: tc.Function.Arguments,
			}}
			if err := fn(delta); err != nil {
				return err
			}
		}

		if choice.FinishReason != "" {
			reason := mapOpenAIFinish(choice.FinishReason)
			if err := fn(Delta{FinishReason: reason}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}
	return nil
}

func mapOpenAIFinish(reason string) FinishReason {
	switch reason {
	case "tool_calls":
		return FinishToolCalls
	case "length":
		return FinishLength
	default:
		return FinishStop
	}
}

func toOpenAIMessages(req Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case session.RoleSystem:
			if req.System == "" {
				messages = append(messages, openai.SystemMessage(msg.Content))
			}
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case session.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: tc.ArgumentsJSON,
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case session.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return messages, nil
}
