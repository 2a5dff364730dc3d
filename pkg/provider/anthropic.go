package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/pkg/session"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider streams messages from the Anthropic API.
type AnthropicProvider struct {
	client       anthropic.Client
	effortModels map[string]string
	logger       zerolog.Logger
}

// NewAnthropicProvider creates an Anthropic provider. effortModels maps
// effort levels to model names and may be nil.
func NewAnthropicProvider(apiKey string, effortModels map[string]string, logger zerolog.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		effortModels: effortModels,
		logger:       logger,
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Stream performs one streaming message turn. Tool-use blocks open with an
// ID and name in a block-start event; their arguments then arrive as
// partial JSON fragments attributed by block index.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, fn DeltaFunc) error {
	messages, err := toAnthropicMessages(req)
	if err != nil {
		return err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(resolveModel(req, p.effortModels)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, anthropic.ToolUnionParam{OfTool: toAnthropicTool(tool)})
		}
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := e.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				delta := Delta{ToolCall: &ToolCallDelta{
					Index: int(e.Index),
					ID:    block.ID,
					Name:  block.Name,
				}}
				if err := fn(delta); err != nil {
					return err
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := e.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					if err := fn(Delta{Text: d.Text}); err != nil {
						return err
					}
				}
			case anthropic.InputJSONDelta:
				if d.PartialJSON != "" {
					delta := Delta{ToolCall: &ToolCallDelta{
						Index:             int(e.Index),
						ArgumentsFragment: d.PartialJSON,
					}}
					if err := fn(delta); err != nil {
						return err
					}
				}
			}
		case anthropic.MessageDeltaEvent:
			if e.Delta.StopReason != "" {
				reason := mapAnthropicFinish(string(e.Delta.StopReason))
				if err := fn(Delta{FinishReason: reason}); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}

func mapAnthropicFinish(reason string) FinishReason {
	switch reason {
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	default:
		return FinishStop
	}
}

func toAnthropicTool(tool ToolSpec) *anthropic.ToolParam {
	param := &anthropic.ToolParam{
		Name:        tool.Name,
		Description: anthropic.String(tool.Description),
	}
	if tool.InputSchema != nil {
		param.InputSchema = anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema["properties"],
		}
		if required, ok := tool.InputSchema["required"].([]interface{}); ok {
			names := make([]string, 0, len(required))
			for _, v := range required {
				if s, ok := v.(string); ok {
					names = append(names, s)
				}
			}
			param.InputSchema.Required = names
		} else if names, ok := tool.InputSchema["required"].([]string); ok {
			param.InputSchema.Required = names
		}
	}
	return param
}

func toAnthropicMessages(req Request) ([]anthropic.MessageParam, error) {
	messages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case session.RoleSystem:
			// Carried through params.System, never as a message.
		case session.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case session.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case session.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
				continue
			}
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := map[string]interface{}{}
				if tc.ArgumentsJSON != "" {
					if err := json.Unmarshal([]byte(tc.ArgumentsJSON), &input); err != nil {
						input = map[string]interface{}{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return messages, nil
}
