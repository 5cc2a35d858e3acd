package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/tidegate/worldsync/internal/npc"
)

// FallbackText is what players see when the inference backend is
// unreachable. Transport failures never propagate past this package.
const FallbackText = "I'm sorry, I'm having trouble thinking right now."

var idleThoughts = []string{
	"I wonder what today will bring...",
	"The weather is nice today.",
	"I should check my inventory.",
	"Maybe I'll wander around a bit.",
	"I hope someone interesting visits soon.",
}

type Config struct {
	Provider string
	Model    string
	APIKey   string
}

// Client generates NPC responses through a hosted model provider. A nil
// *Client is valid and degrades to canned text, so the daemon runs without
// credentials.
type Client struct {
	config    Config
	openai    *openai.Client
	anthropic *anthropic.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	c := &Client{config: cfg}
	switch cfg.Provider {
	case "openai":
		client := openai.NewClient(openaiopt.WithAPIKey(cfg.APIKey))
		c.openai = &client
	case "anthropic":
		client := anthropic.NewClient(anthropicopt.WithAPIKey(cfg.APIKey))
		c.anthropic = &client
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return c, nil
}

// GenerateResponse produces the NPC's next turn. It fails soft: any provider
// error is logged and replaced with FallbackText.
func (c *Client) GenerateResponse(ctx context.Context, req Request) Response {
	if c == nil {
		return Response{Text: FallbackText}
	}
	var (
		resp Response
		err  error
	)
	switch {
	case c.openai != nil:
		resp, err = c.generateOpenAI(ctx, req)
	case c.anthropic != nil:
		resp, err = c.generateAnthropic(ctx, req)
	default:
		return Response{Text: FallbackText}
	}
	if err != nil {
		log.Printf("[ai] %s: %v", req.NPCID, err)
		return Response{Text: FallbackText}
	}
	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		resp.Text = FallbackText
	}
	return resp
}

// GenerateIdleThought returns a short ambient line for idle NPCs. It stays
// local: idle ticks are frequent and not worth a model round-trip.
func (c *Client) GenerateIdleThought(ctx context.Context, cfg npc.Config) string {
	return idleThoughts[rand.Intn(len(idleThoughts))]
}

func (c *Client) generateOpenAI(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPrompt(req.Config, req.PlayerName)),
	}
	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage(req)))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(c.config.Model),
		Temperature:         openai.Float(0.7),
		MaxCompletionTokens: openai.Int(512),
	}
	tools := make([]openai.ChatCompletionToolParam, len(toolDefs))
	for i, d := range toolDefs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.schema()),
			},
		}
	}
	params.Tools = tools

	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai returned no choices")
	}
	choice := resp.Choices[0]
	out := Response{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: decodeArgs([]byte(tc.Function.Arguments)),
		})
	}
	return out, nil
}

func (c *Client) generateAnthropic(ctx context.Context, req Request) (Response, error) {
	var messages []anthropic.MessageParam
	for _, m := range req.History {
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage(req))))

	tools := make([]anthropic.ToolUnionParam, len(toolDefs))
	for i, d := range toolDefs {
		tools[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: d.Properties},
			},
		}
	}

	resp, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   512,
		Temperature: anthropic.Float(0.7),
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt(req.Config, req.PlayerName)}},
		Messages:    messages,
		Tools:       tools,
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var out Response
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			data, err := json.Marshal(tu.Input)
			if err != nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tu.Name, Arguments: decodeArgs(data)})
		}
	}
	return out, nil
}

func decodeArgs(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil
	}
	return args
}
