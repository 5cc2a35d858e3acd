package ai

import "github.com/tidegate/worldsync/internal/npc"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (t ToolCall) StringArg(key string) string {
	v, _ := t.Arguments[key].(string)
	return v
}

func (t ToolCall) IntArg(key string, fallback int) int {
	switch v := t.Arguments[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

type Request struct {
	NPCID      string
	PlayerID   string
	PlayerName string
	Config     npc.Config
	History    []ChatMessage
	Message    string
}

type Response struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}
