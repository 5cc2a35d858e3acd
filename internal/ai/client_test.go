package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidegate/worldsync/internal/npc"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Provider: "openai", Model: "gpt-4o-mini"}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	if _, err := NewClient(Config{Provider: "openai", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if _, err := NewClient(Config{Provider: "mystery", Model: "m", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, err := NewClient(Config{Provider: "anthropic", Model: "m", APIKey: "k"}); err != nil {
		t.Fatalf("anthropic provider should construct: %v", err)
	}
}

func TestNilClientFailsSoft(t *testing.T) {
	var c *Client
	resp := c.GenerateResponse(context.Background(), Request{NPCID: "e1"})
	if resp.Text != FallbackText {
		t.Fatalf("nil client should return fallback, got %q", resp.Text)
	}
}

func TestSystemPrompt(t *testing.T) {
	cfg := npc.Config{ID: "e1", Name: "Mira", Personality: "Gruff blacksmith.", Skills: []string{"move", "say"}}
	prompt := SystemPrompt(cfg, "Alice")
	for _, want := range []string{"Mira", "Gruff blacksmith.", "move, say", "Alice"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}

	cfg.Skills = nil
	cfg.Name = ""
	prompt = SystemPrompt(cfg, "Alice")
	if !strings.Contains(prompt, "no tools available") {
		t.Fatalf("expected tool-less prompt, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "e1") {
		t.Fatalf("expected id fallback for missing name")
	}
}

func TestUserMessage(t *testing.T) {
	req := Request{PlayerName: "Alice"}
	if got := userMessage(req); got != "Alice approaches and says hello." {
		t.Fatalf("unexpected default greeting: %q", got)
	}
	req.Message = "Where is the inn?"
	if got := userMessage(req); got != "Where is the inn?" {
		t.Fatalf("explicit message must win: %q", got)
	}
}

func TestToolCallArgHelpers(t *testing.T) {
	tc := ToolCall{Name: "move", Arguments: map[string]any{"direction": "up", "distance": float64(3)}}
	if tc.StringArg("direction") != "up" {
		t.Fatalf("string arg")
	}
	if tc.IntArg("distance", 1) != 3 {
		t.Fatalf("int arg from json number")
	}
	if tc.IntArg("missing", 7) != 7 {
		t.Fatalf("fallback for absent arg")
	}
}

func TestToolSchemas(t *testing.T) {
	names := map[string]bool{}
	for _, d := range toolDefs {
		names[d.Name] = true
		s := d.schema()
		if s["type"] != "object" {
			t.Fatalf("tool %s schema must be object", d.Name)
		}
		if _, ok := s["properties"]; !ok {
			t.Fatalf("tool %s schema missing properties", d.Name)
		}
	}
	for _, want := range []string{"move", "say", "emote", "generate_image"} {
		if !names[want] {
			t.Fatalf("missing tool definition %s", want)
		}
	}
}

func TestImageClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"imageUrl":"https://img.example/abc.png"}`))
	}))
	defer srv.Close()

	c := NewImageClient(srv.URL, "tok")
	url, err := c.Generate(context.Background(), "a castle", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if url != "https://img.example/abc.png" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestImageClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewImageClient(srv.URL, "")
	if _, err := c.Generate(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected error on 502")
	}

	var nilClient *ImageClient
	if _, err := nilClient.Generate(context.Background(), "x", ""); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
