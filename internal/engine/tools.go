package engine

import (
	"context"
	"log"

	"github.com/tidegate/worldsync/internal/ai"
	"github.com/tidegate/worldsync/internal/memory"
	"github.com/tidegate/worldsync/internal/registry"
)

// executeToolCalls runs the tool calls a response asked for, strictly in
// order, each awaited before the next. A failing tool never aborts the
// sequence.
func (a *Actor) executeToolCalls(ctx context.Context, playerID string, calls []ai.ToolCall) {
	for _, call := range calls {
		switch call.Name {
		case registry.SkillMove:
			a.execMove(call)
		case registry.SkillSay:
			a.execSay(ctx, playerID, call)
		case registry.SkillEmote:
			a.execEmote(call)
		case registry.SkillGenerateImage:
			a.execGenerateImage(ctx, call)
		default:
			log.Printf("[engine] %s: ignoring unknown tool %q", a.tpl.Config.ID, call.Name)
		}
	}
}

func (a *Actor) execMove(call ai.ToolCall) {
	if !a.tpl.CanMove {
		return
	}
	distance := call.IntArg("distance", 1)
	if distance < 1 {
		distance = 1
	}
	pixels := distance * TileSize

	x, y := a.handle.Position()
	switch call.StringArg("direction") {
	case "up":
		a.handle.SetPosition(x, y-pixels)
	case "down":
		a.handle.SetPosition(x, y+pixels)
	case "left":
		a.handle.SetPosition(x-pixels, y)
	case "right":
		a.handle.SetPosition(x+pixels, y)
	}
}

func (a *Actor) execSay(ctx context.Context, playerID string, call ai.ToolCall) {
	message := call.StringArg("message")
	if message == "" {
		return
	}
	if err := a.handle.PresentText(ctx, message); err != nil {
		log.Printf("[engine] %s: say: %v", a.tpl.Config.ID, err)
		return
	}
	a.persistTurn(ctx, playerID, memory.RoleAssistant, message)
}

func (a *Actor) execEmote(call ai.ToolCall) {
	emotion := call.StringArg("emotion")
	if emotion == "" {
		emotion = "happy"
	}
	log.Printf("[engine] %s emotes: %s", a.tpl.Config.ID, emotion)
}

// execGenerateImage is double-gated: the NPC needs both the skill tag and
// the inventory token. Ungated NPCs decline in character; a gated-in call
// that fails yields an apology, never a propagated error.
func (a *Actor) execGenerateImage(ctx context.Context, call ai.ToolCall) {
	if !a.tpl.CanGenerateImage || a.images == nil {
		_ = a.handle.PresentText(ctx, "I don't have the ability to create images.")
		return
	}
	_ = a.handle.PresentText(ctx, "Let me create that image for you...")

	url, err := a.images.Generate(ctx, call.StringArg("prompt"), call.StringArg("style"))
	if err != nil {
		log.Printf("[engine] %s: generate image: %v", a.tpl.Config.ID, err)
		_ = a.handle.PresentText(ctx, "My mystical camera seems to be malfunctioning...")
		return
	}
	_ = a.handle.PresentText(ctx, "Here's your image: "+url)
}
