package ai

import (
	"fmt"
	"strings"

	"github.com/tidegate/worldsync/internal/npc"
)

// SystemPrompt renders the persona instruction block for one NPC. The text
// stays stable for identical configs so provider-side prompt caching works.
func SystemPrompt(cfg npc.Config, playerName string) string {
	var b strings.Builder
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	fmt.Fprintf(&b, "You are %s, a character in a living game world.\n\n", name)
	b.WriteString(cfg.Personality)
	b.WriteString("\n\n")
	if len(cfg.Skills) > 0 {
		fmt.Fprintf(&b, "You can use these tools: %s.\n", strings.Join(cfg.Skills, ", "))
		b.WriteString("Only call tools from that list.\n")
	} else {
		b.WriteString("You have no tools available; respond with text only.\n")
	}
	fmt.Fprintf(&b, "You are talking with %s. Stay in character and keep replies short.", playerName)
	return b.String()
}

// userMessage renders the inbound turn. An empty message means the player
// just walked up.
func userMessage(req Request) string {
	if req.Message != "" {
		return req.Message
	}
	return fmt.Sprintf("%s approaches and says hello.", req.PlayerName)
}
