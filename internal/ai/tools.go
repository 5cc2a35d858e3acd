package ai

// ToolDef is a provider-neutral tool description; client.go maps it into
// each SDK's schema shape.
type ToolDef struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// toolDefs describes every action an NPC may request. The entity controller
// gates execution by skill set, so the model seeing a tool it cannot use is
// harmless.
var toolDefs = []ToolDef{
	{
		Name:        "move",
		Description: "Walk in a direction a number of tiles.",
		Properties: map[string]any{
			"direction": map[string]any{
				"type": "string",
				"enum": []string{"up", "down", "left", "right"},
			},
			"distance": map[string]any{
				"type":        "integer",
				"description": "Tiles to walk, default 1.",
			},
		},
		Required: []string{"direction"},
	},
	{
		Name:        "say",
		Description: "Say something out loud to the player.",
		Properties: map[string]any{
			"message": map[string]any{"type": "string"},
		},
		Required: []string{"message"},
	},
	{
		Name:        "emote",
		Description: "Show an emotion.",
		Properties: map[string]any{
			"emotion": map[string]any{"type": "string"},
		},
	},
	{
		Name:        "generate_image",
		Description: "Create a picture for the player.",
		Properties: map[string]any{
			"prompt": map[string]any{"type": "string"},
			"style":  map[string]any{"type": "string"},
		},
		Required: []string{"prompt"},
	},
}

func (d ToolDef) schema() map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": d.Properties,
	}
	if len(d.Required) > 0 {
		s["required"] = d.Required
	}
	return s
}
