package npc

import "encoding/json"

const (
	DefaultMap         = "simplemap"
	DefaultX           = 400
	DefaultY           = 300
	DefaultSprite      = "female"
	DefaultPersonality = "You are a helpful NPC."
)

// RawSkill accepts either a bare capability tag ("move") or an object form
// ({"name": "move", "description": "..."}) and keeps only the tag.
type RawSkill struct {
	Name string
}

func (s *RawSkill) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		s.Name = tag
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Name = obj.Name
	return nil
}

func (s RawSkill) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Name)
}

// Normalize maps a raw external record to the canonical Config. Resolution
// per field is first-non-empty: canonical name, then legacy name, then a
// hard-coded default. It is pure and deterministic for identical input.
func Normalize(raw RawRecord) Config {
	cfg := Config{
		ID:          raw.ID,
		Name:        raw.Name,
		Spawn:       normalizeSpawn(raw),
		Sprite:      firstNonEmpty(raw.Sprite, raw.DefaultSprite, DefaultSprite),
		Personality: firstNonEmpty(raw.Personality, raw.Prompt, DefaultPersonality),
		Enabled:     raw.Enabled,
	}

	cfg.Skills = make([]string, 0, len(raw.Skills))
	for _, s := range raw.Skills {
		if s.Name != "" {
			cfg.Skills = append(cfg.Skills, s.Name)
		}
	}

	cfg.Inventory = raw.Inventory
	if len(cfg.Inventory) == 0 {
		cfg.Inventory = raw.RequiredTokens
	}

	if b := raw.Behavior; b != nil {
		if b.IdleInterval != nil {
			cfg.Behavior.IdleIntervalMs = *b.IdleInterval
		}
		if b.PatrolRadius != nil {
			cfg.Behavior.PatrolRadius = *b.PatrolRadius
		}
		if b.GreetOnProximity != nil {
			cfg.Behavior.GreetOnProximity = *b.GreetOnProximity
		}
	}

	return cfg
}

func normalizeSpawn(raw RawRecord) Spawn {
	if raw.Spawn != nil && raw.Spawn.Map != "" {
		return *raw.Spawn
	}
	spawn := Spawn{Map: DefaultMap, X: DefaultX, Y: DefaultY}
	if sc := raw.SpawnConfig; sc != nil {
		if sc.MapID != "" {
			spawn.Map = sc.MapID
		}
		if sc.X != nil {
			spawn.X = *sc.X
		}
		if sc.Y != nil {
			spawn.Y = *sc.Y
		}
	}
	return spawn
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
