package npc

// Config is the canonical NPC definition after normalization. The id is the
// stable external identifier and never changes; every other field may change
// across updates.
type Config struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Spawn       Spawn    `json:"spawn"`
	Sprite      string   `json:"sprite"`
	Personality string   `json:"personality"`
	Skills      []string `json:"skills"`
	Inventory   []string `json:"inventory"`
	Behavior    Behavior `json:"behavior"`
	Enabled     bool     `json:"enabled"`
}

type Spawn struct {
	Map string `json:"map"`
	X   int    `json:"x"`
	Y   int    `json:"y"`
}

type Behavior struct {
	IdleIntervalMs   int  `json:"idle_interval_ms"`
	PatrolRadius     int  `json:"patrol_radius"`
	GreetOnProximity bool `json:"greet_on_proximity"`
}

func (c Config) HasSkill(name string) bool {
	for _, s := range c.Skills {
		if s == name {
			return true
		}
	}
	return false
}

func (c Config) HasItem(name string) bool {
	for _, item := range c.Inventory {
		if item == name {
			return true
		}
	}
	return false
}

// RawRecord is the loosely-shaped row as the external store emits it. Older
// rows use spawn_config/default_sprite/prompt/required_tokens instead of the
// canonical names, and skills may be bare strings or {name, description}
// objects. Normalize resolves all of that.
type RawRecord struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Spawn          *Spawn       `json:"spawn,omitempty"`
	SpawnConfig    *SpawnConfig `json:"spawn_config,omitempty"`
	Sprite         string       `json:"sprite,omitempty"`
	DefaultSprite  string       `json:"default_sprite,omitempty"`
	Personality    string       `json:"personality,omitempty"`
	Prompt         string       `json:"prompt,omitempty"`
	Skills         []RawSkill   `json:"skills,omitempty"`
	Inventory      []string     `json:"inventory,omitempty"`
	RequiredTokens []string     `json:"required_tokens,omitempty"`
	Behavior       *RawBehavior `json:"behavior,omitempty"`
	Enabled        bool         `json:"is_enabled"`
}

type SpawnConfig struct {
	MapID string `json:"mapId"`
	X     *int   `json:"x,omitempty"`
	Y     *int   `json:"y,omitempty"`
}

type RawBehavior struct {
	IdleInterval     *int  `json:"idleInterval,omitempty"`
	PatrolRadius     *int  `json:"patrolRadius,omitempty"`
	GreetOnProximity *bool `json:"greetOnProximity,omitempty"`
}
