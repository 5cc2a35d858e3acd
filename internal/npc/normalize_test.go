package npc

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeLegacyRecord(t *testing.T) {
	x, y := 120, 88
	idle := 5000
	greet := true
	raw := RawRecord{
		ID:             "npc-1",
		Name:           "Mira",
		SpawnConfig:    &SpawnConfig{MapID: "village", X: &x, Y: &y},
		DefaultSprite:  "healer",
		Prompt:         "You are the village healer.",
		RequiredTokens: []string{"image-gen-token"},
		Behavior:       &RawBehavior{IdleInterval: &idle, GreetOnProximity: &greet},
		Enabled:        true,
	}

	cfg := Normalize(raw)
	if cfg.Spawn.Map != "village" || cfg.Spawn.X != 120 || cfg.Spawn.Y != 88 {
		t.Fatalf("unexpected spawn: %+v", cfg.Spawn)
	}
	if cfg.Sprite != "healer" {
		t.Fatalf("expected legacy sprite, got %q", cfg.Sprite)
	}
	if cfg.Personality != "You are the village healer." {
		t.Fatalf("expected prompt fallback, got %q", cfg.Personality)
	}
	if !cfg.HasItem("image-gen-token") {
		t.Fatalf("expected required_tokens to populate inventory")
	}
	if cfg.Behavior.IdleIntervalMs != 5000 || !cfg.Behavior.GreetOnProximity {
		t.Fatalf("unexpected behavior: %+v", cfg.Behavior)
	}
	if cfg.Behavior.PatrolRadius != 0 {
		t.Fatalf("expected zero default patrol radius")
	}
}

func TestNormalizeCanonicalWinsOverLegacy(t *testing.T) {
	raw := RawRecord{
		ID:            "npc-2",
		Spawn:         &Spawn{Map: "keep", X: 1, Y: 2},
		SpawnConfig:   &SpawnConfig{MapID: "ignored"},
		Sprite:        "knight",
		DefaultSprite: "ignored",
		Personality:   "Stoic.",
		Prompt:        "ignored",
	}
	cfg := Normalize(raw)
	if cfg.Spawn.Map != "keep" || cfg.Sprite != "knight" || cfg.Personality != "Stoic." {
		t.Fatalf("canonical fields must win: %+v", cfg)
	}
}

func TestNormalizeEmptyRecordDefaults(t *testing.T) {
	cfg := Normalize(RawRecord{ID: "npc-3"})
	want := Spawn{Map: DefaultMap, X: DefaultX, Y: DefaultY}
	if cfg.Spawn != want {
		t.Fatalf("expected default spawn, got %+v", cfg.Spawn)
	}
	if cfg.Sprite != DefaultSprite {
		t.Fatalf("expected default sprite, got %q", cfg.Sprite)
	}
	if cfg.Personality != DefaultPersonality {
		t.Fatalf("expected default personality, got %q", cfg.Personality)
	}
	if len(cfg.Skills) != 0 {
		t.Fatalf("expected no skills, got %v", cfg.Skills)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := RawRecord{
		ID:     "npc-4",
		Skills: []RawSkill{{Name: "move"}, {Name: "say"}},
	}
	first := Normalize(raw)
	second := Normalize(raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize must be deterministic: %+v vs %+v", first, second)
	}
}

func TestRawSkillUnmarshalForms(t *testing.T) {
	var rec RawRecord
	payload := `{"id":"npc-5","is_enabled":true,"skills":["move",{"name":"say","description":"talks"}]}`
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg := Normalize(rec)
	if !cfg.HasSkill("move") || !cfg.HasSkill("say") {
		t.Fatalf("expected both skill forms to normalize, got %v", cfg.Skills)
	}
}
