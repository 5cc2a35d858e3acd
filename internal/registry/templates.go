package registry

import (
	"sync"

	"github.com/tidegate/worldsync/internal/npc"
)

// Capability tags an NPC may carry in its skill set.
const (
	SkillMove          = "move"
	SkillSay           = "say"
	SkillEmote         = "emote"
	SkillGenerateImage = "generate_image"

	ItemImageGenToken = "image-gen-token"
)

// Template is the compiled behavior wiring for one NPC id, derived from a
// single Config snapshot. Templates are never mutated in place: a config
// change builds a new one under the same key.
type Template struct {
	Config npc.Config

	CanMove          bool
	CanSay           bool
	CanEmote         bool
	CanGenerateImage bool
	IdleEnabled      bool
	GreetOnProximity bool
}

func Compile(cfg npc.Config) *Template {
	return &Template{
		Config:           cfg,
		CanMove:          cfg.HasSkill(SkillMove),
		CanSay:           cfg.HasSkill(SkillSay),
		CanEmote:         cfg.HasSkill(SkillEmote),
		CanGenerateImage: cfg.HasSkill(SkillGenerateImage) && cfg.HasItem(ItemImageGenToken),
		IdleEnabled:      cfg.Behavior.IdleIntervalMs > 0 && cfg.HasSkill(SkillMove),
		GreetOnProximity: cfg.Behavior.GreetOnProximity && cfg.HasSkill(SkillSay),
	}
}

// Templates memoizes one Template per id so repeated spawns of the same id
// reuse identical wiring until an update invalidates it.
type Templates struct {
	mu    sync.Mutex
	cache map[string]*Template
}

func NewTemplates() *Templates {
	return &Templates{cache: map[string]*Template{}}
}

// Obtain returns the cached template for cfg.ID, compiling one on first use.
func (t *Templates) Obtain(cfg npc.Config) *Template {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tpl, ok := t.cache[cfg.ID]; ok {
		return tpl
	}
	tpl := Compile(cfg)
	t.cache[cfg.ID] = tpl
	return tpl
}

// Invalidate evicts the template for id so the next spawn recompiles it.
func (t *Templates) Invalidate(id string) {
	t.mu.Lock()
	delete(t.cache, id)
	t.mu.Unlock()
}

func (t *Templates) Reset() {
	t.mu.Lock()
	t.cache = map[string]*Template{}
	t.mu.Unlock()
}

func (t *Templates) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cache)
}
