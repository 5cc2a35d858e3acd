package engine

import (
	"context"
	"log"
	"math"
	"time"
)

// TileSize is the pixel width of one world tile.
const TileSize = 32

const (
	wanderChance  = 0.3
	thoughtChance = 0.1
)

// StartIdle begins the recurring idle loop if the template enables it.
// Starting an already-running loop is a no-op.
func (a *Actor) StartIdle() {
	if !a.tpl.IdleEnabled {
		return
	}
	a.idleMu.Lock()
	defer a.idleMu.Unlock()
	if a.idleStop != nil {
		return
	}
	stop := make(chan struct{})
	a.idleStop = stop

	interval := time.Duration(a.tpl.Config.Behavior.IdleIntervalMs) * time.Millisecond
	go a.idleLoop(stop, interval)
}

func (a *Actor) stopIdle() {
	a.idleMu.Lock()
	defer a.idleMu.Unlock()
	if a.idleStop != nil {
		close(a.idleStop)
		a.idleStop = nil
	}
}

func (a *Actor) idleLoop(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.idleTick()
		}
	}
}

// idleTick runs one tick of ambient behavior. It takes the conversation
// lock non-blocking: while a conversation is active the tick is skipped
// entirely.
func (a *Actor) idleTick() {
	if !a.conv.TryLock() {
		return
	}
	defer a.conv.Unlock()

	if a.randFn() < wanderChance {
		a.wander()
	}
	if a.ai != nil && a.randFn() < thoughtChance {
		go a.think()
	}
}

// wander performs a bounded random walk within the patrol radius.
func (a *Actor) wander() {
	radius := float64(a.tpl.Config.Behavior.PatrolRadius * TileSize)
	if radius <= 0 {
		return
	}
	angle := a.randFn() * 2 * math.Pi
	distance := a.randFn() * radius

	x, y := a.handle.Position()
	a.handle.SetPosition(
		x+int(math.Cos(angle)*distance),
		y+int(math.Sin(angle)*distance),
	)
}

// think generates an ambient line. Fire-and-forget: the thought is logged,
// not persisted as conversation.
func (a *Actor) think() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	thought := a.ai.GenerateIdleThought(ctx, a.tpl.Config)
	if thought != "" {
		log.Printf("[engine] %s thinks: %s", a.tpl.Config.ID, thought)
	}
}
