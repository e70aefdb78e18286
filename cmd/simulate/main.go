package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quantum-engine/internal/anticipate"
	"github.com/jwebster45206/quantum-engine/internal/config"
	"github.com/jwebster45206/quantum-engine/internal/logger"
	"github.com/jwebster45206/quantum-engine/internal/services"
	"github.com/jwebster45206/quantum-engine/pkg/actor"
	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/engine"
	"github.com/jwebster45206/quantum-engine/pkg/gm"
	"github.com/jwebster45206/quantum-engine/pkg/state"
)

// simulate runs a short scripted session against the speculative
// branch cache and prints each turn's narrative and cache behavior.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting quantum engine simulator",
		"environment", cfg.Environment,
		"cache_capacity", cfg.CacheCapacity)

	// Facts and snapshots live in Redis when one is reachable,
	// otherwise facts fall back to memory and snapshots are skipped.
	var facts gm.FactStore
	var snapshots *services.RedisSnapshotStore
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	redisStore := services.NewRedisFactStoreFromClient(client, log)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisStore.Ping(pingCtx); err != nil {
		log.Warn("Redis unavailable, using in-memory fact store", "error", err)
		facts = gm.NewMemoryFactStore()
	} else {
		log.Info("Using Redis fact store", "redis_url", cfg.RedisURL)
		facts = redisStore
		snapshots = services.NewRedisSnapshotStore(client, log)
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error("Failed to close Redis fact store", "error", err)
			}
		}()
	}
	pingCancel()

	// Generation runs against Anthropic when a key is configured,
	// otherwise the deterministic mock.
	var gen engine.GenerationService
	var resolver delta.KeyResolver
	if cfg.AnthropicAPIKey != "" {
		svc := services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log)
		gen = svc
		resolver = svc
		log.Info("Using Anthropic generation service", "model", cfg.ModelName)
	} else {
		mock := services.NewMockGenerationService()
		gen = mock
		resolver = mock
		log.Info("Using mock generation service")
	}

	gs := buildDemoWorld()

	pc, err := actor.NewPCFromSpec(&actor.PCSpec{
		ID:    "player",
		Name:  "Wren",
		Stats: actor.Stats{Strength: 10, Dexterity: 14, Constitution: 12, Intelligence: 13, Wisdom: 11, Charisma: 15},
		MaxHP: 12,
		AC:    13,
		Attributes: map[string]int{
			"stealth":    4,
			"persuasion": 3,
		},
	})
	if err != nil {
		log.Error("Failed to build player character", "error", err)
		os.Exit(1)
	}

	world := state.NewWorld(gs, facts)
	oracle := gm.NewOracle(facts, log)
	cache := branch.NewCache(cfg.CacheCapacity, cfg.CacheTTL, log)
	collapser := branch.NewManager(world, branch.NewSeededRoller(uint64(time.Now().UnixNano())), log)
	post := delta.NewPostProcessor(resolver, log)

	eng := engine.New(gs, oracle, cache, collapser, post, gen, log)

	// Anticipation runs in the background, prefilling branches for the
	// current location between turns.
	worker := anticipate.New(eng, cfg.AnticipationInterval, cfg.AnticipationActions, log, "")
	go func() {
		if err := worker.Start(); err != nil {
			log.Error("Anticipation worker failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-quit
		log.Info("Shutdown requested")
		cancel()
	}()

	mods := actor.SkillSource{PC: pc}
	script := []string{
		"look around",
		"speak with tom",
		"take the rusty key",
		"sneak past the guard dog",
		"go to the cellar",
	}

	for i, input := range script {
		if ctx.Err() != nil {
			break
		}
		result, err := eng.ResolveTurn(ctx, input, mods, branch.RollNormal)
		if err != nil {
			log.Error("Turn failed", "input", input, "error", err)
			continue
		}

		fmt.Printf("\n> %s\n%s\n", input, result.Narrative)
		log.Info("Turn resolved",
			"turn", i+1,
			"cache_hit", result.CacheHit,
			"branch_key", result.Collapse.BranchKey,
			"variant", result.Collapse.VariantType,
			"deltas_applied", result.Collapse.DeltasApplied)

		// Give the anticipation loop a beat to work between turns, the
		// way a real player would.
		select {
		case <-ctx.Done():
		case <-time.After(cfg.AnticipationInterval):
		}
	}

	worker.Stop()

	if snapshots != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := snapshots.SaveGameState(saveCtx, gs.ID, gs); err != nil {
			log.Error("Failed to save session snapshot", "error", err)
		} else {
			log.Info("Session snapshot saved", "session_id", gs.ID)
		}
		saveCancel()
	}

	cm := eng.CacheMetrics()
	xm := eng.CollapseMetrics()
	log.Info("Session complete",
		"cache_hits", cm.Hits,
		"cache_misses", cm.Misses,
		"hit_rate", fmt.Sprintf("%.2f", cm.HitRate()),
		"evictions", cm.Evictions,
		"collapses", xm.Collapses,
		"twist_rate", fmt.Sprintf("%.2f", xm.TwistRate()))
}

// buildDemoWorld assembles a small tavern scene: an innkeeper to talk
// to, items to take, a guarded exit.
func buildDemoWorld() *state.GameState {
	gs := state.NewGameState()

	gs.AddLocation(&state.Location{
		Key:         "tavern",
		DisplayName: "The Crooked Flagon",
		Description: "A low-beamed taproom smelling of ale and woodsmoke.",
		Exits:       []string{"cellar", "street"},
	})
	gs.AddLocation(&state.Location{
		Key:         "cellar",
		DisplayName: "Tavern Cellar",
		Description: "Barrels and cobwebs below the taproom.",
		Exits:       []string{"tavern"},
	})
	gs.AddLocation(&state.Location{
		Key:         "street",
		DisplayName: "Harrow Street",
		Description: "The muddy lane outside the tavern.",
		Exits:       []string{"tavern"},
	})

	gs.AddEntity(&state.Entity{
		Key:         "old_tom",
		EntityType:  "npc",
		DisplayName: "Old Tom",
		Description: "The grizzled innkeeper, polishing a tankard he never sets down.",
		Owner:       "tavern",
	})
	gs.AddEntity(&state.Entity{
		Key:         "guard_dog",
		EntityType:  "creature",
		DisplayName: "Guard Dog",
		Description: "A scarred mastiff dozing by the cellar stairs.",
		Owner:       "tavern",
	})
	gs.AddEntity(&state.Entity{
		Key:         "rusty_key",
		EntityType:  "item",
		DisplayName: "Rusty Key",
		Description: "An iron key, orange with rust, left on the bar.",
		Owner:       "tavern",
	})
	gs.AddEntity(&state.Entity{
		Key:         "ale_barrel",
		EntityType:  "container",
		DisplayName: "Ale Barrel",
		Description: "A tapped barrel behind the bar.",
		Owner:       "tavern",
	})

	if err := gs.SetPlayerLocation("tavern"); err != nil {
		panic(err)
	}
	gs.QuestKeys["rusty_key"] = true
	gs.Relationships["old_tom"] = 50

	return gs
}
