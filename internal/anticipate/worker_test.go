package anticipate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/engine"
	"github.com/jwebster45206/quantum-engine/pkg/gm"
	"github.com/jwebster45206/quantum-engine/pkg/state"
)

type stubGeneration struct{}

func (stubGeneration) GenerateVariants(ctx context.Context, req engine.GenerationRequest) (map[branch.VariantType]*branch.OutcomeVariant, error) {
	return map[branch.VariantType]*branch.OutcomeVariant{
		branch.VariantSuccess: {
			VariantType: branch.VariantSuccess,
			Narrative:   "Nothing much happens.",
		},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T) (*engine.Engine, *branch.Cache) {
	t.Helper()

	gs := state.NewGameState()
	gs.AddLocation(&state.Location{Key: "tavern", DisplayName: "The Crooked Flagon"})
	gs.AddEntity(&state.Entity{
		Key: "old_tom", EntityType: "npc", DisplayName: "Old Tom", Owner: "tavern",
	})
	if err := gs.SetPlayerLocation("tavern"); err != nil {
		t.Fatalf("failed to set location: %v", err)
	}

	facts := gm.NewMemoryFactStore()
	world := state.NewWorld(gs, facts)
	cache := branch.NewCache(32, time.Minute, nil)
	collapser := branch.NewManager(world, branch.FixedRoller{Result: branch.RollResult{Die: 15, Total: 15, Pass: true}}, nil)
	post := delta.NewPostProcessor(nil, nil)

	eng := engine.New(gs, gm.NewOracle(facts, nil), cache, collapser, post, stubGeneration{}, nil).
		WithDecisionRoll(func() float64 { return 0 })
	return eng, cache
}

func TestWorker_PrefillsCache(t *testing.T) {
	eng, cache := testEngine(t)
	w := New(eng, time.Millisecond, 2, testLogger(), "anticipate-test")

	started := make(chan error, 1)
	go func() { started <- w.Start() }()

	deadline := time.After(2 * time.Second)
	for cache.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never filled the cache")
		case <-time.After(5 * time.Millisecond):
		}
	}

	w.Stop()
	if err := <-started; err != nil {
		t.Errorf("worker returned error: %v", err)
	}
}

func TestWorker_StopBeforeFirstCycle(t *testing.T) {
	eng, _ := testEngine(t)
	w := New(eng, time.Hour, 2, testLogger(), "")

	started := make(chan error, 1)
	go func() { started <- w.Start() }()

	// Let the first cycle run, then stop while the worker is sleeping.
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return promptly")
	}
	if err := <-started; err != nil {
		t.Errorf("worker returned error: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	eng, _ := testEngine(t)
	w := New(eng, 0, 0, testLogger(), "")

	if w.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", w.interval, DefaultInterval)
	}
	if w.maxActions != DefaultMaxActions {
		t.Errorf("maxActions = %d, want %d", w.maxActions, DefaultMaxActions)
	}
	if w.id == "" {
		t.Error("worker id should be generated when empty")
	}
}
