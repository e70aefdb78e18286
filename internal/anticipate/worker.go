package anticipate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quantum-engine/pkg/engine"
)

const (
	// DefaultInterval is the pause between anticipation cycles.
	DefaultInterval = 3 * time.Second

	// DefaultMaxActions caps how many predicted actions are prefilled
	// per cycle.
	DefaultMaxActions = 4

	errorBackoff = 1 * time.Second
)

// Worker speculatively generates branches for the player's current
// location in the background, so the next input is more likely to be a
// cache hit.
type Worker struct {
	id         string
	engine     *engine.Engine
	interval   time.Duration
	maxActions int
	log        *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an anticipation worker. A zero interval or maxActions
// falls back to the defaults.
func New(eng *engine.Engine, interval time.Duration, maxActions int, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("anticipate-%s", uuid.New().String()[:8])
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxActions <= 0 {
		maxActions = DefaultMaxActions
	}

	return &Worker{
		id:         workerID,
		engine:     eng,
		interval:   interval,
		maxActions: maxActions,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start begins the anticipation loop. It returns when Stop is called.
func (w *Worker) Start() error {
	w.log.Info("Anticipation worker starting", "worker_id", w.id, "interval", w.interval)
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Anticipation worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.runCycle(); err != nil {
				w.log.Error("Anticipation cycle failed", "error", err, "worker_id", w.id)
				// Continue cycling even on error
				w.sleep(errorBackoff)
				continue
			}
			w.sleep(w.interval)
		}
	}
}

// Stop cancels the loop and waits for the current cycle to finish.
func (w *Worker) Stop() {
	w.log.Info("Anticipation worker stop requested", "worker_id", w.id)
	w.cancel()
	<-w.done
}

// runCycle prefills branches for the current location. Cancellation is
// checked inside PrefillLocation between generations, so a stop request
// during a slow generation pass is honored promptly.
func (w *Worker) runCycle() error {
	generated, err := w.engine.PrefillLocation(w.ctx, w.maxActions)
	if err != nil {
		if w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to prefill location: %w", err)
	}

	if generated > 0 {
		w.log.Debug("Prefilled branches",
			"worker_id", w.id,
			"count", generated,
		)
	}
	return nil
}

// sleep pauses between cycles but wakes immediately on shutdown.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}
