package backtesting

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

// DefaultBatchSize is the number of managers replayed between memory reclaims.
const DefaultBatchSize = 120

// RunnerConfig holds configuration for the parallel runner.
type RunnerConfig struct {
	BatchSize   int             // Managers per batch, DefaultBatchSize if zero
	Workers     int             // Concurrent replays per batch, GOMAXPROCS if zero
	CollectStep int             // Collect every CollectStep windows
	RuinFloor   decimal.Decimal // DefaultRuinFloor if zero
	Logger      ports.Logger
}

// Runner replays one price history through many independent managers.
type Runner struct {
	cfg    RunnerConfig
	logger ports.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.CollectStep < 1 {
		return nil, fmt.Errorf("%w: collect step must be positive, got %d", ports.ErrConfigurationError, cfg.CollectStep)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.RuinFloor.IsZero() {
		cfg.RuinFloor = DefaultRuinFloor
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}, nil
}

func (r *Runner) replayConfig() ReplayConfig {
	return ReplayConfig{CollectStep: r.cfg.CollectStep, RuinFloor: r.cfg.RuinFloor}
}

// RunParallel replays windows through every manager and returns the
// collected values indexed like managers. Managers share nothing but the
// read-only windows, so each timeline is deterministic.
func RunParallel[M Manager, T any](ctx context.Context, r *Runner, windows []domain.Window, managers []M, collect CollectFunc[M, domain.Window, T]) ([][]T, error) {
	replay := func(ctx context.Context, m M) ([]T, error) {
		return Replay(ctx, m, windows, r.replayConfig(), collect)
	}
	return runBatches(ctx, r, len(windows), managers, replay)
}

// MultipairRunParallel is RunParallel for multi-pair managers.
func MultipairRunParallel[M MultipairManager, T any](ctx context.Context, r *Runner, windows []MultiWindow, managers []M, collect CollectFunc[M, MultiWindow, T]) ([][]T, error) {
	replay := func(ctx context.Context, m M) ([]T, error) {
		return ReplayMultipair(ctx, m, windows, r.replayConfig(), collect)
	}
	return runBatches(ctx, r, len(windows), managers, replay)
}

func runBatches[M any, T any](ctx context.Context, r *Runner, steps int, managers []M, replay func(context.Context, M) ([]T, error)) ([][]T, error) {
	if len(managers) == 0 {
		return nil, ports.ErrNoManagers
	}

	results := make([][]T, len(managers))
	started := time.Now()
	r.logger.Info(ctx, "Starting parallel replay", map[string]interface{}{
		"managers":  len(managers),
		"steps":     steps,
		"batchSize": r.cfg.BatchSize,
		"workers":   r.cfg.Workers,
	})

	for batchStart := 0; batchStart < len(managers); batchStart += r.cfg.BatchSize {
		batchEnd := min(batchStart+r.cfg.BatchSize, len(managers))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)
		for i := batchStart; i < batchEnd; i++ {
			i := i
			g.Go(func() error {
				collected, err := replay(gctx, managers[i])
				if err != nil {
					return fmt.Errorf("manager %d: %w", i, err)
				}
				results[i] = collected
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			r.logger.Error(ctx, err, "Parallel replay aborted", map[string]interface{}{"batchStart": batchStart})
			return nil, err
		}

		// Per-manager histories are garbage once a batch is done.
		runtime.GC()
		debug.FreeOSMemory()

		r.logger.Debug(ctx, "Batch finished", map[string]interface{}{
			"done":    batchEnd,
			"total":   len(managers),
			"elapsed": time.Since(started).String(),
		})
	}

	r.logger.Info(ctx, "Parallel replay finished", map[string]interface{}{
		"managers": len(managers),
		"elapsed":  time.Since(started).String(),
	})
	return results, nil
}
