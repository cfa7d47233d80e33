package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/risk"
	"skisTrader/internal/strategy/backtesting"
	"skisTrader/internal/strategy/manager"
)

const (
	defaultInterval = "1m"
	defaultWindow   = time.Hour
	shutdownTimeout = 5 * time.Second
)

// Config holds the dependencies of the paper-trading service.
type Config struct {
	Logger    ports.Logger
	Streamer  ports.KlineStreamer
	States    ports.StateRepository
	Manager   *manager.SkisMultipair
	Interval  string          // Streamed kline interval, "1m" if empty
	Window    time.Duration   // Decision window, one hour if zero
	RuinFloor decimal.Decimal // backtesting.DefaultRuinFloor if zero
}

// TraderService replays live klines through a simulated multi-pair Skis
// manager. Klines are folded into clock-aligned windows; once every pair has
// delivered a window the manager processes it exactly like a backtest would,
// and the strategy data of every pair is checkpointed.
type TraderService struct {
	logger    ports.Logger
	streamer  ports.KlineStreamer
	states    ports.StateRepository
	interval  string
	step      time.Duration
	window    time.Duration
	ruinFloor decimal.Decimal
	handle    func(*domain.Kline) // Kline handler passed to the streamer

	mu          sync.Mutex // Protects the fields below
	manager     *manager.SkisMultipair
	windowStart time.Time
	buckets     map[string][]*domain.Kline
	steps       int
	ruined      bool
}

// NewTraderService creates a new paper-trading service instance.
func NewTraderService(cfg Config) (*TraderService, error) {
	if cfg.Logger == nil || cfg.Streamer == nil || cfg.States == nil || cfg.Manager == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for TraderService", ports.ErrConfigurationError)
	}
	if cfg.Interval == "" {
		cfg.Interval = defaultInterval
	}
	step, err := time.ParseDuration(cfg.Interval)
	if err != nil || step <= 0 {
		return nil, fmt.Errorf("%w: invalid kline interval %q", ports.ErrConfigurationError, cfg.Interval)
	}
	if cfg.Window == 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Window < step || cfg.Window%step != 0 {
		return nil, fmt.Errorf("%w: window %s is not a multiple of interval %s", ports.ErrConfigurationError, cfg.Window, cfg.Interval)
	}
	if cfg.RuinFloor.IsZero() {
		cfg.RuinFloor = backtesting.DefaultRuinFloor
	}

	s := &TraderService{
		logger:    cfg.Logger,
		streamer:  cfg.Streamer,
		states:    cfg.States,
		interval:  cfg.Interval,
		step:      step,
		window:    cfg.Window,
		ruinFloor: cfg.RuinFloor,
		manager:   cfg.Manager,
		buckets:   make(map[string][]*domain.Kline),
	}
	s.handle = func(k *domain.Kline) { s.handleKlineEvent(context.Background(), k) }
	return s, nil
}

// Start resumes the checkpointed strategy data and runs until the context is
// canceled, a shutdown signal arrives or a stream gives up.
func (s *TraderService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trader Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.restore(ctx); err != nil {
		return err
	}

	type stream struct {
		pair   string
		doneCh chan struct{}
		stopCh chan struct{}
	}
	var streams []stream
	stopAll := func() {
		for _, st := range streams {
			close(st.stopCh)
		}
		for _, st := range streams {
			select {
			case <-st.doneCh:
			case <-time.After(shutdownTimeout):
				s.logger.Warn(ctx, "Timeout waiting for WebSocket stream to shut down", map[string]interface{}{"pair": st.pair})
			}
		}
	}

	for _, pair := range s.manager.Pairs() {
		doneCh, stopCh, err := s.streamer.StreamKlines(ctx, pair, s.interval, s.handle, s.handleWsError)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to start WebSocket stream", map[string]interface{}{"pair": pair})
			stopAll()
			return fmt.Errorf("failed to start WebSocket stream for %s: %w", pair, err)
		}
		streams = append(streams, stream{pair: pair, doneCh: doneCh, stopCh: stopCh})
		s.logger.Info(ctx, "WebSocket stream started", map[string]interface{}{"pair": pair, "interval": s.interval})
	}

	// Any stream ending on its own stops the service.
	lost := make(chan string, len(streams))
	for _, st := range streams {
		st := st
		go func() {
			select {
			case <-st.doneCh:
				lost <- st.pair
			case <-ctx.Done():
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
		stopAll()
	case pair := <-lost:
		err := fmt.Errorf("websocket stream for %s stopped unexpectedly", pair)
		s.logger.Error(ctx, err, "WebSocket stream stopped")
		stopAll()
		return err
	}

	s.logger.Info(ctx, "Trader Service stopped.")
	return nil
}

// restore loads the checkpointed strategy data of every pair.
func (s *TraderService) restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pair := range s.manager.Pairs() {
		data, err := s.states.LoadSkisData(ctx, pair)
		if errors.Is(err, ports.ErrStateNotFound) {
			s.logger.Info(ctx, "No checkpoint found, starting flat", map[string]interface{}{"pair": pair})
			continue
		}
		if err != nil {
			s.logger.Error(ctx, err, "Failed to load strategy state", map[string]interface{}{"pair": pair})
			return fmt.Errorf("failed to load strategy state for %s: %w", pair, err)
		}
		s.manager.SetData(pair, data)
		s.logger.Info(ctx, "Strategy state restored", map[string]interface{}{
			"pair":       pair,
			"trend":      data.Trend.String(),
			"trendSteps": data.TrendSteps,
		})
	}
	return nil
}

// handleKlineEvent buffers a final kline into the current window and
// evaluates the window once every pair has closed it.
func (s *TraderService) handleKlineEvent(ctx context.Context, kline *domain.Kline) {
	s.logger.Debug(ctx, "Received kline event", map[string]interface{}{
		"symbol":   kline.Symbol,
		"openTime": kline.OpenTime,
		"close":    kline.Close.String(),
		"isFinal":  kline.IsFinal,
	})
	if !kline.IsFinal {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.manager.PairInfo(kline.Symbol); !ok {
		s.logger.Warn(ctx, "Kline for unmanaged pair ignored", map[string]interface{}{"symbol": kline.Symbol})
		return
	}

	start := kline.OpenTime.UTC().Truncate(s.window)
	switch {
	case s.windowStart.IsZero():
		s.windowStart = start
	case start.Before(s.windowStart):
		s.logger.Debug(ctx, "Stale kline dropped", map[string]interface{}{"symbol": kline.Symbol, "openTime": kline.OpenTime})
		return
	case start.After(s.windowStart):
		// A pair moved on before the others closed the window.
		s.logger.Warn(ctx, "Window closed with missing klines", map[string]interface{}{"window": s.windowStart})
		s.evaluate(ctx)
		s.windowStart = start
	}

	s.buckets[kline.Symbol] = append(s.buckets[kline.Symbol], kline)
	if s.windowComplete() {
		s.evaluate(ctx)
		s.windowStart = s.windowStart.Add(s.window)
	}
}

// windowComplete reports whether every pair has delivered the last kline of
// the current window.
func (s *TraderService) windowComplete() bool {
	last := s.windowStart.Add(s.window - s.step)
	for _, pair := range s.manager.Pairs() {
		bucket := s.buckets[pair]
		if len(bucket) == 0 || bucket[len(bucket)-1].OpenTime.Before(last) {
			return false
		}
	}
	return true
}

// evaluate feeds the buffered window to the manager and checkpoints the
// resulting strategy data. The caller holds s.mu.
func (s *TraderService) evaluate(ctx context.Context) {
	ranges := make(map[string]domain.HighLow, len(s.buckets))
	prices := make(map[string]decimal.Decimal, len(s.buckets))
	for pair, bucket := range s.buckets {
		w, ok := domain.Aggregate(bucket)
		if !ok {
			continue
		}
		ranges[pair] = domain.HighLow{High: w.High, Low: w.Low}
		prices[pair] = w.Open
	}
	s.buckets = make(map[string][]*domain.Kline)
	if len(prices) == 0 || s.ruined {
		return
	}

	s.manager.ProcessMarket(ranges)
	balance, equity := s.manager.Balance(), s.manager.Equity(prices)
	if risk.IsRuined(balance, equity, s.ruinFloor) {
		s.manager.Ruin()
		s.ruined = true
		s.logger.Warn(ctx, "Account ruined, trading stopped", map[string]interface{}{
			"balance": balance.String(),
			"equity":  equity.String(),
		})
	} else {
		s.resetOrphanedTrends(ctx)
		s.manager.Run(prices, s.steps)
	}
	s.steps++
	balance, equity = s.manager.Balance(), s.manager.Equity(prices)

	for _, pair := range s.manager.Pairs() {
		info, _ := s.manager.PairInfo(pair)
		if err := s.states.SaveSkisData(ctx, pair, info.Data); err != nil {
			s.logger.Error(ctx, err, "Failed to checkpoint strategy state", map[string]interface{}{"pair": pair})
		}
	}

	s.logger.Info(ctx, "Window processed", map[string]interface{}{
		"window":  s.windowStart.Format(time.RFC3339),
		"step":    s.steps,
		"balance": balance.StringFixed(2),
		"equity":  equity.StringFixed(2),
	})
}

// resetOrphanedTrends flattens trends whose positions were all closed by
// price action, so the next decision starts from fresh watermarks.
func (s *TraderService) resetOrphanedTrends(ctx context.Context) {
	acc := s.manager.Account()
	for _, pair := range s.manager.Pairs() {
		info, _ := s.manager.PairInfo(pair)
		if info.Data.Trend == domain.TrendFlat || len(acc.Orders(pair)) > 0 {
			continue
		}
		s.manager.SetData(pair, domain.DefaultSkisData())
		s.logger.Info(ctx, "Trend closed by stop loss, resetting", map[string]interface{}{"pair": pair, "trend": info.Data.Trend.String()})
	}
}

// handleWsError handles errors reported by the WebSocket stream.
func (s *TraderService) handleWsError(err error) {
	s.logger.Error(context.Background(), err, "WebSocket stream error reported")
}

// Snapshot is a point-in-time view of the simulated account.
type Snapshot struct {
	Balance decimal.Decimal
	Steps   int
	Ruined  bool
	Pairs   map[string]manager.PairInfo
}

// Snapshot returns the current state of the simulated account.
func (s *TraderService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Balance: s.manager.Balance(),
		Steps:   s.steps,
		Ruined:  s.ruined,
		Pairs:   make(map[string]manager.PairInfo),
	}
	for _, pair := range s.manager.Pairs() {
		snap.Pairs[pair], _ = s.manager.PairInfo(pair)
	}
	return snap
}
