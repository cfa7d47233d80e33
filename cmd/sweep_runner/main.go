package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"skisTrader/config"
	"skisTrader/internal/adapters/binanceclient"
	"skisTrader/internal/adapters/logger"
	"skisTrader/internal/adapters/sqlite"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/sandbox"
	"skisTrader/internal/strategy/analytics"
	"skisTrader/internal/strategy/backtesting"
	"skisTrader/internal/strategy/optimization"
	"skisTrader/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "sweep_runner --file sweeps/march.yaml",
	Short: "Replay a Skis parameter sweep over cached history and rank the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		out, _ := cmd.Flags().GetString("out")
		score, _ := cmd.Flags().GetString("score")
		history, _ := cmd.Flags().GetBool("history")
		return run(cmd.Context(), file, out, score, history)
	},
}

func init() {
	rootCmd.Flags().String("file", "", "YAML sweep definition")
	rootCmd.Flags().String("out", "./results", "directory for benchmark.json and the best equity curve")
	rootCmd.Flags().String("score", "equity", "ranking: equity or risk")
	rootCmd.Flags().Bool("history", false, "record closed trades for trade statistics")
	_ = rootCmd.MarkFlagRequired("file")
}

func main() {
	// Every opened position draws a uuid; a sweep opens millions of them.
	uuid.EnableRandPool()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// benchmark is the JSON report written for every sweep run.
type benchmark struct {
	Run          string                  `json:"run"`
	Pairs        []string                `json:"pairs"`
	Start        time.Time               `json:"start"`
	End          time.Time               `json:"end"`
	Windows      int                     `json:"windows"`
	Combinations int                     `json:"combinations"`
	Elapsed      string                  `json:"elapsed"`
	Results      []benchmarkResult       `json:"results"`
	BestCurve    []analytics.EquityPoint `json:"bestCurve"`
}

type benchmarkResult struct {
	Params       map[string]string `json:"params"`
	Score        float64           `json:"score"`
	FinalEquity  string            `json:"finalEquity"`
	MaxDrawdown  string            `json:"maxDrawdown"`
	WinrateCount string            `json:"winrateCount"`
	Trades       int               `json:"trades"`
	Ruined       bool              `json:"ruined"`
}

func run(ctx context.Context, file, outDir, score string, recordHistory bool) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	sweep, err := config.LoadSweepFile(file)
	if err != nil {
		return err
	}
	sweep.Account.RecordHistory = recordHistory

	scoreFn := optimization.DefaultScoreFunction
	switch score {
	case "equity":
	case "risk":
		scoreFn = optimization.RiskAdjustedScoreFunction
	default:
		return fmt.Errorf("%w: unknown score %q", ports.ErrConfigurationError, score)
	}

	// 2. Initialize Logger
	appLogger := logger.NewLogrusLogger(cfg.LogLevel)

	// 3. Initialize Repository and History
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("failed to initialize database repository: %w", err)
	}
	defer repo.Close()

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}

	history, err := sandbox.NewService(sandbox.Config{
		Source:    binanceClient,
		Repo:      repo,
		Logger:    appLogger,
		Interval:  sweep.Interval,
		AllowGaps: sweep.AllowGaps,
	})
	if err != nil {
		return err
	}
	step, err := sandbox.IntervalDuration(sweep.Interval)
	if err != nil {
		return err
	}
	chunk := max(int(time.Duration(sweep.ChunkMinutes)*time.Minute/step), 1)

	// 4. Initialize Runner and Optimizer
	collectStep := sweep.CollectStep
	if collectStep == 0 {
		collectStep = cfg.CollectStep
	}
	runner, err := backtesting.NewRunner(backtesting.RunnerConfig{
		BatchSize:   cfg.BatchSize,
		Workers:     cfg.Workers,
		CollectStep: collectStep,
		RuinFloor:   cfg.RuinFloor,
		Logger:      appLogger,
	})
	if err != nil {
		return err
	}
	optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: sweep.Parameters,
		BaseOptions:     sweep.Base,
		BaseTrailing:    sweep.Trailing,
		Account:         sweep.Account,
		ProcessStep:     sweep.ProcessStep,
		TopN:            sweep.TopN,
		Runner:          runner,
		Logger:          appLogger,
		ScoreFunction:   scoreFn,
	})
	if err != nil {
		return err
	}

	// 5. Run
	series, err := history.GetMultipairRange(ctx, sweep.Pairs, sweep.Start, sweep.End)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading history")
		return err
	}

	if sweep.Multipair {
		windows, err := backtesting.ChunkMultipair(series, chunk)
		if err != nil {
			return err
		}
		started := time.Now()
		results, err := optimizer.OptimizeMultipair(ctx, sweep.Pairs, windows)
		if err != nil {
			return err
		}
		report := newBenchmark(sweep.Name, sweep.Pairs, sweep, len(windows), optimizer.Combinations(), time.Since(started), results)
		return publish(ctx, appLogger, repo, outDir, report, results)
	}

	for _, pair := range sweep.Pairs {
		windows := backtesting.Chunk(series[pair], chunk)
		started := time.Now()
		results, err := optimizer.Optimize(ctx, pair, windows)
		if err != nil {
			return err
		}
		runName := sweep.Name
		if len(sweep.Pairs) > 1 {
			runName = sweep.Name + "-" + pair
		}
		report := newBenchmark(runName, []string{pair}, sweep, len(windows), optimizer.Combinations(), time.Since(started), results)
		if err := publish(ctx, appLogger, repo, outDir, report, results); err != nil {
			return err
		}
	}
	return nil
}

func newBenchmark(runName string, pairs []string, sweep *config.Sweep, windows, combinations int, elapsed time.Duration, results []optimization.OptimizationResult) benchmark {
	b := benchmark{
		Run:          runName,
		Pairs:        pairs,
		Start:        sweep.Start,
		End:          sweep.End,
		Windows:      windows,
		Combinations: combinations,
		Elapsed:      elapsed.Round(time.Millisecond).String(),
		Results:      make([]benchmarkResult, 0, len(results)),
	}
	for _, r := range results {
		b.Results = append(b.Results, benchmarkResult{
			Params:       optimization.FormatParameters(r.Parameters),
			Score:        r.Score,
			FinalEquity:  r.Metrics.FinalEquity.StringFixed(2),
			MaxDrawdown:  r.Metrics.MaxDrawdown.StringFixed(4),
			WinrateCount: r.Metrics.WinrateCount.StringFixed(4),
			Trades:       r.Metrics.TotalTrades,
			Ruined:       r.Metrics.Ruined,
		})
	}
	if len(results) > 0 {
		b.BestCurve = results[0].Metrics.EquityCurve
	}
	return b
}

func publish(ctx context.Context, appLogger ports.Logger, repo *sqlite.Repository, outDir string, report benchmark, results []optimization.OptimizationResult) error {
	printTable(os.Stdout, report)

	dir := filepath.Join(outDir, report.Run)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "benchmark.json"), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write benchmark: %w", err)
	}
	if err := utils.WriteEquityCurveToCSV(report.BestCurve, filepath.Join(dir, "best_equity.csv")); err != nil {
		return err
	}

	rows := make([]*domain.SweepResult, 0, len(results))
	for _, r := range results {
		rows = append(rows, &domain.SweepResult{
			RunName:      report.Run,
			Params:       optimization.FormatParameters(r.Parameters),
			FinalEquity:  r.Metrics.FinalEquity,
			MaxDrawdown:  r.Metrics.MaxDrawdown,
			WinrateCount: r.Metrics.WinrateCount,
			TradeCount:   r.Metrics.TotalTrades,
		})
	}
	if err := repo.SaveSweepResults(ctx, rows); err != nil {
		appLogger.Error(ctx, err, "Error saving sweep results", map[string]interface{}{"run": report.Run})
		return err
	}

	appLogger.Info(ctx, "Sweep finished", map[string]interface{}{
		"run":          report.Run,
		"combinations": report.Combinations,
		"windows":      report.Windows,
		"elapsed":      report.Elapsed,
		"output":       dir,
	})
	return nil
}

func printTable(w *os.File, report benchmark) {
	fmt.Fprintf(w, "\n%s  %s  %s -> %s  (%d combinations, %d windows, %s)\n", report.Run,
		strings.Join(report.Pairs, ","), report.Start.Format("2006-01-02"), report.End.Format("2006-01-02"),
		report.Combinations, report.Windows, report.Elapsed)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Parameters", "Final Equity", "Max DD", "Winrate", "Trades", "Score"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, r := range report.Results {
		table.Append([]string{
			fmt.Sprint(i + 1),
			formatParams(r.Params),
			r.FinalEquity,
			r.MaxDrawdown,
			r.WinrateCount,
			fmt.Sprint(r.Trades),
			fmt.Sprintf("%.4f", r.Score),
		})
	}
	table.Render()
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}
