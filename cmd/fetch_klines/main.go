package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"skisTrader/config"
	"skisTrader/internal/adapters/binanceclient"
	"skisTrader/internal/adapters/logger"
	"skisTrader/internal/adapters/sqlite"
	"skisTrader/internal/sandbox"
	"skisTrader/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "fetch_klines --pairs ETHUSDT,BTCUSDT --months 3",
	Short: "Fill the local kline cache from Binance and optionally export it as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringSlice("pairs")
		months, _ := cmd.Flags().GetInt("months")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		csvDir, _ := cmd.Flags().GetString("csv")
		return run(cmd.Context(), pairs, months, from, to, csvDir)
	},
}

func init() {
	rootCmd.Flags().StringSlice("pairs", nil, "pairs to fetch, PAIRS from the environment if empty")
	rootCmd.Flags().Int("months", 3, "months of history ending now, ignored when --from is set")
	rootCmd.Flags().String("from", "", "range start, 2006-01-02 or RFC3339")
	rootCmd.Flags().String("to", "", "range end, now if empty")
	rootCmd.Flags().String("csv", "", "directory to export the fetched klines to")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, pairs []string, months int, from, to, csvDir string) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if len(pairs) == 0 {
		pairs = cfg.Pairs
	}

	// 2. Initialize Logger
	appLogger := logger.NewLogrusLogger(cfg.LogLevel)

	// 3. Initialize Repository and Exchange Client
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
		Interval:  cfg.KlineInterval,
		AllowGaps: true,
	})
	if err != nil {
		return err
	}

	// 4. Resolve the range
	end := time.Now().UTC()
	if to != "" {
		if end, err = parseTime(to); err != nil {
			return err
		}
	}
	start := end.AddDate(0, -months, 0)
	if from != "" {
		if start, err = parseTime(from); err != nil {
			return err
		}
	}

	// 5. Fetch, cache and export
	series, err := history.GetMultipairRange(ctx, pairs, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		return err
	}
	for _, pair := range pairs {
		klines := series[pair]
		appLogger.Info(ctx, "Klines cached", map[string]interface{}{"pair": pair, "count": len(klines)})
		if csvDir == "" {
			continue
		}

		filename := filepath.Join(csvDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", pair, history.Interval(), start.Format("20060102"), end.Format("20060102")))
		if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"filename": filename})
			return err
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected 2006-01-02 or RFC3339", s)
	}
	return t.UTC(), nil
}
