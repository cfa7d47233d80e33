package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"skisTrader/config"
	"skisTrader/internal/adapters/logger"
	"skisTrader/internal/adapters/sqlite"
	"skisTrader/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "analyze_sweeps [run...]",
	Short: "Summarize persisted sweep runs, every run when none is named",
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")
		return run(cmd.Context(), cmd.OutOrStdout(), args, top)
	},
}

func init() {
	rootCmd.Flags().Int("top", 10, "parameter sets to list per run")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, runs []string, top int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewLogrusLogger(cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("failed to initialize database repository: %w", err)
	}
	defer repo.Close()

	if len(runs) == 0 {
		if runs, err = repo.ListSweepRuns(ctx); err != nil {
			return err
		}
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No sweep runs found. Run sweep_runner first.")
		return nil
	}

	summaries := make([]RunSummary, 0, len(runs))
	byRun := make(map[string][]*domain.SweepResult, len(runs))
	for _, name := range runs {
		// A negative limit lifts the LIMIT clause in sqlite.
		results, err := repo.FindTopSweepResults(ctx, name, -1)
		if err != nil {
			return err
		}
		byRun[name] = results
		summaries = append(summaries, Summarize(name, results, cfg.InitialBalance))
	}

	printSummaries(w, summaries)
	for _, name := range runs {
		results := byRun[name]
		fmt.Fprintf(w, "\n## %s\n", name)
		printTop(w, results[:min(max(top, 0), len(results))])
		printSensitivity(w, ParameterSensitivity(results))
	}
	return nil
}

// RunSummary holds the distribution of final equity over one sweep run.
type RunSummary struct {
	Run            string
	Combinations   int
	Best           float64
	Median         float64
	Worst          float64
	Profitable     float64 // Share of combinations ending above the initial balance
	MedianDrawdown float64
	MeanWinrate    float64
}

// Summarize computes the equity distribution of a run.
func Summarize(run string, results []*domain.SweepResult, initialBalance decimal.Decimal) RunSummary {
	s := RunSummary{Run: run, Combinations: len(results)}
	if len(results) == 0 {
		return s
	}

	equity := make(stats.Float64Data, 0, len(results))
	drawdowns := make(stats.Float64Data, 0, len(results))
	winrates := make(stats.Float64Data, 0, len(results))
	profitable := 0
	for _, r := range results {
		e, _ := r.FinalEquity.Float64()
		dd, _ := r.MaxDrawdown.Float64()
		wr, _ := r.WinrateCount.Float64()
		equity = append(equity, e)
		drawdowns = append(drawdowns, dd)
		winrates = append(winrates, wr)
		if r.FinalEquity.GreaterThan(initialBalance) {
			profitable++
		}
	}

	s.Best, _ = equity.Max()
	s.Worst, _ = equity.Min()
	s.Median, _ = equity.Median()
	s.MedianDrawdown, _ = drawdowns.Median()
	s.MeanWinrate, _ = winrates.Mean()
	s.Profitable = float64(profitable) / float64(len(results))
	return s
}

// ParameterValue is the mean final equity of every combination sharing one parameter value.
type ParameterValue struct {
	Param      string
	Value      string
	Count      int
	MeanEquity float64
}

// ParameterSensitivity groups results by each parameter value, sorted by
// parameter then value.
func ParameterSensitivity(results []*domain.SweepResult) []ParameterValue {
	type key struct{ param, value string }
	groups := make(map[key]stats.Float64Data)
	for _, r := range results {
		e, _ := r.FinalEquity.Float64()
		for p, v := range r.Params {
			groups[key{p, v}] = append(groups[key{p, v}], e)
		}
	}

	out := make([]ParameterValue, 0, len(groups))
	for k, data := range groups {
		mean, _ := data.Mean()
		out = append(out, ParameterValue{Param: k.param, Value: k.value, Count: len(data), MeanEquity: mean})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Param != out[j].Param {
			return out[i].Param < out[j].Param
		}
		return lessValue(out[i].Value, out[j].Value)
	})
	return out
}

// lessValue orders numerically when both values are decimals.
func lessValue(a, b string) bool {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA == nil && errB == nil {
		return da.LessThan(db)
	}
	return a < b
}

func printSummaries(w io.Writer, summaries []RunSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Combinations", "Best", "Median", "Worst", "Profitable %", "Median DD %", "Mean Winrate %"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range summaries {
		table.Append([]string{
			s.Run,
			fmt.Sprint(s.Combinations),
			fmt.Sprintf("%.2f", s.Best),
			fmt.Sprintf("%.2f", s.Median),
			fmt.Sprintf("%.2f", s.Worst),
			fmt.Sprintf("%.1f", s.Profitable*100),
			fmt.Sprintf("%.2f", s.MedianDrawdown*100),
			fmt.Sprintf("%.1f", s.MeanWinrate*100),
		})
	}
	table.Render()
}

func printTop(w io.Writer, results []*domain.SweepResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Parameters", "Final Equity", "Max DD", "Winrate", "Trades"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, r := range results {
		table.Append([]string{
			fmt.Sprint(i + 1),
			formatParams(r.Params),
			r.FinalEquity.StringFixed(2),
			r.MaxDrawdown.StringFixed(4),
			r.WinrateCount.StringFixed(4),
			fmt.Sprint(r.TradeCount),
		})
	}
	table.Render()
}

func printSensitivity(w io.Writer, values []ParameterValue) {
	if len(values) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Parameter", "Value", "Runs", "Mean Equity"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, v := range values {
		table.Append([]string{v.Param, v.Value, fmt.Sprint(v.Count), fmt.Sprintf("%.2f", v.MeanEquity)})
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
