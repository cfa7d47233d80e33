package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"skisTrader/internal/account"
	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
	"skisTrader/internal/risk"
	"skisTrader/internal/strategy/manager"
	"skisTrader/internal/strategy/optimization"
)

// sweepFile is the YAML layout of a sweep definition. Numbers are kept as
// strings so they reach shopspring/decimal unrounded.
type sweepFile struct {
	Name           string   `yaml:"name"`
	Pairs          []string `yaml:"pairs"`
	Multipair      bool     `yaml:"multipair"`
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	Interval       string   `yaml:"interval"`
	ChunkMinutes   int      `yaml:"chunkMinutes"`
	CollectStep    int      `yaml:"collectStep"`
	ProcessStep    int      `yaml:"processStep"`
	TopN           int      `yaml:"topN"`
	AllowGaps      bool     `yaml:"allowGaps"`
	InitialBalance string   `yaml:"initialBalance"`
	CommissionRate string   `yaml:"commissionRate"`
	Policy         string   `yaml:"policy"`
	LiquidationGap string   `yaml:"liquidationGap"`

	Base struct {
		Quantity           string `yaml:"quantity"`
		Leverage           string `yaml:"leverage"`
		StartDelta         string `yaml:"startDelta"`
		StopDelta          string `yaml:"stopDelta"`
		QuantityMultiplier string `yaml:"quantityMultiplier"`
	} `yaml:"base"`

	Trailing struct {
		MinPnl        string `yaml:"minPnl"`
		MaxPnl        string `yaml:"maxPnl"`
		MinMultiplier string `yaml:"minMultiplier"`
		MaxMultiplier string `yaml:"maxMultiplier"`
	} `yaml:"trailing"`

	Parameters []struct {
		Name string `yaml:"name"`
		Min  string `yaml:"min"`
		Max  string `yaml:"max"`
		Step string `yaml:"step"`
	} `yaml:"parameters"`
}

// Sweep is a validated parameter sweep definition.
type Sweep struct {
	Name         string
	Pairs        []string
	Multipair    bool // Run all pairs against one shared account
	Start, End   time.Time
	Interval     string
	ChunkMinutes int
	CollectStep  int // Zero falls back to COLLECT_STEP
	ProcessStep  int
	TopN         int
	AllowGaps    bool
	Account      account.Config
	Base         domain.SkisOptions
	Trailing     manager.TrailingStop // Zero means the default trailing stop
	Parameters   []optimization.ParameterRange
}

// LoadSweepFile reads and validates a YAML sweep definition.
func LoadSweepFile(path string) (*Sweep, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep file: %w", err)
	}
	return ParseSweep(raw)
}

// ParseSweep validates a YAML sweep definition.
func ParseSweep(raw []byte) (*Sweep, error) {
	var f sweepFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse sweep file: %v", ports.ErrConfigurationError, err)
	}

	s := &Sweep{
		Name:         f.Name,
		Multipair:    f.Multipair,
		Interval:     orDefault(f.Interval, "1m"),
		ChunkMinutes: orDefaultInt(f.ChunkMinutes, 60),
		CollectStep:  f.CollectStep,
		ProcessStep:  orDefaultInt(f.ProcessStep, 1),
		TopN:         f.TopN,
		AllowGaps:    f.AllowGaps,
	}
	var errs []string
	fail := func(format string, args ...interface{}) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if s.Name == "" {
		fail("name must be set")
	}
	for _, p := range f.Pairs {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			s.Pairs = append(s.Pairs, p)
		}
	}
	if len(s.Pairs) == 0 {
		fail("pairs must list at least one pair")
	}

	var err error
	start, startErr := time.Parse(time.RFC3339, f.Start)
	end, endErr := time.Parse(time.RFC3339, f.End)
	switch {
	case startErr != nil:
		fail("invalid start: %v", startErr)
	case endErr != nil:
		fail("invalid end: %v", endErr)
	case !start.Before(end):
		fail("start must be before end")
	}
	s.Start, s.End = start.UTC(), end.UTC()
	if s.ChunkMinutes < 0 || s.CollectStep < 0 || s.ProcessStep < 0 || s.TopN < 0 {
		fail("chunkMinutes, collectStep, processStep and topN cannot be negative")
	}

	dec := func(field, value, def string) decimal.Decimal {
		v, err := decimal.NewFromString(orDefault(value, def))
		if err != nil {
			fail("invalid %s %q", field, value)
		}
		return v
	}

	initialBalance := dec("initialBalance", f.InitialBalance, "1000")
	commissionRate := dec("commissionRate", f.CommissionRate, "0.0005")
	gap := dec("liquidationGap", f.LiquidationGap, risk.DefaultLiquidationGap.String())
	if s.Account, err = accountConfig(initialBalance, commissionRate, risk.PolicyKind(f.Policy), gap); err != nil {
		fail("%v", err)
	}

	s.Base = domain.SkisOptions{
		Quantity:   dec("base.quantity", f.Base.Quantity, "5"),
		Leverage:   dec("base.leverage", f.Base.Leverage, "10"),
		StartDelta: dec("base.startDelta", f.Base.StartDelta, "0.01"),
		StopDelta:  dec("base.stopDelta", f.Base.StopDelta, "0.04"),
	}
	if s.Base.QuantityMultiplier, err = domain.ParseQuantityMultiplier(orDefault(f.Base.QuantityMultiplier, "none")); err != nil {
		fail("invalid base.quantityMultiplier: %v", err)
	}

	s.Trailing = manager.TrailingStop{
		MinPnl:        dec("trailing.minPnl", f.Trailing.MinPnl, "0"),
		MaxPnl:        dec("trailing.maxPnl", f.Trailing.MaxPnl, "0"),
		MinMultiplier: dec("trailing.minMultiplier", f.Trailing.MinMultiplier, "0"),
		MaxMultiplier: dec("trailing.maxMultiplier", f.Trailing.MaxMultiplier, "0"),
	}
	if !s.Trailing.IsZero() {
		if err := s.Trailing.Validate(); err != nil {
			fail("%v", err)
		}
	}

	for _, p := range f.Parameters {
		r, err := optimization.ParseParameterRange(p.Name, p.Min, p.Max, p.Step)
		if err != nil {
			fail("parameter %s: %v", p.Name, err)
			continue
		}
		s.Parameters = append(s.Parameters, r)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: sweep validation failed: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return s, nil
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func orDefaultInt(value, def int) int {
	if value == 0 {
		return def
	}
	return value
}
