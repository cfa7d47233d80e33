package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Trend is the directional state of a trend-following strategy.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

// String returns the string representation of the Trend.
func (t Trend) String() string {
	switch t {
	case TrendFlat:
		return "FLAT"
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// ParseTrend converts a string to a Trend.
func ParseTrend(s string) (Trend, error) {
	switch strings.ToUpper(s) {
	case "FLAT":
		return TrendFlat, nil
	case "UP":
		return TrendUp, nil
	case "DOWN":
		return TrendDown, nil
	default:
		return TrendFlat, fmt.Errorf("unknown trend %q", s)
	}
}

func (t Trend) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Trend) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTrend(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// QuantityMultiplier selects how order size grows with the number of steps spent in a trend.
type QuantityMultiplier int

const (
	MultiplierNone QuantityMultiplier = iota
	MultiplierLow
	MultiplierLowQuad
	MultiplierHigh
	MultiplierHighQuad
)

var multiplierNames = map[QuantityMultiplier]string{
	MultiplierNone:     "none",
	MultiplierLow:      "low",
	MultiplierLowQuad:  "lowQuad",
	MultiplierHigh:     "high",
	MultiplierHighQuad: "highQuad",
}

// String returns the string representation of the QuantityMultiplier.
func (m QuantityMultiplier) String() string {
	if name, ok := multiplierNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseQuantityMultiplier converts a case-insensitive name to a QuantityMultiplier.
func ParseQuantityMultiplier(s string) (QuantityMultiplier, error) {
	for m, name := range multiplierNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return MultiplierNone, fmt.Errorf("unknown quantity multiplier %q", s)
}

func (m QuantityMultiplier) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *QuantityMultiplier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseQuantityMultiplier(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonTakeProfit   CloseReason = "TP"
	CloseReasonStopLoss     CloseReason = "SL"
	CloseReasonTrailingStop CloseReason = "TRAILING_STOP"
	CloseReasonTrendExit    CloseReason = "TREND_EXIT"
	CloseReasonRuin         CloseReason = "RUIN"
	CloseReasonManual       CloseReason = "MANUAL"
)
