package backtesting

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

// Chunk groups consecutive klines into windows of size klines. A trailing
// partial group becomes a shorter window.
func Chunk(klines []*domain.Kline, size int) []domain.Window {
	if size < 1 {
		size = 1
	}
	windows := make([]domain.Window, 0, (len(klines)+size-1)/size)
	for start := 0; start < len(klines); start += size {
		end := min(start+size, len(klines))
		if w, ok := domain.Aggregate(klines[start:end]); ok {
			windows = append(windows, w)
		}
	}
	return windows
}

// MultiWindow is one tick of a multi-pair replay.
type MultiWindow struct {
	OpenTime time.Time
	Pairs    map[string]domain.Window
}

// Prices returns the decision price of every pair.
func (w MultiWindow) Prices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(w.Pairs))
	for pair, pw := range w.Pairs {
		prices[pair] = pw.Open
	}
	return prices
}

// Ranges returns the high/low range of every pair.
func (w MultiWindow) Ranges() map[string]domain.HighLow {
	ranges := make(map[string]domain.HighLow, len(w.Pairs))
	for pair, pw := range w.Pairs {
		ranges[pair] = domain.HighLow{High: pw.High, Low: pw.Low}
	}
	return ranges
}

// ChunkMultipair chunks every pair's klines and zips them by index. All
// series must chunk to the same number of windows.
func ChunkMultipair(series map[string][]*domain.Kline, size int) ([]MultiWindow, error) {
	pairs := make([]string, 0, len(series))
	for pair := range series {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	chunked := make(map[string][]domain.Window, len(series))
	count := -1
	for _, pair := range pairs {
		windows := Chunk(series[pair], size)
		if count >= 0 && len(windows) != count {
			return nil, fmt.Errorf("%w: %s has %d windows, expected %d", ports.ErrIncompleteHistory, pair, len(windows), count)
		}
		count = len(windows)
		chunked[pair] = windows
	}

	out := make([]MultiWindow, max(count, 0))
	for i := range out {
		out[i].Pairs = make(map[string]domain.Window, len(pairs))
		for j, pair := range pairs {
			w := chunked[pair][i]
			if j == 0 {
				out[i].OpenTime = w.OpenTime
			}
			out[i].Pairs[pair] = w
		}
	}
	return out, nil
}
