package account

import "github.com/shopspring/decimal"

// SideStatistics aggregates opened and closed positions of one side.
type SideStatistics struct {
	TotalCount int             // Opened positions
	TotalSum   decimal.Decimal // Leveraged exposure of opened positions
	WinsCount  int
	LosesCount int
	WinsSum    decimal.Decimal // Payouts of winning closes
	LosesSum   decimal.Decimal // Payouts of losing closes
}

// Statistics holds per-side counters of an account.
type Statistics struct {
	Longs  SideStatistics
	Shorts SideStatistics
}

// ClosedCount is the number of closed positions on both sides.
func (s Statistics) ClosedCount() int {
	return s.Longs.WinsCount + s.Longs.LosesCount + s.Shorts.WinsCount + s.Shorts.LosesCount
}

// WinrateCount is the share of winning closes. Zero when nothing was closed.
func (s Statistics) WinrateCount() decimal.Decimal {
	closed := s.ClosedCount()
	if closed == 0 {
		return decimal.Zero
	}
	wins := s.Longs.WinsCount + s.Shorts.WinsCount
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(closed)))
}

// WinrateSum is the share of payouts that came from winning closes.
func (s Statistics) WinrateSum() decimal.Decimal {
	wins := s.Longs.WinsSum.Add(s.Shorts.WinsSum)
	total := wins.Add(s.Longs.LosesSum).Add(s.Shorts.LosesSum)
	if total.IsZero() {
		return decimal.Zero
	}
	return wins.Div(total)
}

func (s *Statistics) side(isShort bool) *SideStatistics {
	if isShort {
		return &s.Shorts
	}
	return &s.Longs
}

func (s *Statistics) recordOpen(isShort bool, totalQuantity decimal.Decimal) {
	side := s.side(isShort)
	side.TotalCount++
	side.TotalSum = side.TotalSum.Add(totalQuantity)
}

func (s *Statistics) recordClose(isShort, win bool, payout decimal.Decimal) {
	side := s.side(isShort)
	if win {
		side.WinsCount++
		side.WinsSum = side.WinsSum.Add(payout)
		return
	}
	side.LosesCount++
	side.LosesSum = side.LosesSum.Add(payout)
}
