package strategies

import "skisTrader/internal/ports"

// Strategy is a named pure decision function.
type Strategy[D, O any] interface {
	ports.Strategy[D, O]

	// Name returns the name of the strategy
	Name() string
}
