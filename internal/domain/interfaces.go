package domain

import "context"

// PriceProvider is the external market data capability the core
// depends on. Implementations live under internal/clients; the core
// never sees transport details.
//
// Both methods return an error when the provider has no usable quote
// for the ticker. Callers must treat that as "price unknown" for the
// ticker and carry on - a flaky provider must never block portfolio
// composition work.
type PriceProvider interface {
	// FetchLastClose returns the most recent traded price.
	FetchLastClose(ctx context.Context, ticker string) (float64, error)

	// FetchLastTwoCloses returns the most recent price and the close
	// of the previous trading day.
	FetchLastTwoCloses(ctx context.Context, ticker string) (current, previous float64, err error)
}
