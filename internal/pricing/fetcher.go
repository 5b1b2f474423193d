package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ashwinm/foliotrack/internal/domain"
)

// Fetcher resolves sets of ticker symbols to prices with minimum
// provider calls and bounded parallelism. Fresh prices are served from
// the cache; misses are dispatched to a fixed worker pool, and every
// successful fetch writes through to the cache before being merged
// into the result, so a concurrent caller arriving mid-batch can
// already observe early results.
//
// One ticker failing never aborts the batch: that ticker resolves to
// nil and every other ticker proceeds independently.
type Fetcher struct {
	cache     *PriceCache
	provider  domain.PriceProvider
	workers   int
	batchWait time.Duration // cap on total batch wait, 0 disables

	// Per-ticker limiters throttle consecutive fetches for the same
	// symbol when several refreshes race.
	throttle time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	log zerolog.Logger
}

// FetcherConfig holds fetcher tuning knobs.
type FetcherConfig struct {
	Workers   int           // fixed worker pool size
	BatchWait time.Duration // upper bound on one Fetch call
	Throttle  time.Duration // min gap between fetches of the same ticker
}

// NewFetcher creates a concurrent price fetcher.
func NewFetcher(cache *PriceCache, provider domain.PriceProvider, cfg FetcherConfig, log zerolog.Logger) *Fetcher {
	if cfg.Workers < 1 {
		cfg.Workers = 5
	}
	return &Fetcher{
		cache:     cache,
		provider:  provider,
		workers:   cfg.Workers,
		batchWait: cfg.BatchWait,
		throttle:  cfg.Throttle,
		limiters:  make(map[string]*rate.Limiter),
		log:       log.With().Str("service", "fetcher").Logger(),
	}
}

// Fetch resolves every ticker in the set to a current price. The
// returned map has exactly one key per deduplicated input ticker; a
// nil value means the price could not be resolved. Completion order
// across tickers is not guaranteed.
func (f *Fetcher) Fetch(ctx context.Context, tickers []string) map[string]*float64 {
	cleaned := dedupeTickers(tickers)
	result := make(map[string]*float64, len(cleaned))

	// Partition into cached and missing.
	var missing []string
	for _, ticker := range cleaned {
		if price, ok := f.cache.Get(ticker); ok {
			p := price
			result[ticker] = &p
			continue
		}
		result[ticker] = nil // populated below on success
		missing = append(missing, ticker)
	}

	if len(missing) == 0 {
		return result
	}

	ctx, cancel := f.batchContext(ctx)
	defer cancel()

	type fetched struct {
		ticker string
		price  float64
	}

	jobs := make(chan string)
	results := make(chan fetched, len(missing))

	var wg sync.WaitGroup
	for i := 0; i < f.poolSize(len(missing)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				if err := f.waitTurn(ctx, ticker); err != nil {
					return // batch budget exhausted
				}
				price, err := f.provider.FetchLastClose(ctx, ticker)
				if err != nil {
					f.log.Warn().Err(err).Str("ticker", ticker).Msg("Could not fetch price")
					continue
				}
				// Write through before merging so concurrent callers
				// see early results.
				f.cache.Put(ticker, price)
				results <- fetched{ticker: ticker, price: price}
			}
		}()
	}

	go func() {
	dispatch:
		for _, ticker := range missing {
			select {
			case jobs <- ticker:
			case <-ctx.Done():
				break dispatch
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	resolved := 0
	for r := range results {
		p := r.price
		result[r.ticker] = &p
		resolved++
	}

	f.log.Debug().
		Int("requested", len(cleaned)).
		Int("cached", len(cleaned)-len(missing)).
		Int("fetched", resolved).
		Int("failed", len(missing)-resolved).
		Msg("Batch fetch completed")

	return result
}

// FetchQuotes resolves every ticker to a (current, previous close)
// pair for the metrics path. Either leg may be nil. Cached legs are
// reused; a miss on either leg dispatches one FetchLastTwoCloses call
// which refreshes both.
func (f *Fetcher) FetchQuotes(ctx context.Context, tickers []string) map[string]domain.Quote {
	cleaned := dedupeTickers(tickers)
	quotes := make(map[string]domain.Quote, len(cleaned))

	var missing []string
	for _, ticker := range cleaned {
		var q domain.Quote
		if price, ok := f.cache.Get(ticker); ok {
			p := price
			q.Current = &p
		}
		if prev, ok := f.cache.GetPreviousClose(ticker); ok {
			p := prev
			q.Previous = &p
		}
		quotes[ticker] = q
		// A missing previous close still needs a provider call. The
		// two-close response carries the current leg too, so a fresh
		// cached price gets overwritten with an equally fresh one.
		if q.Current == nil || q.Previous == nil {
			missing = append(missing, ticker)
		}
	}

	if len(missing) == 0 {
		return quotes
	}

	ctx, cancel := f.batchContext(ctx)
	defer cancel()

	type fetched struct {
		ticker string
		quote  domain.Quote
	}

	jobs := make(chan string)
	results := make(chan fetched, len(missing))

	var wg sync.WaitGroup
	for i := 0; i < f.poolSize(len(missing)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				if err := f.waitTurn(ctx, ticker); err != nil {
					return
				}
				current, previous, err := f.provider.FetchLastTwoCloses(ctx, ticker)
				if err != nil {
					// Degrade to current-only rather than losing the
					// whole quote.
					current, err = f.provider.FetchLastClose(ctx, ticker)
					if err != nil {
						f.log.Warn().Err(err).Str("ticker", ticker).Msg("Could not fetch quote")
						continue
					}
					f.cache.Put(ticker, current)
					cur := current
					results <- fetched{ticker: ticker, quote: domain.Quote{Current: &cur}}
					continue
				}
				f.cache.Put(ticker, current)
				f.cache.PutPreviousClose(ticker, previous)
				cur, prev := current, previous
				results <- fetched{ticker: ticker, quote: domain.Quote{Current: &cur, Previous: &prev}}
			}
		}()
	}

	go func() {
	dispatch:
		for _, ticker := range missing {
			select {
			case jobs <- ticker:
			case <-ctx.Done():
				break dispatch
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		// Keep a cached previous close when the fetch only resolved the
		// current leg.
		if r.quote.Previous == nil {
			r.quote.Previous = quotes[r.ticker].Previous
		}
		quotes[r.ticker] = r.quote
	}

	return quotes
}

// batchContext bounds a batch by the configured wait budget.
func (f *Fetcher) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.batchWait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.batchWait)
}

// poolSize caps the worker count at the amount of work available.
func (f *Fetcher) poolSize(pending int) int {
	if pending < f.workers {
		return pending
	}
	return f.workers
}

// waitTurn blocks until the per-ticker throttle allows another provider
// call for this symbol, or the batch context expires.
func (f *Fetcher) waitTurn(ctx context.Context, ticker string) error {
	if f.throttle <= 0 {
		return nil
	}

	f.mu.Lock()
	limiter, ok := f.limiters[ticker]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(f.throttle), 1)
		f.limiters[ticker] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}

// dedupeTickers drops empty strings and duplicates while preserving
// first-seen order.
func dedupeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	cleaned := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		ticker = strings.TrimSpace(ticker)
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		cleaned = append(cleaned, ticker)
	}
	return cleaned
}
