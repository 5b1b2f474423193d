// Package portfolio owns portfolio state and the operations that
// mutate it. Every mutation returns an undoable command alongside the
// updated snapshot.
package portfolio

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ashwinm/foliotrack/internal/domain"
	"github.com/ashwinm/foliotrack/internal/modules/history"
	"github.com/ashwinm/foliotrack/internal/modules/metrics"
)

// Store owns the map of portfolio name to ordered position list.
// All mutations are serialized through one mutex; correctness, not
// throughput, is the priority here.
//
// Portfolio names are case-insensitively unique: the map is keyed by
// the folded name while Portfolio.Name preserves the user's casing.
type Store struct {
	mu          sync.Mutex
	portfolios  map[string]*domain.Portfolio
	pruneOnZero bool
	log         zerolog.Logger
}

// NewStore creates an empty portfolio store. When pruneOnZero is set,
// selling a position down to zero deletes the row immediately instead
// of leaving it for an explicit prune pass.
func NewStore(pruneOnZero bool, log zerolog.Logger) *Store {
	return &Store{
		portfolios:  make(map[string]*domain.Portfolio),
		pruneOnZero: pruneOnZero,
		log:         log.With().Str("service", "portfolio_store").Logger(),
	}
}

// foldName canonicalizes a portfolio name for case-insensitive lookup.
func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeTicker canonicalizes a ticker symbol.
func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// CreatePortfolio creates an empty portfolio. Fails with
// domain.ErrDuplicatePortfolio if a case-insensitive match exists.
func (s *Store) CreatePortfolio(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return domain.NewValidationError("portfolio name", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := foldName(trimmed)
	if _, exists := s.portfolios[key]; exists {
		return domain.ErrDuplicatePortfolio
	}

	s.portfolios[key] = &domain.Portfolio{Name: trimmed}
	s.log.Info().Str("portfolio", trimmed).Msg("Created portfolio")
	return nil
}

// DeletePortfolio removes a portfolio and all its positions. The
// removal is irreversible at this layer; reversal, where offered, is
// the caller's concern.
func (s *Store) DeletePortfolio(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := foldName(name)
	p, exists := s.portfolios[key]
	if !exists {
		return domain.ErrPortfolioNotFound
	}

	delete(s.portfolios, key)
	s.log.Info().Str("portfolio", p.Name).Int("positions", len(p.Positions)).Msg("Deleted portfolio")
	return nil
}

// ListPortfolios returns copies of every portfolio, sorted by name.
func (s *Store) ListPortfolios() []domain.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, copyPortfolio(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return foldName(out[i].Name) < foldName(out[j].Name)
	})
	return out
}

// GetPortfolio returns a copy of one portfolio.
func (s *Store) GetPortfolio(name string) (domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(name)]
	if !exists {
		return domain.Portfolio{}, domain.ErrPortfolioNotFound
	}
	return copyPortfolio(p), nil
}

// Tickers returns every distinct ticker held in any portfolio,
// active or dormant. Used by the background refresh job.
func (s *Store) Tickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var tickers []string
	for _, p := range s.portfolios {
		for _, pos := range p.Positions {
			if !seen[pos.Ticker] {
				seen[pos.Ticker] = true
				tickers = append(tickers, pos.Ticker)
			}
		}
	}
	sort.Strings(tickers)
	return tickers
}

// AddPosition appends a new position. Fails with
// domain.ErrDuplicateTicker if the ticker already holds shares in the
// portfolio - callers should route that case to ManageShares instead.
// Adding over a dormant (fully sold) row revives it in place.
//
// Derived fields start zeroed, pending the next refresh.
func (s *Store) AddPosition(portfolio string, pos domain.Position) (domain.Position, history.Command, error) {
	if err := validateNewPosition(&pos); err != nil {
		return domain.Position{}, history.Command{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.Position{}, history.Command{}, domain.ErrPortfolioNotFound
	}

	pos = metrics.Apply(pos, domain.Quote{}) // zero derived, set InvestmentValue

	if idx := indexOf(p, pos.Ticker); idx >= 0 {
		existing := p.Positions[idx]
		if existing.Active() {
			return domain.Position{}, history.Command{}, domain.ErrDuplicateTicker
		}
		// Revive the dormant row in place so the portfolio never holds
		// duplicate ticker rows.
		before := existing
		p.Positions[idx] = pos
		cmd := history.NewCommand(history.KindModify, p.Name, pos.Ticker, idx, &before, &pos)
		s.log.Info().Str("portfolio", p.Name).Str("ticker", pos.Ticker).Int64("quantity", pos.Quantity).Msg("Revived sold-out position")
		return pos, cmd, nil
	}

	p.Positions = append(p.Positions, pos)
	idx := len(p.Positions) - 1
	cmd := history.NewCommand(history.KindAdd, p.Name, pos.Ticker, idx, nil, &pos)

	s.log.Info().Str("portfolio", p.Name).Str("ticker", pos.Ticker).Int64("quantity", pos.Quantity).Msg("Added position")
	return pos, cmd, nil
}

// ManageShares buys or sells shares of an existing position.
//
// Buying (delta > 0) requires the purchase price and recomputes the
// quantity-weighted average:
//
//	newAvg = (oldQty*oldAvg + delta*price) / (oldQty + delta)
//
// Selling (delta < 0) never takes a price; selling more than is held
// fails with domain.ErrInsufficientShares and leaves state unchanged.
// A sale reaching zero marks the row for pruning rather than deleting
// it (unless the store was built with pruneOnZero).
func (s *Store) ManageShares(portfolio, ticker string, delta int64, priceIfAdding *float64) (domain.Position, history.Command, error) {
	if delta == 0 {
		return domain.Position{}, history.Command{}, domain.NewValidationError("delta", "must not be zero")
	}
	if delta > 0 {
		if priceIfAdding == nil {
			return domain.Position{}, history.Command{}, domain.NewValidationError("price", "required when adding shares")
		}
		if *priceIfAdding <= 0 {
			return domain.Position{}, history.Command{}, domain.NewValidationError("price", "must be positive")
		}
	} else if priceIfAdding != nil {
		// Pure reductions never take a price; reject inconsistent input.
		return domain.Position{}, history.Command{}, domain.NewValidationError("price", "must not be provided when removing shares")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.Position{}, history.Command{}, domain.ErrPortfolioNotFound
	}

	ticker = normalizeTicker(ticker)
	idx := indexOf(p, ticker)
	if idx < 0 {
		return domain.Position{}, history.Command{}, domain.ErrPositionNotFound
	}

	before := p.Positions[idx]
	after := before

	if delta > 0 {
		after.PurchasePrice = weightedAverage(before.Quantity, before.PurchasePrice, delta, *priceIfAdding)
		after.Quantity = before.Quantity + delta
	} else {
		sell := -delta
		if sell > before.Quantity {
			return domain.Position{}, history.Command{}, domain.ErrInsufficientShares
		}
		after.Quantity = before.Quantity - sell
	}

	after = recompute(after)

	if after.Quantity == 0 && s.pruneOnZero {
		p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
		cmd := history.NewCommand(history.KindRemove, p.Name, ticker, idx, &before, nil)
		s.log.Info().Str("portfolio", p.Name).Str("ticker", ticker).Msg("Sold out and pruned position")
		return after, cmd, nil
	}

	p.Positions[idx] = after
	cmd := history.NewCommand(history.KindModify, p.Name, ticker, idx, &before, &after)

	s.log.Info().
		Str("portfolio", p.Name).
		Str("ticker", ticker).
		Int64("delta", delta).
		Int64("quantity", after.Quantity).
		Float64("avg_price", after.PurchasePrice).
		Msg("Managed shares")
	return after, cmd, nil
}

// FieldUpdates carries the optional field overwrites for
// ModifyPosition. Nil fields are left untouched.
type FieldUpdates struct {
	StockName     *string
	Ticker        *string
	Quantity      *int64
	PurchasePrice *float64
	PurchaseDate  *string
	Sector        *string
}

// ModifyPosition applies free-form field overwrites. Changing quantity
// or purchase price here recomputes InvestmentValue but does NOT
// recompute a weighted average - this is an explicit overwrite,
// distinct from ManageShares' averaging semantics.
func (s *Store) ModifyPosition(portfolio, ticker string, updates FieldUpdates) (domain.Position, history.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.Position{}, history.Command{}, domain.ErrPortfolioNotFound
	}

	ticker = normalizeTicker(ticker)
	idx := indexOf(p, ticker)
	if idx < 0 {
		return domain.Position{}, history.Command{}, domain.ErrPositionNotFound
	}

	before := p.Positions[idx]
	after := before

	if updates.StockName != nil {
		name := strings.TrimSpace(*updates.StockName)
		if name == "" {
			return domain.Position{}, history.Command{}, domain.NewValidationError("stock name", "must not be empty")
		}
		after.StockName = name
	}
	if updates.Ticker != nil {
		newTicker := normalizeTicker(*updates.Ticker)
		if newTicker == "" {
			return domain.Position{}, history.Command{}, domain.NewValidationError("ticker", "must not be empty")
		}
		if newTicker != ticker {
			if other := indexOf(p, newTicker); other >= 0 {
				return domain.Position{}, history.Command{}, domain.ErrDuplicateTicker
			}
			after.Ticker = newTicker
		}
	}
	if updates.Quantity != nil {
		if *updates.Quantity < 0 {
			return domain.Position{}, history.Command{}, domain.NewValidationError("quantity", "must not be negative")
		}
		after.Quantity = *updates.Quantity
	}
	if updates.PurchasePrice != nil {
		if *updates.PurchasePrice <= 0 {
			return domain.Position{}, history.Command{}, domain.NewValidationError("price", "must be positive")
		}
		after.PurchasePrice = *updates.PurchasePrice
	}
	if updates.PurchaseDate != nil {
		date := strings.TrimSpace(*updates.PurchaseDate)
		if date != "" {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return domain.Position{}, history.Command{}, domain.NewValidationError("purchase date", "must be YYYY-MM-DD")
			}
		}
		after.PurchaseDate = date
	}
	if updates.Sector != nil {
		after.Sector = strings.TrimSpace(*updates.Sector)
	}

	after = recompute(after)
	p.Positions[idx] = after
	cmd := history.NewCommand(history.KindModify, p.Name, after.Ticker, idx, &before, &after)

	s.log.Info().Str("portfolio", p.Name).Str("ticker", after.Ticker).Msg("Modified position")
	return after, cmd, nil
}

// RemovePosition deletes a position outright, regardless of quantity.
func (s *Store) RemovePosition(portfolio, ticker string) (domain.Position, history.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.Position{}, history.Command{}, domain.ErrPortfolioNotFound
	}

	ticker = normalizeTicker(ticker)
	idx := indexOf(p, ticker)
	if idx < 0 {
		return domain.Position{}, history.Command{}, domain.ErrPositionNotFound
	}

	removed := p.Positions[idx]
	p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
	cmd := history.NewCommand(history.KindRemove, p.Name, ticker, idx, &removed, nil)

	s.log.Info().Str("portfolio", p.Name).Str("ticker", ticker).Msg("Removed position")
	return removed, cmd, nil
}

// Prune deletes every zero-quantity row in a portfolio and returns one
// remove command per deleted row, in deletion order, so the pass stays
// fully undoable.
func (s *Store) Prune(portfolio string) ([]history.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return nil, domain.ErrPortfolioNotFound
	}

	var commands []history.Command
	kept := p.Positions[:0]
	for i, pos := range p.Positions {
		if pos.Active() {
			kept = append(kept, pos)
			continue
		}
		removed := pos
		// Index is the row position at deletion time, i.e. within the
		// partially compacted slice.
		commands = append(commands, history.NewCommand(history.KindRemove, p.Name, pos.Ticker, i-len(commands), &removed, nil))
	}
	p.Positions = kept

	if len(commands) > 0 {
		s.log.Info().Str("portfolio", p.Name).Int("pruned", len(commands)).Msg("Pruned sold-out positions")
	}
	return commands, nil
}

// RefreshMetrics recomputes every derived field in a portfolio from
// resolved quotes and returns the refreshed copy. Tickers missing from
// the map degrade to zeroed derived fields.
func (s *Store) RefreshMetrics(portfolio string, quotes map[string]domain.Quote) (domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.Portfolio{}, domain.ErrPortfolioNotFound
	}

	for i, pos := range p.Positions {
		p.Positions[i] = metrics.Apply(pos, quotes[pos.Ticker])
	}
	return copyPortfolio(p), nil
}

// Export returns the persistable view of the store: portfolio name to
// position records.
func (s *Store) Export() map[string][]domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]domain.Position, len(s.portfolios))
	for _, p := range s.portfolios {
		positions := make([]domain.Position, len(p.Positions))
		copy(positions, p.Positions)
		out[p.Name] = positions
	}
	return out
}

// Load replaces store contents with persisted records. Tickers are
// re-normalized defensively; records missing optional fields load as
// zero values.
func (s *Store) Load(data map[string][]domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolios = make(map[string]*domain.Portfolio, len(data))
	for name, positions := range data {
		p := &domain.Portfolio{Name: name}
		for _, pos := range positions {
			pos.Ticker = normalizeTicker(pos.Ticker)
			if pos.Ticker == "" {
				continue
			}
			p.Positions = append(p.Positions, pos)
		}
		s.portfolios[foldName(name)] = p
	}
	s.log.Info().Int("portfolios", len(s.portfolios)).Msg("Loaded portfolios")
}

// --- Rollback primitives used by the undo log ---
// These restore snapshots verbatim and intentionally skip input
// validation: the snapshots were valid when captured.

// InsertPositionAt inserts a snapshot at a row index, clamped to the
// portfolio's length.
func (s *Store) InsertPositionAt(portfolio string, index int, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.ErrPortfolioNotFound
	}

	if index < 0 {
		index = 0
	}
	if index > len(p.Positions) {
		index = len(p.Positions)
	}

	p.Positions = append(p.Positions, domain.Position{})
	copy(p.Positions[index+1:], p.Positions[index:])
	p.Positions[index] = pos
	return nil
}

// ReplacePosition overwrites the row currently identified by ticker
// with the snapshot.
func (s *Store) ReplacePosition(portfolio, ticker string, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.ErrPortfolioNotFound
	}

	idx := indexOf(p, normalizeTicker(ticker))
	if idx < 0 {
		return domain.ErrPositionNotFound
	}
	p.Positions[idx] = pos
	return nil
}

// DropPosition removes the row identified by ticker.
func (s *Store) DropPosition(portfolio, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.portfolios[foldName(portfolio)]
	if !exists {
		return domain.ErrPortfolioNotFound
	}

	idx := indexOf(p, normalizeTicker(ticker))
	if idx < 0 {
		return domain.ErrPositionNotFound
	}
	p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
	return nil
}

// --- helpers ---

// validateNewPosition checks and normalizes input for AddPosition.
func validateNewPosition(pos *domain.Position) error {
	pos.StockName = strings.TrimSpace(pos.StockName)
	if pos.StockName == "" {
		return domain.NewValidationError("stock name", "must not be empty")
	}
	pos.Ticker = normalizeTicker(pos.Ticker)
	if pos.Ticker == "" {
		return domain.NewValidationError("ticker", "must not be empty")
	}
	if pos.Quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	if pos.PurchasePrice <= 0 {
		return domain.NewValidationError("price", "must be positive")
	}
	pos.PurchaseDate = strings.TrimSpace(pos.PurchaseDate)
	if pos.PurchaseDate != "" {
		if _, err := time.Parse("2006-01-02", pos.PurchaseDate); err != nil {
			return domain.NewValidationError("purchase date", "must be YYYY-MM-DD")
		}
	}
	pos.Sector = strings.TrimSpace(pos.Sector)
	return nil
}

// weightedAverage recomputes the purchase price as a quantity-weighted
// mean. Decimal arithmetic keeps the result exact for money values
// (10 @ 100 plus 10 @ 200 must yield exactly 150.00).
func weightedAverage(oldQty int64, oldAvg float64, delta int64, price float64) float64 {
	oldCost := decimal.NewFromInt(oldQty).Mul(decimal.NewFromFloat(oldAvg))
	newCost := decimal.NewFromInt(delta).Mul(decimal.NewFromFloat(price))
	totalQty := decimal.NewFromInt(oldQty + delta)

	avg := oldCost.Add(newCost).DivRound(totalQty, 4)
	f, _ := avg.Float64()
	return f
}

// recompute refreshes a position's derived fields from its stored
// current price. The previous close is unknown at mutation time, so
// daily figures reset to zero pending the next refresh.
func recompute(pos domain.Position) domain.Position {
	var quote domain.Quote
	if pos.CurrentPrice > 0 {
		price := pos.CurrentPrice
		quote.Current = &price
	}
	return metrics.Apply(pos, quote)
}

// indexOf returns the row index of a ticker, or -1.
func indexOf(p *domain.Portfolio, ticker string) int {
	for i, pos := range p.Positions {
		if pos.Ticker == ticker {
			return i
		}
	}
	return -1
}

// copyPortfolio returns a deep-enough copy: positions are values, so a
// slice copy suffices.
func copyPortfolio(p *domain.Portfolio) domain.Portfolio {
	positions := make([]domain.Position, len(p.Positions))
	copy(positions, p.Positions)
	return domain.Portfolio{Name: p.Name, Positions: positions}
}
