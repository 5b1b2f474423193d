package portfolio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ashwinm/foliotrack/internal/domain"
	"github.com/ashwinm/foliotrack/internal/modules/history"
	"github.com/ashwinm/foliotrack/internal/modules/metrics"
)

// QuoteFetcher defines the price resolution capability the service
// needs from the pricing module.
type QuoteFetcher interface {
	Fetch(ctx context.Context, tickers []string) map[string]*float64
	FetchQuotes(ctx context.Context, tickers []string) map[string]domain.Quote
}

// ChangeLog defines the undo log contract the service drives.
type ChangeLog interface {
	Push(cmd history.Command)
	Undo() (history.Command, error)
	Redo() (history.Command, error)
	Depths() (undo, redo int)
}

// Persister defines the portfolio file store contract.
type Persister interface {
	Load() map[string][]domain.Position
	Save(data map[string][]domain.Position) error
	EmergencySave(data map[string][]domain.Position)
}

// Auditor records user-visible change history.
type Auditor interface {
	Record(action, portfolio, ticker, details string)
}

// Service orchestrates portfolio operations: it drives the store,
// resolves prices through the fetcher, records undo commands and audit
// entries, and persists after every mutation.
//
// Persistence failures are absorbed here (logged, never propagated):
// the user must still be able to see and edit portfolio composition
// when the disk misbehaves.
type Service struct {
	store   *Store
	fetcher QuoteFetcher
	changes ChangeLog
	persist Persister
	audit   Auditor
	log     zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(store *Store, fetcher QuoteFetcher, changes ChangeLog, persist Persister, audit Auditor, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		changes: changes,
		persist: persist,
		audit:   audit,
		log:     log.With().Str("service", "portfolio").Logger(),
	}
}

// LoadFromDisk replaces store contents with the persisted state.
// Called once at startup.
func (s *Service) LoadFromDisk() {
	s.store.Load(s.persist.Load())
}

// CreatePortfolio creates a new, empty portfolio.
func (s *Service) CreatePortfolio(name string) error {
	if err := s.store.CreatePortfolio(name); err != nil {
		return err
	}
	s.audit.Record("CREATED_PORTFOLIO", name, "", "")
	s.saveBestEffort()
	return nil
}

// DeletePortfolio removes a portfolio and all its positions. The
// deletion is not replayable through the undo log; callers should
// confirm before invoking.
func (s *Service) DeletePortfolio(name string) error {
	if err := s.store.DeletePortfolio(name); err != nil {
		return err
	}
	s.audit.Record("DELETED_PORTFOLIO", name, "", "")
	s.saveBestEffort()
	return nil
}

// ListPortfolios returns copies of all portfolios.
func (s *Service) ListPortfolios() []domain.Portfolio {
	return s.store.ListPortfolios()
}

// GetPortfolio returns a copy of one portfolio.
func (s *Service) GetPortfolio(name string) (domain.Portfolio, error) {
	return s.store.GetPortfolio(name)
}

// AddPosition appends a new position and records the change.
func (s *Service) AddPosition(portfolio string, pos domain.Position) (domain.Position, error) {
	added, cmd, err := s.store.AddPosition(portfolio, pos)
	if err != nil {
		return domain.Position{}, err
	}
	s.changes.Push(cmd)
	s.audit.Record("ADDED_STOCK", portfolio, added.Ticker,
		fmt.Sprintf("qty=%d avg=%.2f", added.Quantity, added.PurchasePrice))
	s.saveBestEffort()
	return added, nil
}

// ManageShares buys (delta > 0, price required) or sells (delta < 0)
// shares of an existing position.
func (s *Service) ManageShares(portfolio, ticker string, delta int64, priceIfAdding *float64) (domain.Position, error) {
	updated, cmd, err := s.store.ManageShares(portfolio, ticker, delta, priceIfAdding)
	if err != nil {
		return domain.Position{}, err
	}
	s.changes.Push(cmd)
	s.audit.Record("MANAGED_SHARES", portfolio, updated.Ticker,
		fmt.Sprintf("delta=%d qty=%d avg=%.2f", delta, updated.Quantity, updated.PurchasePrice))
	s.saveBestEffort()
	return updated, nil
}

// ModifyPosition applies explicit field overwrites.
func (s *Service) ModifyPosition(portfolio, ticker string, updates FieldUpdates) (domain.Position, error) {
	updated, cmd, err := s.store.ModifyPosition(portfolio, ticker, updates)
	if err != nil {
		return domain.Position{}, err
	}
	s.changes.Push(cmd)
	s.audit.Record("MODIFIED_STOCK", portfolio, updated.Ticker, "")
	s.saveBestEffort()
	return updated, nil
}

// RemovePosition deletes a position outright.
func (s *Service) RemovePosition(portfolio, ticker string) (domain.Position, error) {
	removed, cmd, err := s.store.RemovePosition(portfolio, ticker)
	if err != nil {
		return domain.Position{}, err
	}
	s.changes.Push(cmd)
	s.audit.Record("REMOVED_STOCK", portfolio, removed.Ticker,
		fmt.Sprintf("qty=%d", removed.Quantity))
	s.saveBestEffort()
	return removed, nil
}

// Prune deletes every sold-out (zero quantity) row in a portfolio.
// Each deletion is individually undoable.
func (s *Service) Prune(portfolio string) (int, error) {
	commands, err := s.store.Prune(portfolio)
	if err != nil {
		return 0, err
	}
	for _, cmd := range commands {
		s.changes.Push(cmd)
	}
	if len(commands) > 0 {
		s.audit.Record("PRUNED", portfolio, "", fmt.Sprintf("removed=%d", len(commands)))
		s.saveBestEffort()
	}
	return len(commands), nil
}

// RefreshPrices resolves current prices for a set of tickers. Tickers
// the provider cannot resolve map to nil.
func (s *Service) RefreshPrices(ctx context.Context, tickers []string) map[string]*float64 {
	return s.fetcher.Fetch(ctx, tickers)
}

// ComputeMetrics resolves quotes for every ticker in a portfolio,
// recomputes derived fields, and returns the refreshed portfolio with
// its aggregate totals. Unknown prices degrade to zeroed fields.
func (s *Service) ComputeMetrics(ctx context.Context, portfolio string) (domain.Portfolio, domain.PortfolioMetrics, error) {
	p, err := s.store.GetPortfolio(portfolio)
	if err != nil {
		return domain.Portfolio{}, domain.PortfolioMetrics{}, err
	}

	tickers := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		tickers = append(tickers, pos.Ticker)
	}

	quotes := s.fetcher.FetchQuotes(ctx, tickers)

	refreshed, err := s.store.RefreshMetrics(portfolio, quotes)
	if err != nil {
		return domain.Portfolio{}, domain.PortfolioMetrics{}, err
	}

	return refreshed, metrics.Totals(refreshed), nil
}

// RefreshAll warms the price cache for every ticker held anywhere.
// Used by the background refresh job.
func (s *Service) RefreshAll(ctx context.Context) int {
	tickers := s.store.Tickers()
	if len(tickers) == 0 {
		return 0
	}

	quotes := s.fetcher.FetchQuotes(ctx, tickers)

	resolved := 0
	for _, q := range quotes {
		if q.Current != nil {
			resolved++
		}
	}
	s.log.Info().Int("tickers", len(tickers)).Int("resolved", resolved).Msg("Background price refresh completed")
	return resolved
}

// Undo reverses the most recent mutation and returns its description.
func (s *Service) Undo() (string, error) {
	cmd, err := s.changes.Undo()
	if err != nil {
		return "", err
	}
	s.audit.Record("UNDO", cmd.Portfolio, cmd.Ticker, cmd.Describe())
	s.saveBestEffort()
	return cmd.Describe(), nil
}

// Redo re-applies the most recently undone mutation.
func (s *Service) Redo() (string, error) {
	cmd, err := s.changes.Redo()
	if err != nil {
		return "", err
	}
	s.audit.Record("REDO", cmd.Portfolio, cmd.Ticker, cmd.Describe())
	s.saveBestEffort()
	return cmd.Describe(), nil
}

// HistoryDepths returns the undo/redo stack depths for display.
func (s *Service) HistoryDepths() (int, int) {
	return s.changes.Depths()
}

// Shutdown persists current state on the way out, falling back to the
// emergency backup when the primary write fails.
func (s *Service) Shutdown() {
	data := s.store.Export()
	if err := s.persist.Save(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to save portfolios on shutdown, writing backup")
		s.persist.EmergencySave(data)
	}
}

// saveBestEffort persists after a mutation. Failures are logged and
// absorbed; a flaky disk must not block portfolio edits.
func (s *Service) saveBestEffort() {
	data := s.store.Export()
	if err := s.persist.Save(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist portfolios")
		s.persist.EmergencySave(data)
	}
}
