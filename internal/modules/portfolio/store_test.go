package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinm/foliotrack/internal/domain"
	"github.com/ashwinm/foliotrack/internal/modules/history"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(false, zerolog.Nop())
}

func alphaPosition() domain.Position {
	return domain.Position{
		StockName:     "Alpha Corp",
		Ticker:        "ALPHA",
		Quantity:      10,
		PurchasePrice: 100,
		PurchaseDate:  "2024-01-15",
		Sector:        "Tech",
	}
}

func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }
func strPtr(s string) *string     { return &s }

func TestCreatePortfolio(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreatePortfolio("Tech"))

	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	assert.Equal(t, "Tech", p.Name)
	assert.Empty(t, p.Positions)
}

func TestCreatePortfolioDuplicateNameCaseInsensitive(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreatePortfolio("Tech"))

	err := store.CreatePortfolio("tech")
	assert.ErrorIs(t, err, domain.ErrDuplicatePortfolio)
}

func TestCreatePortfolioEmptyName(t *testing.T) {
	store := newTestStore(t)

	err := store.CreatePortfolio("   ")
	assert.True(t, domain.IsValidation(err))
}

func TestDeletePortfolio(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	require.NoError(t, store.DeletePortfolio("TECH"))

	_, err := store.GetPortfolio("Tech")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)

	assert.ErrorIs(t, store.DeletePortfolio("Tech"), domain.ErrPortfolioNotFound)
}

func TestAddPosition(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	added, cmd, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	assert.Equal(t, "ALPHA", added.Ticker)
	assert.Equal(t, 1000.0, added.InvestmentValue)
	assert.Equal(t, 0.0, added.CurrentPrice) // pending first refresh
	assert.Equal(t, history.KindAdd, cmd.Kind)
	assert.Equal(t, 0, cmd.Index)
}

func TestAddPositionNormalizesTicker(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	pos := alphaPosition()
	pos.Ticker = "  alpha "

	added, _, err := store.AddPosition("Tech", pos)
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", added.Ticker)
}

func TestAddPositionDuplicateTicker(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	_, _, err = store.AddPosition("Tech", alphaPosition())
	assert.ErrorIs(t, err, domain.ErrDuplicateTicker)
}

func TestAddPositionRevivesDormantRow(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	// Sell everything; the row stays with quantity zero.
	_, _, err = store.ManageShares("Tech", "ALPHA", -10, nil)
	require.NoError(t, err)

	fresh := alphaPosition()
	fresh.Quantity = 4
	fresh.PurchasePrice = 130

	revived, cmd, err := store.AddPosition("Tech", fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(4), revived.Quantity)
	assert.Equal(t, 130.0, revived.PurchasePrice)
	assert.Equal(t, history.KindModify, cmd.Kind)

	// Still exactly one row for the ticker.
	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	assert.Len(t, p.Positions, 1)
}

func TestAddPositionValidation(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	cases := map[string]func(*domain.Position){
		"empty name":     func(p *domain.Position) { p.StockName = " " },
		"empty ticker":   func(p *domain.Position) { p.Ticker = "" },
		"zero quantity":  func(p *domain.Position) { p.Quantity = 0 },
		"negative qty":   func(p *domain.Position) { p.Quantity = -5 },
		"zero price":     func(p *domain.Position) { p.PurchasePrice = 0 },
		"negative price": func(p *domain.Position) { p.PurchasePrice = -1 },
		"bad date":       func(p *domain.Position) { p.PurchaseDate = "15/01/2024" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			pos := alphaPosition()
			mutate(&pos)
			_, _, err := store.AddPosition("Tech", pos)
			assert.True(t, domain.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestManageSharesBuyRecomputesWeightedAverage(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	// 10 @ 100 plus 10 @ 200 must yield exactly 150.00.
	updated, cmd, err := store.ManageShares("Tech", "ALPHA", 10, floatPtr(200))
	require.NoError(t, err)

	assert.Equal(t, int64(20), updated.Quantity)
	assert.Equal(t, 150.0, updated.PurchasePrice)
	assert.Equal(t, 3000.0, updated.InvestmentValue)
	assert.Equal(t, history.KindModify, cmd.Kind)
}

func TestManageSharesBuyRequiresPrice(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	_, _, err = store.ManageShares("Tech", "ALPHA", 5, nil)
	assert.True(t, domain.IsValidation(err))

	_, _, err = store.ManageShares("Tech", "ALPHA", 5, floatPtr(0))
	assert.True(t, domain.IsValidation(err))
}

func TestManageSharesSellRejectsPrice(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	_, _, err = store.ManageShares("Tech", "ALPHA", -5, floatPtr(120))
	assert.True(t, domain.IsValidation(err))
}

func TestManageSharesSellKeepsAverage(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	updated, _, err := store.ManageShares("Tech", "ALPHA", -4, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(6), updated.Quantity)
	assert.Equal(t, 100.0, updated.PurchasePrice)
	assert.Equal(t, 600.0, updated.InvestmentValue)
}

func TestManageSharesOversellLeavesStateUnchanged(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	_, _, err = store.ManageShares("Tech", "ALPHA", -11, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Positions[0].Quantity)
}

func TestManageSharesSellToZeroKeepsRow(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	updated, cmd, err := store.ManageShares("Tech", "ALPHA", -10, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), updated.Quantity)
	assert.False(t, updated.Active())
	assert.Equal(t, history.KindModify, cmd.Kind)

	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	assert.Len(t, p.Positions, 1)
}

func TestManageSharesSellToZeroPrunesWhenConfigured(t *testing.T) {
	store := NewStore(true, zerolog.Nop())
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	_, cmd, err := store.ManageShares("Tech", "ALPHA", -10, nil)
	require.NoError(t, err)
	assert.Equal(t, history.KindRemove, cmd.Kind)

	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
}

func TestManageSharesZeroDelta(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	_, _, err := store.ManageShares("Tech", "ALPHA", 0, nil)
	assert.True(t, domain.IsValidation(err))
}

func TestManageSharesUnknownTicker(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	_, _, err := store.ManageShares("Tech", "NOPE", -1, nil)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestModifyPositionOverwritesWithoutAveraging(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	updated, cmd, err := store.ModifyPosition("Tech", "ALPHA", FieldUpdates{
		Quantity:      int64Ptr(50),
		PurchasePrice: floatPtr(90),
	})
	require.NoError(t, err)

	// Explicit overwrite, not a weighted average.
	assert.Equal(t, int64(50), updated.Quantity)
	assert.Equal(t, 90.0, updated.PurchasePrice)
	assert.Equal(t, 4500.0, updated.InvestmentValue)
	assert.Equal(t, history.KindModify, cmd.Kind)
}

func TestModifyPositionUntouchedFieldsSurvive(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	updated, _, err := store.ModifyPosition("Tech", "ALPHA", FieldUpdates{
		Sector: strPtr("Semiconductors"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Semiconductors", updated.Sector)
	assert.Equal(t, "Alpha Corp", updated.StockName)
	assert.Equal(t, int64(10), updated.Quantity)
	assert.Equal(t, "2024-01-15", updated.PurchaseDate)
}

func TestModifyPositionTickerRename(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	updated, _, err := store.ModifyPosition("Tech", "ALPHA", FieldUpdates{
		Ticker: strPtr("omega"),
	})
	require.NoError(t, err)
	assert.Equal(t, "OMEGA", updated.Ticker)

	_, _, err = store.ManageShares("Tech", "OMEGA", -1, nil)
	assert.NoError(t, err)
}

func TestModifyPositionTickerRenameCollision(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	beta := alphaPosition()
	beta.Ticker = "BETA"
	beta.StockName = "Beta Inc"
	_, _, err = store.AddPosition("Tech", beta)
	require.NoError(t, err)

	_, _, err = store.ModifyPosition("Tech", "ALPHA", FieldUpdates{Ticker: strPtr("BETA")})
	assert.ErrorIs(t, err, domain.ErrDuplicateTicker)
}

func TestRemovePosition(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	removed, cmd, err := store.RemovePosition("Tech", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", removed.Ticker)
	assert.Equal(t, history.KindRemove, cmd.Kind)
	assert.Equal(t, 0, cmd.Index)

	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
}

func TestPruneDeletesOnlySoldOutRows(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))

	for _, ticker := range []string{"ALPHA", "BETA", "GAMMA"} {
		pos := alphaPosition()
		pos.Ticker = ticker
		pos.StockName = ticker
		_, _, err := store.AddPosition("Tech", pos)
		require.NoError(t, err)
	}

	// Sell out ALPHA and GAMMA.
	_, _, err := store.ManageShares("Tech", "ALPHA", -10, nil)
	require.NoError(t, err)
	_, _, err = store.ManageShares("Tech", "GAMMA", -10, nil)
	require.NoError(t, err)

	commands, err := store.Prune("Tech")
	require.NoError(t, err)
	require.Len(t, commands, 2)

	p, err := store.GetPortfolio("Tech")
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, "BETA", p.Positions[0].Ticker)

	// Undoing both prune commands restores the original order.
	undoLog := history.NewUndoLog(store, zerolog.Nop())
	for _, cmd := range commands {
		undoLog.Push(cmd)
	}
	_, err = undoLog.Undo()
	require.NoError(t, err)
	_, err = undoLog.Undo()
	require.NoError(t, err)

	p, err = store.GetPortfolio("Tech")
	require.NoError(t, err)
	require.Len(t, p.Positions, 3)
	assert.Equal(t, "ALPHA", p.Positions[0].Ticker)
	assert.Equal(t, "BETA", p.Positions[1].Ticker)
	assert.Equal(t, "GAMMA", p.Positions[2].Ticker)
}

func TestRefreshMetricsAppliesQuotes(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	refreshed, err := store.RefreshMetrics("Tech", map[string]domain.Quote{
		"ALPHA": {Current: floatPtr(120), Previous: floatPtr(110)},
	})
	require.NoError(t, err)

	pos := refreshed.Positions[0]
	assert.Equal(t, 120.0, pos.CurrentPrice)
	assert.Equal(t, 1200.0, pos.CurrentValue)
	assert.Equal(t, 200.0, pos.ProfitLoss)
	assert.Equal(t, 100.0, pos.DailyPL)
}

func TestRefreshMetricsUnknownTickerZeroes(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	// First give it a price, then refresh with no quote at all.
	_, err = store.RefreshMetrics("Tech", map[string]domain.Quote{
		"ALPHA": {Current: floatPtr(120)},
	})
	require.NoError(t, err)

	refreshed, err := store.RefreshMetrics("Tech", map[string]domain.Quote{})
	require.NoError(t, err)

	pos := refreshed.Positions[0]
	assert.Equal(t, 0.0, pos.CurrentPrice)
	assert.Equal(t, 0.0, pos.CurrentValue)
	assert.Equal(t, 0.0, pos.ProfitLoss)
	assert.Equal(t, 1000.0, pos.InvestmentValue)
}

func TestExportLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)

	exported := store.Export()

	restored := newTestStore(t)
	restored.Load(exported)

	p, err := restored.GetPortfolio("Tech")
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, "ALPHA", p.Positions[0].Ticker)
	assert.Equal(t, int64(10), p.Positions[0].Quantity)
}

func TestListPortfoliosSorted(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("zeta"))
	require.NoError(t, store.CreatePortfolio("Alpha"))
	require.NoError(t, store.CreatePortfolio("mid"))

	list := store.ListPortfolios()
	require.Len(t, list, 3)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestTickersDistinctAcrossPortfolios(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreatePortfolio("Tech"))
	require.NoError(t, store.CreatePortfolio("Retirement"))

	_, _, err := store.AddPosition("Tech", alphaPosition())
	require.NoError(t, err)
	_, _, err = store.AddPosition("Retirement", alphaPosition())
	require.NoError(t, err)

	beta := alphaPosition()
	beta.Ticker = "BETA"
	_, _, err = store.AddPosition("Tech", beta)
	require.NoError(t, err)

	assert.Equal(t, []string{"ALPHA", "BETA"}, store.Tickers())
}
