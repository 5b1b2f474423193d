package history

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinm/foliotrack/internal/domain"
)

// fakeRollback implements Rollback over a single slice of positions.
type fakeRollback struct {
	positions []domain.Position
}

func (f *fakeRollback) InsertPositionAt(portfolio string, index int, pos domain.Position) error {
	if index < 0 {
		index = 0
	}
	if index > len(f.positions) {
		index = len(f.positions)
	}
	f.positions = append(f.positions, domain.Position{})
	copy(f.positions[index+1:], f.positions[index:])
	f.positions[index] = pos
	return nil
}

func (f *fakeRollback) ReplacePosition(portfolio, ticker string, pos domain.Position) error {
	for i, p := range f.positions {
		if p.Ticker == ticker {
			f.positions[i] = pos
			return nil
		}
	}
	return domain.ErrPositionNotFound
}

func (f *fakeRollback) DropPosition(portfolio, ticker string) error {
	for i, p := range f.positions {
		if p.Ticker == ticker {
			f.positions = append(f.positions[:i], f.positions[i+1:]...)
			return nil
		}
	}
	return domain.ErrPositionNotFound
}

func position(ticker string, qty int64) domain.Position {
	return domain.Position{StockName: ticker, Ticker: ticker, Quantity: qty, PurchasePrice: 100}
}

func TestUndoEmptyStack(t *testing.T) {
	log := NewUndoLog(&fakeRollback{}, zerolog.Nop())

	_, err := log.Undo()
	assert.ErrorIs(t, err, domain.ErrNothingToUndo)
}

func TestRedoEmptyStack(t *testing.T) {
	log := NewUndoLog(&fakeRollback{}, zerolog.Nop())

	_, err := log.Redo()
	assert.ErrorIs(t, err, domain.ErrNothingToRedo)
}

func TestUndoAddDropsRow(t *testing.T) {
	store := &fakeRollback{}
	log := NewUndoLog(store, zerolog.Nop())

	added := position("ALPHA", 10)
	store.positions = append(store.positions, added)
	log.Push(NewCommand(KindAdd, "Tech", "ALPHA", 0, nil, &added))

	_, err := log.Undo()
	require.NoError(t, err)
	assert.Empty(t, store.positions)

	// Redo restores the row.
	_, err = log.Redo()
	require.NoError(t, err)
	require.Len(t, store.positions, 1)
	assert.Equal(t, added, store.positions[0])
}

func TestUndoRemoveRestoresRowAtOriginalIndex(t *testing.T) {
	store := &fakeRollback{positions: []domain.Position{
		position("ALPHA", 10),
		position("GAMMA", 30),
	}}
	log := NewUndoLog(store, zerolog.Nop())

	// BETA was removed from row 1 of a three-row portfolio.
	removed := position("BETA", 20)
	log.Push(NewCommand(KindRemove, "Tech", "BETA", 1, &removed, nil))

	_, err := log.Undo()
	require.NoError(t, err)

	require.Len(t, store.positions, 3)
	assert.Equal(t, "ALPHA", store.positions[0].Ticker)
	assert.Equal(t, "BETA", store.positions[1].Ticker)
	assert.Equal(t, "GAMMA", store.positions[2].Ticker)
}

func TestUndoModifyRestoresSnapshot(t *testing.T) {
	before := position("ALPHA", 10)
	after := before
	after.Quantity = 25

	store := &fakeRollback{positions: []domain.Position{after}}
	log := NewUndoLog(store, zerolog.Nop())
	log.Push(NewCommand(KindModify, "Tech", "ALPHA", 0, &before, &after))

	_, err := log.Undo()
	require.NoError(t, err)
	assert.Equal(t, int64(10), store.positions[0].Quantity)

	_, err = log.Redo()
	require.NoError(t, err)
	assert.Equal(t, int64(25), store.positions[0].Quantity)
}

func TestPushClearsRedoStack(t *testing.T) {
	store := &fakeRollback{}
	log := NewUndoLog(store, zerolog.Nop())

	added := position("ALPHA", 10)
	store.positions = append(store.positions, added)
	log.Push(NewCommand(KindAdd, "Tech", "ALPHA", 0, nil, &added))

	_, err := log.Undo()
	require.NoError(t, err)

	_, redo := log.Depths()
	assert.Equal(t, 1, redo)

	// Any new mutation forks history; the redo branch is discarded.
	other := position("BETA", 5)
	store.positions = append(store.positions, other)
	log.Push(NewCommand(KindAdd, "Tech", "BETA", 0, nil, &other))

	undo, redo := log.Depths()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)

	_, err = log.Redo()
	assert.ErrorIs(t, err, domain.ErrNothingToRedo)
}

func TestUndoLIFOOrder(t *testing.T) {
	store := &fakeRollback{}
	log := NewUndoLog(store, zerolog.Nop())

	first := position("ALPHA", 10)
	second := position("BETA", 20)
	store.positions = append(store.positions, first, second)
	log.Push(NewCommand(KindAdd, "Tech", "ALPHA", 0, nil, &first))
	log.Push(NewCommand(KindAdd, "Tech", "BETA", 1, nil, &second))

	cmd, err := log.Undo()
	require.NoError(t, err)
	assert.Equal(t, "BETA", cmd.Ticker)

	cmd, err = log.Undo()
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", cmd.Ticker)

	assert.Empty(t, store.positions)
}

func TestFailedUndoLeavesStacksIntact(t *testing.T) {
	// The snapshot references a row that no longer exists, so the
	// inverse operation fails and the command must stay undoable.
	store := &fakeRollback{}
	log := NewUndoLog(store, zerolog.Nop())

	before := position("GONE", 10)
	after := before
	after.Quantity = 5
	log.Push(NewCommand(KindModify, "Tech", "GONE", 0, &before, &after))

	_, err := log.Undo()
	require.Error(t, err)

	undo, redo := log.Depths()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)
}
