package history

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ashwinm/foliotrack/internal/domain"
)

// Rollback is the slice of the portfolio store the undo log needs to
// apply inverse operations. The log never constructs portfolios or
// positions itself; it only replays snapshots through these three
// primitives.
type Rollback interface {
	// InsertPositionAt inserts a snapshot at a row index (clamped to
	// the portfolio's length).
	InsertPositionAt(portfolio string, index int, pos domain.Position) error

	// ReplacePosition overwrites the row currently identified by
	// ticker with the snapshot. Handles ticker renames: the snapshot's
	// own ticker becomes the row's new identity.
	ReplacePosition(portfolio, ticker string, pos domain.Position) error

	// DropPosition removes the row identified by ticker.
	DropPosition(portfolio, ticker string) error
}

// UndoLog holds two LIFO stacks of commands and applies inverse
// operations against the portfolio store. History is in-memory only
// and lost on process exit.
//
// Invariant: a command lives in exactly one stack, and any new
// mutation clears the redo stack - standard linear history, no
// branching.
type UndoLog struct {
	mu    sync.Mutex
	undo  []Command
	redo  []Command
	store Rollback
	log   zerolog.Logger
}

// NewUndoLog creates an undo log bound to a store.
func NewUndoLog(store Rollback, log zerolog.Logger) *UndoLog {
	return &UndoLog{
		store: store,
		log:   log.With().Str("service", "undo_log").Logger(),
	}
}

// Push records a fresh mutation. The redo stack is cleared
// unconditionally.
func (l *UndoLog) Push(cmd Command) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.undo = append(l.undo, cmd)
	l.redo = l.redo[:0]

	l.log.Debug().Str("kind", string(cmd.Kind)).Str("command", cmd.Describe()).Msg("Recorded command")
}

// Undo pops the most recent command and applies its inverse against
// the store. An empty stack returns domain.ErrNothingToUndo - an
// expected condition, not a fault.
func (l *UndoLog) Undo() (Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.undo) == 0 {
		return Command{}, domain.ErrNothingToUndo
	}

	cmd := l.undo[len(l.undo)-1]

	if err := l.applyInverse(cmd); err != nil {
		return Command{}, fmt.Errorf("failed to undo %s: %w", cmd.Describe(), err)
	}

	l.undo = l.undo[:len(l.undo)-1]
	l.redo = append(l.redo, cmd)

	l.log.Info().Str("command", cmd.Describe()).Msg("Undid command")
	return cmd, nil
}

// Redo pops the most recent undone command and re-applies it forward.
func (l *UndoLog) Redo() (Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.redo) == 0 {
		return Command{}, domain.ErrNothingToRedo
	}

	cmd := l.redo[len(l.redo)-1]

	if err := l.applyForward(cmd); err != nil {
		return Command{}, fmt.Errorf("failed to redo %s: %w", cmd.Describe(), err)
	}

	l.redo = l.redo[:len(l.redo)-1]
	l.undo = append(l.undo, cmd)

	l.log.Info().Str("command", cmd.Describe()).Msg("Redid command")
	return cmd, nil
}

// Depths returns the current stack depths (undo, redo).
func (l *UndoLog) Depths() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undo), len(l.redo)
}

// applyInverse reverses one command against the store.
func (l *UndoLog) applyInverse(cmd Command) error {
	switch cmd.Kind {
	case KindAdd:
		// An add's inverse is removing the created row.
		return l.store.DropPosition(cmd.Portfolio, cmd.After.Ticker)
	case KindRemove:
		// A remove's inverse is re-inserting the stored snapshot at
		// its original row.
		return l.store.InsertPositionAt(cmd.Portfolio, cmd.Index, *cmd.Before)
	case KindModify:
		// A modify's inverse is re-applying the prior snapshot.
		return l.store.ReplacePosition(cmd.Portfolio, cmd.After.Ticker, *cmd.Before)
	default:
		return fmt.Errorf("unknown command kind: %s", cmd.Kind)
	}
}

// applyForward re-applies one command against the store.
func (l *UndoLog) applyForward(cmd Command) error {
	switch cmd.Kind {
	case KindAdd:
		return l.store.InsertPositionAt(cmd.Portfolio, cmd.Index, *cmd.After)
	case KindRemove:
		return l.store.DropPosition(cmd.Portfolio, cmd.Before.Ticker)
	case KindModify:
		return l.store.ReplacePosition(cmd.Portfolio, cmd.Before.Ticker, *cmd.After)
	default:
		return fmt.Errorf("unknown command kind: %s", cmd.Kind)
	}
}
