// Package history provides the reversible command log and the
// append-only audit trail for portfolio mutations.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashwinm/foliotrack/internal/domain"
)

// Kind tags the command variants the undo log understands.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
	KindModify Kind = "modify"
)

// Command is a reversible description of one position mutation.
// It captures only the changed position's before/after snapshots,
// never whole-portfolio copies, so memory stays bounded as history
// grows.
//
//   - add:    After holds the created snapshot
//   - remove: Before holds the removed snapshot
//   - modify: Before and After hold the prior and resulting snapshots
//     (this covers ModifyPosition and both ManageShares directions)
//
// Index records the position's row index at mutation time so undo can
// restore the portfolio's ordering, not just its contents.
type Command struct {
	ID        string           `json:"id"`
	Kind      Kind             `json:"kind"`
	Portfolio string           `json:"portfolio"`
	Ticker    string           `json:"ticker"`
	Index     int              `json:"index"`
	Before    *domain.Position `json:"before,omitempty"`
	After     *domain.Position `json:"after,omitempty"`
	At        time.Time        `json:"at"`
}

// NewCommand creates a command with a fresh ID and timestamp.
func NewCommand(kind Kind, portfolio, ticker string, index int, before, after *domain.Position) Command {
	return Command{
		ID:        uuid.NewString(),
		Kind:      kind,
		Portfolio: portfolio,
		Ticker:    ticker,
		Index:     index,
		Before:    before,
		After:     after,
		At:        time.Now(),
	}
}

// Describe returns a short human-readable summary for UI layers.
func (c Command) Describe() string {
	switch c.Kind {
	case KindAdd:
		return fmt.Sprintf("add %s to %s", c.Ticker, c.Portfolio)
	case KindRemove:
		return fmt.Sprintf("remove %s from %s", c.Ticker, c.Portfolio)
	case KindModify:
		return fmt.Sprintf("modify %s in %s", c.Ticker, c.Portfolio)
	default:
		return fmt.Sprintf("%s %s in %s", c.Kind, c.Ticker, c.Portfolio)
	}
}
