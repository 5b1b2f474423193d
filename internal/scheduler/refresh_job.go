package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PriceRefresher warms quotes for every held ticker.
type PriceRefresher interface {
	RefreshAll(ctx context.Context) int
}

// RefreshJob keeps the price cache warm so interactive metrics requests
// rarely pay provider latency.
type RefreshJob struct {
	refresher PriceRefresher
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRefreshJob creates a price refresh job. timeout bounds one cycle
// independently of the scheduler's lifetime context.
func NewRefreshJob(refresher PriceRefresher, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		refresher: refresher,
		timeout:   timeout,
		log:       log.With().Str("job", "price_refresh").Logger(),
	}
}

// Run executes one refresh cycle.
func (j *RefreshJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resolved := j.refresher.RefreshAll(ctx)
	j.log.Debug().Int("resolved", resolved).Msg("Price refresh cycle finished")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "price_refresh"
}
