package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ashwinm/foliotrack/internal/clientdata"
	"github.com/ashwinm/foliotrack/internal/pricing"
)

// CleanupJob removes expired entries from the price snapshot tables and
// drops stale in-memory cache entries. Scheduled hourly.
type CleanupJob struct {
	repo  *clientdata.Repository
	cache *pricing.PriceCache
	log   zerolog.Logger
}

// NewCleanupJob creates a cache cleanup job.
func NewCleanupJob(repo *clientdata.Repository, cache *pricing.PriceCache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Run executes the cleanup job, removing expired entries everywhere.
func (j *CleanupJob) Run(ctx context.Context) error {
	evicted := j.cache.Evict()
	if evicted > 0 {
		j.log.Info().Int("evicted", evicted).Msg("Evicted stale in-memory prices")
	}

	if j.repo == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired price snapshots")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired snapshot rows")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Snapshot cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "cache_cleanup"
}
