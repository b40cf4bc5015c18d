package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/portlight/portlight/internal/modules/analytics"
)

// BatchRunner is the part of the analytics service the batch job needs.
type BatchRunner interface {
	RunBatch(ctx context.Context, asOf time.Time) (*analytics.BatchSummary, error)
}

// BatchJob recalculates every active account. Overlapping runs are skipped:
// if the previous run is still going when the schedule fires again, the new
// trigger is dropped.
type BatchJob struct {
	service BatchRunner
	timeout time.Duration
	running atomic.Bool
	log     zerolog.Logger
}

func NewBatchJob(service BatchRunner, timeout time.Duration, log zerolog.Logger) *BatchJob {
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &BatchJob{
		service: service,
		timeout: timeout,
		log:     log.With().Str("job", "analytics_batch").Logger(),
	}
}

func (j *BatchJob) Name() string { return "analytics_batch" }

func (j *BatchJob) Run() error {
	now := time.Now().UTC()
	return j.RunAsOf(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
}

// RunAsOf runs the batch for the given calculation date. The overlap guard and
// timeout apply to manual triggers the same as to scheduled runs.
func (j *BatchJob) RunAsOf(asOf time.Time) error {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn().Msg("previous batch still running, skipping this trigger")
		return nil
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.service.RunBatch(ctx, asOf)
	if err != nil {
		return err
	}
	j.log.Info().Int("total", summary.Total).Int("completed", summary.Completed).
		Int("partial", summary.Partial).Int("failed", summary.Failed).
		Msg("nightly batch finished")
	return nil
}
