package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/planning"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SweepJob runs the full-catalog planning sweep from the worker.
type SweepJob struct {
	Planner *planning.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSweepJob initialises the sweep handler.
func NewSweepJob(planner *planning.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		Planner: planner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep. The whole run commits or rolls back as one unit,
// so Asynq retries are always safe.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Planner == nil {
		return errors.New("planning sweep: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Trigger == "" {
		payload.Trigger = "schedule"
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPlanningSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	logger.Info("starting planning sweep")

	report, err := j.Planner.RunFullSweep(ctx, shared.System())
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}

	for _, created := range report.Created {
		logger.Info("requisition opened",
			slog.Int64("item_id", created.ItemID),
			slog.String("number", created.Number),
			slog.Int64("quantity", created.Quantity),
			slog.String("urgency", string(created.Urgency)),
		)
		j.metrics().AddShortages(string(created.Urgency), created.ItemID, 1)
	}
	for _, id := range report.SkippedCyclic {
		logger.Warn("skipped cyclic assembly", slog.Int64("assembly_id", id))
	}

	logger.Info("completed planning sweep",
		slog.Int("assemblies_scanned", report.AssembliesScanned),
		slog.Int("shortages_found", report.ShortagesFound),
		slog.Int("created", len(report.Created)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *SweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
