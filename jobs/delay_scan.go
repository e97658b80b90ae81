package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/truckdispatch/internal/jobs"
)

// DelayFlagger marks overdue deliveries.
type DelayFlagger interface {
	FlagDelayed(ctx context.Context) (int, error)
}

// DelayScanJob flags active deliveries whose scheduled slot is in the past.
type DelayScanJob struct {
	Deliveries DelayFlagger
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewDelayScanJob wires dependencies for the delay scan handler.
func NewDelayScanJob(deliveries DelayFlagger, logger *slog.Logger, metrics *jobmetrics.Metrics) *DelayScanJob {
	return &DelayScanJob{Deliveries: deliveries, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDeliveriesDelayScan tasks.
func (j *DelayScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Deliveries == nil {
		return errors.New("delay scan: handler not configured")
	}
	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskDeliveriesDelayScan)
	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskDeliveriesDelayScan))

	flagged, err := j.Deliveries.FlagDelayed(ctx)
	metrics.AddItems(TaskDeliveriesDelayScan, flagged)
	if err != nil {
		logger.Error("delay scan failed", slog.Int("flagged", flagged), slog.Any("error", err))
		return tracker.End(err)
	}
	if flagged > 0 {
		logger.Warn("deliveries flagged as delayed", slog.Int("flagged", flagged))
	} else {
		logger.Debug("no overdue deliveries")
	}
	return tracker.End(nil)
}
