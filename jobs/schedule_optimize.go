package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	jobmetrics "github.com/odyssey-erp/truckdispatch/internal/jobs"
	"github.com/odyssey-erp/truckdispatch/internal/schedule"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Proposer computes schedule proposals.
type Proposer interface {
	Propose(ctx context.Context, date time.Time) (*schedule.Proposal, error)
	NextDay() time.Time
}

// ScheduleOptimizeJob precomputes the proposal for a day so planners get a
// cached answer.
type ScheduleOptimizeJob struct {
	Planner Proposer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewScheduleOptimizeJob wires dependencies for the optimize handler.
func NewScheduleOptimizeJob(planner Proposer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScheduleOptimizeJob {
	return &ScheduleOptimizeJob{Planner: planner, Logger: logger, Metrics: metrics}
}

// Handle processes TaskScheduleOptimize tasks.
func (j *ScheduleOptimizeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Planner == nil {
		return errors.New("schedule optimize: handler not configured")
	}
	var payload ScheduleOptimizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date := j.Planner.NextDay()
	if payload.Date != "" {
		parsed, err := delivery.ParseDate(payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		date = parsed
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskScheduleOptimize)
	logger := loggerOrDefault(j.Logger).With(
		slog.String("job", TaskScheduleOptimize),
		slog.String("date", delivery.FormatDate(date)),
	)

	proposal, err := j.Planner.Propose(ctx, date)
	if err != nil {
		logger.Error("schedule optimize failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("schedule proposal ready",
		slog.Int("trips", len(proposal.Trips)),
		slog.Int("unassigned", len(proposal.Unassigned)),
		slog.Bool("optimal", proposal.Optimal),
		slog.String("fingerprint", proposal.Fingerprint),
	)
	return tracker.End(nil)
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
