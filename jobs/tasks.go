package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskScheduleOptimize computes the next day's proposal and warms the cache.
	TaskScheduleOptimize = "schedule:optimize"
	// TaskDeliveriesDelayScan flags active deliveries whose slot has passed.
	TaskDeliveriesDelayScan = "deliveries:delay-scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ScheduleOptimizePayload selects the planning day. An empty date means the
// day after the task runs, in the dispatch time zone.
type ScheduleOptimizePayload struct {
	Date string `json:"date,omitempty"`
}

// DelayScanPayload carries no parameters; the scan always uses the current time.
type DelayScanPayload struct{}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewScheduleOptimizeTask constructs a schedule optimize task.
func NewScheduleOptimizeTask(date string) (*asynq.Task, error) {
	return newTask(TaskScheduleOptimize, ScheduleOptimizePayload{Date: date})
}

// NewDelayScanTask constructs a delay scan task.
func NewDelayScanTask() (*asynq.Task, error) {
	return newTask(TaskDeliveriesDelayScan, DelayScanPayload{})
}

// NewIdempotencyCleanupTask constructs a cleanup task keeping keys for retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}
