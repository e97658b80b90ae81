package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/truckdispatch/internal/app"
	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/jobs"
)

// Enqueuer is the part of asynq.Client used by the CLI.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for dispatch jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector jobs.QueueInspector
	closers   []func() error
}

// NewJobsCLI initialises the helpers against the given Redis database.
func NewJobsCLI(redisAddr string, redisDB int) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr, DB: redisDB}
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		client:    client,
		inspector: inspector,
		closers:   []func() error{inspector.Close, client.Close},
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, fn := range c.closers {
		err = errors.Join(err, fn())
	}
	return err
}

// Trigger enqueues a supported job by name. date only applies to the optimize job.
func (c *JobsCLI) Trigger(ctx context.Context, name, date string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var (
		task *asynq.Task
		opts = []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}
		err  error
	)
	switch name {
	case "optimize", jobs.TaskScheduleOptimize:
		if date != "" {
			if _, perr := delivery.ParseDate(date); perr != nil {
				return nil, perr
			}
		}
		task, err = jobs.NewScheduleOptimizeTask(date)
	case "delay-scan", jobs.TaskDeliveriesDelayScan:
		task, err = jobs.NewDelayScanTask()
		opts[1] = asynq.MaxRetry(1)
	case "cleanup", jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewIdempotencyCleanupTask(0)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// InspectQueue reports the state of the default queue.
func (c *JobsCLI) InspectQueue() (jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueHealth{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return jobs.QueueHealth{}, err
	}
	stats := jobs.QueueHealth{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
		stats.Paused = info.Paused
	}
	return stats, nil
}

type jobsFactory func() (*JobsCLI, error)

func defaultJobsFactory() (*JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewJobsCLI(cfg.RedisAddr, cfg.RedisDB), nil
}

func newJobsCommand(factory jobsFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	var date string
	trigger := &cobra.Command{
		Use:       "trigger optimize|delay-scan|cleanup",
		Short:     "Enqueue a job immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"optimize", "delay-scan", "cleanup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := factory()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0], date)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&date, "date", "", "planning day for optimize (YYYY-MM-DD, default tomorrow)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := factory()
			if err != nil {
				return err
			}
			defer c.Close()
			s, err := c.InspectQueue()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d paused=%t\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived, s.Paused)
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}
