package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/truckdispatch/internal/jobs"
	"github.com/odyssey-erp/truckdispatch/internal/schedule"
	_ "github.com/odyssey-erp/truckdispatch/testing"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeProposer struct {
	dates []time.Time
	err   error
}

func (f *fakeProposer) Propose(_ context.Context, date time.Time) (*schedule.Proposal, error) {
	f.dates = append(f.dates, date)
	if f.err != nil {
		return nil, f.err
	}
	return &schedule.Proposal{Date: date.Format("2006-01-02"), Fingerprint: "0123456789abcdef"}, nil
}

func (f *fakeProposer) NextDay() time.Time {
	return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
}

func TestScheduleOptimizeUsesPayloadDate(t *testing.T) {
	p := &fakeProposer{}
	job := NewScheduleOptimizeJob(p, quietLogger, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewScheduleOptimizeTask("2026-03-14")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = NewScheduleOptimizeTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, p.dates, 2)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), p.dates[0])
	assert.Equal(t, p.NextDay(), p.dates[1])
}

func TestScheduleOptimizeRejectsBadPayloads(t *testing.T) {
	p := &fakeProposer{}
	job := NewScheduleOptimizeJob(p, quietLogger, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskScheduleOptimize, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewScheduleOptimizeTask("14/03/2026")
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
	assert.Empty(t, p.dates)
}

func TestScheduleOptimizeReturnsPlannerErrors(t *testing.T) {
	boom := errors.New("database unavailable")
	job := NewScheduleOptimizeJob(&fakeProposer{err: boom}, quietLogger, nil)
	task, err := NewScheduleOptimizeTask("")
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

type fakeFlagger struct {
	flagged int
	err     error
	calls   int
}

func (f *fakeFlagger) FlagDelayed(context.Context) (int, error) {
	f.calls++
	return f.flagged, f.err
}

func TestDelayScan(t *testing.T) {
	f := &fakeFlagger{flagged: 3}
	job := NewDelayScanJob(f, quietLogger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewDelayScanTask()
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, f.calls)

	f.err = errors.New("lock timeout")
	assert.Error(t, job.Handle(context.Background(), task))

	var unconfigured *DelayScanJob
	assert.Error(t, unconfigured.Handle(context.Background(), task))
}

type fakePurger struct {
	retention time.Duration
}

func (f *fakePurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return 2, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	store := &fakePurger{}
	job := NewIdempotencyCleanupJob(store, quietLogger, nil)

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 24*time.Hour, store.retention)

	task, err = NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, defaultIdempotencyRetention, store.retention)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1}}, http.StatusOK, 4},
		{"redis down", fakeInspector{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, quietLogger).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var health QueueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
			assert.Equal(t, QueueDefault, health.Queue)
			assert.Equal(t, tc.pending, health.Pending)
		})
	}
}
