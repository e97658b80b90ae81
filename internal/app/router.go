package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/fleet"
	"github.com/odyssey-erp/truckdispatch/internal/observability"
	"github.com/odyssey-erp/truckdispatch/internal/order"
	"github.com/odyssey-erp/truckdispatch/internal/schedule"
	"github.com/odyssey-erp/truckdispatch/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	DeliveryHandler *delivery.Handler
	OrderHandler    *order.Handler
	FleetHandler    *fleet.Handler
	ScheduleHandler *schedule.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with dispatch defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.DeliveryHandler != nil {
		params.DeliveryHandler.MountRoutes(r)
	}
	if params.OrderHandler != nil {
		params.OrderHandler.MountRoutes(r)
	}
	if params.FleetHandler != nil {
		params.FleetHandler.MountRoutes(r)
	}
	if params.ScheduleHandler != nil {
		params.ScheduleHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
