package schedule

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/httpx"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// IdempotencyHeader carries the client-chosen key for apply requests.
const IdempotencyHeader = "Idempotency-Key"

// ApplyRequest is the body of POST /schedule/apply.
type ApplyRequest struct {
	Date          string `json:"date" validate:"required,date"`
	ScheduledTime string `json:"scheduled_time" validate:"omitempty,timeofday"`
	Destination   string `json:"destination" validate:"max=255"`
	Fingerprint   string `json:"fingerprint" validate:"omitempty,hexadecimal,len=16"`
}

// Handler exposes the planner over JSON.
type Handler struct {
	logger    *slog.Logger
	planner   *Planner
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, planner *Planner) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, planner: planner, validator: delivery.NewValidator()}
}

// MountRoutes registers schedule routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/schedule", func(r chi.Router) {
		r.Get("/deliveries", h.propose)
		r.With(httpx.RequireActor).Post("/apply", h.apply)
	})
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	date := h.planner.NextDay()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := delivery.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		date = parsed
	}
	proposal, err := h.planner.Propose(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposal)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, delivery.ValidationError(err))
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyHeader))

	result, err := h.planner.Apply(r.Context(), in, shared.ActorRef(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created > 0 {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, result)
}

func (req ApplyRequest) toInput() (ApplyInput, error) {
	date, err := delivery.ParseDate(req.Date)
	if err != nil {
		return ApplyInput{}, err
	}
	in := ApplyInput{
		Date:        date,
		Destination: strings.TrimSpace(req.Destination),
		Fingerprint: req.Fingerprint,
	}
	if req.ScheduledTime != "" {
		t, err := delivery.ParseTimeOfDay(req.ScheduledTime)
		if err != nil {
			return ApplyInput{}, err
		}
		in.ScheduledTime = &t
	}
	return in, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isBusinessError(err) && !errors.Is(err, shared.ErrUnauthorized) {
		h.logger.Error("schedule request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}
