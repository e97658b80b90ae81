package fleet

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/httpx"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// Handler exposes the truck register over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: delivery.NewValidator()}
}

// MountRoutes registers truck routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/trucks", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Group(func(r chi.Router) {
			r.Use(httpx.RequireActor)
			r.Post("/", h.create)
			r.Patch("/{id}", h.update)
			r.Delete("/{id}", h.delete)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	pg := shared.NewPagination(page, perPage, 0)

	items, total, err := h.service.List(r.Context(), ListFilter{Limit: pg.PerPage, Offset: pg.Offset()})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := ListResponse{
		Items:      make([]TruckResponse, 0, len(items)),
		Pagination: shared.NewPagination(pg.Page, pg.PerPage, total),
	}
	for _, t := range items {
		resp.Items = append(resp.Items, toResponse(t))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*t))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateTruckRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.Create(r.Context(), TruckInput{
		PlateNumber: &req.PlateNumber,
		Capacity:    req.Capacity,
		DriverName:  req.DriverName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/trucks/"+t.ID.String())
	httpx.JSON(w, http.StatusCreated, toResponse(*t))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateTruckRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.Update(r.Context(), id, TruckInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*t))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, delivery.ValidationError(err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isBusinessError(err) {
		h.logger.Error("fleet request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}
