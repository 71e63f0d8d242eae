package planning

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/requisition"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SweepEnqueuer submits a sweep to the background worker.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context, trigger string) error
}

// Handler manages planning endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer SweepEnqueuer
}

// NewHandler builds a Handler instance. enqueuer may be nil, in which case
// sweeps run inline.
func NewHandler(logger *slog.Logger, service *Service, enqueuer SweepEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers planning routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/assemblies/{id}/analysis", h.handleAnalyze)
	r.Post("/orders/{id}/recalculate", h.handleRecalculate)
	r.Post("/orders/{id}/requisitions", h.handleBatchGenerate)
	r.Post("/requirements/{id}/requisition", h.handleGenerate)
	r.Post("/sweep", h.handleSweep)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid assembly id")
		return
	}
	analysis, err := h.service.AnalyzeAssembly(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "analyze assembly", err)
		return
	}
	httpx.JSON(w, http.StatusOK, analysis)
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r, shared.PermPlanningRun); !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sales order id")
		return
	}
	requirements, err := h.service.RecalculateStockRequirements(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "recalculate requirements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requirements": requirements})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r, shared.PermRequisitionCreate)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid requirement id")
		return
	}
	result, err := h.service.GenerateForRequirement(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, "generate requisition", err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) handleBatchGenerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r, shared.PermRequisitionCreate)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sales order id")
		return
	}
	result, err := h.service.BatchGenerateRequisitions(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, "batch generate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r, shared.PermPlanningRun)
	if !ok {
		return
	}
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueSweep(r.Context(), "manual"); err != nil {
			h.logger.Error("enqueue sweep", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "could not enqueue sweep")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
		return
	}
	report, err := h.service.RunFullSweep(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, "run sweep", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request, permission string) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return shared.Actor{}, false
	}
	if !actor.Can(permission) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+permission)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, requisition.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, catalog.ErrCyclicBOM):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cyclic BOM", err.Error())
	case errors.Is(err, requisition.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
