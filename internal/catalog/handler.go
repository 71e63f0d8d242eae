package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes read-only catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{id}", h.handleGetItem)
	r.Get("/assemblies", h.handleListAssemblies)
	r.Get("/assemblies/{id}/components", h.handleComponents)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleListAssemblies(w http.ResponseWriter, r *http.Request) {
	assemblies, err := h.service.ListAssemblies(r.Context())
	if err != nil {
		h.respondError(w, r, "list assemblies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assemblies": assemblies})
}

func (h *Handler) handleComponents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid assembly id")
		return
	}
	components, err := h.service.AssemblyComponents(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "list components", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"components": components})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCyclicBOM):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cyclic BOM", err.Error())
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
