package requisition

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages purchase requisition endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/convert", h.handleConvert)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Status:     q.Get("status"),
		SourceType: q.Get("source_type"),
	}
	if raw := q.Get("item_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item_id")
			return
		}
		filters.ItemID = id
	}
	if raw := q.Get("source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid source_id")
			return
		}
		filters.SourceID = id
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	items, total, err := h.service.List(r.Context(), filters, perPage, (page-1)*perPage)
	if err != nil {
		h.respondError(w, r, "list requisitions", err)
		return
	}
	pagination := shared.NewPagination(page, perPage, total)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requisitions": items,
		"total":        pagination.Total,
		"page":         pagination.Page,
		"per_page":     pagination.PerPage,
		"total_pages":  pagination.TotalPages,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r, shared.PermRequisitionApprove)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Approve(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, "approve requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r, shared.PermRequisitionApprove)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reason is required")
		return
	}
	req, err := h.service.Reject(r.Context(), id, actor, body.Reason)
	if err != nil {
		h.respondError(w, r, "reject requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r, shared.PermRequisitionConvert)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Convert(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, "convert requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid requisition id")
		return 0, false
	}
	return id, true
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
	var transition *InvalidTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientAuthority):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.As(err, &transition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", transition.Error())
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
