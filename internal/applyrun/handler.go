package applyrun

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/platform/httpx"
	"github.com/sellerledger/sellerledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for apply runs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs apply-run handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers apply-run routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/apply", h.apply)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/runs/{id}/items", h.listItems)
	r.Get("/runs/{id}/export.csv", h.exportCSV)
}

type applyRequest struct {
	FromDate string `json:"from_date" validate:"required"`
	ToDate   string `json:"to_date" validate:"required"`
	Method   string `json:"method" validate:"required,oneof=FIFO AVG"`
}

type applyResponse struct {
	Run   ApplyRun       `json:"run"`
	Items []ApplyRunItem `json:"items"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	from, err := time.ParseInLocation(dateLayout, req.FromDate, time.UTC)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from_date must be YYYY-MM-DD")
		return
	}
	to, err := time.ParseInLocation(dateLayout, req.ToDate, time.UTC)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to_date must be YYYY-MM-DD")
		return
	}

	run, items, err := h.service.ApplyCOGS(r.Context(), ApplyInput{
		AccountID: shared.AccountFromContext(r.Context()),
		FromDate:  from,
		ToDate:    to,
		Method:    costing.Method(req.Method),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, applyResponse{Run: run, Items: items})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return
	}
	run, err := h.service.GetRun(r.Context(), shared.AccountFromContext(r.Context()), runID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return
	}
	items, err := h.service.ListRunItems(r.Context(), shared.AccountFromContext(r.Context()), runID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return
	}
	items, err := h.service.ListRunItems(r.Context(), shared.AccountFromContext(r.Context()), runID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=apply-run-%s.csv", runID))
	if err := WriteRunItemsCSV(w, items); err != nil {
		h.logger.Error("csv export failed", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrRunInProgress):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidRange), errors.Is(err, costing.ErrUnknownMethod):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("apply run request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
