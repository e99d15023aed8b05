package costing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sellerledger/sellerledger/internal/platform/httpx"
	"github.com/sellerledger/sellerledger/internal/shared"
)

// Handler wires HTTP endpoints for allocations and reversals.
type Handler struct {
	logger   *slog.Logger
	repo     RepositoryPort
	reverser *Reverser
	validate *validator.Validate
}

// NewHandler constructs costing handler.
func NewHandler(logger *slog.Logger, repo RepositoryPort, reverser *Reverser) *Handler {
	return &Handler{logger: logger, repo: repo, reverser: reverser, validate: validator.New()}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/allocations", h.listAllocations)
	r.Post("/reversals", h.reverse)
}

type reverseRequest struct {
	OrderRef string `json:"order_ref" validate:"required"`
	SKU      string `json:"sku" validate:"required"`
	Qty      int64  `json:"qty" validate:"gte=0"`
	Reason   string `json:"reason" validate:"required"`
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	orderRef := r.URL.Query().Get("order_ref")
	if orderRef == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "order_ref query parameter required")
		return
	}
	allocs, err := h.repo.ListAllocations(r.Context(), shared.AccountFromContext(r.Context()), orderRef)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocs)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.reverser.Reverse(r.Context(), ReverseInput{
		AccountID: shared.AccountFromContext(r.Context()),
		OrderRef:  req.OrderRef,
		SKU:       req.SKU,
		Qty:       req.Qty,
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAllocationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("costing request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
