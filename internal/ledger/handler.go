package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sellerledger/sellerledger/internal/platform/httpx"
	"github.com/sellerledger/sellerledger/internal/shared"
)

// Handler wires HTTP endpoints for the receipt ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.stockIn)
	r.Get("/layers", h.listLayers)
	r.Get("/layers/{id}", h.getLayer)
	r.Post("/layers/{id}/void", h.voidLayer)
}

type stockInLineRequest struct {
	SKU        string `json:"sku" validate:"required"`
	Qty        int64  `json:"qty" validate:"required,gt=0"`
	UnitCost   string `json:"unit_cost" validate:"required"`
	SourceKind string `json:"source_kind" validate:"required"`
	SourceRef  string `json:"source_ref"`
}

type stockInRequest struct {
	Reference  string               `json:"reference"`
	Supplier   string               `json:"supplier"`
	ReceivedAt time.Time            `json:"received_at"`
	Note       string               `json:"note"`
	Lines      []stockInLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) stockIn(w http.ResponseWriter, r *http.Request) {
	var req stockInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := StockInInput{
		AccountID:  shared.AccountFromContext(r.Context()),
		Reference:  req.Reference,
		Supplier:   req.Supplier,
		ReceivedAt: req.ReceivedAt,
		Note:       req.Note,
		Actor:      shared.ActorFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		cost, err := decimal.NewFromString(line.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_cost")
			return
		}
		input.Lines = append(input.Lines, StockInLine{
			SKU:        line.SKU,
			Qty:        line.Qty,
			UnitCost:   cost,
			SourceKind: SourceKind(line.SourceKind),
			SourceRef:  line.SourceRef,
		})
	}
	result, err := h.service.StockIn(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listLayers(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	includeVoided := r.URL.Query().Get("include_voided") == "true"
	layers, err := h.service.ListLayers(r.Context(), shared.AccountFromContext(r.Context()), sku, includeVoided)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, layers)
}

func (h *Handler) getLayer(w http.ResponseWriter, r *http.Request) {
	layerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid layer id")
		return
	}
	layer, err := h.service.GetLayer(r.Context(), shared.AccountFromContext(r.Context()), layerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, layer)
}

func (h *Handler) voidLayer(w http.ResponseWriter, r *http.Request) {
	layerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid layer id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.VoidLayer(r.Context(), shared.AccountFromContext(r.Context()), layerID, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLayerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrVoidGuard), errors.Is(err, ErrAlreadyVoided):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
