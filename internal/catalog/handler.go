package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sellerledger/sellerledger/internal/platform/httpx"
	"github.com/sellerledger/sellerledger/internal/shared"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.createItem)
	r.Get("/items", h.listItems)
	r.Get("/items/{sku}", h.getItem)
	r.Patch("/items/{sku}", h.updateItem)
	r.Post("/items/{sku}/rename", h.renameItem)
	r.Get("/bundles/{sku}/components", h.listComponents)
	r.Put("/bundles/{sku}/components", h.setComponent)
	r.Delete("/bundles/{sku}/components/{component}", h.removeComponent)
}

type itemRequest struct {
	SKU          string `json:"sku" validate:"required"`
	Name         string `json:"name" validate:"required"`
	BaseUnitCost string `json:"base_unit_cost"`
	IsBundle     bool   `json:"is_bundle"`
	IsActive     *bool  `json:"is_active"`
}

type renameRequest struct {
	NewSKU string `json:"new_sku" validate:"required"`
}

type componentRequest struct {
	ComponentSKU string `json:"component_sku" validate:"required"`
	QtyPerBundle int64  `json:"qty_per_bundle" validate:"required,gt=0"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cost, err := parseCost(req.BaseUnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid base_unit_cost")
		return
	}
	item, err := h.service.CreateItem(r.Context(), Item{
		AccountID:    shared.AccountFromContext(r.Context()),
		SKU:          req.SKU,
		Name:         req.Name,
		BaseUnitCost: cost,
		IsBundle:     req.IsBundle,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context(), shared.AccountFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), shared.AccountFromContext(r.Context()), chi.URLParam(r, "sku"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	accountID := shared.AccountFromContext(r.Context())
	sku := chi.URLParam(r, "sku")
	current, err := h.service.GetItem(r.Context(), accountID, sku)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if req.Name != "" {
		current.Name = req.Name
	}
	if req.BaseUnitCost != "" {
		cost, err := parseCost(req.BaseUnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid base_unit_cost")
			return
		}
		current.BaseUnitCost = cost
	}
	if req.IsActive != nil {
		current.IsActive = *req.IsActive
	}
	if err := h.service.UpdateItem(r.Context(), current); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, current)
}

func (h *Handler) renameItem(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID := shared.AccountFromContext(r.Context())
	oldSKU := chi.URLParam(r, "sku")
	if err := h.service.RenameSKU(r.Context(), accountID, oldSKU, req.NewSKU); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"old_sku": oldSKU, "new_sku": req.NewSKU})
}

func (h *Handler) listComponents(w http.ResponseWriter, r *http.Request) {
	comps, err := h.service.ListComponents(r.Context(), shared.AccountFromContext(r.Context()), chi.URLParam(r, "sku"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comps)
}

func (h *Handler) setComponent(w http.ResponseWriter, r *http.Request) {
	var req componentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.SetComponent(r.Context(), BundleComponent{
		AccountID:    shared.AccountFromContext(r.Context()),
		BundleSKU:    chi.URLParam(r, "sku"),
		ComponentSKU: req.ComponentSKU,
		QtyPerBundle: req.QtyPerBundle,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) removeComponent(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveComponent(r.Context(), shared.AccountFromContext(r.Context()),
		chi.URLParam(r, "sku"), chi.URLParam(r, "component"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSKU):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrSelfReference), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrBundleEmpty):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseCost(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
