package snapshot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sellerledger/sellerledger/internal/platform/httpx"
	"github.com/sellerledger/sellerledger/internal/shared"
)

// Handler exposes read access to cost snapshots.
type Handler struct {
	logger *slog.Logger
	repo   RepositoryPort
}

// NewHandler constructs snapshot handler.
func NewHandler(logger *slog.Logger, repo RepositoryPort) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers snapshot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.latest)
}

// latest returns the newest snapshot at or before as_of (default today).
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	if sku == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "sku query parameter required")
		return
	}
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	snap, ok, err := h.repo.Latest(r.Context(), shared.AccountFromContext(r.Context()), sku, asOf)
	if err != nil {
		h.logger.Error("snapshot lookup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no snapshot for sku")
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}
