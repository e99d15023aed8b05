package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sellerledger/sellerledger/internal/applyrun"
	"github.com/sellerledger/sellerledger/internal/catalog"
	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/ledger"
	"github.com/sellerledger/sellerledger/internal/snapshot"
	"github.com/sellerledger/sellerledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CatalogHandler  *catalog.Handler
	LedgerHandler   *ledger.Handler
	CostingHandler  *costing.Handler
	SnapshotHandler *snapshot.Handler
	ApplyRunHandler *applyrun.Handler
	JobsHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with sellerledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(AccountMiddleware(params.Logger))
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
		r.Route("/snapshots", params.SnapshotHandler.MountRoutes)
		r.Route("/cogs", func(r chi.Router) {
			params.ApplyRunHandler.MountRoutes(r)
			params.CostingHandler.MountRoutes(r)
		})
	})

	return r
}
