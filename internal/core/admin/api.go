// Package admin implements the REST API for rule management, version
// inspection and ad-hoc scoring.
package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/medaudit/internal/core/compliance"
	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/types"
)

// RuleService manages rules.
type RuleService interface {
	List(ctx context.Context, provider string) ([]types.Rule, error)
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
	Create(ctx context.Context, r types.Rule, cc types.ChangeContext) (*compliance.MutationResult, error)
	Update(ctx context.Context, id types.RuleID, patch types.RulePatch, cc types.ChangeContext) (*compliance.MutationResult, error)
	SetActive(ctx context.Context, id types.RuleID, active bool, cc types.ChangeContext) (*compliance.MutationResult, error)
	Delete(ctx context.Context, id types.RuleID, cc types.ChangeContext) (*compliance.MutationResult, error)
}

// ScoreService scores documents.
type ScoreService interface {
	Score(ctx context.Context, doc types.Document) (*types.ScoringResult, error)
	Recalculate(ctx context.Context, doc types.Document, previousScore int) (*types.ScoringResult, error)
	Staleness(ctx context.Context, versionID types.VersionID) (*types.VersionCheck, error)
}

// VersionService reads rule-set versions and the change log.
type VersionService interface {
	Current(ctx context.Context) (*types.RuleVersion, error)
	GetByID(ctx context.Context, id types.VersionID) (*types.RuleVersion, error)
	ListChangesBetween(ctx context.Context, from, to int) ([]types.RuleChangeLogEntry, error)
	RecentChangeLog(ctx context.Context, limit int) ([]types.RuleChangeLogEntry, error)
}

// API holds dependencies and the router for the admin server.
type API struct {
	// Router is the chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	rules    RuleService
	scorer   ScoreService
	versions VersionService
	limiter  *RateLimiter
	log      logger.Logger
}

// NewAPI creates the admin API. A nil limiter disables rate limiting.
// Panics if a service is nil.
func NewAPI(rules RuleService, scorer ScoreService, versions VersionService, limiter *RateLimiter, log logger.Logger) *API {
	if rules == nil || scorer == nil || versions == nil {
		panic("admin: services cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}

	a := &API{
		Router:   chi.NewRouter(),
		rules:    rules,
		scorer:   scorer,
		versions: versions,
		limiter:  limiter,
		log:      log,
	}
	a.configureRoutes()
	return a
}

// configureRoutes registers the middleware stack and endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger(a.log))
	a.Router.Use(middleware.Recoverer)

	// Public routes
	a.Router.Get("/health", a.handleHealthCheck)
	a.Router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	a.Router.Route("/api/v1", func(r chi.Router) {
		if a.limiter != nil {
			r.Use(a.limiter.Middleware)
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", a.handleListRules)
			r.Post("/", a.handleCreateRule)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetRule)
				r.Patch("/", a.handleUpdateRule)
				r.Delete("/", a.handleDeleteRule)
				r.Post("/activate", a.handleSetActive(true))
				r.Post("/deactivate", a.handleSetActive(false))
			})
		})

		r.Route("/rule-versions", func(r chi.Router) {
			r.Get("/current", a.handleCurrentVersion)
			r.Get("/{id}", a.handleGetVersion)
			r.Get("/{id}/check", a.handleCheckVersion)
		})
		r.Get("/rule-changes", a.handleListChanges)

		r.Post("/score", a.handleScore)
		r.Post("/score/recalculate", a.handleRecalculate)
	})
}

// handleHealthCheck reports liveness and the current rule version.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if v, err := a.versions.Current(r.Context()); err == nil {
		resp["ruleVersion"] = v.VersionNumber
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}
