// Package httpapi exposes the operator endpoints over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"time"

	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	"squad_recommender/internal/infra/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// AdminTokenHeader carries the operator token when one is configured.
const AdminTokenHeader = "X-Admin-Token"

// ScopeStore reads scopes and stores their settings.
type ScopeStore interface {
	GetScope(ctx context.Context, teamID int64, squadID sql.NullInt64) (*squad.Scope, error)
	SaveSettings(ctx context.Context, scope *squad.Scope) error
}

// ManualCreator creates an on-demand batch for a scope.
type ManualCreator interface {
	CreateManual(ctx context.Context, scope *squad.Scope) (*mission.Batch, error)
}

// DeliveryStatusReader lists the member deliveries of a batch.
type DeliveryStatusReader interface {
	StatusForBatch(ctx context.Context, batchID int64) ([]*mission.MemberDelivery, error)
}

// SolveMarker records that a member solved a problem.
type SolveMarker interface {
	MarkSolved(ctx context.Context, recordID int64, solvedAt time.Time) (*mission.ProblemRecord, error)
}

// Handler serves the operator API.
type Handler struct {
	scopes     ScopeStore
	manual     ManualCreator
	deliveries DeliveryStatusReader
	solves     SolveMarker
	adminToken string
	trustProxy bool
	logger     *logrus.Entry
}

func NewHandler(
	scopes ScopeStore,
	manual ManualCreator,
	deliveries DeliveryStatusReader,
	solves SolveMarker,
	adminToken string,
	trustProxy bool,
	logger *logrus.Entry,
) *Handler {
	return &Handler{
		scopes:     scopes,
		manual:     manual,
		deliveries: deliveries,
		solves:     solves,
		adminToken: adminToken,
		trustProxy: trustProxy,
		logger:     logger.WithField("component", "http_api"),
	}
}

// Router builds the chi routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	// Forwarded headers are client-controlled unless a proxy rewrites them, and
	// the rate-limit actor is keyed on the remote address.
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdminToken)
		r.Use(withActor)

		r.Route("/teams/{teamID}", func(r chi.Router) {
			r.Get("/settings", h.handleGetSettings)
			r.Put("/settings", h.handlePutSettings)
			r.Post("/recommendations", h.handleCreateRecommendation)

			r.Route("/squads/{squadID}", func(r chi.Router) {
				r.Get("/settings", h.handleGetSettings)
				r.Put("/settings", h.handlePutSettings)
				r.Post("/recommendations", h.handleCreateRecommendation)
			})
		})

		r.Get("/batches/{batchID}/deliveries", h.handleListDeliveries)
		r.Post("/problem-records/{recordID}/solved", h.handleMarkSolved)
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request served")
	})
}

// requireAdminToken is a no-op when no token is configured.
func (h *Handler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken != "" {
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid admin token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withActor counts catalog calls made for this request against the client address.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ratelimit.WithActor(r.Context(), RequestActor(r))))
	})
}

// RequestActor names the rate-limit actor for an HTTP request.
func RequestActor(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "http:" + host
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
