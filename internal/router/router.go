// internal/router/router.go
package router

import (
	"net/http"
	"time"

	hrest "github.com/Elmahrosa/Teos-Bankchain/internal/handler/rest"
	"github.com/Elmahrosa/Teos-Bankchain/shared/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func SetupRoutes(
	h *hrest.BankchainRestHandler,
	metricsHandler http.Handler,
	rateLimit func(http.Handler) http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if rateLimit != nil {
			r.Use(rateLimit)
		}

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.SubmitTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
			r.Get("/{id}/settlement", h.GetTransactionSettlement)
		})

		r.Get("/approvals/pending", h.ListPendingApprovals)

		// rail callbacks drive settlement progress
		r.Route("/settlements/{id}", func(r chi.Router) {
			r.Get("/", h.GetSettlement)
			r.Get("/entries", h.ListSettlementEntries)
			r.Post("/processing", h.MarkProcessing)
			r.Post("/settled", h.MarkSettled)
			r.Post("/failed", h.MarkFailed)
			r.Post("/reconcile", h.Reconcile)
		})

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/balance", h.GetAccountBalance)
			r.Get("/entries", h.ListAccountEntries)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
