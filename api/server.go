/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. hlog:       Structured access log (zerolog), tagged with the request id
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/v1/users, /api/v1/sessions   Public
  /api/v1/profile                   Bearer token
  /api/v1/statements/*              Bearer token
  /health                           Public, pings the store

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: RequireAuth
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(h.log))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", h.CreateUser)
		r.Post("/sessions", h.CreateSession)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/profile", h.ShowProfile)

			r.Route("/statements", func(r chi.Router) {
				r.Post("/", h.CreateStatement)
				r.Get("/balance", h.GetBalance)
				r.Post("/deposit", h.Deposit)
				r.Post("/withdraw", h.Withdraw)
				r.Post("/transfers/{user_id}", h.Transfer)
				r.Get("/{statement_id}", h.GetStatement)
			})
		})
	})

	return r
}

// requestIDLogger tags the request's logger with chi's request id.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	var ev *zerolog.Event
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	} else {
		ev = hlog.FromRequest(r).Info()
	}
	ev.Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
