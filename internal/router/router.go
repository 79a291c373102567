package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"curriculum-planner/internal/handlers"
	"curriculum-planner/internal/middleware"
	"curriculum-planner/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authLimiter *middleware.RateLimiter,
	authHandler *handlers.AuthHandler,
	subjectHandler *handlers.SubjectHandler,
	plannerHandler *handlers.PlannerHandler,
	wsHub *websocket.Hub,
	health func(ctx context.Context) error,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public, rate limited) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Subject & Planner Routes ────
		r.Route("/subjects", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", subjectHandler.Create)
			r.Get("/", subjectHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subjectHandler.Get)
				r.Post("/editors", subjectHandler.AddEditor)

				r.Get("/timeline", plannerHandler.Timeline)
				r.Get("/progress", plannerHandler.Progress)
				r.Put("/calendar", plannerHandler.UpdateCalendar)

				r.Put("/units", plannerHandler.ReplaceUnits)
				r.Post("/units", plannerHandler.AddUnit)
				r.Post("/units/move", plannerHandler.MoveUnit)
				r.Patch("/units/{unit}", plannerHandler.RenameUnit)
				r.Delete("/units/{unit}", plannerHandler.RemoveUnit)

				r.Post("/units/{unit}/activities", plannerHandler.AddActivity)
				r.Put("/units/{unit}/activities/{idx}", plannerHandler.UpdateActivity)
				r.Delete("/units/{unit}/activities/{idx}", plannerHandler.RemoveActivity)
				r.Post("/activities/move", plannerHandler.MoveActivity)
			})
		})

		// ──── Stateless Preview ────
		r.Route("/timeline", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/preview", plannerHandler.Preview)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
