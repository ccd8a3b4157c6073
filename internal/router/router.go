package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repairhub/api/internal/blob"
	"github.com/repairhub/api/internal/catalog"
	"github.com/repairhub/api/internal/config"
	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/handler"
	"github.com/repairhub/api/internal/logger"
	"github.com/repairhub/api/internal/mail"
	mw "github.com/repairhub/api/internal/middleware"
	"github.com/repairhub/api/internal/service"
	"github.com/repairhub/api/internal/ws"
)

// Deps are the long-lived collaborators the routes are built from.
type Deps struct {
	Config  *config.Config
	Pool    *pgxpool.Pool
	Queries *database.Queries
	Blobs   *blob.FSStore
	Catalog *catalog.Catalog
	Hub     *ws.Hub
	Mailer  mail.Mailer
	Limiter *mw.RateLimiter
}

// New creates a Chi router with all application routes wired up.
func New(d Deps) chi.Router {
	cfg := d.Config
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RealIP)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logger.RequestIDHeader},
		ExposedHeaders:   []string{logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler.NewCatalogHandler(d.Catalog).RegisterRoutes(r)

	// Uploaded images
	mediaPrefix := cfg.MediaURL
	if !strings.HasSuffix(mediaPrefix, "/") {
		mediaPrefix += "/"
	}
	r.Handle(mediaPrefix+"*", http.StripPrefix(mediaPrefix, noDirListing(http.FileServer(http.Dir(d.Blobs.Root())))))

	// Auth routes (public, rate limited)
	authHandler := handler.NewAuthHandler(d.Queries, d.Mailer, handler.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		ResetTTL:     cfg.ResetTokenTTL,
		ResetURLBase: cfg.ResetURLBase,
	})
	r.Group(func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}
		authHandler.RegisterRoutes(r)
	})

	// WebSocket route (handles auth internally via query param)
	r.Method(http.MethodGet, "/ws/orders", ws.NewHandler(d.Hub, cfg.JWTSecret, cfg.CORSOrigins))

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		authHandler.RegisterProtectedRoutes(r)

		r.Route("/users", func(r chi.Router) {
			r.Use(mw.RequireStaff)
			handler.NewUserHandler(d.Queries).RegisterRoutes(r)
		})

		newOrderStore := func(db database.DBTX) service.OrderStore {
			return database.New(db)
		}
		orderService := service.NewOrderService(d.Pool, newOrderStore, d.Blobs, d.Catalog, d.Hub)
		orderHandler := handler.NewOrderHandler(orderService, d.Blobs, d.Catalog, cfg.MaxUploadBytes())
		reportsHandler := handler.NewReportsHandler(orderService)

		r.Route("/orders", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireStaff)
				reportsHandler.RegisterRoutes(r)
			})
			orderHandler.RegisterRoutes(r)
		})
	})

	logger.L().Info("router initialized")
	return r
}

// noDirListing hides directory indexes from the media file server.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
