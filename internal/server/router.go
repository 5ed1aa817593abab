package server

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/uptrace/bun"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
	"github.com/Ignatius32/keycloak-auth-template/internal/keycloak"
	authmw "github.com/Ignatius32/keycloak-auth-template/internal/middleware"
	"github.com/Ignatius32/keycloak-auth-template/internal/repository"
)

// RouterOptions bundles the collaborators the HTTP surface depends on.
// Everything arrives by injection; handlers hold no package-level state.
type RouterOptions struct {
	IdP      keycloak.IdentityProvider
	Profiles repository.ProfileRepository
	Tokens   *auth.TokenIssuer

	// DB backs the health check ping. Optional; when nil the health
	// endpoint reports the database as unconfigured.
	DB *bun.DB

	// CORSAllowedOrigins overrides the development origin list.
	CORSAllowedOrigins []string
}

// DefaultCORSOrigins returns the development origins browsers call from.
func DefaultCORSOrigins() []string {
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
	}
}

// NewRouter assembles the chi router with shared middleware, CORS policy,
// and all handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins()
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public surface.
	r.Get("/", HandleRoot())
	r.Get("/health", HandleHealth(opts.DB))
	r.Post("/auth/login", HandleLogin(opts.IdP, opts.Tokens))
	r.Post("/auth/register", HandleRegister(opts.IdP))
	r.Post("/auth/password-reset", HandlePasswordReset(opts.IdP))

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(authmw.Authenticator(opts.Tokens))

		r.Post("/auth/change-password", HandleChangePassword(opts.IdP))
		r.Get("/auth/me", HandleMe())
		r.Get("/auth/me/roles", HandleMyRoles())
		r.Get("/auth/status", HandleStatus(opts.Profiles))

		r.Get("/users/me", HandleGetMyProfile(opts.Profiles))
		r.Post("/users/me", HandleCreateMyProfile(opts.Profiles))
		r.Put("/users/me", HandleUpdateMyProfile(opts.Profiles))

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole("admin", "moderator"))
			r.Get("/moderator/content", HandleModerationQueue())
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequirePermission("users:manage"))
			r.Get("/admin/users", HandleListProfiles(opts.Profiles))
		})
	})

	return r
}

// HandleRoot returns the service banner.
func HandleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "keycloak-auth-api",
			"status":  "running",
		})
	}
}

// HandleHealth reports service liveness and database reachability.
func HandleHealth(db *bun.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := "unconfigured"
		status := "ok"
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				log.Printf("WARNING: health check database ping: %v", err)
				database = "unreachable"
				status = "degraded"
			} else {
				database = "ok"
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   status,
			"database": database,
		})
	}
}
