package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router with all relay endpoints.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	if !a.Config.Server.DevMode {
		r.Use(SecurityHeadersMiddleware())
	}

	r.Get("/auth", a.handleAuth)
	r.Get("/callback", a.handleCallback)
	r.Post("/token-exchange", a.handleTokenExchange)
	r.Get("/auth-proxy", a.handleAuthProxy)

	if a.Config.Server.DevMode {
		r.Get("/dev/token", a.handleDevToken)
	}

	return r
}
