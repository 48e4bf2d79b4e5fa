// Package http exposes the rental lifecycle as a JSON API. Handlers stay
// thin: decode, delegate to the service layer, map errors onto statuses.
package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"gpurental-backend/internal/external"
	"gpurental-backend/internal/security"
	"gpurental-backend/internal/service"
)

// RouterConfig bundles the router's collaborators.
type RouterConfig struct {
	Rentals service.RentalService
	Catalog service.CatalogService
	Wallet  external.Wallet
	Tokens  security.TokenManager

	RequestsPerSecond float64
	Burst             int
}

// NewRouter wires all routes. Catalog browsing and session creation are
// public; everything touching a rental requires a session token.
func NewRouter(cfg RouterConfig) *mux.Router {
	rentalHandler := NewRentalHandler(cfg.Rentals, cfg.Catalog)
	sessionHandler := NewSessionHandler(cfg.Wallet, cfg.Tokens)

	limiter := NewIPRateLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	r := mux.NewRouter()
	r.Use(RequestLogging)
	r.Use(RateLimit(limiter))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/gpus", rentalHandler.ListGPUs).Methods(http.MethodGet)
	api.HandleFunc("/session", sessionHandler.CreateSession).Methods(http.MethodPost)

	rentals := api.PathPrefix("/rentals").Subrouter()
	rentals.Use(SessionAuth(cfg.Tokens))
	rentals.HandleFunc("", rentalHandler.CreateRental).Methods(http.MethodPost)
	rentals.HandleFunc("", rentalHandler.ListRentals).Methods(http.MethodGet)
	rentals.HandleFunc("/{rentalId}", rentalHandler.GetRental).Methods(http.MethodGet)
	rentals.HandleFunc("/{rentalId}/verify", rentalHandler.VerifyRental).Methods(http.MethodPost)
	rentals.HandleFunc("/{rentalId}/resolve", rentalHandler.ResolveRental).Methods(http.MethodPost)
	rentals.HandleFunc("/{rentalId}/cooldowns", rentalHandler.GetCooldowns).Methods(http.MethodGet)
	rentals.HandleFunc("/{rentalId}/reconcile", rentalHandler.ReconcileRental).Methods(http.MethodPost)

	return r
}
