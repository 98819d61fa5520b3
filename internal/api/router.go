package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/tagmatch/internal/api/handler"
	"github.com/mcoot/tagmatch/internal/api/middleware"
	basemw "github.com/mcoot/tagmatch/internal/middleware"
	"github.com/mcoot/tagmatch/internal/services/auth"
	"github.com/mcoot/tagmatch/internal/services/host"
	"github.com/mcoot/tagmatch/internal/services/registry"
	"github.com/mcoot/tagmatch/internal/services/relay"
	"github.com/mcoot/tagmatch/internal/transport/ws"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger       *slog.Logger
	AuthService  *auth.Service
	Relay        relay.Service
	Registry     registry.Service
	Orchestrator *host.Orchestrator
	// Transport serves relay websocket connections (optional)
	Transport *ws.Server
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	playerHandler := handler.NewPlayerHandler(cfg.AuthService)
	lobbyHandler := handler.NewLobbyHandler(cfg.Relay, cfg.Registry)
	matchHandler := handler.NewMatchHandler(cfg.Orchestrator)

	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Player routes (no auth required for creating players/logging in)
	api.HandleFunc("/players/guest", playerHandler.CreateGuest).Methods(http.MethodPost)
	api.HandleFunc("/players/register", playerHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/players/login", playerHandler.Login).Methods(http.MethodPost)

	playerProtected := api.PathPrefix("/players").Subrouter()
	playerProtected.Use(authMiddleware)
	playerProtected.HandleFunc("/me", playerHandler.GetMe).Methods(http.MethodGet)

	relayRoutes := api.PathPrefix("/relay").Subrouter()
	relayRoutes.Use(authMiddleware)
	relayRoutes.HandleFunc("/allocations/join/{code}", lobbyHandler.JoinAllocation).Methods(http.MethodGet)

	registryRoutes := api.PathPrefix("/registry").Subrouter()
	registryRoutes.Use(authMiddleware)
	registryRoutes.HandleFunc("/entries", lobbyHandler.ListEntries).Methods(http.MethodGet)
	registryRoutes.HandleFunc("/entries/{id}/join", lobbyHandler.JoinEntry).Methods(http.MethodPost)

	matchRoutes := api.PathPrefix("/match").Subrouter()
	matchRoutes.Use(authMiddleware)
	matchRoutes.HandleFunc("", matchHandler.Get).Methods(http.MethodGet)
	matchRoutes.HandleFunc("/start", matchHandler.Start).Methods(http.MethodPost)
	matchRoutes.HandleFunc("/leaderboard", matchHandler.Leaderboard).Methods(http.MethodGet)
	matchRoutes.HandleFunc("/contacts", matchHandler.Contact).Methods(http.MethodPost)

	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	// Relay websocket, authenticated by the identity payload instead of a session
	if cfg.Transport != nil {
		relaySocket := r.PathPrefix("/relay").Subrouter()
		relaySocket.Use(basemw.Recovery(cfg.Logger, basemw.PlainPanicHandler))
		relaySocket.Use(loggingMiddleware)
		relaySocket.Handle("/{allocationID}", cfg.Transport).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
