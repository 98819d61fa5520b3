package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/tagmatch/internal/api"
	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/dependencies/random"
	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/auth"
	"github.com/mcoot/tagmatch/internal/services/gateway"
	"github.com/mcoot/tagmatch/internal/services/host"
	"github.com/mcoot/tagmatch/internal/services/registry"
	"github.com/mcoot/tagmatch/internal/services/relay"
	"github.com/mcoot/tagmatch/internal/storage"
	"github.com/mcoot/tagmatch/internal/storage/memory"
	redisstorage "github.com/mcoot/tagmatch/internal/storage/redis"
	"github.com/mcoot/tagmatch/internal/transport/ws"
)

// App contains all wired application components
type App struct {
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	AuthService  *auth.Service
	Relay        *relay.Memory
	Registry     registry.Service
	Transport    *ws.Server
	Orchestrator *host.Orchestrator

	logger *slog.Logger
	redis  *goredis.Client
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// PublicURL is the base URL clients use to reach this host
	PublicURL string
	// StorageType selects the player storage backend ("memory" or "redis")
	StorageType string
	// RegistryType selects the matchmaking registry backend ("memory" or "redis")
	RegistryType string
	// RedisConfig holds Redis connection settings (required if either backend is "redis")
	RedisConfig *redisstorage.Config

	AuthConfig auth.Config
	Registry   registry.Config
	Transport  ws.Config
	Host       host.Config
}

// DefaultConfig returns an all in-memory configuration
func DefaultConfig() Config {
	return Config{
		PublicURL:    relay.DefaultConfig().PublicURL,
		StorageType:  BackendMemory,
		RegistryType: BackendMemory,
		AuthConfig:   auth.DefaultConfig(),
		Registry:     registry.DefaultConfig(),
		Transport:    ws.DefaultConfig(),
		Host:         host.DefaultConfig(),
	}
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg = withDefaults(cfg)

	var client *goredis.Client
	if cfg.StorageType == BackendRedis || cfg.RegistryType == BackendRedis {
		if cfg.RedisConfig == nil {
			return nil, fmt.Errorf("%w: RedisConfig required for redis backends", model.ErrConfiguration)
		}
		c, err := redisstorage.NewClient(*cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		client = c
	}

	var store storage.Storage
	switch cfg.StorageType {
	case BackendMemory:
		store = memory.New()
	case BackendRedis:
		store = redisstorage.NewWithClient(client, *cfg.RedisConfig)
	default:
		closeClient(client)
		return nil, fmt.Errorf("%w: invalid StorageType %q", model.ErrConfiguration, cfg.StorageType)
	}

	clk := clock.New()
	rnd := random.New()

	var reg registry.Service
	switch cfg.RegistryType {
	case BackendMemory:
		reg = registry.NewMemory(cfg.Registry, clk, logger)
	case BackendRedis:
		reg = registry.NewRedis(client, cfg.Registry, clk, logger)
	default:
		closeClient(client)
		return nil, fmt.Errorf("%w: invalid RegistryType %q", model.ErrConfiguration, cfg.RegistryType)
	}

	app := newWithDependencies(cfg, store, reg, clk, rnd, logger)
	app.redis = client
	return app, nil
}

func withDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PublicURL == "" {
		cfg.PublicURL = defaults.PublicURL
	}
	if cfg.StorageType == "" {
		cfg.StorageType = defaults.StorageType
	}
	if cfg.RegistryType == "" {
		cfg.RegistryType = defaults.RegistryType
	}
	if cfg.Registry.EntryTTL == 0 {
		cfg.Registry = defaults.Registry
	}
	if cfg.Transport.SendBufferSize == 0 {
		cfg.Transport = defaults.Transport
	}
	if cfg.Host.MaxConnections == 0 {
		cfg.Host = defaults.Host
	}
	return cfg
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(cfg Config, store storage.Storage, reg registry.Service, clk clock.Clock, rnd random.Random, logger *slog.Logger) *App {
	authService := auth.New(store, clk, cfg.AuthConfig, logger)
	relaySvc := relay.NewMemory(relay.Config{PublicURL: cfg.PublicURL}, clk, rnd, logger)
	transport := ws.NewServer(cfg.Transport, logger)

	// A nil interface, not a nil *auth.Service, when tokens are disabled
	var verifier gateway.IdentityVerifier
	if authService.IdentityTokensEnabled() {
		verifier = authService
	}
	orchestrator := host.New(cfg.Host, relaySvc, reg, transport, verifier, clk, rnd, logger)

	return &App{
		Storage:      store,
		Clock:        clk,
		Random:       rnd,
		AuthService:  authService,
		Relay:        relaySvc,
		Registry:     reg,
		Transport:    transport,
		Orchestrator: orchestrator,
		logger:       logger,
	}
}

// Router builds the HTTP handler serving the API and relay sockets
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:       a.logger,
		AuthService:  a.AuthService,
		Relay:        a.Relay,
		Registry:     a.Registry,
		Orchestrator: a.Orchestrator,
		Transport:    a.Transport,
	})
}

// HostAccount resolves the account the host process hosts as. With a
// username and password it logs in, registering the account on first use;
// otherwise it creates a guest named displayName.
func (a *App) HostAccount(ctx context.Context, displayName, username, password string) (*model.Session, error) {
	if username == "" {
		return a.AuthService.CreateGuestPlayer(ctx, displayName)
	}

	session, err := a.AuthService.Login(ctx, username, password)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		return nil, err
	}
	session, err = a.AuthService.RegisterPlayer(ctx, username, password, displayName)
	if errors.Is(err, auth.ErrUsernameExists) {
		// Exists with a different password
		return nil, auth.ErrInvalidCredentials
	}
	return session, err
}

// StartHosting starts the hosted match as the given account
func (a *App) StartHosting(ctx context.Context, session *model.Session) error {
	return a.Orchestrator.Start(ctx, model.UserIdentity{
		AuthID:   session.PlayerID.AuthID(),
		Username: session.Player.DisplayName,
	})
}

// Close shuts down the hosted match and releases the redis connection
func (a *App) Close(ctx context.Context) error {
	shutdownErr := a.Orchestrator.Shutdown(ctx)
	a.Transport.Close()
	var closeErr error
	if a.redis != nil {
		closeErr = a.redis.Close()
	}
	return errors.Join(shutdownErr, closeErr)
}

func closeClient(client *goredis.Client) {
	if client != nil {
		_ = client.Close()
	}
}
