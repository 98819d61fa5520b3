package factory

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/tagmatch/internal/model"
	redisstorage "github.com/mcoot/tagmatch/internal/storage/redis"
)

// Backend type constants, shared by player storage and the registry
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Env is the host process configuration read from the environment
type Env struct {
	HTTPAddr string
	HostName string
	// HostUsername and HostPassword make the host a registered account so an
	// operator can log in as it. Without them the host is a guest.
	HostUsername string
	HostPassword string
	LogLevel     slog.Level
	Factory      Config
}

// LoadEnv reads configuration from the environment, first loading envFile
// when it exists. Pass "" to skip the file.
func LoadEnv(envFile string) (Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("%w: load %s: %v", model.ErrConfiguration, envFile, err)
		}
	}
	return parseEnv(os.Getenv)
}

func parseEnv(getenv func(string) string) (Env, error) {
	env := Env{
		HTTPAddr:     ":8080",
		HostName:     "Host",
		HostUsername: getenv("HOST_USERNAME"),
		HostPassword: getenv("HOST_PASSWORD"),
		LogLevel:     slog.LevelInfo,
		Factory:      DefaultConfig(),
	}
	cfg := &env.Factory

	if v := getenv("HTTP_ADDR"); v != "" {
		env.HTTPAddr = v
	} else if v := getenv("PORT"); v != "" {
		env.HTTPAddr = ":" + v
	}
	if v := getenv("HOST_NAME"); v != "" {
		env.HostName = v
	}
	if (env.HostUsername == "") != (env.HostPassword == "") {
		return Env{}, fmt.Errorf("%w: HOST_USERNAME and HOST_PASSWORD must be set together", model.ErrConfiguration)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := env.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Env{}, fmt.Errorf("%w: LOG_LEVEL: %v", model.ErrConfiguration, err)
		}
	}

	if v := getenv("PUBLIC_URL"); v != "" {
		cfg.PublicURL = v
	} else {
		cfg.PublicURL = "http://localhost" + portSuffix(env.HTTPAddr)
	}

	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.StorageType = v
	}
	if v := getenv("REGISTRY_TYPE"); v != "" {
		cfg.RegistryType = v
	}
	for name, v := range map[string]string{"STORAGE_TYPE": cfg.StorageType, "REGISTRY_TYPE": cfg.RegistryType} {
		if v != BackendMemory && v != BackendRedis {
			return Env{}, fmt.Errorf("%w: %s must be %q or %q", model.ErrConfiguration, name, BackendMemory, BackendRedis)
		}
	}
	if cfg.StorageType == BackendRedis || cfg.RegistryType == BackendRedis {
		redisURL := getenv("REDIS_URL")
		if redisURL == "" {
			return Env{}, fmt.Errorf("%w: REDIS_URL required when a redis backend is selected", model.ErrConfiguration)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = redisURL
		cfg.RedisConfig = &redisCfg
	}

	if v := getenv("IDENTITY_SECRET"); v != "" {
		cfg.AuthConfig.IdentitySecret = []byte(v)
		cfg.Host.Match.Gateway.RequireIdentityToken = true
	}

	if v := getenv("MAX_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Env{}, fmt.Errorf("%w: MAX_CONNECTIONS must be a positive integer", model.ErrConfiguration)
		}
		cfg.Host.MaxConnections = n
	}
	if v := getenv("MATCH_DURATION"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Env{}, fmt.Errorf("%w: MATCH_DURATION: %v", model.ErrConfiguration, err)
		}
		cfg.Host.Match.Timer.MatchDuration = d
	}
	if v := getenv("COUNTDOWN_DURATION"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Env{}, fmt.Errorf("%w: COUNTDOWN_DURATION: %v", model.ErrConfiguration, err)
		}
		cfg.Host.Match.Timer.CountdownDuration = d
	}

	return env, nil
}

// parseSeconds accepts a plain number of seconds or a Go duration string
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

func portSuffix(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}
