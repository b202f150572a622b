package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type Config struct {
	Port    string
	Backend string
	Debug   bool

	ProjectID       string
	CredentialsFile string
	StorageBucket   string

	LocalAuthSecret string

	PhotosAccessKey string
	PhotosBaseURL   string
	RedisURL        string
	PhotoCacheTTL   time.Duration
}

// Load reads .env when present and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:            withDefault(getenv("PORT"), "8080"),
		Backend:         withDefault(getenv("STORE_BACKEND"), BackendFirestore),
		ProjectID:       getenv("GOOGLE_CLOUD_PROJECT"),
		CredentialsFile: getenv("FIREBASE_CREDENTIALS_FILE"),
		StorageBucket:   getenv("STORAGE_BUCKET"),
		LocalAuthSecret: getenv("LOCAL_AUTH_SECRET"),
		PhotosAccessKey: getenv("PHOTOS_ACCESS_KEY"),
		PhotosBaseURL:   withDefault(getenv("PHOTOS_BASE_URL"), "https://api.unsplash.com"),
		RedisURL:        getenv("REDIS_URL"),
		PhotoCacheTTL:   time.Hour,
	}

	if v := getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("DEBUG: %w", err)
		}
		cfg.Debug = debug
	}
	if v := getenv("PHOTO_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("PHOTO_CACHE_TTL: %w", err)
		}
		cfg.PhotoCacheTTL = ttl
	}

	switch cfg.Backend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return Config{}, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required")
		}
		if cfg.StorageBucket == "" {
			return Config{}, fmt.Errorf("STORAGE_BUCKET environment variable is required")
		}
	case BackendMemory:
		if cfg.LocalAuthSecret == "" {
			return Config{}, fmt.Errorf("LOCAL_AUTH_SECRET environment variable is required with the memory backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
