package config

import (
	"testing"
	"time"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"GOOGLE_CLOUD_PROJECT": "demo",
		"STORAGE_BUCKET":       "demo.appspot.com",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.Backend != BackendFirestore || cfg.Debug {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PhotoCacheTTL != time.Hour || cfg.PhotosBaseURL != "https://api.unsplash.com" {
		t.Fatalf("photo settings = %v %s", cfg.PhotoCacheTTL, cfg.PhotosBaseURL)
	}
}

func TestFromEnvMemoryBackend(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"STORE_BACKEND":     "memory",
		"LOCAL_AUTH_SECRET": "dev",
		"PORT":              "9000",
		"DEBUG":             "true",
		"PHOTO_CACHE_TTL":   "5m",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "9000" || !cfg.Debug || cfg.PhotoCacheTTL != 5*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestFromEnvErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing project":     {"STORAGE_BUCKET": "b"},
		"missing bucket":      {"GOOGLE_CLOUD_PROJECT": "p"},
		"memory needs secret": {"STORE_BACKEND": "memory"},
		"unknown backend":     {"STORE_BACKEND": "postgres"},
		"bad debug":           {"STORE_BACKEND": "memory", "LOCAL_AUTH_SECRET": "s", "DEBUG": "maybe"},
		"bad ttl":             {"STORE_BACKEND": "memory", "LOCAL_AUTH_SECRET": "s", "PHOTO_CACHE_TTL": "soon"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := FromEnv(envOf(vars)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
