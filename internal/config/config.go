package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service settings. Environment variables win over the
// optional YAML file named by CONFIG_FILE; defaults apply last.
type Config struct {
	Port             string        `yaml:"port"`
	LogLevel         string        `yaml:"log_level"`
	DatabaseURL      string        `yaml:"database_url"`
	RedisURL         string        `yaml:"redis_url"`
	ORSAPIKey        string        `yaml:"ors_api_key"`
	ORSBaseURL       string        `yaml:"ors_base_url"`
	ORSProfile       string        `yaml:"ors_profile"`
	ORSRatePerMin    int           `yaml:"ors_rate_per_min"`
	RunDebounce      time.Duration `yaml:"run_debounce"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	DistanceCacheTTL time.Duration `yaml:"distance_cache_ttl"`
	GeocodeSeedPath  string        `yaml:"geocode_seed_path"`
}

func defaults() Config {
	return Config{
		Port:             "8080",
		LogLevel:         "info",
		ORSBaseURL:       "https://api.openrouteservice.org",
		ORSProfile:       "driving-car",
		ORSRatePerMin:    40,
		RunTimeout:       30 * time.Second,
		DistanceCacheTTL: 7 * 24 * time.Hour,
		GeocodeSeedPath:  "data/seeds/geocodes.json",
	}
}

// Get returns the environment value for key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Load builds a Config from defaults, the optional YAML file and the environment.
func Load() (Config, error) {
	cfg := defaults()

	if path := Get("CONFIG_FILE", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config: parse %q: %w", path, err)
		}
	}

	cfg.Port = Get("PORT", cfg.Port)
	cfg.LogLevel = Get("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = Get("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = Get("REDIS_URL", cfg.RedisURL)
	cfg.ORSAPIKey = Get("ORS_API_KEY", cfg.ORSAPIKey)
	cfg.ORSBaseURL = Get("ORS_BASE_URL", cfg.ORSBaseURL)
	cfg.ORSProfile = Get("ORS_PROFILE", cfg.ORSProfile)
	cfg.GeocodeSeedPath = Get("GEOCODE_SEED_PATH", cfg.GeocodeSeedPath)

	var err error
	if cfg.ORSRatePerMin, err = getInt("ORS_RATE_PER_MIN", cfg.ORSRatePerMin); err != nil {
		return Config{}, err
	}
	if cfg.RunDebounce, err = getDuration("RUN_DEBOUNCE", cfg.RunDebounce); err != nil {
		return Config{}, err
	}
	if cfg.RunTimeout, err = getDuration("RUN_TIMEOUT", cfg.RunTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DistanceCacheTTL, err = getDuration("DISTANCE_CACHE_TTL", cfg.DistanceCacheTTL); err != nil {
		return Config{}, err
	}

	if cfg.RunDebounce < 0 || cfg.RunTimeout < 0 || cfg.DistanceCacheTTL < 0 {
		return Config{}, fmt.Errorf("load config: RUN_DEBOUNCE, RUN_TIMEOUT and DISTANCE_CACHE_TTL must not be negative")
	}

	return cfg, nil
}

func getInt(key string, fallback int) (int, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("load config: %s=%q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("load config: %s=%q: %w", key, v, err)
	}
	return d, nil
}
