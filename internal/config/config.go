package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration from environment variables,
// optionally overlaid by a YAML file.
type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// Route planner
	GoogleAPIKey  string `yaml:"google_api_key"`
	DirectionsURL string `yaml:"directions_url"`
	UserAgent     string `yaml:"user_agent"` // sent to Nominatim

	// TAN open data
	TanBaseURL string `yaml:"tan_base_url"`
	GTFSURL    string `yaml:"gtfs_url"`   // GTFS zip carrying stops.txt
	StopsPath  string `yaml:"stops_path"` // local stops.txt; empty = download GTFSURL
	AlertsURL  string `yaml:"alerts_url"` // GTFS-RT alerts feed; empty = disabled

	// Collection utility
	CollectInterval time.Duration `yaml:"collect_interval"`
	CollectWindow   time.Duration `yaml:"collect_window"`

	// Prediction pipeline
	MinuteOfDay  bool    `yaml:"minute_of_day"` // add heure_en_minutes to the feature schema
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
	Trees        int     `yaml:"trees"`
	EnrichedData bool    `yaml:"enriched_data"` // train from stop_events_enriched

	// Import utility
	ImportPath  string `yaml:"-"` // CLI flag: import a spreadsheet/CSV, then exit
	ImportSheet string `yaml:"import_sheet"`
	Collect     bool   `yaml:"-"` // CLI flag: run the collector, then exit
	Enrich      bool   `yaml:"-"` // CLI flag: build the enriched table, then exit
	Evaluate    bool   `yaml:"-"` // CLI flag: train, print scores, then exit
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:            envInt("TAN_PORT", 8080),
		DBPath:          envStr("TAN_DB_PATH", "./tanpredict.db"),
		GoogleAPIKey:    envStr("GOOGLE_API_KEY", ""),
		DirectionsURL:   envStr("TAN_DIRECTIONS_URL", "https://maps.googleapis.com/maps/api/directions/json"),
		UserAgent:       envStr("TAN_USER_AGENT", "tanpredict/1.0 (transit demo)"),
		TanBaseURL:      envStr("TAN_API_URL", "https://open.tan.fr/ewp"),
		GTFSURL:         envStr("TAN_GTFS_URL", ""),
		StopsPath:       envStr("TAN_STOPS_PATH", ""),
		AlertsURL:       envStr("TAN_ALERTS_URL", ""),
		CollectInterval: envDuration("TAN_COLLECT_INTERVAL", 5*time.Minute),
		CollectWindow:   envDuration("TAN_COLLECT_WINDOW", time.Hour),
		MinuteOfDay:     envBool("TAN_MINUTE_OF_DAY", true),
		TestFraction:    envFloat("TAN_TEST_FRACTION", 0.2),
		Seed:            int64(envInt("TAN_SEED", 42)),
		Trees:           envInt("TAN_TREES", 100),
		EnrichedData:    envBool("TAN_ENRICHED_DATA", false),
		ImportSheet:     envStr("TAN_IMPORT_SHEET", "Feuil1"),
	}
}

// LoadFile overlays values from a YAML file onto cfg. Keys absent from the
// file keep their current value.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
