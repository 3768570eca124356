package config

import (
	"time"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Store     StoreConfig     `yaml:"store" koanf:"store"`
	Routing   RoutingConfig   `yaml:"routing" koanf:"routing"`
	Geocoding GeocodingConfig `yaml:"geocoding" koanf:"geocoding"`
	Rides     RidesConfig     `yaml:"rides" koanf:"rides"`
	Backfill  BackfillConfig  `yaml:"backfill" koanf:"backfill"`
	Events    EventsConfig    `yaml:"events" koanf:"events"`
}

// ServerConfig holds process-level settings
type ServerConfig struct {
	AppEnv string `yaml:"app_env" koanf:"app_env"`
}

// StoreConfig selects and configures the ride store
type StoreConfig struct {
	// Driver is one of mongo, postgres, sqlite or memory
	Driver        string `yaml:"driver" koanf:"driver"`
	MongoURI      string `yaml:"mongo_uri" koanf:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database" koanf:"mongo_database"`
	// DSN is used by the postgres and sqlite drivers
	DSN string `yaml:"dsn" koanf:"dsn"`
}

// RoutingConfig holds road-routing provider settings
type RoutingConfig struct {
	// Provider is one of osrm, google or none
	Provider     string        `yaml:"provider" koanf:"provider"`
	OSRMBaseURL  string        `yaml:"osrm_base_url" koanf:"osrm_base_url"`
	GoogleAPIKey string        `yaml:"google_api_key" koanf:"google_api_key"`
	Timeout      time.Duration `yaml:"timeout" koanf:"timeout"`
	StepsPerLeg  int           `yaml:"steps_per_leg" koanf:"steps_per_leg"`
}

// GeocodingConfig holds Nominatim settings
type GeocodingConfig struct {
	Enabled      bool          `yaml:"enabled" koanf:"enabled"`
	BaseURL      string        `yaml:"base_url" koanf:"base_url"`
	UserAgent    string        `yaml:"user_agent" koanf:"user_agent"`
	CountryCodes string        `yaml:"country_codes" koanf:"country_codes"`
	CacheTTL     time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
	SuggestLimit int           `yaml:"suggest_limit" koanf:"suggest_limit"`
}

// RidesConfig holds ride publishing and search defaults
type RidesConfig struct {
	CorridorKm          float64 `yaml:"corridor_km" koanf:"corridor_km"`
	SearchLimit         int     `yaml:"search_limit" koanf:"search_limit"`
	ListLimit           int     `yaml:"list_limit" koanf:"list_limit"`
	ToleranceKm         float64 `yaml:"tolerance_km" koanf:"tolerance_km"`
	MaxPoints           int     `yaml:"max_points" koanf:"max_points"`
	CandidateMultiplier int     `yaml:"candidate_multiplier" koanf:"candidate_multiplier"`
	SeedDemo            bool    `yaml:"seed_demo" koanf:"seed_demo"`
}

// BackfillConfig schedules repair of legacy route records
type BackfillConfig struct {
	Enabled   bool   `yaml:"enabled" koanf:"enabled"`
	Schedule  string `yaml:"schedule" koanf:"schedule"`
	BatchSize int    `yaml:"batch_size" koanf:"batch_size"`
}

// EventsConfig configures Kafka publishing. No brokers disables it.
// Events are queued and delivered off the request path.
type EventsConfig struct {
	Brokers        []string      `yaml:"brokers" koanf:"brokers"`
	Topic          string        `yaml:"topic" koanf:"topic"`
	Source         string        `yaml:"source" koanf:"source"`
	QueueSize      int           `yaml:"queue_size" koanf:"queue_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout" koanf:"publish_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv: "production",
		},
		Store: StoreConfig{
			Driver:        "mongo",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "carpool",
			DSN:           "carpool.db",
		},
		Routing: RoutingConfig{
			Provider:    "osrm",
			OSRMBaseURL: "https://router.project-osrm.org",
			Timeout:     10 * time.Second,
			StepsPerLeg: 18,
		},
		Geocoding: GeocodingConfig{
			Enabled:      true,
			BaseURL:      "https://nominatim.openstreetmap.org",
			UserAgent:    "carpool-lk/0.1 (contact: admin@carpool.lk)",
			CountryCodes: "lk",
			CacheTTL:     24 * time.Hour,
			SuggestLimit: 8,
		},
		Rides: RidesConfig{
			CorridorKm:          5,
			SearchLimit:         20,
			ListLimit:           12,
			ToleranceKm:         0.1,
			MaxPoints:           220,
			CandidateMultiplier: 4,
			SeedDemo:            true,
		},
		Backfill: BackfillConfig{
			Enabled:   true,
			Schedule:  "@every 15m",
			BatchSize: 50,
		},
		Events: EventsConfig{
			Topic:          "ride.events",
			Source:         "carpool-server",
			QueueSize:      256,
			PublishTimeout: 5 * time.Second,
		},
	}
}

// IsDevelopment reports whether verbose development logging is wanted
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development"
}
