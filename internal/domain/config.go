package domain

import "time"

// Config holds the complete Cardlens configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Places     PlacesConfig     `json:"places"`

	// Domain tuning
	Recommend RecommendConfig `json:"recommend"`
	Badges    BadgesConfig    `json:"badges"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// RecommendConfig holds recommendation tuning knobs.
type RecommendConfig struct {
	// MinSaving is the smallest expected saving worth surfacing.
	// Zero disables the threshold.
	MinSaving int64 `json:"minSaving"`

	// AssumedAmount is the spend assumed for location-based
	// recommendations, where no amount is known yet.
	AssumedAmount int64 `json:"assumedAmount"`

	// PreferredKindBoost weights cards whose best benefit matches the
	// user's preferred benefit kind. Applied to selection only, the
	// reported saving stays unweighted.
	PreferredKindBoost float64 `json:"preferredKindBoost"`

	// MissedLimit caps the missed-benefit list length.
	MissedLimit int `json:"missedLimit"`

	// MissedWindowDays is the replay window for missed benefits.
	MissedWindowDays int `json:"missedWindowDays"`
}

// BadgesConfig holds badge settings.
type BadgesConfig struct {
	// RepresentativeTiers lists the badge tiers a user may pin as
	// their representative badge.
	RepresentativeTiers []string `json:"representativeTiers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./cardlens.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Places: PlacesConfig{
			BaseURL:      "https://dapi.kakao.com",
			RadiusMeters: 200,
			CacheTTL:     300,
		},
		Recommend: RecommendConfig{
			MinSaving:          300,
			AssumedAmount:      10000,
			PreferredKindBoost: 1.5,
			MissedLimit:        10,
			MissedWindowDays:   30,
		},
		Badges: BadgesConfig{
			RepresentativeTiers: []string{"Gold", "Silver"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "cardlens",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "cardlens",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
