package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Dataset    DatasetConfig    `json:"dataset"`
	Model      ModelConfig      `json:"model"`
	Scoring    ScoringConfig    `json:"scoring"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// DatasetConfig locates the historical transaction dataset.
type DatasetConfig struct {
	// CSVPath is the labelled historical transaction CSV.
	CSVPath string `json:"csvPath"`
}

// ModelConfig holds the classifier hyperparameters and artifact location.
// The defaults reproduce the reference training setup; change them and the
// persisted artifact is no longer comparable.
type ModelConfig struct {
	// ArtifactPath is where the fitted pipeline is persisted.
	ArtifactPath string `json:"artifactPath"`

	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"maxDepth"`
	MinSamplesSplit int   `json:"minSamplesSplit"`
	Seed            int64 `json:"seed"`

	// Class weights: missed fraud costs ten times a missed legitimate.
	LegitWeight float64 `json:"legitWeight"`
	FraudWeight float64 `json:"fraudWeight"`

	// TestFraction is held out for evaluation in the stratified split.
	TestFraction float64 `json:"testFraction"`
}

// ScoringConfig holds the blend weights and live calibration constants.
type ScoringConfig struct {
	// ModelWeight and RuleWeight combine the classifier probability with
	// the rule-point sum: final = ModelWeight×p + RuleWeight×points.
	ModelWeight float64 `json:"modelWeight"`
	RuleWeight  float64 `json:"ruleWeight"`

	// CapRulePoints clamps the rule-point sum at 1.0 before weighting so
	// the final score stays in [0, 1].
	CapRulePoints bool `json:"capRulePoints"`

	// ReferenceMean and ReferenceStd are the calibration constants used
	// for live amount-deviation. They are deliberately fixed rather than
	// recomputed from the historical distribution.
	ReferenceMean float64 `json:"referenceMean"`
	ReferenceStd  float64 `json:"referenceStd"`

	// VelocityWindowSecs is the trailing window for card velocity
	// counters when the caller omits frequency24h.
	VelocityWindowSecs int `json:"velocityWindowSecs"`
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
		Dataset: DatasetConfig{
			CSVPath: "./creditcard.csv",
		},
		Model: ModelConfig{
			ArtifactPath:    "./kestrel_model.gob",
			Trees:           100,
			MaxDepth:        10,
			MinSamplesSplit: 5,
			Seed:            42,
			LegitWeight:     1,
			FraudWeight:     10,
			TestFraction:    0.2,
		},
		Scoring: ScoringConfig{
			ModelWeight:        0.7,
			RuleWeight:         0.3,
			CapRulePoints:      true,
			ReferenceMean:      100,
			ReferenceStd:       50,
			VelocityWindowSecs: 86400,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier: PostgreSQL repository,
// Redis cache, NATS event bus, tracing on.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		EnableTwoPhase: true,
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
