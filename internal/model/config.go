package model

import "time"

// Config holds every tunable of an analysis run.
// Precedence: CLI flags > EVIDENCECHECK_* env > config file > DefaultConfig.
type Config struct {
	Aggregation  AggregationConfig  `yaml:"aggregation" mapstructure:"aggregation"`
	Collision    CollisionConfig    `yaml:"collision" mapstructure:"collision"`
	Severity     SeverityConfig     `yaml:"severity" mapstructure:"severity"`
	Scoring      ScoringPolicy      `yaml:"scoring" mapstructure:"scoring"`
	Sampling     SamplingConfig     `yaml:"sampling" mapstructure:"sampling"`
	Detector     DetectorConfig     `yaml:"detector" mapstructure:"detector"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Sink         SinkConfig         `yaml:"sink" mapstructure:"sink"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// AggregationConfig tunes the frame aggregator
type AggregationConfig struct {
	WeaponThreshold float64             `yaml:"weapon_threshold" mapstructure:"weapon_threshold"`
	ClassAliases    map[string][]string `yaml:"class_aliases" mapstructure:"class_aliases"` // Scene class -> detector labels
}

// CollisionConfig holds the named thresholds of the collision state machine
type CollisionConfig struct {
	ClosingThreshold float64 `yaml:"closing_threshold" mapstructure:"closing_threshold"` // T1, normalised distance per second
	ApproachFrames   int     `yaml:"approach_frames" mapstructure:"approach_frames"`     // k
	OverlapThreshold float64 `yaml:"overlap_threshold" mapstructure:"overlap_threshold"` // T2, IoU
	DisperseFrames   int     `yaml:"disperse_frames" mapstructure:"disperse_frames"`     // m
	SettleFrames     int     `yaml:"settle_frames" mapstructure:"settle_frames"`         // n
	SettleThreshold  float64 `yaml:"settle_threshold" mapstructure:"settle_threshold"`   // |closing| below this is "no significant delta"
}

// SeverityConfig holds the composite weights and band thresholds
type SeverityConfig struct {
	CollisionWeight   float64 `yaml:"collision_weight" mapstructure:"collision_weight"`
	MotionWeight      float64 `yaml:"motion_weight" mapstructure:"motion_weight"`
	MotionScale       float64 `yaml:"motion_scale" mapstructure:"motion_scale"` // Motion at which the motion term saturates
	ModerateThreshold float64 `yaml:"moderate_threshold" mapstructure:"moderate_threshold"`
	SevereThreshold   float64 `yaml:"severe_threshold" mapstructure:"severe_threshold"`
}

// ScoringPolicy is the deduction table of the reconciler
type ScoringPolicy struct {
	CountOffByOne         int     `yaml:"count_off_by_one" mapstructure:"count_off_by_one"`
	CountOffByMore        int     `yaml:"count_off_by_more" mapstructure:"count_off_by_more"`
	WeaponMismatch        int     `yaml:"weapon_mismatch" mapstructure:"weapon_mismatch"`
	TimeToleranceSeconds  float64 `yaml:"time_tolerance_seconds" mapstructure:"time_tolerance_seconds"`
	ScoreTime             bool    `yaml:"score_time" mapstructure:"score_time"`
	TimeMismatch          int     `yaml:"time_mismatch" mapstructure:"time_mismatch"`
	ScoreSeverity         bool    `yaml:"score_severity" mapstructure:"score_severity"`
	SeverityMismatch      int     `yaml:"severity_mismatch" mapstructure:"severity_mismatch"`
	ClipStartSecondsOfDay float64 `yaml:"clip_start_seconds_of_day" mapstructure:"clip_start_seconds_of_day"` // Wall-clock time of clip second 0
}

// SamplingConfig controls which detector frames are kept
type SamplingConfig struct {
	EveryNthFrame int     `yaml:"every_nth_frame" mapstructure:"every_nth_frame"` // Keyframe interval (1 = all)
	MinSpacing    float64 `yaml:"min_spacing" mapstructure:"min_spacing"`         // Seconds between kept frames
}

// DetectorConfig points at an optional remote detection service
type DetectorConfig struct {
	Endpoint string        `yaml:"endpoint,omitempty" mapstructure:"endpoint"` // POST {clip_url, every_nth_frame}
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// HTTPConfig contains settings for fetching remote reports and detections
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig contains worker settings
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig limits requests per remote host
type RateLimitingConfig struct {
	RequestsPerSecond float64            `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int                `yaml:"burst_size" mapstructure:"burst_size"`
	PerHost           map[string]float64 `yaml:"per_host,omitempty" mapstructure:"per_host"` // Host -> requests per second
}

// LLMConfig contains optional narrative summary settings
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "openai", "anthropic", "ollama" or "" (disabled)
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"` // OpenAI-compatible endpoints (e.g. Ollama)
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"`           // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SinkConfig configures optional publication of analyses
type SinkConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic" mapstructure:"kafka_topic"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr          string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AllowedOrigin []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ClientRPS     float64       `yaml:"client_rps" mapstructure:"client_rps"` // Per-client request rate, 0 = unlimited
}

// OutputConfig contains output settings
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// DefaultCollisionConfig returns the default state machine thresholds
func DefaultCollisionConfig() CollisionConfig {
	return CollisionConfig{
		ClosingThreshold: 0.2,
		ApproachFrames:   2,
		OverlapThreshold: 0.3,
		DisperseFrames:   2,
		SettleFrames:     3,
		SettleThreshold:  0.05,
	}
}

// DefaultSeverityConfig returns the default composite weights and bands
func DefaultSeverityConfig() SeverityConfig {
	return SeverityConfig{
		CollisionWeight:   0.5,
		MotionWeight:      0.5,
		MotionScale:       2.0,
		ModerateThreshold: 0.35,
		SevereThreshold:   0.65,
	}
}

// DefaultScoringPolicy returns the standard deduction table
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		CountOffByOne:        -10,
		CountOffByMore:       -30,
		WeaponMismatch:       -40,
		TimeToleranceSeconds: 5,
		TimeMismatch:         -20,
		SeverityMismatch:     -20,
	}
}

// DefaultAggregationConfig returns the default aggregator settings
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		WeaponThreshold: 0.5,
		ClassAliases: map[string][]string{
			SceneClassPeople: {"person", "pedestrian", "people"},
			SceneClassCars:   {"car", "truck", "bus", "motorcycle", "vehicle"},
			SceneClassWeapon: {"gun", "knife", "pistol", "rifle", "weapon"},
		},
	}
}

// Scene classes produced by the aggregator
const (
	SceneClassPeople = "people"
	SceneClassCars   = "cars"
	SceneClassWeapon = "weapon"
)

// DefaultConfig returns the standard configuration
func DefaultConfig() *Config {
	return &Config{
		Aggregation: DefaultAggregationConfig(),
		Collision:   DefaultCollisionConfig(),
		Severity:    DefaultSeverityConfig(),
		Scoring:     DefaultScoringPolicy(),
		Sampling: SamplingConfig{
			EveryNthFrame: 1,
		},
		Detector: DetectorConfig{
			Timeout: 2 * time.Minute,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "EvidenceCheck/0.1 (+https://github.com/ppiankov/evidencecheck)",
			MaxBodyBytes:  20_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".evidencecheck-cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 600,
		},
		Sink: SinkConfig{
			KafkaTopic: "evidencecheck.analyses",
		},
		Server: ServerConfig{
			Addr:          ":8000",
			ReadTimeout:   30 * time.Second,
			MaxBodyBytes:  50_000_000,
			AllowedOrigin: []string{"*"},
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
