package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RegimeConfig tunes the market-structure analyzer.
type RegimeConfig struct {
	TrendLookback      int     `yaml:"trend_lookback" default:"50" validate:"gte=20"`
	ATRPeriod          int     `yaml:"atr_period" default:"14" validate:"gte=2"`
	RangingSlopePips   float64 `yaml:"ranging_slope_pips" default:"0.5" validate:"gt=0"`
	SlopeStrengthScale float64 `yaml:"slope_strength_scale" default:"20" validate:"gt=0"`
	LevelMaxPips       float64 `yaml:"level_max_pips" default:"50" validate:"gt=0"`
	MaxLevels          int     `yaml:"max_levels" default:"5" validate:"gte=1,lte=10"`
	MaxSpreadPips      float64 `yaml:"max_spread_pips" default:"5" validate:"gt=0"`
}

// EngineConfig drives the signal decision loop.
type EngineConfig struct {
	Window            int           `yaml:"window" default:"500" validate:"gte=100"`
	MinConfidence     float64       `yaml:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	FallbackFloor     float64       `yaml:"fallback_floor" default:"70" validate:"gte=0,lte=100"`
	CooldownInterval  time.Duration `yaml:"cooldown_interval" default:"15m" validate:"gt=0"`
	OvertradingMax    int           `yaml:"overtrading_max" default:"3" validate:"gte=1"`
	OvertradingWindow time.Duration `yaml:"overtrading_window" default:"1h" validate:"gt=0"`
	SpreadGuardMult   float64       `yaml:"spread_guard_mult" default:"3" validate:"gt=1"`
	SignalTTL         time.Duration `yaml:"signal_ttl" default:"5m" validate:"gt=0"`
	DefaultSize       float64       `yaml:"default_size" default:"1.0" validate:"gt=0"`

	Regime RegimeConfig `yaml:"regime"`

	// BaseSizes maps instrument to the base lot size handed to the scheduler.
	BaseSizes map[string]float64 `yaml:"base_sizes"`
	// Correlated maps an instrument to peers consulted for the validator's
	// bounded confidence adjustment.
	Correlated map[string][]string `yaml:"correlated"`
}

// ProfileConfig is one row of the counterparty policy table. The engine
// treats the whole table as configuration and asserts nothing about any
// specific counterparty.
type ProfileConfig struct {
	MaxTradesPerHour      int     `yaml:"max_trades_per_hour" validate:"gte=0"`
	MaxDailyProfitPct     float64 `yaml:"max_daily_profit_pct" validate:"gte=0"`
	RequiresForcedLosses  bool    `yaml:"requires_forced_losses"`
	SpreadFingerprintPips float64 `yaml:"spread_fingerprint_pips"`
	ExecFingerprintMs     int     `yaml:"exec_fingerprint_ms"`
}

// StealthConfig selects the perturbation ranges and admission caps.
type StealthConfig struct {
	ProtectionLevel  string        `yaml:"protection_level" default:"medium" validate:"oneof=low medium high ghost"`
	EntryDelayMin    time.Duration `yaml:"entry_delay_min" default:"2s" validate:"gte=0"`
	EntryDelayMax    time.Duration `yaml:"entry_delay_max" default:"30s" validate:"gt=0"`
	ShuffleDelayMin  time.Duration `yaml:"shuffle_delay_min" default:"1s" validate:"gte=0"`
	ShuffleDelayMax  time.Duration `yaml:"shuffle_delay_max" default:"10s" validate:"gt=0"`
	PerInstrumentCap int           `yaml:"per_instrument_cap" default:"1" validate:"gte=1"`
	TotalCap         int           `yaml:"total_cap" default:"5" validate:"gte=1"`
	Seed             int64         `yaml:"seed"` // 0 = time-seeded

	Profiles map[string]ProfileConfig `yaml:"profiles"`
}

type Config struct {
	Environment string `yaml:"environment" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Feed struct {
		WebSocketURL   string        `yaml:"websocket_url" validate:"required"`
		APIKey         string        `yaml:"api_key"`
		Instruments    []string      `yaml:"instruments" validate:"min=1"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	} `yaml:"feed"`

	Engine  EngineConfig  `yaml:"engine"`
	Stealth StealthConfig `yaml:"stealth"`

	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		SignalsTopic    string   `yaml:"signals_topic" default:"signals"`
		DirectivesTopic string   `yaml:"directives_topic" default:"directives"`
		FillsTopic      string   `yaml:"fills_topic" default:"fills"`
		RequiredAcks    int      `yaml:"required_acks" default:"-1"`
		Compression     string   `yaml:"compression" default:"gzip"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradeveil-fills"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradeveil"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Feed.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PROTECTION_LEVEL"); v != "" {
		c.Stealth.ProtectionLevel = v
	}
	if v := os.Getenv("STEALTH_SEED"); v != "" {
		if seed, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			c.Stealth.Seed = seed
		}
	}

	// Env overrides bypass Load's validation, re-check.
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks tag rules plus cross-field constraints. A failure here is
// the only fatal condition in the system: the engine must not start.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Stealth.PerInstrumentCap > c.Stealth.TotalCap {
		return fmt.Errorf("stealth.per_instrument_cap (%d) must not exceed stealth.total_cap (%d)",
			c.Stealth.PerInstrumentCap, c.Stealth.TotalCap)
	}
	if c.Stealth.EntryDelayMin > c.Stealth.EntryDelayMax {
		return fmt.Errorf("stealth.entry_delay_min must not exceed entry_delay_max")
	}
	if c.Stealth.ShuffleDelayMin > c.Stealth.ShuffleDelayMax {
		return fmt.Errorf("stealth.shuffle_delay_min must not exceed shuffle_delay_max")
	}
	if c.Engine.FallbackFloor < c.Engine.MinConfidence {
		return fmt.Errorf("engine.fallback_floor must be at least engine.min_confidence")
	}
	for name, p := range c.Stealth.Profiles {
		if p.MaxTradesPerHour < 0 || p.MaxDailyProfitPct < 0 {
			return fmt.Errorf("stealth.profiles[%s]: ceilings must be non-negative", name)
		}
	}
	return nil
}

// BaseSize returns the configured base lot size for an instrument.
func (c *Config) BaseSize(instrument string) float64 {
	if s, ok := c.Engine.BaseSizes[instrument]; ok && s > 0 {
		return s
	}
	return c.Engine.DefaultSize
}
