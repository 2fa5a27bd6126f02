package config

import (
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrConfiguration marks a configuration that makes every downstream
// decision meaningless. A run must not start when Validate returns it.
var ErrConfiguration = eris.New("configuration error")

// Config holds the full application configuration.
type Config struct {
	Enrichment Enrichment        `yaml:"enrichment" mapstructure:"enrichment"`
	Connectors []ConnectorConfig `yaml:"connectors" mapstructure:"connectors"`
	Sink       SinkConfig        `yaml:"sink" mapstructure:"sink"`
	Batch      BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
	Log        LogConfig         `yaml:"log" mapstructure:"log"`
}

// Enrichment is the immutable settings value consumed by the aggregator,
// cross-validation engine and quality gate. It is resolved once per run.
type Enrichment struct {
	AcceptThreshold int `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	MinSources      int `yaml:"min_sources" mapstructure:"min_sources"`
	QuarantineBand  int `yaml:"quarantine_band" mapstructure:"quarantine_band"`

	OfficialDomains  []string `yaml:"official_domains" mapstructure:"official_domains"`
	TrackingParams   []string `yaml:"tracking_params" mapstructure:"tracking_params"`
	SeniorityMarkers []string `yaml:"seniority_markers" mapstructure:"seniority_markers"`
	RequiredFields   []string `yaml:"required_fields" mapstructure:"required_fields"`

	// PhoneRegion is the CLDR region phone numbers are validated against
	// and national numbers are read in.
	PhoneRegion string `yaml:"phone_region" mapstructure:"phone_region"`

	Weights Weights `yaml:"weights" mapstructure:"weights"`

	// CircuitFailureThreshold short-circuits a connector after this many
	// consecutive failures. Zero disables the breaker.
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// Weights are the signed confidence adjustments applied by cross-validation.
type Weights struct {
	CorroborationPerSource int `yaml:"corroboration_per_source" mapstructure:"corroboration_per_source"`
	CorroborationOfficial  int `yaml:"corroboration_official" mapstructure:"corroboration_official"`
	CorroborationCap       int `yaml:"corroboration_cap" mapstructure:"corroboration_cap"`
	EmailDomainMismatch    int `yaml:"email_domain_mismatch" mapstructure:"email_domain_mismatch"`
	WebsiteEmailMismatch   int `yaml:"website_email_mismatch" mapstructure:"website_email_mismatch"`
	TitleMissingMarker     int `yaml:"title_missing_marker" mapstructure:"title_missing_marker"`
	Rebrand                int `yaml:"rebrand" mapstructure:"rebrand"`
}

// ConnectorConfig describes one research connector.
type ConnectorConfig struct {
	Name        string  `yaml:"name" mapstructure:"name"`
	Kind        string  `yaml:"kind" mapstructure:"kind"` // "fixture", "http" or "null"
	TrustRank   int     `yaml:"trust_rank" mapstructure:"trust_rank"`
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	TimeoutMS   int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	FixturePath string  `yaml:"fixture_path" mapstructure:"fixture_path"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns the per-call timeout, defaulting to 10s.
func (c ConnectorConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SinkConfig configures the evidence sink.
type SinkConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"` // "jsonl", "sqlite", "postgres" or "none"
	Path           string `yaml:"path" mapstructure:"path"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`

	Pool PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional Postgres connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// BatchConfig configures row-level parallelism.
type BatchConfig struct {
	MaxConcurrentRows int `yaml:"max_concurrent_rows" mapstructure:"max_concurrent_rows"`
}

// MonitoringConfig configures run-health alerting.
type MonitoringConfig struct {
	WebhookURL                  string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	AdapterFailureRateThreshold float64 `yaml:"adapter_failure_rate_threshold" mapstructure:"adapter_failure_rate_threshold"`
	RejectionRateThreshold      float64 `yaml:"rejection_rate_threshold" mapstructure:"rejection_rate_threshold"`
}

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxRows        int      `yaml:"max_rows" mapstructure:"max_rows"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultEnrichment returns the enrichment settings used when nothing is
// configured. Official domains are left empty on purpose: an allow-list
// must always be supplied.
func DefaultEnrichment() Enrichment {
	return Enrichment{
		AcceptThreshold:  70,
		MinSources:       2,
		QuarantineBand:   10,
		TrackingParams:   []string{"utm_*", "gclid", "fbclid", "mc_cid", "mc_eid", "ref", "_ga"},
		SeniorityMarkers: []string{"owner", "director", "manager", "principal", "founder", "partner", "ceo", "chief", "head", "president", "executive", "proprietor", "md"},
		RequiredFields:   []string{"website", "contact_name", "phone", "email"},
		PhoneRegion:      "ZA",
		Weights: Weights{
			CorroborationPerSource: 5,
			CorroborationOfficial:  5,
			CorroborationCap:       15,
			EmailDomainMismatch:    -20,
			WebsiteEmailMismatch:   -10,
			TitleMissingMarker:     -5,
			Rebrand:                0,
		},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRIANGULATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultEnrichment()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_rows", 1000)
	v.SetDefault("batch.max_concurrent_rows", 4)
	v.SetDefault("sink.driver", "jsonl")
	v.SetDefault("sink.path", "evidence.jsonl")
	v.SetDefault("sink.max_attempts", 3)
	v.SetDefault("sink.initial_backoff_ms", 250)
	v.SetDefault("monitoring.adapter_failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.rejection_rate_threshold", 0.8)
	v.SetDefault("enrichment.accept_threshold", def.AcceptThreshold)
	v.SetDefault("enrichment.min_sources", def.MinSources)
	v.SetDefault("enrichment.quarantine_band", def.QuarantineBand)
	v.SetDefault("enrichment.tracking_params", def.TrackingParams)
	v.SetDefault("enrichment.seniority_markers", def.SeniorityMarkers)
	v.SetDefault("enrichment.required_fields", def.RequiredFields)
	v.SetDefault("enrichment.phone_region", def.PhoneRegion)
	v.SetDefault("enrichment.circuit_reset_secs", 30)
	v.SetDefault("enrichment.weights.corroboration_per_source", def.Weights.CorroborationPerSource)
	v.SetDefault("enrichment.weights.corroboration_official", def.Weights.CorroborationOfficial)
	v.SetDefault("enrichment.weights.corroboration_cap", def.Weights.CorroborationCap)
	v.SetDefault("enrichment.weights.email_domain_mismatch", def.Weights.EmailDomainMismatch)
	v.SetDefault("enrichment.weights.website_email_mismatch", def.Weights.WebsiteEmailMismatch)
	v.SetDefault("enrichment.weights.title_missing_marker", def.Weights.TitleMissingMarker)
	v.SetDefault("enrichment.weights.rebrand", def.Weights.Rebrand)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the enrichment settings. Every failure wraps
// ErrConfiguration.
func (e Enrichment) Validate() error {
	if e.AcceptThreshold <= 0 || e.AcceptThreshold > 100 {
		return eris.Wrapf(ErrConfiguration, "config: accept_threshold %d outside (0,100]", e.AcceptThreshold)
	}
	if e.MinSources < 1 {
		return eris.Wrapf(ErrConfiguration, "config: min_sources %d must be at least 1", e.MinSources)
	}
	if e.QuarantineBand < 0 || e.AcceptThreshold+e.QuarantineBand > 101 {
		return eris.Wrapf(ErrConfiguration, "config: quarantine_band %d invalid", e.QuarantineBand)
	}
	if len(e.OfficialDomains) == 0 {
		return eris.Wrap(ErrConfiguration, "config: no official_domains configured")
	}
	if len(e.SeniorityMarkers) == 0 {
		return eris.Wrap(ErrConfiguration, "config: no seniority_markers configured")
	}
	if len(e.RequiredFields) == 0 {
		return eris.Wrap(ErrConfiguration, "config: no required_fields configured")
	}
	if phonenumbers.GetCountryCodeForRegion(strings.ToUpper(e.PhoneRegion)) == 0 {
		return eris.Wrapf(ErrConfiguration, "config: phone_region %q is not a known region", e.PhoneRegion)
	}
	return nil
}

// Validate checks the whole configuration before a run starts.
func (c *Config) Validate() error {
	if err := c.Enrichment.Validate(); err != nil {
		return err
	}
	if c.Batch.MaxConcurrentRows < 1 || c.Batch.MaxConcurrentRows > 64 {
		return eris.Wrapf(ErrConfiguration, "config: batch.max_concurrent_rows must be between 1 and 64, got %d", c.Batch.MaxConcurrentRows)
	}
	seen := make(map[string]bool, len(c.Connectors))
	for _, cc := range c.Connectors {
		if cc.Name == "" {
			return eris.Wrap(ErrConfiguration, "config: connector without name")
		}
		if seen[cc.Name] {
			return eris.Wrapf(ErrConfiguration, "config: duplicate connector %q", cc.Name)
		}
		seen[cc.Name] = true
		switch cc.Kind {
		case "fixture", "http", "null":
		default:
			return eris.Wrapf(ErrConfiguration, "config: connector %q has unknown kind %q", cc.Name, cc.Kind)
		}
	}
	switch c.Sink.Driver {
	case "jsonl", "sqlite", "postgres", "none":
	default:
		return eris.Wrapf(ErrConfiguration, "config: unknown sink driver %q", c.Sink.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
