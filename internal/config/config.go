// Package config loads the governance engine's process configuration from
// a YAML file plus environment variable overrides, using viper the way
// the teacher repo does.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full process configuration for enactd.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	OTEL      OTELConfig      `mapstructure:"otel"`
	Oversight OversightConfig `mapstructure:"oversight"`
	Validation ValidationConfig `mapstructure:"validation"`
}

// ValidationConfig configures the built-in justification validator.
type ValidationConfig struct {
	MinJustificationLength int                 `mapstructure:"min_justification_length"`
	RequiredKeywords       map[string][]string `mapstructure:"required_keywords"`
}

// OversightConfig configures the approval workflow's high-risk matching
// and confidence-escalation thresholds.
type OversightConfig struct {
	HighRiskTools     []string `mapstructure:"high_risk_tools"`
	HighRiskFunctions []string `mapstructure:"high_risk_functions"`
	Confidence        ConfidenceConfig `mapstructure:"confidence"`
}

// ConfidenceConfig holds the three confidence-escalation boundaries.
type ConfidenceConfig struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
	Low    float64 `mapstructure:"low"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
}

// PolicyConfig points at the declarative policy file the registry's
// default group policy is loaded from, and the OPA/Rego extension point.
type PolicyConfig struct {
	FilePath      string `mapstructure:"file_path"`
	RegoQuery     string `mapstructure:"rego_query"`
	RegoPolicyDir string `mapstructure:"rego_policy_dir"`
}

// RateLimitConfig holds the token-bucket parameters shared by every
// (agent, tool) bucket; the limiter has no per-pair override.
type RateLimitConfig struct {
	MaxPerMinute int `mapstructure:"max_per_minute"`
	BurstSize    int `mapstructure:"burst_size"`
}

// QuotaConfig holds the default rolling-window quota parameters.
type QuotaConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// BreakerConfig holds the default circuit-breaker parameters.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// AuditConfig selects and configures which built-in sinks the engine fans
// decisions out to. Every sink is independently optional.
type AuditConfig struct {
	File       FileAuditConfig       `mapstructure:"file"`
	HTTP       HTTPAuditConfig       `mapstructure:"http"`
	Syslog     SyslogAuditConfig     `mapstructure:"syslog"`
	CloudWatch CloudWatchAuditConfig `mapstructure:"cloudwatch"`
	Postgres   bool                  `mapstructure:"postgres"`
}

// FileAuditConfig configures the JSON-line file sink.
type FileAuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// HTTPAuditConfig configures the HTTP sink.
type HTTPAuditConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyslogAuditConfig configures the RFC 5424 syslog sink.
type SyslogAuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Network  string `mapstructure:"network"` // udp or tcp
	Address  string `mapstructure:"address"`
	Facility int    `mapstructure:"facility"`
}

// CloudWatchAuditConfig configures the CloudWatch Logs sink.
type CloudWatchAuditConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Region      string        `mapstructure:"region"`
	LogGroup    string        `mapstructure:"log_group"`
	LogStream   string        `mapstructure:"log_stream"`
	BatchMax    int           `mapstructure:"batch_max"`
	FlushPeriod time.Duration `mapstructure:"flush_period"`
}

// DatabaseConfig holds PostgreSQL configuration, used by the tool-metadata
// registry bootstrap (internal/registry/postgres.LoadRegistry/UpsertTool)
// and the optional Postgres audit sink.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// AuthConfig holds the single bearer token the API surface enforces.
// AllowedRoles is loaded but not read by the API; there are no per-scope
// tokens.
type AuthConfig struct {
	BearerToken string   `mapstructure:"bearer_token"`
	AllowedRoles []string `mapstructure:"allowed_roles"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Load reads configuration from path (if non-empty) and the standard
// config locations, then layers environment variable overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/enact")
		v.AddConfigPath("$HOME/.enact")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ENACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("policy.rego_query", "data.enact.allow")

	v.SetDefault("rate_limit.max_per_minute", 60)
	v.SetDefault("rate_limit.burst_size", 10)

	v.SetDefault("quota.max_requests", 1000)
	v.SetDefault("quota.window", time.Hour)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.timeout", 30*time.Second)

	v.SetDefault("audit.file.enabled", true)
	v.SetDefault("audit.file.path", "./audit.log")
	v.SetDefault("audit.http.timeout", 5*time.Second)
	v.SetDefault("audit.syslog.network", "udp")
	v.SetDefault("audit.syslog.facility", 16) // local0
	v.SetDefault("audit.cloudwatch.batch_max", 25)
	v.SetDefault("audit.cloudwatch.flush_period", 5*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "enact")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)

	v.SetDefault("otel.enabled", true)
	v.SetDefault("otel.service_name", "enactd")
	v.SetDefault("otel.sampling_rate", 1.0)

	v.SetDefault("oversight.confidence.high", 0.9)
	v.SetDefault("oversight.confidence.medium", 0.7)
	v.SetDefault("oversight.confidence.low", 0.5)

	v.SetDefault("validation.min_justification_length", 10)
}

func bindEnvVars(v *viper.Viper) {
	if val := os.Getenv("POSTGRES_USER"); val != "" {
		v.Set("database.user", val)
	}
	if val := os.Getenv("POSTGRES_PASSWORD"); val != "" {
		v.Set("database.password", val)
	}
	if val := os.Getenv("ENACT_BEARER_TOKEN"); val != "" {
		v.Set("auth.bearer_token", val)
	}
}

// DSN returns the PostgreSQL connection string for tooling that wants a
// plain DSN (the registry bootstrap itself injects the password via
// struct field instead, to keep it out of error-path strings).
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
