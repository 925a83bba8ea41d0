package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/census-geocoder/internal/resilience"
	"github.com/sells-group/census-geocoder/pkg/geocode"
)

// Config holds the full application configuration.
type Config struct {
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// GeocodeConfig configures the Census geocoder and its HTTP transport.
type GeocodeConfig struct {
	Domain       string  `yaml:"domain" mapstructure:"domain"`
	Scheme       string  `yaml:"scheme" mapstructure:"scheme"`
	Benchmark    string  `yaml:"benchmark" mapstructure:"benchmark"`
	FormatString string  `yaml:"format_string" mapstructure:"format_string"`
	TimeoutSecs  float64 `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	ProxyURL     string  `yaml:"proxy_url" mapstructure:"proxy_url"`
	MaxAttempts  int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("geocode.domain", geocode.DefaultDomain)
	v.SetDefault("geocode.scheme", "https")
	v.SetDefault("geocode.benchmark", geocode.DefaultBenchmark)
	v.SetDefault("geocode.format_string", "%s")
	v.SetDefault("geocode.timeout_secs", geocode.DefaultTimeout.Seconds())
	v.SetDefault("geocode.user_agent", geocode.DefaultUserAgent)
	v.SetDefault("geocode.proxy_url", "")
	v.SetDefault("geocode.max_attempts", 1)
	v.SetDefault("geocode.rate_limit", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks the geocoder settings and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	g := c.Geocode
	if strings.Trim(g.Domain, "/") == "" {
		problems = append(problems, "geocode.domain is required")
	}
	if g.Scheme != "http" && g.Scheme != "https" {
		problems = append(problems, "geocode.scheme must be http or https")
	}
	if g.Benchmark == "" {
		problems = append(problems, "geocode.benchmark is required")
	}
	if strings.Count(g.FormatString, "%s") != 1 {
		problems = append(problems, "geocode.format_string must contain exactly one %s")
	}
	if g.TimeoutSecs < 0 {
		problems = append(problems, "geocode.timeout_secs must be >= 0")
	}
	if g.MaxAttempts < 1 || g.MaxAttempts > 10 {
		problems = append(problems, "geocode.max_attempts must be between 1 and 10")
	}
	if g.RateLimit < 0 {
		problems = append(problems, "geocode.rate_limit must be >= 0")
	}
	if g.ProxyURL != "" {
		if u, err := url.Parse(g.ProxyURL); err != nil || u.Host == "" {
			problems = append(problems, "geocode.proxy_url is not a valid URL")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Options converts the configuration into geocoder options. Call Validate first.
func (g GeocodeConfig) Options() ([]geocode.Option, error) {
	opts := []geocode.Option{
		geocode.WithDomain(g.Domain),
		geocode.WithScheme(g.Scheme),
		geocode.WithBenchmark(g.Benchmark),
		geocode.WithFormatString(g.FormatString),
		geocode.WithTimeout(time.Duration(g.TimeoutSecs * float64(time.Second))),
		geocode.WithUserAgent(g.UserAgent),
		geocode.WithCallerOptions(
			geocode.WithCallerRateLimit(g.RateLimit),
			geocode.WithCallerRetry(resilience.FromAttempts(g.MaxAttempts)),
		),
	}
	if g.ProxyURL != "" {
		u, err := url.Parse(g.ProxyURL)
		if err != nil {
			return nil, eris.Wrap(err, "config: parse proxy url")
		}
		opts = append(opts, geocode.WithProxy(u))
	}
	return opts, nil
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
