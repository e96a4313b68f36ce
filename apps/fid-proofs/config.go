package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
	"github.com/arkiv/arkiv-platform-reference/internal/store"
)

const envPrefix = "FIDPROOFS"

// Config is fixed for the lifetime of the process.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Hub       HubConfig       `mapstructure:"hub"`
	Range     RangeConfig     `mapstructure:"range"`
	Workers   int             `mapstructure:"workers" validate:"gte=1"`
	Transport TransportConfig `mapstructure:"transport"`
	Request   RequestConfig   `mapstructure:"request"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres bolt memory"`
	URI    string `mapstructure:"uri" validate:"required_unless=Driver memory"`
}

type HubConfig struct {
	Scheme string `mapstructure:"scheme" validate:"oneof=http https"`
	Host   string `mapstructure:"host" validate:"required"`
	Port   int    `mapstructure:"port" validate:"gte=1,lte=65535"`
}

type RangeConfig struct {
	Start uint64 `mapstructure:"start"`
	End   uint64 `mapstructure:"end" validate:"gtefield=Start"`
}

type TransportConfig struct {
	PoolSize int `mapstructure:"pool_size" validate:"gte=1"`
}

type RequestConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	Backoff     time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type ProgressConfig struct {
	Interval int `mapstructure:"interval" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig targets the public nemes hub over the full fid range.
func DefaultConfig() Config {
	return Config{
		Storage:   StorageConfig{Driver: store.DriverSQLite, URI: "fid-proofs.sqlite"},
		Hub:       HubConfig{Scheme: "https", Host: "nemes.farcaster.xyz", Port: 2281},
		Range:     RangeConfig{Start: 1, End: 906000},
		Workers:   20,
		Transport: TransportConfig{PoolSize: 10},
		Request:   RequestConfig{Timeout: 2 * time.Second},
		Retry:     RetryConfig{MaxAttempts: 3},
		Progress:  ProgressConfig{Interval: 100},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// HubURL is the base URL requests are sent to.
func (c Config) HubURL() string {
	return proof.HubURL(c.Hub.Scheme, c.Hub.Host, c.Hub.Port)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// flagBinding ties a CLI flag to its config key.
type flagBinding struct {
	flag string
	key  string
}

var flagBindings = []flagBinding{
	{"storage-driver", "storage.driver"},
	{"storage-uri", "storage.uri"},
	{"hub-scheme", "hub.scheme"},
	{"hub-host", "hub.host"},
	{"hub-port", "hub.port"},
	{"start-fid", "range.start"},
	{"end-fid", "range.end"},
	{"workers", "workers"},
	{"pool-size", "transport.pool_size"},
	{"request-timeout", "request.timeout"},
	{"max-retries", "retry.max_attempts"},
	{"retry-backoff", "retry.backoff"},
	{"progress-interval", "progress.interval"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
	{"metrics-addr", "metrics.addr"},
}

// registerFlags declares every config flag with its default.
func registerFlags(flags *pflag.FlagSet) {
	d := DefaultConfig()
	flags.String("config", "", "path to a config file (default: config.yaml in /etc/fid-proofs, $HOME/.fid-proofs or .)")
	flags.String("storage-driver", d.Storage.Driver, "record store backend: sqlite, postgres, bolt or memory")
	flags.String("storage-uri", d.Storage.URI, "sqlite/bolt file path or postgres connection string")
	flags.String("hub-scheme", d.Hub.Scheme, "hub URL scheme")
	flags.String("hub-host", d.Hub.Host, "hub host")
	flags.Int("hub-port", d.Hub.Port, "hub HTTP port")
	flags.Uint64("start-fid", d.Range.Start, "first fid to fetch (inclusive)")
	flags.Uint64("end-fid", d.Range.End, "last fid to fetch (inclusive)")
	flags.Int("workers", d.Workers, "maximum fids processed concurrently")
	flags.Int("pool-size", d.Transport.PoolSize, "number of reusable HTTP clients")
	flags.Duration("request-timeout", d.Request.Timeout, "per-request timeout")
	flags.Int("max-retries", d.Retry.MaxAttempts, "total attempts per fid")
	flags.Duration("retry-backoff", d.Retry.Backoff, "base delay between attempts; 0 retries immediately")
	flags.Int("progress-interval", d.Progress.Interval, "log throughput every N persisted records")
	flags.String("log-level", d.Log.Level, "debug, info, warn or error")
	flags.String("log-format", d.Log.Format, "json or text")
	flags.String("metrics-addr", d.Metrics.Addr, "serve /metrics and /healthz on this address; empty disables")
}

// newViper binds flags, FIDPROOFS_* environment variables and the optional
// config file, in that order of precedence.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, b := range flagBindings {
		if err := v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", b.flag, err)
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range []string{"/etc/fid-proofs", "$HOME/.fid-proofs", "."} {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// LoadConfig resolves the final configuration and validates it.
func LoadConfig(flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(flags)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
