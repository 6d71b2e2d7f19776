// Package config loads process configuration from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/codec"
)

const (
	// EnvPrefix applies to every key without a dedicated variable, e.g.
	// "refresh_interval" is read from SHELFCACHE_REFRESH_INTERVAL.
	EnvPrefix = "SHELFCACHE"

	// FileName is looked up in the working directory when Load gets no path.
	FileName = "shelfcache"
)

// Config aggregates everything cmd/shelfcache needs to wire the cache.
type Config struct {
	RedisURL    string `mapstructure:"redis_url"`
	DatabaseURL string `mapstructure:"database_url"`

	// TrendingTTL overrides shelfcache.TTLTrending. Accepts seconds ("300")
	// or a Go duration ("5m").
	TrendingTTL     time.Duration `mapstructure:"trending_ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ProbeInterval   time.Duration `mapstructure:"probe_interval"`
	OpTimeout       time.Duration `mapstructure:"op_timeout"`

	MaxConnectAttempts   int `mapstructure:"max_connect_attempts"`
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts"`

	// NamespaceIndex keeps a redis SET of keys per namespace so quota checks
	// and namespace-confined invalidations skip the keyspace SCAN. Every
	// writer sharing the keyspace must agree on it.
	NamespaceIndex bool `mapstructure:"namespace_index"`

	// Codec for values written by this process: json, cbor or msgpack.
	// Request handlers reading the same keys must use the same one.
	Codec string `mapstructure:"codec"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`

	// Quotas from the file are merged over shelfcache.DefaultQuotas. A quota
	// of 0 disables eviction for that namespace.
	Quotas map[string]int `mapstructure:"quotas"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		RedisURL:           "redis://localhost:6379/0",
		TrendingTTL:        shelfcache.TTLTrending,
		RefreshInterval:    2 * time.Hour,
		ProbeInterval:      60 * time.Second,
		OpTimeout:          2 * time.Second,
		MaxConnectAttempts: 10,
		Codec:              codec.NameJSON,
		MetricsAddr:        ":9090",
		LogLevel:           "info",
		Quotas:             shelfcache.DefaultQuotas(),
	}
}

// Load reads path (or ./shelfcache.yaml when path is empty and the file
// exists), then the environment. REDIS_URL, DATABASE_URL and
// TRENDING_CACHE_TTL are read without the prefix.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.BindEnv("redis_url", "REDIS_URL", EnvPrefix+"_REDIS_URL")
	_ = v.BindEnv("database_url", "DATABASE_URL", EnvPrefix+"_DATABASE_URL")
	_ = v.BindEnv("trending_ttl", "TRENDING_CACHE_TTL", EnvPrefix+"_TRENDING_TTL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg.Quotas = nil
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationHook)); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Quotas = mergeQuotas(shelfcache.DefaultQuotas(), cfg.Quotas)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.RedisURL == "" {
		errs = multierror.Append(errs, errors.New("redis_url is required"))
	} else if _, err := redis.ParseURL(c.RedisURL); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("redis_url: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"trending_ttl":     c.TrendingTTL,
		"refresh_interval": c.RefreshInterval,
		"probe_interval":   c.ProbeInterval,
	} {
		if d <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.MaxConnectAttempts < 0 || c.MaxReconnectAttempts < 0 {
		errs = multierror.Append(errs, errors.New("connect attempts must not be negative"))
	}
	if _, err := codec.Named[struct{}](c.Codec); err != nil {
		errs = multierror.Append(errs, err)
	}
	for ns, n := range c.Quotas {
		if n < 0 {
			errs = multierror.Append(errs, fmt.Errorf("quota %q must not be negative", ns))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// mergeQuotas overlays file quotas on defaults. viper lowercases keys, so
// file keys are matched to known namespaces case-insensitively.
func mergeQuotas(defaults, file map[string]int) map[string]int {
	known := make(map[string]string, len(defaults))
	for ns := range defaults {
		known[strings.ToLower(ns)] = ns
	}
	for k, n := range file {
		if ns, ok := known[strings.ToLower(k)]; ok {
			k = ns
		}
		defaults[k] = n
	}
	return defaults
}

// ParseDuration accepts a Go duration or a plain number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook decodes numbers as seconds and strings via ParseDuration.
func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch d := data.(type) {
	case string:
		return ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	}
	return data, nil
}

// bindEnvs registers every scalar key in cfg so viper consults the
// environment when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		switch f.Type.Kind() {
		case reflect.Struct:
			bindEnvs(v, val.Field(i).Interface(), key...)
		case reflect.Map:
			// file only
		default:
			_ = v.BindEnv(strings.Join(key, "."))
		}
	}
}
