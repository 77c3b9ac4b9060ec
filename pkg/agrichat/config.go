// Package agrichat wires the chat core, its providers, data sources and
// transports from a single config file.
package agrichat

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/harunnryd/agrichat/pkg/configutil"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
	Languages   LanguageConfig   `mapstructure:"languages"`
	Chain       ChainConfig      `mapstructure:"chain"`
	Providers   []ProviderConfig `mapstructure:"providers"`
	Data        DataConfig       `mapstructure:"data"`
	Redis       RedisConfig      `mapstructure:"redis"`
	ExpertSMS   ExpertSMSConfig  `mapstructure:"expert_sms"`
	Server      ServerConfig     `mapstructure:"server"`
	Chat        ChatConfig       `mapstructure:"chat"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Privacy     PrivacyConfig    `mapstructure:"privacy"`
}

type LanguageConfig struct {
	Default string `mapstructure:"default"`
}

type ChainConfig struct {
	TimeoutMS         int `mapstructure:"timeout_ms"`
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int `mapstructure:"breaker_cooldown_ms"`
}

// ProviderConfig is one remote response backend. Settings are decoded by
// the provider's factory.
type ProviderConfig struct {
	Name     string         `mapstructure:"name"`
	Type     string         `mapstructure:"type"`
	Priority int            `mapstructure:"priority"`
	Disabled bool           `mapstructure:"disabled"`
	Settings map[string]any `mapstructure:"settings"`
}

// Kind is the registry key: Type when set, else Name.
func (p ProviderConfig) Kind() string {
	return strings.ToLower(configutil.StringOr(p.Type, p.Name))
}

type DataConfig struct {
	// Source is "static", "http" or "none".
	Source    string `mapstructure:"source"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Prefix     string `mapstructure:"prefix"`
}

type ExpertSMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	PublicURL  string `mapstructure:"public_url"`
	StatusPath string `mapstructure:"status_path"`
	// TimeoutMS bounds one page; pages never hold up a turn.
	TimeoutMS int `mapstructure:"timeout_ms"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	ChatPath       string   `mapstructure:"chat_path"`
	MetricsPath    string   `mapstructure:"metrics_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	DrainTimeoutMS int      `mapstructure:"drain_timeout_ms"`
}

type ChatConfig struct {
	QueueSize       int    `mapstructure:"queue_size"`
	DefaultLocation string `mapstructure:"default_location"`
}

type MetricsConfig struct {
	// EventsPath, when set, appends every chat event as JSON lines.
	EventsPath string `mapstructure:"events_path"`
	Prometheus bool   `mapstructure:"prometheus"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("languages.default", "en")
	v.SetDefault("chain.timeout_ms", 8000)
	v.SetDefault("chain.breaker_threshold", 3)
	v.SetDefault("chain.breaker_cooldown_ms", 30000)
	v.SetDefault("data.source", "static")
	v.SetDefault("data.timeout_ms", 5000)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl_seconds", 900)
	v.SetDefault("redis.prefix", "agrichat:data:")
	v.SetDefault("expert_sms.enabled", false)
	v.SetDefault("expert_sms.status_path", "/sms/status")
	v.SetDefault("expert_sms.timeout_ms", 15000)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.chat_path", "/chat")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.drain_timeout_ms", 10000)
	v.SetDefault("chat.queue_size", 16)
	v.SetDefault("chat.default_location", "kumasi")
	v.SetDefault("metrics.prometheus", true)
	v.SetDefault("privacy.redact_pii", true)
}

// LoadConfig reads path (YAML, JSON or TOML by extension). An empty path
// yields the defaults. ${VAR} references in strings and provider settings
// are expanded from the environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Languages.Default, "languages.default"); err != nil {
		return err
	}
	if c.Chain.TimeoutMS < 0 {
		return fmt.Errorf("chain.timeout_ms must not be negative")
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("providers[%d].name %q is duplicated", i, p.Name)
		}
		seen[name] = true
	}
	switch strings.ToLower(c.Data.Source) {
	case "static", "none", "":
	case "http":
		if err := configutil.RequireString(c.Data.BaseURL, "data.base_url"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("data.source %q is not one of static, http, none", c.Data.Source)
	}
	if c.Redis.Enabled {
		if err := configutil.RequireString(c.Redis.Addr, "redis.addr"); err != nil {
			return err
		}
	}
	if c.ExpertSMS.Enabled {
		for path, v := range map[string]string{
			"expert_sms.account_sid": c.ExpertSMS.AccountSID,
			"expert_sms.auth_token":  c.ExpertSMS.AuthToken,
			"expert_sms.from":        c.ExpertSMS.From,
		} {
			if err := configutil.RequireString(v, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	for i := range cfg.Providers {
		cfg.Providers[i].Settings = expandSettings(cfg.Providers[i].Settings)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
