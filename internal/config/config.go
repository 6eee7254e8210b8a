// Package config loads the application configuration from a YAML file, a
// .env file and ASTROBOT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Session backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ASTROBOT_"

// Config is the application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Flows   FlowsConfig   `mapstructure:"flows" yaml:"flows"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Actions ActionsConfig `mapstructure:"actions" yaml:"actions"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Twilio  TwilioConfig  `mapstructure:"twilio" yaml:"twilio"`
	Dedup   DedupConfig   `mapstructure:"dedup" yaml:"dedup"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text | json
}

type FlowsConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

type SessionConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// DSN is the redis URL, the SQL DSN or the directory of the file store.
	DSN     string        `mapstructure:"dsn" yaml:"dsn"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Prefix  string        `mapstructure:"prefix" yaml:"prefix"`
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey  string   `mapstructure:"encryption_key" yaml:"encryption_key"`
	FallbackKeys   []string `mapstructure:"fallback_keys" yaml:"fallback_keys"`
	RedactPatterns []string `mapstructure:"redact" yaml:"redact"`
}

type ActionsConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Strict  bool          `mapstructure:"strict" yaml:"strict"`
	// Processes is a YAML/JSON file binding action ids to external commands.
	// A missing file means no process actions.
	Processes string `mapstructure:"processes" yaml:"processes"`
	// WorkDir is the working directory of process actions.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	WebhookPath string `mapstructure:"webhook_path" yaml:"webhook_path"`
	// PublicURL is the externally visible base URL, used to verify webhook
	// signatures behind proxies.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`
	// APIToken protects the JSON API with a bearer token when set.
	APIToken string `mapstructure:"api_token" yaml:"api_token"`
}

type TwilioConfig struct {
	AccountSID        string `mapstructure:"account_sid" yaml:"account_sid"`
	AuthToken         string `mapstructure:"auth_token" yaml:"auth_token"`
	From              string `mapstructure:"from" yaml:"from"`
	ValidateSignature bool   `mapstructure:"validate_signature" yaml:"validate_signature"`
}

type DedupConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Flows: FlowsConfig{Path: "flows"},
		Session: SessionConfig{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
			Prefix:  "astrobot:",
			LockTTL: 30 * time.Second,
		},
		Actions: ActionsConfig{Timeout: 10 * time.Second, Processes: "actions.yaml"},
		HTTP:    HTTPConfig{Addr: ":8080", WebhookPath: "/webhook/twilio"},
		Twilio:  TwilioConfig{ValidateSignature: true},
		Dedup:   DedupConfig{Enabled: true, TTL: 24 * time.Hour},
	}
}

// Load builds the configuration. path may be empty; envFile is loaded when
// it exists and never overrides variables already set.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// envBinding maps a variable to a field.
type envBinding struct {
	name  string
	field any
}

func bindings(cfg *Config) []envBinding {
	return []envBinding{
		{EnvPrefix + "LOG_LEVEL", &cfg.Log.Level},
		{EnvPrefix + "LOG_FORMAT", &cfg.Log.Format},
		{EnvPrefix + "FLOWS_PATH", &cfg.Flows.Path},
		{EnvPrefix + "FLOWS_WATCH", &cfg.Flows.Watch},
		{EnvPrefix + "SESSION_BACKEND", &cfg.Session.Backend},
		{EnvPrefix + "SESSION_DSN", &cfg.Session.DSN},
		{EnvPrefix + "SESSION_TTL", &cfg.Session.TTL},
		{EnvPrefix + "SESSION_PREFIX", &cfg.Session.Prefix},
		{EnvPrefix + "SESSION_LOCK_TTL", &cfg.Session.LockTTL},
		{EnvPrefix + "SESSION_ENCRYPTION_KEY", &cfg.Session.EncryptionKey},
		{EnvPrefix + "SESSION_FALLBACK_KEYS", &cfg.Session.FallbackKeys},
		{EnvPrefix + "SESSION_REDACT", &cfg.Session.RedactPatterns},
		{EnvPrefix + "ACTIONS_TIMEOUT", &cfg.Actions.Timeout},
		{EnvPrefix + "ACTIONS_STRICT", &cfg.Actions.Strict},
		{EnvPrefix + "ACTIONS_PROCESSES", &cfg.Actions.Processes},
		{EnvPrefix + "ACTIONS_WORK_DIR", &cfg.Actions.WorkDir},
		{EnvPrefix + "HTTP_ADDR", &cfg.HTTP.Addr},
		{EnvPrefix + "HTTP_WEBHOOK_PATH", &cfg.HTTP.WebhookPath},
		{EnvPrefix + "HTTP_PUBLIC_URL", &cfg.HTTP.PublicURL},
		{EnvPrefix + "HTTP_API_TOKEN", &cfg.HTTP.APIToken},
		{EnvPrefix + "DEDUP_ENABLED", &cfg.Dedup.Enabled},
		{EnvPrefix + "DEDUP_TTL", &cfg.Dedup.TTL},
		{EnvPrefix + "TWILIO_VALIDATE_SIGNATURE", &cfg.Twilio.ValidateSignature},
		// Twilio's own variable names, as its tooling documents them.
		{"TWILIO_ACCOUNT_SID", &cfg.Twilio.AccountSID},
		{"TWILIO_AUTH_TOKEN", &cfg.Twilio.AuthToken},
		{"TWILIO_FROM_NUMBER", &cfg.Twilio.From},
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range bindings(cfg) {
		val, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := setField(b.field, val); err != nil {
			return fmt.Errorf("invalid %s: %w", b.name, err)
		}
	}
	return nil
}

func setField(field any, val string) error {
	switch f := field.(type) {
	case *string:
		*f = val
	case *bool:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*f = b
	case *time.Duration:
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*f = d
	case *[]string:
		*f = nil
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				*f = append(*f, part)
			}
		}
	default:
		return fmt.Errorf("unsupported field type %s", reflect.TypeOf(field))
	}
	return nil
}

// Validate reports every inconsistency at once.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Flows.Path == "" {
		errs = append(errs, errors.New("flows.path is required"))
	}

	switch c.Session.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis, BackendSQLite, BackendPostgres:
		if c.Session.DSN == "" {
			errs = append(errs, fmt.Errorf("session.dsn is required for the %s backend", c.Session.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.backend %q", c.Session.Backend))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must not be negative"))
	}
	if c.Session.LockTTL > 0 && c.Actions.Timeout > 0 && c.Session.LockTTL <= c.Actions.Timeout {
		errs = append(errs, fmt.Errorf("session.lock_ttl (%s) must exceed actions.timeout (%s)", c.Session.LockTTL, c.Actions.Timeout))
	}
	if c.Session.EncryptionKey == "" && len(c.Session.FallbackKeys) > 0 {
		errs = append(errs, errors.New("session.fallback_keys needs session.encryption_key"))
	}
	if c.Actions.Timeout < 0 {
		errs = append(errs, errors.New("actions.timeout must not be negative"))
	}
	if c.HTTP.WebhookPath != "" && !strings.HasPrefix(c.HTTP.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("http.webhook_path must start with /, got %q", c.HTTP.WebhookPath))
	}

	return errors.Join(errs...)
}

// TwilioEnabled reports whether outbound WhatsApp delivery is configured.
func (c Config) TwilioEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.From != ""
}
