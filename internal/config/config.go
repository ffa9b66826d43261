package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shyim/db-vault/internal/scheduler"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for all environment variables
	EnvPrefix = "DB_VAULT_"
	// EnvSourcePrefix is the prefix for snapshot source environment variables
	EnvSourcePrefix = EnvPrefix + "SOURCE_"
	// EnvNotifyPrefix is the prefix for notification provider environment variables
	EnvNotifyPrefix = EnvPrefix + "NOTIFY_"
)

// ErrNoKey is returned when neither key material nor a key file is configured.
var ErrNoKey = errors.New("no key configured")

// Config holds the global application configuration
type Config struct {
	// Key material
	Key     string `mapstructure:"key"`
	KeyFile string `mapstructure:"key_file" validate:"omitempty,file"`

	// Directories
	BackupDir  string `mapstructure:"backup_dir" validate:"required"`
	TempDir    string `mapstructure:"temp_dir" validate:"required"`
	RestoreDir string `mapstructure:"restore_dir"`

	// Backup settings
	RetentionDays    int `mapstructure:"retention_days" validate:"gte=1"`
	CompressionLevel int `mapstructure:"compression_level" validate:"gte=-1,lte=9"`

	// Snapshot source
	Source *SourceConfig `mapstructure:"-"`

	// Notification settings
	NotifyConfigs map[string]*NotifyConfig `mapstructure:"-"`

	// Daemon settings
	SweepSchedule string `mapstructure:"sweep_schedule" validate:"required,cron"`

	// Metrics
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	// Per-command deadline, zero disables it
	Timeout time.Duration `mapstructure:"timeout"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
}

// SourceConfig describes the snapshot source of a backup run
type SourceConfig struct {
	Type    string
	Options map[string]string
}

// NotifyConfig represents a named notification provider configuration
type NotifyConfig struct {
	Name    string
	Type    string
	Options map[string]string
}

// NewViper returns a viper instance with defaults and environment binding set up.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("key", "")
	v.SetDefault("key_file", "")
	v.SetDefault("backup_dir", "/var/backups/db-vault")
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("restore_dir", "")
	v.SetDefault("retention_days", 30)
	v.SetDefault("compression_level", -1)
	v.SetDefault("sweep_schedule", "0 3 * * *")
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("timeout", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// ReadFile merges a YAML configuration file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Load builds the configuration from v and the repeatable --source and --notify
// arguments, then validates it. Precedence for source and notify options is
// config file, then environment, then arguments.
func Load(v *viper.Viper, sourceArgs, notifyArgs []string) (*Config, error) {
	cfg := &Config{
		Key:              v.GetString("key"),
		KeyFile:          v.GetString("key_file"),
		BackupDir:        v.GetString("backup_dir"),
		TempDir:          v.GetString("temp_dir"),
		RestoreDir:       v.GetString("restore_dir"),
		RetentionDays:    v.GetInt("retention_days"),
		CompressionLevel: v.GetInt("compression_level"),
		SweepSchedule:    v.GetString("sweep_schedule"),
		MetricsTextfile:  v.GetString("metrics_textfile"),
		Timeout:          v.GetDuration("timeout"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		LogFormat:        strings.ToLower(v.GetString("log_format")),
		Source:           &SourceConfig{Options: make(map[string]string)},
		NotifyConfigs:    make(map[string]*NotifyConfig),
	}

	for option, value := range v.GetStringMapString("source") {
		cfg.setSourceOption(option, value)
	}
	for provider, raw := range v.GetStringMap("notify") {
		options, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid notify configuration for %q: expected a map of options", provider)
		}
		for option, value := range options {
			cfg.setNotifyConfigOption(provider, option, fmt.Sprint(value))
		}
	}

	if err := cfg.ParseSource(sourceArgs); err != nil {
		return nil, err
	}
	if err := cfg.ParseNotifyConfigs(notifyArgs); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = val.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return scheduler.Validate(fl.Field().String()) == nil
	})
	return val
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ResolveRestoreDir returns the restore directory, defaulting to the backup directory.
func (c *Config) ResolveRestoreDir() string {
	if c.RestoreDir != "" {
		return c.RestoreDir
	}
	return c.BackupDir
}

// KeyMaterial returns the configured key string. An inline key wins over a key file.
func (c *Config) KeyMaterial() (string, error) {
	if c.Key != "" {
		return c.Key, nil
	}
	if c.KeyFile == "" {
		return "", ErrNoKey
	}

	data, err := os.ReadFile(c.KeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// LogValue implements slog.LogValuer. Key material is never rendered.
func (c *Config) LogValue() slog.Value {
	key := "unset"
	switch {
	case c.Key != "":
		key = "[redacted]"
	case c.KeyFile != "":
		key = "file:" + c.KeyFile
	}

	sourceType := ""
	if c.Source != nil {
		sourceType = c.Source.Type
	}

	return slog.GroupValue(
		slog.String("backup_dir", c.BackupDir),
		slog.String("temp_dir", c.TempDir),
		slog.String("source", sourceType),
		slog.Int("retention_days", c.RetentionDays),
		slog.Int("compression_level", c.CompressionLevel),
		slog.Int("notifiers", len(c.NotifyConfigs)),
		slog.String("key", key),
	)
}

// ParseSource applies DB_VAULT_SOURCE_* environment variables and then
// option=value arguments to the snapshot source.
func (c *Config) ParseSource(args []string) error {
	// First, parse environment variables
	c.parseSourceEnvVars()

	// Then parse CLI arguments (these override env vars)
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return fmt.Errorf("invalid source argument format: %s (expected option=value)", arg)
		}

		c.setSourceOption(parts[0], parts[1])
	}

	return nil
}

// RequireSource fails when no source type is configured.
func (c *Config) RequireSource() error {
	if c.Source == nil || c.Source.Type == "" {
		return errors.New("snapshot source is missing required 'type' option (use --source type=<name>)")
	}
	return nil
}

func (c *Config) parseSourceEnvVars() {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvSourcePrefix) {
			continue
		}

		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		// Remove prefix: DB_VAULT_SOURCE_DOCKER_HOST -> DOCKER_HOST
		option := strings.TrimPrefix(parts[0], EnvSourcePrefix)
		if option == "" {
			continue
		}

		// Convert underscores to hyphens in option name (DOCKER_HOST -> docker-host)
		option = strings.ReplaceAll(strings.ToLower(option), "_", "-")

		c.setSourceOption(option, parts[1])
	}
}

func (c *Config) setSourceOption(option, value string) {
	if c.Source == nil {
		c.Source = &SourceConfig{Options: make(map[string]string)}
	}

	// Handle type specially
	if option == "type" {
		c.Source.Type = value
	} else {
		c.Source.Options[option] = value
	}
}

// ParseNotifyConfigs applies DB_VAULT_NOTIFY_* environment variables and then
// provider.option=value arguments.
func (c *Config) ParseNotifyConfigs(args []string) error {
	// First, parse environment variables
	c.parseNotifyEnvVars()

	// Then parse CLI arguments (these override env vars)
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid notify argument format: %s (expected provider.option=value)", arg)
		}

		key := parts[0]
		value := parts[1]

		// Split key into provider name and option
		keyParts := strings.SplitN(key, ".", 2)
		if len(keyParts) != 2 {
			return fmt.Errorf("invalid notify key format: %s (expected provider.option)", key)
		}

		c.setNotifyConfigOption(keyParts[0], keyParts[1], value)
	}

	// Validate all configs have a type
	for name, cfg := range c.NotifyConfigs {
		if cfg.Type == "" {
			return fmt.Errorf("notification provider %q is missing required 'type' option", name)
		}
	}

	return nil
}

func (c *Config) parseNotifyEnvVars() {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvNotifyPrefix) {
			continue
		}

		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		// Remove prefix: DB_VAULT_NOTIFY_TELEGRAM_TOKEN -> TELEGRAM_TOKEN
		remainder := strings.TrimPrefix(parts[0], EnvNotifyPrefix)

		// Split into provider name and option: TELEGRAM_TOKEN -> TELEGRAM, TOKEN
		underscoreIdx := strings.Index(remainder, "_")
		if underscoreIdx == -1 {
			continue // Invalid format
		}

		providerName := strings.ToLower(remainder[:underscoreIdx])
		option := strings.ToLower(remainder[underscoreIdx+1:])

		// Convert underscores to hyphens in option name (CHAT_ID -> chat-id)
		option = strings.ReplaceAll(option, "_", "-")

		c.setNotifyConfigOption(providerName, option, parts[1])
	}
}

func (c *Config) setNotifyConfigOption(providerName, option, value string) {
	if c.NotifyConfigs == nil {
		c.NotifyConfigs = make(map[string]*NotifyConfig)
	}

	cfg, exists := c.NotifyConfigs[providerName]
	if !exists {
		cfg = &NotifyConfig{
			Name:    providerName,
			Options: make(map[string]string),
		}
		c.NotifyConfigs[providerName] = cfg
	}

	// Handle type specially
	if option == "type" {
		cfg.Type = value
	} else {
		cfg.Options[option] = value
	}
}
