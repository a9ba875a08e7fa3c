// Package config resolves runtime settings from defaults, an optional config
// file and CARBON_AWARE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/KollinFreise/carbonAwareHome/pkg"
)

const (
	EnvPrefix     = "CARBON_AWARE"
	EnvConfigPath = "CARBON_AWARE_CONFIG"
)

const (
	DefaultFetchTimeout   = 60 * time.Second
	DefaultRetryAttempts  = 4
	DefaultRetryBaseDelay = 5 * time.Second
	DefaultRetryMaxDelay  = 15 * time.Second
	DefaultHTTPAddr       = ":8080"
	DefaultStoreDriver    = "file"
	DefaultStoreDir       = "~/.carbon-aware-home"
	DefaultRedisAddr      = "localhost:6379"
	DefaultStoreTTL       = 24 * time.Hour
	DefaultTopicPrefix    = "carbon_aware_home"
	DefaultSensorInterval = time.Minute
	DefaultOutput         = "text"
)

type Config struct {
	ConfigPath string `mapstructure:"-"`

	Location string `mapstructure:"location" validate:"required,location"`
	// Locations lists extra locations to keep cached, comma separated.
	Locations              string `mapstructure:"locations"`
	RefreshIntervalMinutes int    `mapstructure:"-"`
	TimeZone               string `mapstructure:"timezone"`
	Output                 string `mapstructure:"output" validate:"oneof=text json"`

	FetchTimeout   time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	SensorInterval time.Duration `mapstructure:"sensor_interval" validate:"gt=0"`

	Retry RetryConfig `mapstructure:"retry"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Store StoreConfig `mapstructure:"store"`
	MQTT  MQTTConfig  `mapstructure:"mqtt"`
	Log   LogConfig   `mapstructure:"log"`

	// Warnings collects recoverable problems, such as an invalid refresh
	// interval that fell back to its default.
	Warnings []string `mapstructure:"-"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Driver    string        `mapstructure:"driver" validate:"oneof=file redis none"`
	Dir       string        `mapstructure:"dir"`
	RedisAddr string        `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix" validate:"required"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password" json:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("location", pkg.DefaultLocation)
	v.SetDefault("locations", "")
	v.SetDefault("refresh_interval_minutes", pkg.DefaultRefreshInterval)
	v.SetDefault("timezone", "Local")
	v.SetDefault("output", DefaultOutput)

	v.SetDefault("fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("sensor_interval", DefaultSensorInterval)

	v.SetDefault("retry.max_attempts", DefaultRetryAttempts)
	v.SetDefault("retry.base_delay", DefaultRetryBaseDelay)
	v.SetDefault("retry.max_delay", DefaultRetryMaxDelay)

	v.SetDefault("http.addr", DefaultHTTPAddr)

	v.SetDefault("store.driver", DefaultStoreDriver)
	v.SetDefault("store.dir", DefaultStoreDir)
	v.SetDefault("store.redis_addr", DefaultRedisAddr)
	v.SetDefault("store.ttl", DefaultStoreTTL)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load resolves the configuration. rawConfigPath wins over CARBON_AWARE_CONFIG;
// with neither set no file is read.
func Load(rawConfigPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := strings.TrimSpace(rawConfigPath)
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if configPath != "" {
		expanded, err := expandHomeDir(configPath)
		if err != nil {
			return Config{}, err
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigPath = configPath
	cfg.Location = strings.ToLower(strings.TrimSpace(cfg.Location))

	interval, warning := parseRefreshInterval(v.GetString("refresh_interval_minutes"))
	cfg.RefreshIntervalMinutes = interval
	if warning != "" {
		cfg.Warnings = append(cfg.Warnings, warning)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.TimeLocation(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseRefreshInterval falls back to the default for non-positive or
// non-numeric input instead of failing.
func parseRefreshInterval(raw string) (int, string) {
	raw = strings.TrimSpace(raw)
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return pkg.DefaultRefreshInterval, fmt.Sprintf(
			"invalid refresh_interval_minutes %q, using default %d", raw, pkg.DefaultRefreshInterval)
	}
	return minutes, ""
}

func validate(cfg Config) error {
	v := validator.New()
	if err := v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		return pkg.IsSupportedLocation(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register location validator: %w", err)
	}

	if err := v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return fmt.Errorf("invalid config %s: failed %q (value %v)", first.Namespace(), first.Tag(), first.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for _, location := range cfg.ExtraLocations() {
		if !pkg.IsSupportedLocation(location) {
			return fmt.Errorf("invalid config locations: unsupported location %q", location)
		}
	}
	return nil
}

// AllLocations returns Location followed by the extra locations, deduplicated.
func (c Config) AllLocations() []string {
	out := []string{c.Location}
	seen := map[string]struct{}{c.Location: {}}
	for _, location := range c.ExtraLocations() {
		if _, ok := seen[location]; ok {
			continue
		}
		seen[location] = struct{}{}
		out = append(out, location)
	}
	return out
}

func (c Config) ExtraLocations() []string {
	var out []string
	for _, part := range strings.Split(c.Locations, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// TimeLocation resolves TimeZone; "Local" or empty means time.Local.
func (c Config) TimeLocation() (*time.Location, error) {
	name := strings.TrimSpace(c.TimeZone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid config timezone %q: %w", name, err)
	}
	return loc, nil
}

// StoreDir returns Store.Dir with a leading ~ expanded.
func (c Config) StoreDir() (string, error) {
	return expandHomeDir(c.Store.Dir)
}

func expandHomeDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
