package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/benchlog/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix     = "BENCHLOG"
	DefaultLogLevel      = string(LogLevelInfo)
	DefaultInterval      = 5
	DefaultRecentMinutes = 10
	DefaultStopTimeout   = 5 * time.Second
	DefaultDBPath        = "/var/lib/benchlog/benchlog.db"
	DefaultBackupDir     = "/var/lib/benchlog/backups"
	configName           = "benchlog"
)

type Config struct {
	DBPath          string        `mapstructure:"db_path"`
	Interval        int           `mapstructure:"interval"`
	LogLevel        string        `mapstructure:"log_level"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	RecentMinutes   int           `mapstructure:"recent_minutes"`
	BackupOnMigrate bool          `mapstructure:"backup_on_migrate"`
	BackupDir       string        `mapstructure:"backup_dir"`
	PIDFile         string        `mapstructure:"pid_file"`
	LegacyTimezone  string        `mapstructure:"legacy_timezone"`
}

func defaults() map[string]any {
	return map[string]any{
		"db_path":           DefaultDBPath,
		"interval":          DefaultInterval,
		"log_level":         DefaultLogLevel,
		"read_timeout":      time.Duration(0),
		"stop_timeout":      DefaultStopTimeout,
		"recent_minutes":    DefaultRecentMinutes,
		"backup_on_migrate": true,
		"backup_dir":        DefaultBackupDir,
		"pid_file":          filepath.Join(os.TempDir(), "benchlog.pid"),
		"legacy_timezone":   "",
	}
}

// RegisterFlags adds one flag per configuration key, named with dashes.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("db-path", DefaultDBPath, "Path to the sqlite database")
	fs.Int("interval", DefaultInterval, "Default poll interval in seconds")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Duration("read-timeout", 0, "Per-read device timeout, 0 disables")
	fs.Duration("stop-timeout", DefaultStopTimeout, "How long stop waits for the poll loop")
	fs.Int("recent-minutes", DefaultRecentMinutes, "Window for recent data queries")
	fs.Bool("backup-on-migrate", true, "Back up the database before adopting or migrating it")
	fs.String("backup-dir", DefaultBackupDir, "Directory for database backups")
	fs.String("pid-file", filepath.Join(os.TempDir(), "benchlog.pid"), "PID file used by the collector")
	fs.String("legacy-timezone", "", "Zone of timestamps in adopted unversioned databases (empty means local)")
}

// Load reads configuration from defaults, the config file, the environment
// and flags, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigType("toml")
	configPath := o.configPath
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc/benchlog")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "benchlog"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for key := range defaults() {
			f := o.flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, struct {
			Code  errors.ErrorCode
			Value string
		}{
			Code:  errors.ErrInvalidLogLevel,
			Value: c.LogLevel,
		})
	}
	if c.DBPath == "" {
		return errFactory.New(errors.ErrInvalidDBPath)
	}
	if c.ReadTimeout < 0 || c.StopTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidTimeout, struct {
			ReadTimeout time.Duration
			StopTimeout time.Duration
		}{
			ReadTimeout: c.ReadTimeout,
			StopTimeout: c.StopTimeout,
		})
	}

	if _, err := c.LegacyLocation(); err != nil {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			LegacyTimezone string
			Error          string
		}{
			LegacyTimezone: c.LegacyTimezone,
			Error:          err.Error(),
		})
	}

	return nil
}

// LegacyLocation resolves LegacyTimezone. Empty means the host's local zone.
func (c *Config) LegacyLocation() (*time.Location, error) {
	if c.LegacyTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.LegacyTimezone)
}
