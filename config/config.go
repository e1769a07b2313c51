package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kintai/kintai"
)

const (
	DriverBunt   = "buntdb"
	DriverSQLite = "sqlite"
)

type Config struct {
	DataDir    string        `mapstructure:"data_dir" yaml:"data_dir"`
	Store      StoreConfig   `mapstructure:"store" yaml:"store"`
	Log        LogConfig     `mapstructure:"log" yaml:"log"`
	SubjectID  int64         `mapstructure:"subject_id" yaml:"subject_id"`
	Timezone   string        `mapstructure:"timezone" yaml:"timezone"`
	ShiftHours float64       `mapstructure:"shift_hours" yaml:"shift_hours"`
	Policy     PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Monitor    MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	Notify     bool          `mapstructure:"notify" yaml:"notify"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// PolicyConfig is the break allowance used for workdays without their own configuration.
type PolicyConfig struct {
	WorkingHours float64 `mapstructure:"working_hours" yaml:"working_hours"`
	BreakHours   float64 `mapstructure:"break_hours" yaml:"break_hours"`
}

type MonitorConfig struct {
	PollingInterval    time.Duration `mapstructure:"polling_interval" yaml:"polling_interval"`
	StartBreakAfter    time.Duration `mapstructure:"start_break_after" yaml:"start_break_after"`
	FinishWorkingAfter time.Duration `mapstructure:"finish_working_after" yaml:"finish_working_after"`
}

// dataDirFunc returns the default data directory, replaceable in tests.
var dataDirFunc = defaultDataDir

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kintai"), nil
}

// Load reads .env, the environment (KINTAI_*) and an optional yaml file.
// An explicit file must exist; the default <data_dir>/config.yaml may not.
func Load(file string) (*Config, error) {
	_ = godotenv.Load()

	dataDir, err := dataDirFunc()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("KINTAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("store.driver", DriverBunt)
	v.SetDefault("store.path", "")
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.file", "")
	v.SetDefault("subject_id", 1)
	v.SetDefault("timezone", "Local")
	v.SetDefault("shift_hours", 5)
	v.SetDefault("policy.working_hours", 8)
	v.SetDefault("policy.break_hours", 1)
	v.SetDefault("monitor.polling_interval", time.Second)
	v.SetDefault("monitor.start_break_after", 35*time.Minute)
	v.SetDefault("monitor.finish_working_after", 4*time.Hour)
	v.SetDefault("notify", true)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.AddConfigPath(v.GetString("data_dir"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.File = v.ConfigFileUsed()

	if c.Store.Path == "" {
		name := "kintai.db"
		if c.Store.Driver == DriverSQLite {
			name = "kintai.sqlite"
		}
		c.Store.Path = filepath.Join(c.DataDir, name)
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.DataDir, "log.log")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverBunt, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.SubjectID < 1 {
		return fmt.Errorf("subject_id %d: %w", c.SubjectID, kintai.ErrInvalidSubject)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ShiftHours < 0 || c.ShiftHours >= 24 {
		return fmt.Errorf("shift_hours %v out of range", c.ShiftHours)
	}
	if _, err := kintai.NewBreakPolicy(c.Policy.WorkingHours, c.Policy.BreakHours); err != nil {
		return err
	}
	if c.Monitor.PollingInterval <= 0 || c.Monitor.StartBreakAfter <= 0 || c.Monitor.FinishWorkingAfter <= 0 {
		return errors.New("monitor durations must be positive")
	}
	if _, err := c.parseLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Shift() time.Duration {
	return time.Duration(c.ShiftHours * float64(time.Hour))
}

func (c *Config) SlogLevel() slog.Level {
	l, _ := c.parseLevel()
	return l
}

func (c *Config) parseLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelDebug, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

func (c *Config) LockFile() string {
	return filepath.Join(c.DataDir, "kintai.lock")
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
