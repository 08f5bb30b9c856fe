// Package config loads ledcore settings from defaults, an optional TOML
// file and LEDCORE_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfig names the environment variable holding an explicit config path.
const EnvConfig = "LEDCORE_CONFIG"

// Config holds application configuration.
type Config struct {
	DB      DBConfig
	Sim     SimConfig
	Export  ExportConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// DBConfig holds sqlite settings.
type DBConfig struct {
	Path string
}

// SimConfig holds defaults for simulate, soak and watch.
type SimConfig struct {
	DT   float64
	Seed uint64
	// Leds overrides the project's LED count when nonzero.
	Leds int
}

// ExportConfig holds export target selection.
type ExportConfig struct {
	Target      string
	TargetPacks string `mapstructure:"target_packs"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	File  string
}

// MetricsConfig holds the diagnostics listener address; empty disables it.
type MetricsConfig struct {
	Addr string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "ledcore.db")
	v.SetDefault("sim.dt", 1.0/60.0)
	v.SetDefault("sim.seed", 0)
	v.SetDefault("sim.leds", 0)
	v.SetDefault("export.target", "esp32_fastled_msgeq7")
	v.SetDefault("export.target_packs", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.addr", "")
}

// Default returns the configuration with no file or environment applied.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration. path selects a config file explicitly; when
// empty, LEDCORE_CONFIG is consulted, then ledcore.toml in the working
// directory and in $HOME/.config/ledcore. A missing file is only an error
// when it was named explicitly.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ledcore")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ledcore"))
		}
	}

	v.SetEnvPrefix("LEDCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case explicit:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		case !errors.As(err, &notFound):
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if !(c.Sim.DT > 0) {
		errs = append(errs, fmt.Errorf("sim.dt must be positive, got %v", c.Sim.DT))
	}
	if c.Sim.Leds < 0 {
		errs = append(errs, fmt.Errorf("sim.leds must not be negative, got %d", c.Sim.Leds))
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	return errors.Join(errs...)
}
