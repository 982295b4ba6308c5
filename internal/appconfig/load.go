package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads settings from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("daemon.dir", cfg.Daemon.Dir)
	v.SetDefault("jobs.watch_delay_ms", cfg.Jobs.WatchDelayMS)
	v.SetDefault("jobs.max_attempts", cfg.Jobs.MaxAttempts)
	v.SetDefault("zosmf.timeout_seconds", cfg.ZOSMF.TimeoutSeconds)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)
	if err := v.BindEnv("daemon.dir", DaemonDirEnv); err != nil {
		return Config{}, err
	}

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Daemon.Dir = expandEnv(cfg.Daemon.Dir)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Daemon.Dir == "" {
		return errors.New("daemon.dir must not be empty")
	}
	if cfg.Jobs.WatchDelayMS < 0 {
		return fmt.Errorf("jobs.watch_delay_ms must not be negative, got %d", cfg.Jobs.WatchDelayMS)
	}
	if cfg.Jobs.MaxAttempts < 0 {
		return fmt.Errorf("jobs.max_attempts must not be negative, got %d", cfg.Jobs.MaxAttempts)
	}
	if cfg.ZOSMF.TimeoutSeconds < 0 {
		return fmt.Errorf("zosmf.timeout_seconds must not be negative, got %d", cfg.ZOSMF.TimeoutSeconds)
	}
	return nil
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return strconv.Itoa(os.Getuid()), true
	case "GID":
		return strconv.Itoa(os.Getgid()), true
	case HomeEnv:
		if home, err := CLIHome(); err == nil {
			return home, true
		}
	}
	return "", false
}

// WriteDefault writes the default settings to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
