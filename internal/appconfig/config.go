package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the top-level CLI settings file.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Daemon        DaemonConfig  `mapstructure:"daemon" yaml:"daemon"`
	Jobs          JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	ZOSMF         ZOSMFConfig   `mapstructure:"zosmf" yaml:"zosmf"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

const (
	// HomeEnv overrides the CLI home directory.
	HomeEnv = "ZOWE_CLI_HOME"
	// DaemonDirEnv overrides the directory holding the daemon pid file.
	DaemonDirEnv = "ZOWE_DAEMON_DIR"
	// SettingsFile is the settings file name inside the CLI home.
	SettingsFile = "settings.yaml"
)

// DaemonConfig controls where daemon state is kept.
type DaemonConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// JobsConfig controls job status polling.
type JobsConfig struct {
	WatchDelayMS int `mapstructure:"watch_delay_ms" yaml:"watch_delay_ms"`
	// MaxAttempts bounds status polls; 0 polls until the status is reached.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ZOSMFConfig holds REST defaults applied to every profile.
type ZOSMFConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// LoggingConfig toggles audit logging.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// WatchDelay returns the pause between job status polls.
func (c JobsConfig) WatchDelay() time.Duration {
	return time.Duration(c.WatchDelayMS) * time.Millisecond
}

// Timeout returns the REST call timeout.
func (c ZOSMFConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CLIHome returns the CLI home directory: $ZOWE_CLI_HOME or ~/.zowe.
func CLIHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv(HomeEnv)); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".zowe"), nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := CLIHome()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Daemon: DaemonConfig{
			Dir: filepath.Join(home, "daemon"),
		},
		Jobs: JobsConfig{
			WatchDelayMS: 3000,
			MaxAttempts:  0,
		},
		ZOSMF: ZOSMFConfig{
			TimeoutSeconds: 30,
		},
	}, nil
}

// DefaultConfigPath returns the standard settings path.
func DefaultConfigPath() (string, error) {
	home, err := CLIHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, SettingsFile), nil
}
