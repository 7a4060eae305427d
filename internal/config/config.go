package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Reader contains card reader polling configuration.
type Reader struct {
	DisableBeep   bool `toml:"disable_beep"`
	IdlePollMS    int  `toml:"idle_poll_ms"`
	RemovalPollMS int  `toml:"removal_poll_ms"`
	Hotplug       bool `toml:"hotplug"`
}

// Lock contains single-instance lock configuration.
type Lock struct {
	Mode           string `toml:"mode"`
	File           string `toml:"file"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UpdateSeconds  int    `toml:"update_seconds"`
}

// Output contains UID delivery configuration.
type Output struct {
	Mode         string   `toml:"mode"`
	PasteBackend string   `toml:"paste_backend"`
	PasteKeys    string   `toml:"paste_keys"`
	PasteCommand []string `toml:"paste_command"`
	SettleMS     int      `toml:"settle_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for nfckeyboard.
//
// Configuration sections by subsystem:
//   - Paths: state (lock, pid, socket) and log directories
//   - Reader: poll intervals, beep suppression, hotplug monitoring
//   - Lock: single-instance strategy and heartbeat timing
//   - Output: clipboard/paste delivery of card UIDs
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Reader  Reader  `toml:"reader"`
	Lock    Lock    `toml:"lock"`
	Output  Output  `toml:"output"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. It also reports the resolved path and whether a
// file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(strings.TrimSpace(path))
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the absolute path of the instance lock artifact.
func (c *Config) LockPath() string {
	if filepath.IsAbs(c.Lock.File) {
		return c.Lock.File
	}
	return filepath.Join(c.Paths.StateDir, c.Lock.File)
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "nfckeyboard.sock")
}

// PIDPath returns the pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "nfckeyboard.pid")
}

// IdlePollInterval is the delay between presence probes while no card is seated.
func (c *Config) IdlePollInterval() time.Duration {
	return time.Duration(c.Reader.IdlePollMS) * time.Millisecond
}

// RemovalPollInterval is the delay between removal probes while a processed card is seated.
func (c *Config) RemovalPollInterval() time.Duration {
	return time.Duration(c.Reader.RemovalPollMS) * time.Millisecond
}

// LockTimeout is the age after which a heartbeat lock artifact is considered abandoned.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutSeconds) * time.Second
}

// LockUpdateInterval is the heartbeat refresh period.
func (c *Config) LockUpdateInterval() time.Duration {
	return time.Duration(c.Lock.UpdateSeconds) * time.Second
}

// SettleDelay is the pause between the clipboard write and the paste keystroke.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Output.SettleMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
