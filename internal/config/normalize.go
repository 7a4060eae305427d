package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLock()
	c.normalizeOutput()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLock() {
	if value, ok := os.LookupEnv(envLockMode); ok && strings.TrimSpace(value) != "" {
		c.Lock.Mode = value
	}
	c.Lock.Mode = strings.ToLower(strings.TrimSpace(c.Lock.Mode))
	if c.Lock.Mode == "" {
		c.Lock.Mode = LockModeFlock
	}
	c.Lock.File = strings.TrimSpace(c.Lock.File)
	if c.Lock.File == "" {
		c.Lock.File = defaultLockFile
	}
	if strings.HasPrefix(c.Lock.File, "~") {
		if expanded, err := expandPath(c.Lock.File); err == nil {
			c.Lock.File = expanded
		}
	}
}

func (c *Config) normalizeOutput() {
	c.Output.Mode = strings.ToLower(strings.TrimSpace(c.Output.Mode))
	if c.Output.Mode == "" {
		c.Output.Mode = OutputModePaste
	}
	c.Output.PasteBackend = strings.ToLower(strings.TrimSpace(c.Output.PasteBackend))
	if c.Output.PasteBackend == "" {
		c.Output.PasteBackend = defaultPasteBackendValue
	}
	c.Output.PasteKeys = strings.ToLower(strings.TrimSpace(c.Output.PasteKeys))
	if c.Output.PasteKeys == "" {
		c.Output.PasteKeys = defaultPasteKeys
	}
	cleaned := make([]string, 0, len(c.Output.PasteCommand))
	for _, arg := range c.Output.PasteCommand {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	c.Output.PasteCommand = cleaned
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv(envLogLevel); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
