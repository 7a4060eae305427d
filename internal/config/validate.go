package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateReader(); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateReader() error {
	for name, value := range map[string]int{
		"reader.idle_poll_ms":    c.Reader.IdlePollMS,
		"reader.removal_poll_ms": c.Reader.RemovalPollMS,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
		if value > maxPollIntervalMS {
			return fmt.Errorf("%s must not exceed %d", name, maxPollIntervalMS)
		}
	}
	return nil
}

func (c *Config) validateLock() error {
	switch c.Lock.Mode {
	case LockModeFlock:
		return nil
	case LockModeHeartbeat:
	default:
		return fmt.Errorf("lock.mode: unsupported value %q (expected %q or %q)", c.Lock.Mode, LockModeFlock, LockModeHeartbeat)
	}
	if c.Lock.TimeoutSeconds <= 0 {
		return errors.New("lock.timeout_seconds must be positive")
	}
	if c.Lock.UpdateSeconds <= 0 {
		return errors.New("lock.update_seconds must be positive")
	}
	if c.Lock.TimeoutSeconds-c.Lock.UpdateSeconds < minHeartbeatGapSeconds {
		return errors.New("lock.timeout_seconds must be greater than lock.update_seconds")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Mode {
	case OutputModePaste:
	case OutputModeClipboard, OutputModeStdout:
		return nil
	default:
		return fmt.Errorf("output.mode: unsupported value %q", c.Output.Mode)
	}
	if c.Output.SettleMS < 0 {
		return errors.New("output.settle_ms must not be negative")
	}
	switch c.Output.PasteBackend {
	case PasteBackendUinput:
		return nil
	case PasteBackendCommand:
		if len(c.Output.PasteCommand) == 0 {
			return errors.New("output.paste_command must be set when output.paste_backend is \"command\"")
		}
		return nil
	default:
		return fmt.Errorf("output.paste_backend: unsupported value %q", c.Output.PasteBackend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
