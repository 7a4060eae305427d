package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/ipc"
	"nfckeyboard/internal/pcsc"
	"nfckeyboard/internal/preflight"
)

type commandContext struct {
	socketFlag   *string
	configFlag   *string
	logLevelFlag *string

	// establish opens the PC/SC context for commands that talk to the reader.
	establish preflight.ContextFactory
	// daemonOptions are forwarded to the foreground watcher.
	daemonOptions []daemon.Option

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{establish: pcsc.Establish}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil {
		if socket := strings.TrimSpace(*c.socketFlag); socket != "" {
			return socket
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return defaultSocketPath()
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to nfckeyboard: socket %s not found; start it with `nfckeyboard run`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to nfckeyboard: socket %s refused the connection; verify the process is running", socket)
	default:
		return fmt.Errorf("connect to nfckeyboard: %w", err)
	}
}

func defaultSocketPath() string {
	cfg := config.Default()
	if state, err := config.ExpandPath(cfg.Paths.StateDir); err == nil {
		cfg.Paths.StateDir = state
	}
	return cfg.SocketPath()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
