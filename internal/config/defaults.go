package config

const (
	defaultConfigPath        = "~/.config/nfckeyboard/config.toml"
	projectConfigName        = "nfckeyboard.toml"
	defaultStateDir          = "~/.local/share/nfckeyboard"
	defaultLogDir            = "~/.local/share/nfckeyboard/logs"
	defaultIdlePollMS        = 500
	defaultRemovalPollMS     = 200
	defaultLockFile          = "nfckeyboard.lock"
	defaultLockTimeout       = 10
	defaultLockUpdate        = 5
	defaultPasteKeys         = "ctrl+v"
	defaultSettleMS          = 50
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	envLogLevel              = "NFCKEYBOARD_LOG_LEVEL"
	envLockMode              = "NFCKEYBOARD_LOCK_MODE"
	maxPollIntervalMS        = 60_000
	minHeartbeatGapSeconds   = 1
	defaultPasteBackendValue = PasteBackendUinput
)

// Lock modes.
const (
	LockModeFlock     = "flock"
	LockModeHeartbeat = "heartbeat"
)

// Output modes.
const (
	OutputModePaste     = "paste"
	OutputModeClipboard = "clipboard"
	OutputModeStdout    = "stdout"
)

// Paste backends.
const (
	PasteBackendUinput  = "uinput"
	PasteBackendCommand = "command"
)

func defaultPasteCommand() []string {
	return []string{"xdotool", "key", "--clearmodifiers", "ctrl+v"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Reader: Reader{
			DisableBeep:   true,
			IdlePollMS:    defaultIdlePollMS,
			RemovalPollMS: defaultRemovalPollMS,
			Hotplug:       true,
		},
		Lock: Lock{
			Mode:           LockModeFlock,
			File:           defaultLockFile,
			TimeoutSeconds: defaultLockTimeout,
			UpdateSeconds:  defaultLockUpdate,
		},
		Output: Output{
			Mode:         OutputModePaste,
			PasteBackend: defaultPasteBackendValue,
			PasteKeys:    defaultPasteKeys,
			PasteCommand: defaultPasteCommand(),
			SettleMS:     defaultSettleMS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
