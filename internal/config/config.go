// Package config loads websole settings.
//
// Settings are layered, later layers winning:
//   - built-in defaults
//   - the YAML config file (websole.yml, or the path given by --config or _WEB_CONFIG)
//   - _WEB_* environment variables
//   - command-line flags
//   - the positional command
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/pty"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "_WEB"

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "websole.yml"

// Config holds every websole setting.
type Config struct {
	// Host and Port form the listen address.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// Pass protects the console. Empty disables the password gate.
	Pass Secret `yaml:"webpass" json:"webpass"`

	// Command is the program to run.
	Command CommandLine `yaml:"command" json:"command"`

	// Dir is the working directory of the program. Empty inherits ours.
	Dir string `yaml:"dir" json:"dir,omitempty"`

	// Start runs the program at startup instead of on first demand.
	Start bool `yaml:"start" json:"start"`

	AllowRestart   bool `yaml:"allow_restart" json:"allowRestart" split_words:"true"`
	AutoRestart    bool `yaml:"auto_restart" json:"autoRestart" split_words:"true"`
	ClearOnRestart bool `yaml:"clear_on_restart" json:"clearOnRestart" split_words:"true"`

	// Scrollback is the replay budget in bytes.
	Scrollback int `yaml:"scrollback" json:"scrollback"`

	// ClientQueueDepth is how many events a client may lag behind before it
	// is disconnected.
	ClientQueueDepth int `yaml:"client_queue_depth" json:"clientQueueDepth" split_words:"true"`

	StartTimeout   time.Duration `yaml:"start_timeout" json:"startTimeout" split_words:"true"`
	TerminateGrace time.Duration `yaml:"terminate_grace" json:"terminateGrace" split_words:"true"`
	RestartDelay   time.Duration `yaml:"restart_delay" json:"restartDelay" split_words:"true"`

	// DB is the run history database path. Empty disables history.
	DB string `yaml:"db" json:"db,omitempty"`

	LogLevel   string `yaml:"log_level" json:"logLevel" split_words:"true"`
	LogConsole bool   `yaml:"log_console" json:"logConsole" split_words:"true"`
	Debug      bool   `yaml:"debug" json:"debug"`

	// Isolated silences the warning about listening on all interfaces, for
	// containers that are isolated anyway.
	Isolated bool `yaml:"isolated" json:"isolated"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host:             "localhost",
		Port:             1818,
		Start:            true,
		AllowRestart:     true,
		ClearOnRestart:   true,
		Scrollback:       256 * 1024,
		ClientQueueDepth: 256,
		StartTimeout:     10 * time.Second,
		TerminateGrace:   pty.DefaultTerminateGrace,
		RestartDelay:     time.Second,
		LogLevel:         "info",
		LogConsole:       true,
	}
}

// Load applies the config file at path and then the environment on top of
// the defaults. An empty path falls back to _WEB_CONFIG, then to
// DefaultFile if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, ok := os.LookupEnv(EnvPrefix + "_CONFIG"); ok && p != "" {
			path, explicit = p, true
		} else {
			path = DefaultFile
		}
	}

	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

// ApplyArgs sets the command from positional arguments. A single argument
// is split like a shell would; several are used verbatim.
func (c *Config) ApplyArgs(args []string) error {
	switch len(args) {
	case 0:
	case 1:
		split, err := pty.SplitCommand(args[0])
		if err != nil {
			return err
		}
		c.Command = split
	default:
		c.Command = append(CommandLine(nil), args...)
	}
	return nil
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return model.ErrCommandRequired
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Scrollback <= 0 {
		return fmt.Errorf("scrollback must be positive, got %d", c.Scrollback)
	}
	if c.ClientQueueDepth <= 0 {
		return fmt.Errorf("client_queue_depth must be positive, got %d", c.ClientQueueDepth)
	}
	if c.StartTimeout <= 0 || c.TerminateGrace <= 0 || c.RestartDelay <= 0 {
		return errors.New("start_timeout, terminate_grace and restart_delay must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EffectiveLogLevel returns the log level, forced to debug by Debug.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// JSON renders the configuration with the password masked.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
