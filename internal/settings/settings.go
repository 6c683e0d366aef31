// Package settings loads flickd's daemon settings from defaults, an
// optional flickd.yaml file, FLICK_* environment variables and command-line
// flags, in increasing order of precedence.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/micro-nova/flick-go/internal/models"
)

// FileName is the settings file base name searched for when no explicit
// path is given.
const FileName = "flickd"

// Settings is the daemon configuration. The user-facing snapshot shared
// between nodes lives in internal/config, not here.
type Settings struct {
	Node      string `mapstructure:"node" yaml:"node" validate:"required"`
	ConfigDir string `mapstructure:"config_dir" yaml:"config_dir" validate:"required"`
	Debug     bool   `mapstructure:"debug" yaml:"debug"`

	Link    Link    `mapstructure:"link" yaml:"link"`
	HTTP    HTTP    `mapstructure:"http" yaml:"http"`
	Relay   Relay   `mapstructure:"relay" yaml:"relay"`
	Backend Backend `mapstructure:"backend" yaml:"backend"`
	Source  Source  `mapstructure:"source" yaml:"source"`
}

// Link configures the peer link between companion and host.
type Link struct {
	// Transport is "websocket" or "serial".
	Transport string `mapstructure:"transport" yaml:"transport" validate:"oneof=websocket serial"`
	// URL is the host's link endpoint for a websocket companion. Empty means
	// browse for the host with zeroconf.
	URL             string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	SerialPort      string        `mapstructure:"serial_port" yaml:"serial_port" validate:"required_if=Transport serial"`
	Baud            int           `mapstructure:"baud" yaml:"baud" validate:"gt=0"`
	Heartbeat       time.Duration `mapstructure:"heartbeat" yaml:"heartbeat" validate:"gt=0"`
	AckTimeout      time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout" validate:"gt=0"`
	DiscoverTimeout time.Duration `mapstructure:"discover_timeout" yaml:"discover_timeout" validate:"gt=0"`
}

// HTTP configures the host API.
type HTTP struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
	// APIKey protects /api when set.
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Zeroconf bool   `mapstructure:"zeroconf" yaml:"zeroconf"`
}

// Relay configures the companion outbox.
type Relay struct {
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval" validate:"gt=0"`
	// MaxQueued caps the outbox. Zero means unbounded.
	MaxQueued int `mapstructure:"max_queued" yaml:"max_queued" validate:"gte=0"`
}

// Backend configures the playback backends on the host.
type Backend struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gt=0"`
	WebAPIURL      string        `mapstructure:"webapi_url" yaml:"webapi_url" validate:"required,url"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	// MPRISPlayer is a bus name such as org.mpris.MediaPlayer2.vlc. Empty
	// means the first player found on the session bus.
	MPRISPlayer string `mapstructure:"mpris_player" yaml:"mpris_player"`
	Launcher    string `mapstructure:"launcher" yaml:"launcher" validate:"required"`
	ScriptsDir  string `mapstructure:"scripts_dir" yaml:"scripts_dir"`
	// Automations overrides the automation name run for a command token.
	Automations map[string]string `mapstructure:"automations" yaml:"automations,omitempty"`
}

// Source configures where the companion reads commands from.
type Source struct {
	Stdin bool `mapstructure:"stdin" yaml:"stdin"`
	// GPIO maps pin names to command tokens.
	GPIO     map[string]string `mapstructure:"gpio" yaml:"gpio,omitempty"`
	Debounce time.Duration     `mapstructure:"debounce" yaml:"debounce" validate:"gte=0"`
}

// NewViper returns a viper instance carrying flickd's defaults and
// environment binding. Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "flick"
	}
	v.SetDefault("node", host)
	v.SetDefault("config_dir", defaultConfigDir())
	v.SetDefault("debug", false)

	v.SetDefault("link.transport", "websocket")
	v.SetDefault("link.url", "")
	v.SetDefault("link.serial_port", "")
	v.SetDefault("link.baud", 115200)
	v.SetDefault("link.heartbeat", 2*time.Second)
	v.SetDefault("link.ack_timeout", 3*time.Second)
	v.SetDefault("link.discover_timeout", 5*time.Second)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.api_key", "")
	v.SetDefault("http.zeroconf", true)

	v.SetDefault("relay.retry_interval", 2*time.Second)
	v.SetDefault("relay.max_queued", 0)

	v.SetDefault("backend.connect_timeout", time.Second)
	v.SetDefault("backend.webapi_url", "https://api.spotify.com/v1")
	v.SetDefault("backend.poll_interval", 5*time.Second)
	v.SetDefault("backend.mpris_player", "")
	v.SetDefault("backend.launcher", "flick-automation")
	v.SetDefault("backend.scripts_dir", "")

	v.SetDefault("source.stdin", false)
	v.SetDefault("source.debounce", 50*time.Millisecond)

	v.SetEnvPrefix("FLICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the settings file into v and returns validated settings.
// With an empty path, flickd.yaml is searched for in the config dir and the
// working directory, and a missing file is not an error.
func Load(v *viper.Viper, path string) (Settings, error) {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(v.GetString("config_dir"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that every command token named in
// the automation and GPIO maps is known.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	for token := range s.Backend.Automations {
		if _, err := models.ParseCommand(token); err != nil {
			return fmt.Errorf("invalid settings: backend.automations: %w", err)
		}
	}
	for pin, token := range s.Source.GPIO {
		if _, err := models.ParseCommand(token); err != nil {
			return fmt.Errorf("invalid settings: source.gpio.%s: %w", pin, err)
		}
	}
	return nil
}

// AutomationNames returns the automation overrides keyed by command.
func (s Settings) AutomationNames() map[models.Command]string {
	out := make(map[models.Command]string, len(s.Backend.Automations))
	for token, name := range s.Backend.Automations {
		if c, err := models.ParseCommand(token); err == nil {
			out[c] = name
		}
	}
	return out
}

// YAML renders s the way it would appear in flickd.yaml.
func (s Settings) YAML() ([]byte, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return b, nil
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "flick")
	}
	return "/var/lib/flick"
}
