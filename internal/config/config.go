package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dkeye/voicehost/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type Config struct {
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release"`
	RelayURL     string        `mapstructure:"relay_url" validate:"required,url"`
	ShareBaseURL string        `mapstructure:"share_base_url" validate:"required,url"`
	STUNServers  []string      `mapstructure:"stun_servers" validate:"dive,required"`
	TURNServer   string        `mapstructure:"turn_server"`
	TURNUser     string        `mapstructure:"turn_user" validate:"required_with=TURNServer"`
	TURNPass     string        `mapstructure:"turn_pass" validate:"required_with=TURNServer"`
	Log          LogConfig     `mapstructure:"log"`
	StatusAddr   string        `mapstructure:"status_addr"`
	AudioFile    string        `mapstructure:"audio_file"`
	WriteWait    time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	PongWait     time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	ReadLimit    int64         `mapstructure:"read_limit" validate:"min=1024"`
	SendBuffer   int           `mapstructure:"send_buffer" validate:"min=1"`
	PortMin      uint16        `mapstructure:"port_min"`
	PortMax      uint16        `mapstructure:"port_max" validate:"omitempty,gtefield=PortMin"`
	Reconnects   int           `mapstructure:"reconnects" validate:"min=0"`
	AudioSlots   int           `mapstructure:"audio_slots" validate:"min=1,max=32"`
}

var defaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
}

// BindFlags registers the command-line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("relay-url", "", "relay server websocket endpoint")
	fs.String("share-base-url", "", "base URL used to build share links")
	fs.String("status-addr", "", "address of the host status API (empty disables it)")
	fs.String("audio-file", "", "Ogg/Opus file used as the microphone")
	fs.String("log-level", "", "log level (trace|debug|info|warn|error)")
	fs.String("log-format", "", "log format (console|json)")
}

var flagKeys = map[string]string{
	"relay-url":      "relay_url",
	"share-base-url": "share_base_url",
	"status-addr":    "status_addr",
	"audio-file":     "audio_file",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Load reads config/config.<CONFIG_ENV>.yaml, then VOICEHOST_* environment
// variables, then any flags set on fs. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("VOICEHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("relay_url", "ws://localhost:9000/ws")
	v.SetDefault("share_base_url", "http://localhost:3000")
	v.SetDefault("stun_servers", defaultSTUN)
	v.SetDefault("turn_server", "")
	v.SetDefault("turn_user", "")
	v.SetDefault("turn_pass", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("status_addr", "")
	v.SetDefault("audio_file", "")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("port_min", 0)
	v.SetDefault("port_max", 0)
	v.SetDefault("reconnects", 3)
	v.SetDefault("audio_slots", 4)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ICEServers returns the STUN list plus the TURN server, if configured.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 2)
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if c.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{c.TURNServer},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// RoomLink is the URL a participant opens to join room.
func (c *Config) RoomLink(room domain.RoomID) string {
	return strings.TrimRight(c.ShareBaseURL, "/") + "/channel/" + url.PathEscape(string(room))
}

var ErrBadRoomInput = errors.New("not a room id or share link")

// ParseRoomInput accepts a bare room id or a share link and returns the id.
func ParseRoomInput(input string) (domain.RoomID, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrBadRoomInput
	}
	if !strings.Contains(input, "://") {
		if strings.ContainsAny(input, "/?#") {
			return "", fmt.Errorf("%w: %q", ErrBadRoomInput, input)
		}
		return domain.RoomID(input), nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRoomInput, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] != "channel" || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("%w: %q", ErrBadRoomInput, input)
	}
	id, err := url.PathUnescape(parts[len(parts)-1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRoomInput, err)
	}
	return domain.RoomID(id), nil
}
