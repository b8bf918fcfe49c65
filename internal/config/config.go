package config

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/ChiR24/Unreal-mcp-sub002/pkg/websocket"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint         = "ws://127.0.0.1:8091"
	DefaultCapabilityHeader = "X-MCP-Capability"
	DefaultProtocol         = "mcp-automation"
	DefaultClientName       = "mcp-automation-bridge"
	DefaultReconnectDelay   = 5 * time.Second
	DefaultTickInterval     = 250 * time.Millisecond
	DefaultMaxPending       = 1024
)

// FileConfig mirrors the YAML config layout. Pointer fields distinguish
// "absent" from an explicit zero.
type FileConfig struct {
	Endpoint          string           `yaml:"endpoint"`
	CapabilityToken   string           `yaml:"capabilityToken"`
	CapabilityHeader  string           `yaml:"capabilityHeader"`
	Protocols         []string         `yaml:"protocols"`
	ClientName        string           `yaml:"clientName"`
	ReconnectDelay    *time.Duration   `yaml:"reconnectDelay"`
	ReconnectMaxDelay time.Duration    `yaml:"reconnectMaxDelay"`
	ReconnectFactor   float64          `yaml:"reconnectFactor"`
	TickInterval      time.Duration    `yaml:"tickInterval"`
	PingInterval      time.Duration    `yaml:"pingInterval"`
	MaxPending        int              `yaml:"maxPending"`
	Socket            SocketFileConfig `yaml:"socket"`
}

// SocketFileConfig holds the websocket client timeouts and limits.
type SocketFileConfig struct {
	DialTimeout      time.Duration `yaml:"dialTimeout"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	CloseTimeout     time.Duration `yaml:"closeTimeout"`
	MaxPayloadSize   int           `yaml:"maxPayloadSize"`
}

// Config is the resolved bridge configuration.
type Config struct {
	Endpoint         string
	CapabilityToken  string
	CapabilityHeader string
	Protocols        []string
	ClientName       string
	// ReconnectDelay <= 0 disables automatic reconnection.
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectFactor   float64
	TickInterval      time.Duration
	PingInterval      time.Duration
	MaxPending        int
	Socket            websocket.Option
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, _ := resolve(FileConfig{})
	return cfg
}

// Load reads a YAML config file and resolves it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config "+path)
	}
	return Parse(data)
}

// Parse resolves YAML config bytes.
func Parse(data []byte) (Config, error) {
	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return resolve(file)
}

func resolve(file FileConfig) (Config, error) {
	cfg := Config{
		Endpoint:          strings.TrimSpace(file.Endpoint),
		CapabilityToken:   strings.TrimSpace(file.CapabilityToken),
		CapabilityHeader:  strings.TrimSpace(file.CapabilityHeader),
		Protocols:         file.Protocols,
		ClientName:        strings.TrimSpace(file.ClientName),
		ReconnectDelay:    DefaultReconnectDelay,
		ReconnectMaxDelay: file.ReconnectMaxDelay,
		ReconnectFactor:   file.ReconnectFactor,
		TickInterval:      file.TickInterval,
		PingInterval:      file.PingInterval,
		MaxPending:        file.MaxPending,
		Socket: websocket.Option{
			DialTimeout:      file.Socket.DialTimeout,
			HandshakeTimeout: file.Socket.HandshakeTimeout,
			WriteTimeout:     file.Socket.WriteTimeout,
			CloseTimeout:     file.Socket.CloseTimeout,
			MaxPayloadSize:   file.Socket.MaxPayloadSize,
		},
	}
	if file.ReconnectDelay != nil {
		cfg.ReconnectDelay = *file.ReconnectDelay
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.CapabilityHeader == "" {
		cfg.CapabilityHeader = DefaultCapabilityHeader
	}
	if file.Protocols == nil {
		cfg.Protocols = []string{DefaultProtocol}
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.MaxPending == 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.Socket.MaxPayloadSize == 0 {
		cfg.Socket.MaxPayloadSize = websocket.DefaultMaxPayloadSize
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the resolved values.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return exception.ErrConfigEndpoint
	}
	if _, err := websocket.ParseURL(c.Endpoint); err != nil {
		return err
	}
	if c.TickInterval <= 0 {
		return exception.ErrConfigTickInterval
	}
	if c.MaxPending <= 0 {
		return exception.ErrConfigMaxPending
	}
	if c.Socket.MaxPayloadSize <= 0 {
		return exception.ErrConfigPayloadSize
	}
	return nil
}

// Backoff returns the reconnect schedule. A disabled schedule has Min <= 0.
func (c Config) Backoff() websocket.Backoff {
	if c.ReconnectFactor <= 1 || c.ReconnectMaxDelay <= c.ReconnectDelay {
		return websocket.FixedBackoff(c.ReconnectDelay)
	}
	return websocket.Backoff{
		Min:    c.ReconnectDelay,
		Max:    c.ReconnectMaxDelay,
		Factor: c.ReconnectFactor,
	}
}

// SocketOption returns the websocket options including the handshake headers.
func (c Config) SocketOption() websocket.Option {
	opt := c.Socket
	opt.Protocols = append([]string(nil), c.Protocols...)
	opt.Header = http.Header{}
	if c.CapabilityToken != "" {
		opt.Header.Set(c.CapabilityHeader, c.CapabilityToken)
	}
	return opt
}
