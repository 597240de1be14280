package config

import (
	"fmt"
	"time"
)

// CurrentVersion is the only config file version this build understands
const CurrentVersion = 1

// Config represents the entire user configuration file.
type Config struct {
	Version   int                  `yaml:"version"`
	Decoder   *DecoderConfig       `yaml:"decoder,omitempty"`
	Filter    *FilterConfig        `yaml:"filter,omitempty"`
	Inputs    []*InputConfig       `yaml:"inputs,omitempty"`
	Sinks     *SinksConfig         `yaml:"sinks,omitempty"`
	Server    *ServerConfig        `yaml:"server,omitempty"`
	Endpoints map[string]*Endpoint `yaml:"endpoints,omitempty"` // Keyed by ECU id
}

// DecoderConfig selects how byte streams are turned into frames.
type DecoderConfig struct {
	Profile       string `yaml:"profile"`        // "default" or "autosar"
	StorageHeader bool   `yaml:"storage_header"` // Files carry 16-byte storage headers
	Resync        bool   `yaml:"resync"`         // Skip past malformed frames
}

// FilterConfig selects which decoded frames are passed on. Empty lists match
// everything.
type FilterConfig struct {
	MinLevel   string   `yaml:"min_level,omitempty"` // e.g. "info"; empty passes all
	AppIDs     []string `yaml:"app_ids,omitempty"`
	ContextIDs []string `yaml:"context_ids,omitempty"`
	EcuIDs     []string `yaml:"ecu_ids,omitempty"`
}

// Input types
const (
	InputTCP    = "tcp"    // Connect to a DLT daemon
	InputFile   = "file"   // Read capture files once
	InputFollow = "follow" // Tail growing capture files
)

// InputConfig describes one byte-stream source.
type InputConfig struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Address  string   `yaml:"address,omitempty"`  // tcp only, host:port
	Patterns []string `yaml:"patterns,omitempty"` // file and follow, doublestar globs
}

// SinksConfig lists the optional outputs of the relay server.
type SinksConfig struct {
	MQTT    *MQTTConfig    `yaml:"mqtt,omitempty"`
	Nanomsg *NanomsgConfig `yaml:"nanomsg,omitempty"`
}

// MQTTConfig configures publishing of records to an MQTT broker.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`                 // e.g. tcp://localhost:1883
	TopicPrefix string `yaml:"topic_prefix"`           // topics are <prefix>/<ecu>/<app>/<ctx>
	Encoding    string `yaml:"encoding"`               // "msgpack" or "json"
	ClientID    string `yaml:"client_id,omitempty"`    // defaults to dlttap-<uuid>
	QoS         byte   `yaml:"qos,omitempty"`          // 0, 1 or 2
	Username    string `yaml:"username,omitempty"`     // Password is read from DLTTAP_MQTT_PASSWORD
	Retained    bool   `yaml:"retained,omitempty"`     // Publish with the retain flag
	Timeout     int    `yaml:"timeout_secs,omitempty"` // Publish timeout, seconds
}

// NanomsgConfig configures the nanomsg PUB socket.
type NanomsgConfig struct {
	Listen string `yaml:"listen"` // e.g. tcp://0.0.0.0:40899
}

// ServerConfig configures the WebSocket relay.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Advertise bool   `yaml:"advertise"` // Announce via mDNS
	CertFile  string `yaml:"cert,omitempty"`
	KeyFile   string `yaml:"key,omitempty"`
}

// Endpoint represents user-defined metadata for a known DLT daemon.
type Endpoint struct {
	Address  string    `yaml:"address"`
	Nickname string    `yaml:"nickname,omitempty"`
	LastSeen time.Time `yaml:"last_seen,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Version: CurrentVersion,
		Decoder: &DecoderConfig{
			Profile:       "default",
			StorageHeader: true,
			Resync:        true,
		},
		Filter:    &FilterConfig{},
		Server:    &ServerConfig{Port: 8080, Advertise: true},
		Endpoints: make(map[string]*Endpoint),
	}
}

// applyDefaults fills sections missing from a loaded file.
func (c *Config) applyDefaults() {
	def := New()
	if c.Decoder == nil {
		c.Decoder = def.Decoder
	}
	if c.Filter == nil {
		c.Filter = def.Filter
	}
	if c.Server == nil {
		c.Server = def.Server
	}
	if c.Endpoints == nil {
		c.Endpoints = def.Endpoints
	}
	if c.Sinks != nil && c.Sinks.MQTT != nil {
		m := c.Sinks.MQTT
		if m.TopicPrefix == "" {
			m.TopicPrefix = "dlt"
		}
		if m.Encoding == "" {
			m.Encoding = "msgpack"
		}
		if m.Timeout == 0 {
			m.Timeout = 5
		}
	}
}

// Validate checks the config for values the tools cannot act on.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Decoder != nil {
		switch c.Decoder.Profile {
		case "", "default", "autosar", "prs":
		default:
			return fmt.Errorf("decoder.profile: unknown profile %q", c.Decoder.Profile)
		}
	}

	names := make(map[string]bool)
	for i, in := range c.Inputs {
		if in.Name == "" {
			return fmt.Errorf("inputs[%d]: name is required", i)
		}
		if names[in.Name] {
			return fmt.Errorf("inputs[%d]: duplicate name %q", i, in.Name)
		}
		names[in.Name] = true

		switch in.Type {
		case InputTCP:
			if in.Address == "" {
				return fmt.Errorf("inputs[%d] (%s): tcp input needs an address", i, in.Name)
			}
		case InputFile, InputFollow:
			if len(in.Patterns) == 0 {
				return fmt.Errorf("inputs[%d] (%s): %s input needs at least one pattern", i, in.Name, in.Type)
			}
		default:
			return fmt.Errorf("inputs[%d] (%s): unknown type %q (expected tcp, file or follow)", i, in.Name, in.Type)
		}
	}

	if c.Sinks != nil && c.Sinks.MQTT != nil {
		m := c.Sinks.MQTT
		if m.Broker == "" {
			return fmt.Errorf("sinks.mqtt.broker is required")
		}
		if m.QoS > 2 {
			return fmt.Errorf("sinks.mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
		}
		switch m.Encoding {
		case "", "msgpack", "json":
		default:
			return fmt.Errorf("sinks.mqtt.encoding: unknown encoding %q", m.Encoding)
		}
	}
	if c.Sinks != nil && c.Sinks.Nanomsg != nil && c.Sinks.Nanomsg.Listen == "" {
		return fmt.Errorf("sinks.nanomsg.listen is required")
	}
	if c.Server != nil && (c.Server.Port < 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server != nil && (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("server.cert and server.key must be set together")
	}
	return nil
}

// Input returns the input with the given name, or nil.
func (c *Config) Input(name string) *InputConfig {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// EnsureEndpoint ensures an endpoint entry exists for the ECU id.
func (c *Config) EnsureEndpoint(ecu string) *Endpoint {
	if c.Endpoints == nil {
		c.Endpoints = make(map[string]*Endpoint)
	}
	if ep, exists := c.Endpoints[ecu]; exists {
		return ep
	}
	ep := &Endpoint{}
	c.Endpoints[ecu] = ep
	return ep
}

// UpdateEndpointLastSeen records that the ECU was reachable at address.
func (c *Config) UpdateEndpointLastSeen(ecu, address string) {
	ep := c.EnsureEndpoint(ecu)
	ep.Address = address
	ep.LastSeen = time.Now()
}

// ResolveEndpoint maps a nickname or ECU id to a daemon address. Anything
// else is returned unchanged, on the assumption that it is an address.
func (c *Config) ResolveEndpoint(target string) string {
	if ep, ok := c.Endpoints[target]; ok && ep.Address != "" {
		return ep.Address
	}
	for _, ep := range c.Endpoints {
		if ep.Nickname != "" && ep.Nickname == target && ep.Address != "" {
			return ep.Address
		}
	}
	return target
}
