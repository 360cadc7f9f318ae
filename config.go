package cohort

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// Config is the CLI configuration file.
type Config struct {
	Node NodeConfig `toml:"node"`
	MQTT MQTTConfig `toml:"mqtt"`
}

type NodeConfig struct {
	URL             string        `toml:"url"`
	TLSVerification bool          `toml:"tls_verification"`
	Timeout         time.Duration `toml:"timeout"`
}

// MQTTConfig points the CLI at the broker nodes publish their events to.
type MQTTConfig struct {
	Address  string        `toml:"address"`
	Username string        `toml:"username"`
	Password string        `toml:"password"`
	Prefix   string        `toml:"prefix"`
	QoS      uint8         `toml:"qos"`
	Timeout  time.Duration `toml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			URL:     "http://localhost:7000",
			Timeout: 30 * time.Second,
		},
		MQTT: MQTTConfig{
			Address: "tcp://localhost:1883",
			Prefix:  "cohort",
			QoS:     1,
			Timeout: 30 * time.Second,
		},
	}
}

// LoadConfig reads path, falling back to DefaultConfig for missing keys.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	def := DefaultConfig()
	if cfg.Node.URL == "" {
		cfg.Node.URL = def.Node.URL
	}
	if cfg.Node.Timeout == 0 {
		cfg.Node.Timeout = def.Node.Timeout
	}
	if cfg.MQTT.Address == "" {
		cfg.MQTT.Address = def.MQTT.Address
	}
	if cfg.MQTT.Prefix == "" {
		cfg.MQTT.Prefix = def.MQTT.Prefix
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = def.MQTT.Timeout
	}

	return &cfg, nil
}
