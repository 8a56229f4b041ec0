// Package config loads the broker and client YAML configuration.
package config

import (
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so intervals can be written as "1s",
// "500ms" and so on in the YAML.
type Duration struct {
	Duration time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var value string
	if err := unmarshal(&value); err != nil {
		return err
	}
	val, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrap(err, "parsing duration")
	}
	d.Duration = val
	return nil
}

type BrokerConf struct {
	Retry  *Duration `yaml:"retry"`
	Topics string    `yaml:"topics"`
}

type ApiConf struct {
	Listen string `yaml:"listen"`
}

type ClientConf struct {
	Server   string    `yaml:"server"`
	Tries    int       `yaml:"tries"`
	Retry    *Duration `yaml:"retry"`
	Snapshot string    `yaml:"snapshot"`
}

type Config struct {
	Broker BrokerConf `yaml:"broker"`
	Api    ApiConf    `yaml:"api"`
	Client ClientConf `yaml:"client"`
}

// RetryInterval is the broker's pause between delivery rounds (default 1s).
func (c *Config) RetryInterval() time.Duration {
	if c.Broker.Retry != nil {
		return c.Broker.Retry.Duration
	}
	return time.Second
}

// ApiListen is the HTTP listen address (default :8723).
func (c *Config) ApiListen() string {
	if c.Api.Listen != "" {
		return c.Api.Listen
	}
	return ":8723"
}

// ClientTries is how often a client action is attempted before giving up
// (default 100).
func (c *Config) ClientTries() int {
	if c.Client.Tries != 0 {
		return c.Client.Tries
	}
	return 100
}

// ClientRetryInterval is the client's pause between attempts (default 1s).
func (c *Config) ClientRetryInterval() time.Duration {
	if c.Client.Retry != nil {
		return c.Client.Retry.Duration
	}
	return time.Second
}

// Open configuration from disk.
func Open(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	return OpenRaw(data)
}

// Open configuration from a reader.
func OpenReader(r io.Reader) (*Config, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return OpenRaw(data)
}

// Open configuration from []byte.
func OpenRaw(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	return config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{}
}
