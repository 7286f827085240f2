package serve

import (
	"fmt"
	"os"
	"time"

	"go.miragespace.co/scanpipe/spec/frame"
	"go.miragespace.co/scanpipe/spec/pipe"

	"github.com/alecthomas/units"
	"gopkg.in/yaml.v3"
)

const configVersion = 1

type Retry struct {
	Attempts uint          `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	Delay    time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
}

type Config struct {
	path               string
	mode               pipe.Mode
	framing            frame.Framing
	charset            frame.Charset
	bufferSize         int
	Version            int    `yaml:"version" json:"version"`
	Name               string `yaml:"name" json:"name"`
	Mode               string `yaml:"mode" json:"mode"`
	BufferSize         string `yaml:"bufferSize,omitempty" json:"bufferSize,omitempty"`
	MaxInstances       int    `yaml:"maxInstances,omitempty" json:"maxInstances,omitempty"`
	Framing            string `yaml:"framing,omitempty" json:"framing,omitempty"`
	Charset            string `yaml:"charset,omitempty" json:"charset,omitempty"`
	SecurityDescriptor string `yaml:"securityDescriptor,omitempty" json:"securityDescriptor,omitempty"`
	Echo               bool   `yaml:"echo,omitempty" json:"echo,omitempty"`
	Retry              Retry  `yaml:"retry,omitempty" json:"retry,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		Version: configVersion,
		Mode:    pipe.ModeRead.String(),
	}
}

func NewConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.path = path
	if err := cfg.readFile(); err != nil {
		return nil, err
	}
	if err := cfg.checkVersion(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("error opening config file for reading: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("error decoding config file: %w", err)
	}
	return nil
}

func (c *Config) checkVersion() error {
	if c.Version != configVersion {
		return fmt.Errorf("expecting config version %d, got %v", configVersion, c.Version)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("pipe name is required")
	}

	mode, err := pipe.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	c.mode = mode

	framing, err := frame.ParseFraming(c.Framing)
	if err != nil {
		return err
	}
	c.framing = framing

	charset, err := frame.LookupCharset(c.Charset)
	if err != nil {
		return err
	}
	c.charset = charset

	c.bufferSize = pipe.BufferSize
	if c.BufferSize != "" {
		size, err := units.ParseBase2Bytes(c.BufferSize)
		if err != nil {
			return fmt.Errorf("error parsing buffer size %q: %w", c.BufferSize, err)
		}
		if size <= 0 || size > pipe.MaxBufferSize {
			return fmt.Errorf("buffer size must be between 1B and 1MiB, got %s", size)
		}
		c.bufferSize = int(size)
	}

	if c.MaxInstances < 0 || c.MaxInstances > pipe.MaxInstances {
		return fmt.Errorf("maxInstances must be between 1 and %d, got %d", pipe.MaxInstances, c.MaxInstances)
	}
	return nil
}
