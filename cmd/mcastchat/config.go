package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/units"
	pkgMath "github.com/naist-inet-lab/go-ipv6multicast/pkg/math"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

const defaultPort = 32100

// Config of a chat session. The YAML keys match the long flag names.
type Config struct {
	Name       string `yaml:"name"`
	Group      string `yaml:"group"`
	Port       int    `yaml:"port"`
	BufferSize string `yaml:"buffer-size"`
	IgnoreOwn  bool   `yaml:"ignore-own"`
	Interface  string `yaml:"interface"`
	HopLimit   int    `yaml:"hop-limit"`
	LogLevel   string `yaml:"log-level"`
}

func DefaultConfig() Config {
	return Config{
		Group:      "ff02::1",
		Port:       defaultPort,
		BufferSize: "1KiB",
		IgnoreOwn:  true,
		HopLimit:   1,
		LogLevel:   "warn",
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read config %v: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("cannot parse config %v: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(c.Group) == "" {
		return errors.New("group is required")
	}
	if port, err := pkgMath.SafeCastTo[uint16](c.Port); err != nil || port == 0 {
		return fmt.Errorf("invalid port %v", c.Port)
	}
	if _, err := pkgMath.SafeCastTo[uint8](c.HopLimit); err != nil {
		return fmt.Errorf("invalid hop limit: %w", err)
	}
	if _, err := c.BufferBytes(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// BufferBytes parses BufferSize, e.g. "1500B", "1KiB" or "64KiB". A UDP datagram never exceeds 64KiB.
func (c Config) BufferBytes() (int, error) {
	size, err := units.ParseBase2Bytes(c.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer size %q: %w", c.BufferSize, err)
	}
	if size <= 0 || size > 64*units.KiB {
		return 0, fmt.Errorf("invalid buffer size %q: must be between 1B and 64KiB", c.BufferSize)
	}
	return int(size), nil
}

func (c Config) Level() (logging.LogLevel, error) {
	switch strings.ToLower(c.LogLevel) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q (valid: disabled, error, warn, info, debug, trace)", c.LogLevel)
}
