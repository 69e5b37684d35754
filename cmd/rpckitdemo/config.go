package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// demoConfig is the small layered config the demo CLI loads: struct
// defaults, an optional YAML file, then environment variables, in that
// order of increasing precedence.
type demoConfig struct {
	Addr           string        `koanf:"addr"`
	Debug          bool          `koanf:"debug"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`
	ConfigFile     string        `koanf:"config_file"`
}

func defaultDemoConfig() *demoConfig {
	return &demoConfig{
		Addr:           "localhost:8080",
		Debug:          false,
		Timeout:        5 * time.Second,
		MaxReconnects:  5,
		ReconnectDelay: 500 * time.Millisecond,
	}
}

func loadDemoConfig(configFile string) (*demoConfig, error) {
	k := koanf.New(".")

	defaults := defaultDemoConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	envProvider := env.Provider("RPCKITDEMO_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "RPCKITDEMO_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &demoConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
