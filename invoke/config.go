package invoke

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// yamlInvokeConfig represents the YAML configuration structure for the
// invocation engine.
type yamlInvokeConfig struct {
	Mode struct {
		Debug bool `yaml:"debug"`
	} `yaml:"mode"`
	Limits struct {
		DefaultTimeout string `yaml:"defaultTimeout"`
		MaxConcurrency int    `yaml:"maxConcurrency"`
	} `yaml:"limits"`
}

func optionFromConfigBytes(b []byte) (Option, error) {
	var cfg yamlInvokeConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	var defaultTimeout time.Duration
	if cfg.Limits.DefaultTimeout != "" {
		d, err := time.ParseDuration(cfg.Limits.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("limits.defaultTimeout: %w", err)
		}
		defaultTimeout = d
	}

	return OptionFunc(func(o *Options) {
		o.DebugMode = cfg.Mode.Debug
		if defaultTimeout > 0 {
			o.DefaultTimeout = defaultTimeout
		}
		if cfg.Limits.MaxConcurrency > 0 {
			o.MaxConcurrency = cfg.Limits.MaxConcurrency
		}
	}), nil
}

// WithConfig parses YAML bytes following invoke.yml structure and applies it
// to Options. It panics if the YAML is invalid.
func WithConfig(yamlBytes []byte) Option {
	opt, err := optionFromConfigBytes(yamlBytes)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("invoke.WithConfig: %w", err))
		})
	}
	return opt
}

// WithConfigFile loads a YAML file and applies it to Options. It panics if
// the file cannot be read or the YAML is invalid.
func WithConfigFile(path string) Option {
	b, err := os.ReadFile(path)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("invoke.WithConfigFile(%s): %w", path, err))
		})
	}
	return WithConfig(b)
}
