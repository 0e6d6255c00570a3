package depmod

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"
)

type yamlConfig struct {
	Builtins []struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"builtins"`
}

func optionFromConfigBytes(b []byte, baseDir string) (Option, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	builtins := make(map[string][]byte)
	for _, e := range cfg.Builtins {
		if e.Name == "" || e.Path == "" {
			continue
		}
		p := e.Path
		if baseDir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("builtin %q: %w", e.Name, err)
		}
		builtins[e.Name] = src
	}

	return OptionFunc(func(o *Options) {
		for name, src := range builtins {
			o.Builtins[name] = src
		}
	}), nil
}

// WithConfig parses YAML bytes following depmod.yml structure and applies it
// to Options. Builtin paths are resolved against the working directory. It
// panics if the YAML is invalid or a builtin cannot be read.
func WithConfig(yamlBytes []byte) Option {
	opt, err := optionFromConfigBytes(yamlBytes, "")
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("depmod.WithConfig: %w", err))
		})
	}
	return opt
}

// WithConfigFile loads a YAML file and applies it to Options. Builtin paths
// are resolved against the file's directory. It panics if the file cannot be
// read or the YAML is invalid.
func WithConfigFile(path string) Option {
	b, err := os.ReadFile(path)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("depmod.WithConfigFile(%s): %w", path, err))
		})
	}
	opt, err := optionFromConfigBytes(b, filepath.Dir(path))
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("depmod.WithConfigFile(%s): %w", path, err))
		})
	}
	return opt
}
