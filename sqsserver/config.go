package sqsserver

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

type yamlConfig struct {
	SQS struct {
		QueueURL        string `yaml:"queueUrl"`
		Workers         int    `yaml:"workers"`
		WaitTimeSeconds int32  `yaml:"waitTimeSeconds"`
		Reply           bool   `yaml:"reply"`
	} `yaml:"sqs"`
}

func optionFromConfigBytes(b []byte) (Option, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return OptionFunc(func(o *Options) {
		if cfg.SQS.QueueURL != "" {
			o.QueueURL = cfg.SQS.QueueURL
		}
		if cfg.SQS.Workers > 0 {
			o.Workers = cfg.SQS.Workers
		}
		if cfg.SQS.WaitTimeSeconds > 0 {
			o.WaitTimeSeconds = cfg.SQS.WaitTimeSeconds
		}
		o.ReplyMode = cfg.SQS.Reply
	}), nil
}

// WithConfig parses YAML bytes following sqs.yaml structure and applies it
// to Options. It panics if the YAML is invalid.
func WithConfig(yamlBytes []byte) Option {
	opt, err := optionFromConfigBytes(yamlBytes)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("sqsserver.WithConfig: %w", err))
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
			panic(fmt.Errorf("sqsserver.WithConfigFile(%s): %w", path, err))
		})
	}
	return WithConfig(b)
}
