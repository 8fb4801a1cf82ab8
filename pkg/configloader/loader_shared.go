package configloader

import (
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/ddlogger"
)

type rawConfig struct {
	Hostname         string   `mapstructure:"hostname"          yaml:"hostname"`
	Service          string   `mapstructure:"service"           yaml:"service"`
	APIKey           string   `mapstructure:"api_key"           yaml:"api_key"`
	APIHost          string   `mapstructure:"api_host"          yaml:"api_host"`
	Source           string   `mapstructure:"source"            yaml:"source"`
	Tags             []string `mapstructure:"tags"              yaml:"tags"`
	MaxLogLines      *int     `mapstructure:"max_log_lines"     yaml:"max_log_lines"`
	MaxLineBytes     *int     `mapstructure:"max_line_bytes"    yaml:"max_line_bytes"`
	MaxPayloadBytes  *int     `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	FlushInterval    string   `mapstructure:"flush_interval"    yaml:"flush_interval"`
	Gzip             *bool    `mapstructure:"gzip"              yaml:"gzip"`
	CompressionLevel *int     `mapstructure:"compression_level" yaml:"compression_level"`
	PollTimeout      string   `mapstructure:"poll_timeout"      yaml:"poll_timeout"`
	HTTPTimeout      string   `mapstructure:"http_timeout"      yaml:"http_timeout"`
	SendConcurrency  *int     `mapstructure:"send_concurrency"  yaml:"send_concurrency"`
}

//nolint:cyclop // one branch per optional key
func applyRaw(raw rawConfig) (*ddlogger.Config, error) {
	cfg := ddlogger.DefaultConfig()

	setString(&cfg.Hostname, raw.Hostname)
	setString(&cfg.Service, raw.Service)
	setString(&cfg.APIKey, raw.APIKey)
	setString(&cfg.APIHost, raw.APIHost)
	setString(&cfg.Source, raw.Source)

	if len(raw.Tags) > 0 {
		tags, err := ddlogger.ParseTags(raw.Tags)
		if err != nil {
			return nil, err
		}

		cfg.Tags = tags
	}

	setValue(&cfg.MaxLogLines, raw.MaxLogLines)
	setValue(&cfg.MaxLineBytes, raw.MaxLineBytes)
	setValue(&cfg.MaxPayloadBytes, raw.MaxPayloadBytes)
	setValue(&cfg.Gzip, raw.Gzip)
	setValue(&cfg.CompressionLevel, raw.CompressionLevel)
	setValue(&cfg.SendConcurrency, raw.SendConcurrency)

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"flush_interval", raw.FlushInterval, &cfg.FlushInterval},
		{"poll_timeout", raw.PollTimeout, &cfg.PollTimeout},
		{"http_timeout", raw.HTTPTimeout, &cfg.HTTPTimeout},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, ewrap.Wrap(ddlogger.ErrInvalidConfig, "invalid duration").
				WithMetadata("key", d.key).
				WithMetadata("value", d.raw)
		}

		*d.target = parsed
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setValue[T any](target *T, value *T) {
	if value != nil {
		*target = *value
	}
}

func allKeys() []string {
	return []string{
		"hostname",
		"service",
		"api_key",
		"api_host",
		"source",
		"tags",
		"max_log_lines",
		"max_line_bytes",
		"max_payload_bytes",
		"flush_interval",
		"gzip",
		"compression_level",
		"poll_timeout",
		"http_timeout",
		"send_concurrency",
	}
}
