package main

import (
	"io"
	"os"
	"time"

	"github.com/hyp3rd/ewrap"
	pflag "github.com/spf13/pflag"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/pkg/configloader"
	"github.com/hyp3rd/ddlogger/pkg/log"
)

type cliOptions struct {
	configPath  string
	envPrefix   string
	environment string

	hostname      string
	service       string
	apiKey        string
	apiHost       string
	source        string
	tags          []string
	maxLogLines   int
	maxLineBytes  int
	maxPayload    int
	flushInterval time.Duration
	httpTimeout   time.Duration
	gzip          bool

	level  string
	module string

	logLevel    string
	diagFile    string
	metricsAddr string
}

func defaultOptions() *cliOptions {
	cfg := ddlogger.DefaultConfig()
	hostname, _ := os.Hostname()

	return &cliOptions{
		envPrefix:     configloader.DefaultEnvPrefix,
		hostname:      hostname,
		apiHost:       cfg.APIHost,
		source:        cfg.Source,
		maxLogLines:   cfg.MaxLogLines,
		maxLineBytes:  cfg.MaxLineBytes,
		maxPayload:    cfg.MaxPayloadBytes,
		flushInterval: 5 * time.Second,
		httpTimeout:   cfg.HTTPTimeout,
		gzip:          cfg.Gzip,
		level:         ddlogger.InfoLevel.String(),
		logLevel:      "info",
	}
}

// register binds the shipping flags shared by every command.
func (o *cliOptions) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", o.configPath, "path to a configuration file (yaml, json or toml)")
	flags.StringVar(&o.envPrefix, "env-prefix", o.envPrefix, "prefix of the environment variables that override the file")
	flags.StringVar(&o.environment, "environment", o.environment, "environment name; \"development\" enables console diagnostics")

	flags.StringVar(&o.hostname, "hostname", o.hostname, "host reported with every batch")
	flags.StringVar(&o.service, "service", o.service, "service reported with every batch")
	flags.StringVar(&o.apiKey, "api-key", o.apiKey, "intake API key")
	flags.StringVar(&o.apiHost, "api-host", o.apiHost, "intake endpoint URL")
	flags.StringVar(&o.source, "source", o.source, "ddsource reported with every batch")
	flags.StringSliceVar(&o.tags, "tags", o.tags, "key:value tags, comma separated or repeated")
	flags.IntVar(&o.maxLogLines, "max-log-lines", o.maxLogLines, "buffered lines that trigger a flush (0 disables)")
	flags.IntVar(&o.maxLineBytes, "max-line-bytes", o.maxLineBytes, "lines larger than this are dropped")
	flags.IntVar(&o.maxPayload, "max-payload-bytes", o.maxPayload, "upper bound of one request body")
	flags.DurationVar(&o.flushInterval, "flush-interval", o.flushInterval, "time between periodic flushes (0 disables)")
	flags.DurationVar(&o.httpTimeout, "http-timeout", o.httpTimeout, "timeout of one intake request")
	flags.BoolVar(&o.gzip, "gzip", o.gzip, "gzip request bodies")

	flags.StringVar(&o.level, "level", o.level, "level of the shipped records")
	flags.StringVar(&o.module, "module", o.module, "module of the shipped records")

	flags.StringVar(&o.logLevel, "log-level", o.logLevel, "diagnostic log level")
	flags.StringVar(&o.diagFile, "diag-file", o.diagFile, "write diagnostics to this rotating file instead of stderr")
	flags.StringVar(&o.metricsAddr, "metrics-addr", o.metricsAddr, "serve pipeline metrics on this address (e.g. :9464)")
}

// buildConfig loads the file and environment, then applies the flags the
// user set explicitly.
func (o *cliOptions) buildConfig(changed map[string]bool) (ddlogger.Config, error) {
	loaded, err := configloader.Load(o.configPath, o.envPrefix)
	if err != nil {
		return ddlogger.Config{}, err
	}

	cfg := *loaded

	// the detected hostname is a default, not an override
	if cfg.Hostname == "" || changed["hostname"] {
		cfg.Hostname = o.hostname
	}

	override(changed, "service", &cfg.Service, o.service)
	override(changed, "api-key", &cfg.APIKey, o.apiKey)
	override(changed, "api-host", &cfg.APIHost, o.apiHost)
	override(changed, "source", &cfg.Source, o.source)
	override(changed, "max-log-lines", &cfg.MaxLogLines, o.maxLogLines)
	override(changed, "max-line-bytes", &cfg.MaxLineBytes, o.maxLineBytes)
	override(changed, "max-payload-bytes", &cfg.MaxPayloadBytes, o.maxPayload)
	override(changed, "http-timeout", &cfg.HTTPTimeout, o.httpTimeout)
	override(changed, "gzip", &cfg.Gzip, o.gzip)

	if cfg.FlushInterval == 0 || changed["flush-interval"] {
		cfg.FlushInterval = o.flushInterval
	}

	if changed["tags"] {
		tags, err := ddlogger.ParseTags(o.tags)
		if err != nil {
			return ddlogger.Config{}, err
		}

		cfg.Tags = tags
	}

	if cfg.APIKey == "" {
		return ddlogger.Config{}, ewrap.Wrap(ddlogger.ErrInvalidConfig, "api key is required").
			WithMetadata("flag", "api-key")
	}

	err = cfg.Validate()
	if err != nil {
		return ddlogger.Config{}, err
	}

	return cfg, nil
}

func override[T any](changed map[string]bool, name string, target *T, value T) {
	if changed[name] {
		*target = value
	}
}

// recordTemplate returns the level and module stamped on shipped lines.
func (o *cliOptions) recordTemplate(fallbackModule string) (ddlogger.Record, error) {
	level, err := ddlogger.ParseLevel(o.level)
	if err != nil {
		return ddlogger.Record{}, err
	}

	module := o.module
	if module == "" {
		module = fallbackModule
	}

	return ddlogger.Record{Level: level, Module: module}, nil
}

// buildLogger returns the diagnostic logger and a closer for its output.
func (o *cliOptions) buildLogger() (log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		return nil, nil, err
	}

	if o.diagFile != "" {
		logger, closer, err := log.NewFileLogger(o.diagFile, log.DefaultRotation(), level)
		if err != nil {
			return nil, nil, err
		}

		return logger, closer, nil
	}

	if o.environment != "" {
		return log.NewWithDefaults(o.environment), nopCloser{}, nil
	}

	return log.NewConsole(os.Stderr, level), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
