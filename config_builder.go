package ddlogger

import "time"

// ConfigBuilder provides a fluent API for constructing pipeline configurations.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder creates a builder seeded with DefaultConfig and the three
// required identity values.
func NewConfigBuilder(hostname, service, apiKey string) *ConfigBuilder {
	cfg := DefaultConfig()
	cfg.Hostname = hostname
	cfg.Service = service
	cfg.APIKey = apiKey

	return &ConfigBuilder{config: cfg}
}

// WithAPIHost overrides the intake endpoint.
func (b *ConfigBuilder) WithAPIHost(apiHost string) *ConfigBuilder {
	b.config.APIHost = apiHost

	return b
}

// WithSource overrides the ddsource value.
func (b *ConfigBuilder) WithSource(source string) *ConfigBuilder {
	b.config.Source = source

	return b
}

// WithTags appends tags, preserving order.
// Example: builder.WithTags(Tag{Key: "env", Value: "prod"}).
func (b *ConfigBuilder) WithTags(tags ...Tag) *ConfigBuilder {
	b.config.Tags = append(b.config.Tags, tags...)

	return b
}

// WithTag appends a single tag.
func (b *ConfigBuilder) WithTag(key, value string) *ConfigBuilder {
	return b.WithTags(Tag{Key: key, Value: value})
}

// WithMaxLogLines sets the line count that triggers a flush.
func (b *ConfigBuilder) WithMaxLogLines(lines int) *ConfigBuilder {
	b.config.MaxLogLines = lines

	return b
}

// WithMaxLineBytes sets the per-line size bound.
func (b *ConfigBuilder) WithMaxLineBytes(size int) *ConfigBuilder {
	b.config.MaxLineBytes = size

	return b
}

// WithMaxPayloadBytes sets the per-request size bound.
func (b *ConfigBuilder) WithMaxPayloadBytes(size int) *ConfigBuilder {
	b.config.MaxPayloadBytes = size

	return b
}

// WithFlushInterval enables time-based flushing. Zero disables it.
func (b *ConfigBuilder) WithFlushInterval(interval time.Duration) *ConfigBuilder {
	b.config.FlushInterval = interval

	return b
}

// WithGzip toggles per-line gzip compression.
func (b *ConfigBuilder) WithGzip(enabled bool) *ConfigBuilder {
	b.config.Gzip = enabled

	return b
}

// WithCompressionLevel sets the gzip level.
func (b *ConfigBuilder) WithCompressionLevel(level int) *ConfigBuilder {
	b.config.CompressionLevel = level

	return b
}

// WithPollTimeout sets the engine's per-iteration wait.
func (b *ConfigBuilder) WithPollTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.PollTimeout = timeout

	return b
}

// WithHTTPTimeout sets the per-request timeout.
func (b *ConfigBuilder) WithHTTPTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.HTTPTimeout = timeout

	return b
}

// WithSendConcurrency caps parallel batch sends within one flush.
func (b *ConfigBuilder) WithSendConcurrency(limit int) *ConfigBuilder {
	b.config.SendConcurrency = limit

	return b
}

// Build returns a copy of the configuration; the builder can keep being used.
func (b *ConfigBuilder) Build() Config {
	cfg := b.config
	cfg.Tags = append([]Tag(nil), b.config.Tags...)

	return cfg
}
