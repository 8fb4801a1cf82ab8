package ddlogger

import (
	"compress/gzip"
	"net/url"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
)

const (
	// DefaultAPIHost is the Datadog v2 HTTP log intake.
	DefaultAPIHost = "https://http-intake.logs.datadoghq.com/api/v2/logs"
	// DefaultSource is the ddsource value sent with every batch.
	DefaultSource = "go"
	// DefaultMaxPayloadBytes is the upper bound of a single request body.
	DefaultMaxPayloadBytes = 5_000_000
	// DefaultMaxLineBytes is the upper bound of a single rendered line.
	DefaultMaxLineBytes = 1_000_000
	// DefaultMaxLogLines is the line count that triggers a flush.
	DefaultMaxLogLines = 1000
	// CompactMaxPayloadBytes is the payload bound used by CompactConfig.
	CompactMaxPayloadBytes = 5000
	// CompactMaxLineBytes is the line bound used by CompactConfig.
	CompactMaxLineBytes = 1024
	// DefaultPollTimeout bounds how long the engine waits for a line per iteration.
	// Flush requests are polled for half of it.
	DefaultPollTimeout = 100 * time.Millisecond
	// DefaultHTTPTimeout bounds a single POST to the intake.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultSendConcurrency is the number of batches of one flush sent in parallel.
	DefaultSendConcurrency = 4
	// DefaultCompressionLevel is the gzip level applied to lines.
	DefaultCompressionLevel = gzip.DefaultCompression

	tagSeparator = ":"
	redacted     = "****"
)

// Tag is a single key:value pair attached to every batch as ddtags.
type Tag struct {
	Key   string
	Value string
}

// String renders the tag as key:value.
func (t Tag) String() string {
	return t.Key + tagSeparator + t.Value
}

// ParseTag parses a key:value string. The value may itself contain colons.
func ParseTag(raw string) (Tag, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(raw), tagSeparator)
	if !ok || strings.TrimSpace(key) == "" {
		return Tag{}, ewrap.Wrap(ErrInvalidTag, "expected key:value").
			WithMetadata("tag", raw)
	}

	return Tag{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}, nil
}

// ParseTags parses a list of key:value strings, skipping blank entries.
func ParseTags(raw []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(raw))

	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}

		tag, err := ParseTag(entry)
		if err != nil {
			return nil, err
		}

		tags = append(tags, tag)
	}

	return tags, nil
}

// TagString joins tags in order as "k1:v1,k2:v2".
func TagString(tags []Tag) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, tag.String())
	}

	return strings.Join(parts, ",")
}

// Config is the immutable configuration of one pipeline.
// It is copied into the engine at construction time.
type Config struct {
	// Hostname is sent as the host query parameter.
	Hostname string
	// Service is sent as the service query parameter.
	Service string
	// APIKey is sent in the DD-API-KEY header.
	APIKey string
	// APIHost is the full intake endpoint URL.
	APIHost string
	// Source is sent as the ddsource query parameter.
	Source string
	// Tags are sent, in order, as the ddtags query parameter.
	Tags []Tag

	// MaxLogLines flushes the buffer once it holds this many lines. Zero disables the count trigger.
	MaxLogLines int
	// MaxLineBytes drops any line (raw or rendered) larger than this.
	MaxLineBytes int
	// MaxPayloadBytes bounds both the buffered bytes before a flush and each request body.
	MaxPayloadBytes int
	// FlushInterval flushes the buffer when this much time has passed since the last flush.
	// Zero disables time-based flushing.
	FlushInterval time.Duration

	// Gzip compresses every line individually and sets Content-Encoding: gzip.
	Gzip bool
	// CompressionLevel is a compress/gzip level.
	CompressionLevel int

	// PollTimeout bounds the engine's wait for a line per loop iteration.
	PollTimeout time.Duration
	// HTTPTimeout bounds each request when the engine builds its own HTTP client.
	HTTPTimeout time.Duration
	// SendConcurrency caps parallel batch sends within one flush. Zero means unlimited.
	SendConcurrency int
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		APIHost:          DefaultAPIHost,
		Source:           DefaultSource,
		Tags:             []Tag{},
		MaxLogLines:      DefaultMaxLogLines,
		MaxLineBytes:     DefaultMaxLineBytes,
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		Gzip:             true,
		CompressionLevel: DefaultCompressionLevel,
		PollTimeout:      DefaultPollTimeout,
		HTTPTimeout:      DefaultHTTPTimeout,
		SendConcurrency:  DefaultSendConcurrency,
	}
}

// CompactConfig returns DefaultConfig with small line and payload bounds,
// suited to constrained links and to tests.
func CompactConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxLineBytes = CompactMaxLineBytes
	cfg.MaxPayloadBytes = CompactMaxPayloadBytes

	return cfg
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	errorGroup := ewrap.NewErrorGroup()

	invalid := func(field, msg string) {
		errorGroup.Add(ewrap.New(msg).WithMetadata("field", field))
	}

	if c.APIHost == "" {
		invalid("api_host", "api host is required")
	} else if endpoint, err := url.Parse(c.APIHost); err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		invalid("api_host", "api host must be an absolute URL")
	}

	if c.MaxLineBytes <= 0 {
		invalid("max_line_bytes", "max line bytes must be positive")
	}

	if c.MaxPayloadBytes <= 0 {
		invalid("max_payload_bytes", "max payload bytes must be positive")
	}

	if c.MaxLogLines < 0 {
		invalid("max_log_lines", "max log lines cannot be negative")
	}

	if c.FlushInterval < 0 {
		invalid("flush_interval", "flush interval cannot be negative")
	}

	if c.PollTimeout <= 0 {
		invalid("poll_timeout", "poll timeout must be positive")
	}

	if c.HTTPTimeout < 0 {
		invalid("http_timeout", "http timeout cannot be negative")
	}

	if c.SendConcurrency < 0 {
		invalid("send_concurrency", "send concurrency cannot be negative")
	}

	if c.CompressionLevel < gzip.HuffmanOnly || c.CompressionLevel > gzip.BestCompression {
		invalid("compression_level", "compression level must be a gzip level")
	}

	for _, tag := range c.Tags {
		if tag.Key == "" {
			invalid("tags", "tag key cannot be empty")
		}
	}

	if errorGroup.HasErrors() {
		return ewrap.Wrap(ErrInvalidConfig, errorGroup.Error())
	}

	return nil
}

// Redacted returns a copy that is safe to print: the API key is masked.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = redacted
	}

	c.Tags = append([]Tag(nil), c.Tags...)

	return c
}
