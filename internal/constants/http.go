package constants

// Headers sent with every batch.
const (
	// APIKeyHeader carries the intake API key.
	APIKeyHeader = "DD-API-KEY"
	// ContentTypeHeader is the standard Content-Type header.
	ContentTypeHeader = "Content-Type"
	// ContentEncodingHeader is set when bodies are gzip-compressed.
	ContentEncodingHeader = "Content-Encoding"
	// ContentTypePlain is the body type of every batch.
	ContentTypePlain = "text/plain"
	// EncodingGzip is the Content-Encoding value for compressed bodies.
	EncodingGzip = "gzip"
	// UserAgent identifies the shipper.
	UserAgent = "ddlogger-go"
)

// Query parameters sent with every batch.
const (
	QueryHost    = "host"
	QueryService = "service"
	QuerySource  = "ddsource"
	QueryTags    = "ddtags"
)

// Request correlation keys used by the access-log middleware.
const (
	// RequestIDHeader is read from, and echoed on, HTTP requests.
	RequestIDHeader = "X-Request-ID"
	// RequestIDMetadataKey is the gRPC metadata equivalent of RequestIDHeader.
	RequestIDMetadataKey = "x-request-id"
)
