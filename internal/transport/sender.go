// Package transport delivers batch bodies to the HTTP log intake.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/internal/constants"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 1024

// HTTPDoer is the subset of *http.Client used by the sender.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender performs one POST per batch.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// HTTPSender is the Sender talking to a Datadog-compatible intake.
type HTTPSender struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
	encoding string
}

// NewHTTPSender builds the request URL once from cfg: the endpoint plus the
// host, service, ddsource and ddtags query parameters. encoding is the
// Content-Encoding of bodies, empty when they are sent as-is.
func NewHTTPSender(client HTTPDoer, cfg ddlogger.Config, encoding string) (*HTTPSender, error) {
	endpoint, err := url.Parse(cfg.APIHost)
	if err != nil {
		return nil, ewrap.Wrap(ddlogger.ErrInvalidConfig, "parsing api host").
			WithMetadata("api_host", cfg.APIHost).
			WithMetadata("cause", err.Error())
	}

	query := endpoint.Query()
	query.Set(constants.QueryHost, cfg.Hostname)
	query.Set(constants.QueryService, cfg.Service)
	query.Set(constants.QuerySource, cfg.Source)
	query.Set(constants.QueryTags, ddlogger.TagString(cfg.Tags))
	endpoint.RawQuery = query.Encode()

	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &HTTPSender{
		client:   client,
		endpoint: endpoint.String(),
		apiKey:   cfg.APIKey,
		encoding: encoding,
	}, nil
}

// Endpoint returns the full request URL including the query string.
func (s *HTTPSender) Endpoint() string { return s.endpoint }

// Send POSTs body. Transport failures and non-2xx statuses wrap ddlogger.ErrTransport.
func (s *HTTPSender) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return ewrap.Wrap(ddlogger.ErrTransport, "building request").
			WithMetadata("cause", err.Error())
	}

	req.Header.Set(constants.APIKeyHeader, s.apiKey)
	req.Header.Set(constants.ContentTypeHeader, constants.ContentTypePlain)
	req.Header.Set("User-Agent", constants.UserAgent)

	if s.encoding != "" {
		req.Header.Set(constants.ContentEncodingHeader, s.encoding)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ewrap.Wrapf(ddlogger.ErrTransport, "posting batch: %v", err).
			WithMetadata("cause", err.Error()).
			WithMetadata("bytes", len(body))
	}

	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return ewrap.Wrapf(ddlogger.ErrTransport, "intake returned status %d", resp.StatusCode).
			WithMetadata("status", resp.StatusCode).
			WithMetadata("body", string(detail))
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
