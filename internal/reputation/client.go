package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/l0p7/emailrep/internal/entity"
)

const maxBodyBytes = 1 << 20

// Doer is the minimal HTTP client contract the reputation client needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Endpoint  string
	UserAgent string
	Logger    *slog.Logger
}

// Client performs one GET per identifier against the reputation service and
// classifies the response. It never retries.
type Client struct {
	doer      Doer
	endpoint  *url.URL
	userAgent string
	logger    *slog.Logger
}

// NewClient validates the endpoint and binds the client to doer.
func NewClient(doer Doer, opts ClientOptions) (*Client, error) {
	if doer == nil {
		return nil, errors.New("reputation: http client missing")
	}
	endpoint, err := url.Parse(strings.TrimSpace(opts.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("reputation: endpoint: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("reputation: endpoint must be absolute: %q", opts.Endpoint)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		doer:      doer,
		endpoint:  endpoint,
		userAgent: opts.UserAgent,
		logger:    logger.With(slog.String("agent", "reputation_client")),
	}, nil
}

// Lookup fetches the reputation summary for id.
func (c *Client) Lookup(ctx context.Context, id entity.Identifier, apiKey string) Outcome {
	target := c.requestURL(id)
	out := Outcome{Identifier: id}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		out.Kind = KindTransportError
		out.Err = &TransportError{Identifier: id.Value, Cause: err}
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Key", apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.LogAttrs(ctx, slog.LevelDebug, "request uri",
			slog.String("method", req.Method),
			slog.String("uri", target.String()),
			slog.Bool("api_key_present", apiKey != ""),
		)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		out.Kind = KindTransportError
		out.Err = &TransportError{Identifier: id.Value, Cause: err}
		return out
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	closeErr := resp.Body.Close()
	if readErr == nil {
		readErr = closeErr
	}
	out.Counters = countersFromHeader(resp.Header)

	switch resp.StatusCode {
	case http.StatusOK:
		if readErr != nil {
			out.Kind = KindTransportError
			out.Err = &TransportError{Identifier: id.Value, Cause: fmt.Errorf("read body: %w", readErr)}
			return out
		}
		return c.classifyBody(out, body)
	case http.StatusTooManyRequests:
		out.Kind = KindRateLimited
		out.Err = &RateLimitError{Identifier: id.Value, Counters: out.Counters}
		return out
	default:
		out.Kind = KindUpstreamError
		out.Err = &UpstreamError{Identifier: id.Value, Status: resp.StatusCode, Body: string(body)}
		return out
	}
}

// classifyBody turns a 200 body into a hit or miss. An empty or falsy body is
// a hit with no details; an empty JSON array is a miss.
func (c *Client) classifyBody(out Outcome, body []byte) Outcome {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		out.Kind = KindHit
		return out
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		out.Kind = KindUpstreamError
		out.Err = &UpstreamError{Identifier: out.Identifier.Value, Status: http.StatusOK, Body: string(body)}
		return out
	}
	switch v := payload.(type) {
	case nil:
		out.Kind = KindHit
	case []any:
		if len(v) == 0 {
			out.Kind = KindMiss
			return out
		}
		out.Kind = KindUpstreamError
		out.Err = &UpstreamError{Identifier: out.Identifier.Value, Status: http.StatusOK, Body: string(body)}
	case map[string]any:
		out.Kind = KindHit
		out.Details = v
	default:
		if falsyScalar(v) {
			out.Kind = KindHit
			return out
		}
		out.Kind = KindUpstreamError
		out.Err = &UpstreamError{Identifier: out.Identifier.Value, Status: http.StatusOK, Body: string(body)}
	}
	return out
}

// falsyScalar reports whether v is false, numeric zero or the empty string.
func falsyScalar(v any) bool {
	switch value := v.(type) {
	case bool:
		return !value
	case string:
		return value == ""
	case json.Number:
		f, err := value.Float64()
		return err == nil && f == 0
	}
	return false
}

func (c *Client) requestURL(id entity.Identifier) *url.URL {
	// JoinPath would clean "." and ".." away, so the segment is appended as is.
	target := *c.endpoint
	base := strings.TrimSuffix(c.endpoint.Path, "/")
	rawBase := strings.TrimSuffix(c.endpoint.EscapedPath(), "/")
	target.Path = base + "/" + id.Value
	target.RawPath = rawBase + "/" + url.PathEscape(id.Value)
	query := target.Query()
	query.Set("summary", "true")
	target.RawQuery = query.Encode()
	return &target
}
