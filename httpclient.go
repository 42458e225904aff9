package costar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	httpRequestTimeout  = 3500 * time.Millisecond
	httpUserAgent       = "CoStar-ESP32/1.0"
	httpPreviewLen      = 120
	defaultHTTPMaxBytes = 16384
)

// ErrEmptyPayload means the server answered 2xx with no body.
var ErrEmptyPayload = errors.New("empty response payload")

// FetchRequest describes one outbound HTTP exchange.
type FetchRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	ContentType string
	MaxBytes    int
}

// FetchResult carries the raw payload plus response metadata exposed to
// widget bindings.
type FetchResult struct {
	Payload []byte
	Meta    map[string]string
}

// HTTPClient funnels every request through the transport gate and
// normalizes responses for the widget runtime.
type HTTPClient struct {
	Gate   *TransportGate
	client *http.Client
}

func NewHTTPClient(gate *TransportGate) *HTTPClient {
	return &HTTPClient{
		Gate:   gate,
		client: &http.Client{Timeout: httpRequestTimeout},
	}
}

// Do performs one gated HTTP exchange. Gate errors (busy, cooldown)
// surface unchanged so the caller can distinguish deferral from failure.
func (c *HTTPClient) Do(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if err := c.Gate.Acquire(ctx); err != nil {
		return nil, err
	}
	res, err := c.do(ctx, req)
	c.Gate.Release(err == nil)
	return res, err
}

func (c *HTTPClient) do(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", httpUserAgent)
	hreq.Header.Set("Accept-Encoding", "identity")
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := c.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	maxBytes := req.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultHTTPMaxBytes
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", req.URL, err)
	}
	elapsed := time.Since(started)

	meta := map[string]string{
		"content_type":     resp.Header.Get("Content-Type"),
		"content_length":   strconv.Itoa(len(payload)),
		"retry_after":      resp.Header.Get("Retry-After"),
		"transport_reason": "",
		"elapsed_ms":       strconv.FormatInt(elapsed.Milliseconds(), 10),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		meta["transport_reason"] = fmt.Sprintf("http %d", resp.StatusCode)
		return &FetchResult{Payload: payload, Meta: meta},
			httpStatusError(resp, payload)
	}
	if len(payload) == 0 {
		meta["transport_reason"] = "empty"
		return &FetchResult{Payload: payload, Meta: meta}, ErrEmptyPayload
	}
	return &FetchResult{Payload: payload, Meta: meta}, nil
}

// GetJSON fetches a URL with default limits and decodes the payload.
// This is the shape the geolocation service consumes.
func (c *HTTPClient) GetJSON(ctx context.Context, url string) (Value, error) {
	res, err := c.Do(ctx, FetchRequest{URL: url})
	if err != nil {
		return Value{}, err
	}
	return ParseJSON(ExtractLikelyJSON(res.Payload))
}

// FetchDocJSON performs the data fetch a widget document describes and
// decodes the response body.
func (c *HTTPClient) FetchDocJSON(ctx context.Context, doc *Document) (Value, *FetchResult, error) {
	res, err := c.Do(ctx, FetchRequest{
		URL:      doc.URL,
		Headers:  doc.Headers,
		MaxBytes: doc.HTTPMaxBytes,
	})
	if err != nil {
		return Value{}, res, err
	}
	v, err := ParseJSON(ExtractLikelyJSON(res.Payload))
	if err != nil {
		return Value{}, res, fmt.Errorf("decode %s: %w", doc.URL, err)
	}
	return v, res, nil
}

func httpStatusError(resp *http.Response, payload []byte) error {
	msg := fmt.Sprintf("http status %d", resp.StatusCode)
	if loc := resp.Header.Get("Location"); loc != "" {
		msg += " location=" + loc
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		msg += " retry-after=" + ra
	}
	if preview := compactPreview(payload, httpPreviewLen); preview != "" {
		msg += ": " + preview
	}
	return errors.New(msg)
}

// compactPreview collapses whitespace runs and clips the result so error
// logs stay one line.
func compactPreview(body []byte, maxLen int) string {
	var out strings.Builder
	out.Grow(maxLen)
	space := false
	for _, b := range body {
		if out.Len() >= maxLen {
			break
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			space = true
			continue
		}
		if space && out.Len() > 0 {
			out.WriteByte(' ')
		}
		space = false
		if b < 0x20 || b > 0x7e {
			b = '?'
		}
		out.WriteByte(b)
	}
	return out.String()
}
