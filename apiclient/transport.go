package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// DefaultRequestTimeout bounds one transport call, retries included.
const DefaultRequestTimeout = 10 * time.Second

// NewRetryClient returns a retrying HTTP client over a TLS 1.2+ pooled transport.
func NewRetryClient() (*retry.Client, error) {
	baseHTTPClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	client, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(baseHTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return client, nil
}

// HTTPTransport sends Requests to an API rooted at BaseURL.
type HTTPTransport struct {
	baseURL string
	timeout time.Duration
	client  *retry.Client
}

// NewHTTPTransport returns a transport for baseURL. A zero timeout uses DefaultRequestTimeout.
func NewHTTPTransport(baseURL string, client *retry.Client, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		client:  client,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := t.client.DoWithContext(reqCtx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
