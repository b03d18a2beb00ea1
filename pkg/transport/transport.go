// Package transport issues read-only JSON requests against the Nomad HTTP API,
// either over TCP/TLS or over the Unix domain socket that Nomad exposes inside
// a task's secrets directory.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudless/alloy-discovery/pkg/observability"
)

const (
	// DefaultTimeout bounds every request
	DefaultTimeout = 10 * time.Second

	// TokenHeader carries the ACL token
	TokenHeader = "X-Nomad-Token"

	// Scheme names recognised by New
	SchemeUnix     = "unix"
	SchemeHTTPUnix = "http+unix"

	kindUnix    = "unix"
	kindNetwork = "network"

	tracerName = "alloy-discovery/transport"

	// unixHost is the placeholder authority sent over the socket
	unixHost = "localhost"
)

// Transport performs GET requests against the control-plane API
type Transport interface {
	// Get fetches path (relative to the configured endpoint) and decodes
	// the JSON body into out.
	Get(ctx context.Context, path string, out any) error

	// Endpoint returns the address the transport was built from
	Endpoint() string
}

// Option configures a transport
type Option func(*options)

type options struct {
	token   string
	timeout time.Duration
}

// WithToken sets the ACL token sent with every request
func WithToken(token string) Option {
	return func(o *options) {
		o.token = strings.TrimSpace(token)
	}
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// RequestError is returned for any failed request
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// New builds a transport for address. unix:// and http+unix:// addresses
// produce a socket-backed transport, http:// and https:// a network one.
func New(address string, opts ...Option) (Transport, error) {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	// http+unix hosts carry %2F escapes that url.Parse rejects, so the
	// scheme is read off the raw string.
	scheme, _, ok := strings.Cut(address, "://")
	if !ok {
		return nil, fmt.Errorf("address %q has no scheme", address)
	}

	switch scheme {
	case SchemeUnix, SchemeHTTPUnix:
		socketPath, prefix, err := SplitUnixURL(address)
		if err != nil {
			return nil, err
		}
		return newSocketTransport(address, socketPath, prefix, o), nil
	case "http", "https":
		u, err := url.Parse(address)
		if err != nil {
			return nil, fmt.Errorf("failed to parse address %q: %w", address, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("address %q has no host", address)
		}
		return newNetworkTransport(address, o), nil
	default:
		return nil, fmt.Errorf("unsupported address scheme %q", scheme)
	}
}

// SplitUnixURL separates a socket-encoded URL into the socket file and the
// request path.
//
//	unix:///secrets/api.sock                         -> /secrets/api.sock, ""
//	http+unix://%2Fsecrets%2Fapi.sock/v1/allocations -> /secrets/api.sock, /v1/allocations
//
// The unix form carries no request path since the socket path cannot be told
// apart from it.
func SplitUnixURL(raw string) (socketPath, requestPath string, err error) {
	switch {
	case strings.HasPrefix(raw, SchemeUnix+"://"):
		socketPath = strings.TrimPrefix(raw, SchemeUnix+"://")
	case strings.HasPrefix(raw, SchemeHTTPUnix+"://"):
		rest := strings.TrimPrefix(raw, SchemeHTTPUnix+"://")
		encoded := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			encoded, requestPath = rest[:i], rest[i:]
		}
		socketPath, err = url.PathUnescape(encoded)
		if err != nil {
			return "", "", fmt.Errorf("failed to decode socket path %q: %w", encoded, err)
		}
	default:
		return "", "", fmt.Errorf("not a unix socket url: %q", raw)
	}

	if socketPath == "" {
		return "", "", fmt.Errorf("unix socket url %q has no socket path", raw)
	}
	return socketPath, strings.TrimRight(requestPath, "/"), nil
}

// httpTransport is shared by both variants; they differ only in how the
// client dials and which base URL requests are built on.
type httpTransport struct {
	endpoint string
	baseURL  string
	kind     string
	token    string
	client   *http.Client
}

func newSocketTransport(endpoint, socketPath, prefix string, o options) *httpTransport {
	dialer := &net.Dialer{}
	return &httpTransport{
		endpoint: endpoint,
		baseURL:  "http://" + unixHost + prefix,
		kind:     kindUnix,
		token:    o.token,
		client: &http.Client{
			Timeout: o.timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func newNetworkTransport(endpoint string, o options) *httpTransport {
	return &httpTransport{
		endpoint: endpoint,
		baseURL:  strings.TrimRight(endpoint, "/"),
		kind:     kindNetwork,
		token:    o.token,
		client: &http.Client{
			Timeout: o.timeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
	}
}

func (t *httpTransport) Endpoint() string {
	return t.endpoint
}

func (t *httpTransport) Get(ctx context.Context, path string, out any) (err error) {
	target := t.baseURL + "/" + strings.TrimLeft(path, "/")

	ctx, span := observability.StartSpan(ctx, tracerName, "GET "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodGet),
			attribute.String("http.url", target),
			attribute.String("transport", t.kind),
		),
	)
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
			observability.RecordError(ctx, err)
			observability.SetSpanStatus(ctx, codes.Error, err.Error())
		}
		observability.ControlPlaneRequestsTotal.WithLabelValues(t.kind, result).Inc()
		observability.ControlPlaneRequestDurationSeconds.WithLabelValues(t.kind).Observe(time.Since(start).Seconds())
		span.End()
	}()

	fail := func(status int, cause error) error {
		return &RequestError{Method: http.MethodGet, URL: target, StatusCode: status, Err: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	if t.token != "" {
		req.Header.Set(TokenHeader, t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}
