package hostfunc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20
	DefaultRequestTimeout = 30 * time.Second
)

var (
	// ErrNetworkDisabled is returned when no host is allowed at all.
	ErrNetworkDisabled = errors.New("network access is disabled")
	// ErrHostNotAllowed is returned for hosts outside the allow-list.
	ErrHostNotAllowed = errors.New("host not allowed")
)

// HTTPConfig configures the network addon.
type HTTPConfig struct {
	// AllowedHosts lists host names, which also admit their subdomains, and
	// IP addresses, which only match themselves.
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

// HTTP serves guest requests to allowed hosts.
type HTTP struct {
	cfg    HTTPConfig
	policy hostPolicy
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength <= 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &HTTP{
		cfg:    cfg,
		policy: newHostPolicy(cfg.AllowedHosts),
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Register adds http_get(url, headers) and
// http_request(url, method, body, headers) to r.
func (h *HTTP) Register(r *Registry) {
	r.Register("http_get", h.Get, "url", "headers")
	r.Register("http_request", h.Request, "url", "method", "body", "headers")
}

// Get performs a GET request.
func (h *HTTP) Get(ctx context.Context, args map[string]any) (any, error) {
	if _, ok := args["method"]; ok {
		return nil, errors.New("unexpected argument method")
	}
	if _, ok := args["body"]; ok {
		return nil, errors.New("unexpected argument body")
	}
	return h.Request(ctx, args)
}

// Request performs a request and returns a dict with status, ok, body and
// headers. A dict or list body is sent as JSON.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	req, err := h.newRequest(ctx, args)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > h.cfg.MaxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", h.cfg.MaxBodySize)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return map[string]any{
		"status":  int64(resp.StatusCode),
		"ok":      resp.StatusCode >= 200 && resp.StatusCode < 300,
		"body":    string(body),
		"headers": headers,
	}, nil
}

func (h *HTTP) newRequest(ctx context.Context, args map[string]any) (*http.Request, error) {
	method := http.MethodGet
	if m, ok := args["method"]; ok && m != nil {
		s, ok := m.(string)
		if !ok {
			return nil, fmt.Errorf("method must be a string, got %T", m)
		}
		method = strings.ToUpper(s)
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}

	target, err := h.target(args["url"])
	if err != nil {
		return nil, err
	}

	body, contentType, err := h.encodeBody(args["body"])
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if raw, ok := args["headers"]; ok && raw != nil {
		headers, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("headers must be a dict, got %T", raw)
		}
		for k, v := range headers {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("header %s must be a string", k)
			}
			req.Header.Set(k, s)
		}
	}
	return req, nil
}

// target validates a guest URL against the configured limits and policy.
func (h *HTTP) target(raw any) (*url.URL, error) {
	s, _ := raw.(string)
	if s == "" {
		return nil, errors.New("url required")
	}
	if len(s) > h.cfg.MaxURLLength {
		return nil, fmt.Errorf("url exceeds %d characters", h.cfg.MaxURLLength)
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err := h.policy.check(u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

func (h *HTTP) encodeBody(raw any) (io.Reader, string, error) {
	var data []byte
	var contentType string
	switch v := raw.(type) {
	case nil:
		return nil, "", nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		data = encoded
		contentType = "application/json"
	default:
		return nil, "", fmt.Errorf("body must be a string, bytes, dict or list, got %T", raw)
	}
	if int64(len(data)) > h.cfg.MaxBodySize {
		return nil, "", fmt.Errorf("request body exceeds %d bytes", h.cfg.MaxBodySize)
	}
	return bytes.NewReader(data), contentType, nil
}

// hostPolicy is the normalised allow-list.
type hostPolicy struct {
	names []string
	ips   []net.IP
}

func newHostPolicy(hosts []string) hostPolicy {
	var p hostPolicy
	for _, host := range hosts {
		host = strings.TrimSuffix(strings.Trim(strings.TrimSpace(host), "[]"), ".")
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			p.ips = append(p.ips, ip)
			continue
		}
		p.names = append(p.names, strings.ToLower(host))
	}
	return p
}

func (p hostPolicy) empty() bool {
	return len(p.names) == 0 && len(p.ips) == 0
}

func (p hostPolicy) check(host string) error {
	if p.empty() {
		return ErrNetworkDisabled
	}
	if !p.allows(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

// allows matches IPs exactly and names by equality or subdomain suffix.
func (p hostPolicy) allows(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		for _, allowed := range p.ips {
			if allowed.Equal(ip) {
				return true
			}
		}
		return false
	}

	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, name := range p.names {
		if host == name || strings.HasSuffix(host, "."+name) {
			return true
		}
	}
	return false
}
