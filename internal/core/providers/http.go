package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/pkg/logger"
)

// maxErrorBodySize caps how much of an error response is read
const maxErrorBodySize int64 = 64 * 1024

// maxErrorMessage caps the raw body echoed into an HTTPError
const maxErrorMessage = 512

// authDefaults is what an adapter uses when the config leaves auth unset
type authDefaults struct {
	strategy string
	name     string
}

// base holds the HTTP glue shared by all adapters
type base struct {
	kind   core.ProviderKind
	cfg    engine.ProviderConfig
	auth   authDefaults
	client *http.Client
	log    *logger.Logger
}

func newBase(kind core.ProviderKind, cfg engine.ProviderConfig, auth authDefaults, log *logger.Logger) base {
	if log == nil {
		log = logger.NewLogger(nil)
	}

	// The client has no overall timeout unless configured: it would cut long
	// streams. Slow upstreams are bounded by the header timeout instead.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return base{
		kind: kind,
		cfg:  cfg,
		auth: auth,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log: log.Named(string(kind)),
	}
}

// Kind returns the tag this adapter is registered under
func (b *base) Kind() core.ProviderKind {
	return b.kind
}

func (b *base) model(req *core.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return b.cfg.Model
}

// resolveEnv expands the "env:VAR" syntax used throughout the config
func resolveEnv(value string) string {
	if envVar, ok := strings.CutPrefix(value, "env:"); ok {
		return os.Getenv(envVar)
	}
	return value
}

// endpoint builds the request URL. {model} in the path is substituted.
func (b *base) endpoint(defaultBaseURL, defaultPath, model, apiKey string) (string, error) {
	upstream := b.cfg.Upstream

	baseURL := resolveEnv(upstream.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL == "" {
		return "", &core.ConfigError{Kind: b.kind, Reason: "missing upstream base_url"}
	}

	path := upstream.Path
	if path == "" {
		path = defaultPath
	}
	path = strings.ReplaceAll(path, "{model}", url.PathEscape(model))

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return "", &core.ConfigError{Kind: b.kind, Reason: fmt.Sprintf("invalid upstream url: %v", err)}
	}

	if b.authStrategy() == engine.AuthStrategyQuery && apiKey != "" {
		q := u.Query()
		q.Set(b.authName("key"), apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (b *base) authStrategy() string {
	if s := b.cfg.Upstream.AuthStrategy; s != "" {
		return s
	}
	if b.auth.strategy != "" {
		return b.auth.strategy
	}
	return engine.AuthStrategyBearer
}

func (b *base) authName(fallback string) string {
	if n := b.cfg.Upstream.HeaderName; n != "" {
		return n
	}
	if b.auth.name != "" {
		return b.auth.name
	}
	return fallback
}

// headers applies the header policy, then authentication, then content negotiation
func (b *base) headers(apiKey string, streaming bool, fixed map[string]string) http.Header {
	h := make(http.Header)

	for key, value := range fixed {
		h.Set(key, value)
	}

	// Set: force set headers from config
	for key, value := range b.cfg.HeaderPolicy.Set {
		if v := resolveEnv(value); v != "" {
			h.Set(key, v)
		}
	}

	// Remove: strip headers listed in config
	for _, name := range b.cfg.HeaderPolicy.Remove {
		h.Del(name)
	}

	if apiKey != "" {
		switch b.authStrategy() {
		case engine.AuthStrategyHeader:
			h.Set(b.authName("Authorization"), apiKey)
		case engine.AuthStrategyQuery:
			// handled in endpoint
		default:
			h.Set("Authorization", "Bearer "+apiKey)
		}
	}

	h.Set("Content-Type", "application/json")
	if streaming {
		h.Set("Accept", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
	} else {
		h.Set("Accept", "application/json")
	}
	return h
}

// encode marshals the vendor envelope and merges configured extra fields
func (b *base) encode(envelope any) ([]byte, error) {
	body, err := sonic.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	paths := make([]string, 0, len(b.cfg.Extra))
	for path := range b.cfg.Extra {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		body, err = sjson.SetBytes(body, path, b.cfg.Extra[path])
		if err != nil {
			return nil, &core.ConfigError{Kind: b.kind, Reason: fmt.Sprintf("invalid extra field %s: %v", path, err)}
		}
	}
	return body, nil
}

// newRequest creates the outbound POST
func (b *base) newRequest(ctx context.Context, endpoint string, body []byte, header http.Header) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header = header
	return httpReq, nil
}

// postJSON sends the request and returns the full response body
func (b *base) postJSON(ctx context.Context, endpoint string, body []byte, header http.Header) ([]byte, error) {
	httpReq, err := b.newRequest(ctx, endpoint, body, header)
	if err != nil {
		return nil, err
	}

	b.log.Debug("sending upstream request", zap.String("url", redactURL(endpoint)), zap.Int("body_size", len(body)))

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &core.HTTPError{Kind: b.kind, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, b.readHTTPError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &core.HTTPError{Kind: b.kind, Status: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err), Err: err}
	}
	return respBody, nil
}

// postStream sends the request and hands back the open body. The returned
// RawStream aborts the request when closed.
func (b *base) postStream(ctx context.Context, endpoint string, body []byte, header http.Header) (*core.RawStream, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	httpReq, err := b.newRequest(reqCtx, endpoint, body, header)
	if err != nil {
		cancel()
		return nil, err
	}

	b.log.Debug("sending upstream stream request", zap.String("url", redactURL(endpoint)), zap.Int("body_size", len(body)))

	resp, err := b.client.Do(httpReq)
	if err != nil {
		cancel()
		// Cancelled by the caller, not a transport failure
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &core.HTTPError{Kind: b.kind, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		return nil, b.readHTTPError(resp)
	}

	return core.NewRawStream(resp.Body, cancel), nil
}

func (b *base) readHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &core.HTTPError{
		Kind:    b.kind,
		Status:  resp.StatusCode,
		Message: extractErrorMessage(resp.StatusCode, body),
	}
}

// extractErrorMessage finds a human readable message in an error body.
// Vendors disagree on the envelope, so the common locations are tried in order.
func extractErrorMessage(statusCode int, body []byte) string {
	root, err := sonic.Get(body)
	if err == nil {
		for _, path := range [][]interface{}{
			{"error", "message"},
			{"message"},
			{"error"},
			{"detail"},
		} {
			if msg, err := root.GetByPath(path...).String(); err == nil && msg != "" {
				return msg
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return http.StatusText(statusCode)
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	return msg
}

// redactURL drops the query string, which may carry a credential
func redactURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	return u.String()
}
