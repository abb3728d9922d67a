package core

import (
	"context"
	"io"
	"sync"

	"chatstream/internal/core/stream"
)

// Capabilities describes what an adapter can do
type Capabilities struct {
	// Streaming adapters can hand back a raw SSE body
	Streaming bool
	// NonStreaming adapters can hand back a complete response
	NonStreaming bool
	// Anonymous adapters work without a credential
	Anonymous bool
	// RejectsEmpty adapters fail on messages with empty content
	RejectsEmpty bool
}

// Provider is the LLM adapter interface. Send issues exactly one HTTP
// request and never retries.
type Provider interface {
	// Kind returns the tag this adapter is registered under
	Kind() ProviderKind
	// Capabilities reports streaming support and credential requirements
	Capabilities() Capabilities
	// Send translates req into the vendor envelope and returns either a
	// complete response or the still-open response body
	Send(ctx context.Context, req *ChatRequest, apiKey string) (*Result, error)
}

// RawStream is a response body handed from the transport to the normalizer.
// Close aborts the underlying request and releases the body exactly once.
type RawStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc

	once     sync.Once
	closeErr error
}

// NewRawStream wraps body; cancel (may be nil) aborts the request that produced it
func NewRawStream(body io.ReadCloser, cancel context.CancelFunc) *RawStream {
	return &RawStream{body: body, cancel: cancel}
}

// onClose chains fn after the request cancel. It must be called before the
// stream is handed to a reader.
func (r *RawStream) onClose(fn func()) {
	prev := r.cancel
	r.cancel = func() {
		if prev != nil {
			prev()
		}
		fn()
	}
}

func (r *RawStream) Read(p []byte) (int, error) {
	return r.body.Read(p)
}

func (r *RawStream) Close() error {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}

// Result is what dispatch returns: exactly one of Response or Body is set
type Result struct {
	Kind     ProviderKind
	Response *ChatResponse
	Body     *RawStream
}

// Streaming reports whether the result carries a raw body
func (r *Result) Streaming() bool {
	return r.Body != nil
}

// Stream returns the normalized fragment sequence for this result. A complete
// response is turned into a one-shot stream so callers never special-case
// adapters without native streaming.
func (r *Result) Stream(ctx context.Context, opts ...stream.Option) *stream.Stream {
	if r.Body != nil {
		return stream.New(ctx, r.Body, opts...)
	}
	return stream.FromText(ctx, r.Response.Text(), opts...)
}
