package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatstream/internal/core/stream"
)

// CredentialResolver returns the API credential for a provider kind.
// ok is false when nothing is configured.
type CredentialResolver func(kind ProviderKind) (secret string, ok bool)

// Dispatcher maps a ProviderKind to exactly one adapter and invokes it
type Dispatcher struct {
	mu        sync.RWMutex
	providers map[ProviderKind]Provider
	limiters  map[ProviderKind]*rate.Limiter

	credentials CredentialResolver
	pipeline    *Pipeline
	log         *zap.Logger
}

// NewDispatcher creates a dispatcher. credentials may be nil, in which case
// only anonymous adapters can be used.
func NewDispatcher(credentials CredentialResolver, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		providers:   make(map[ProviderKind]Provider),
		limiters:    make(map[ProviderKind]*rate.Limiter),
		credentials: credentials,
		pipeline:    NewPipeline(),
		log:         log.Named("dispatch"),
	}
}

// Register adds an adapter, replacing any adapter of the same kind
func (d *Dispatcher) Register(p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.Kind()] = p
}

// SetRateLimit throttles outbound requests for kind. A zero limit removes it.
func (d *Dispatcher) SetRateLimit(kind ProviderKind, limit rate.Limit, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if limit <= 0 {
		delete(d.limiters, kind)
		return
	}
	if burst < 1 {
		burst = 1
	}
	d.limiters[kind] = rate.NewLimiter(limit, burst)
}

// Use appends a processor to the request/response pipeline
func (d *Dispatcher) Use(processor Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipeline.AddProcessor(processor)
}

// Kinds lists the registered provider kinds in sorted order
func (d *Dispatcher) Kinds() []ProviderKind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kinds := make([]ProviderKind, 0, len(d.providers))
	for k := range d.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Provider returns the adapter registered for kind
func (d *Dispatcher) Provider(kind ProviderKind) (Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[kind]
	return p, ok
}

// Dispatch validates req, resolves the credential and issues exactly one
// request through the adapter for kind.
//
// With req.Stream set the result may still hold a complete Response when the
// adapter cannot stream; Result.Stream covers both cases. Without req.Stream
// the result always holds a Response: a streamed body is drained here.
//
// If ctx carries a Generation it is used for logging and cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, kind ProviderKind, req *ChatRequest) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("invalid request: %w", ErrNoMessages)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	d.mu.RLock()
	provider, ok := d.providers[kind]
	limiter := d.limiters[kind]
	d.mu.RUnlock()
	if !ok {
		return nil, &ConfigError{Kind: kind, Reason: "no adapter registered"}
	}

	caps := provider.Capabilities()
	apiKey, err := d.resolveCredential(kind, caps)
	if err != nil {
		return nil, err
	}

	gen, fromCtx := GenerationFromContext(ctx)
	handedOff := false
	if !fromCtx {
		gen = NewGeneration(ctx, d.log)
		defer func() {
			// An ephemeral generation lives as long as the body it produced
			if !handedOff {
				gen.Cancel()
			}
		}()
	}
	gen.Kind = kind
	gen.Model = req.Model
	gen.Capabilities = caps

	// Processors may rewrite the request; never touch the caller's copy.
	outbound := *req
	outbound.Messages = append([]Message(nil), req.Messages...)
	if err := d.pipeline.ExecuteRequest(gen, &outbound); err != nil {
		return nil, err
	}
	if err := outbound.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if limiter != nil {
		if err := limiter.Wait(gen); err != nil {
			return nil, fmt.Errorf("provider %s: rate limiter: %w", kind, err)
		}
	}

	res, err := provider.Send(gen, &outbound, apiKey)
	if err != nil {
		gen.Log.Warn("provider request failed", zap.String("provider", string(kind)), zap.Error(err))
		return nil, err
	}
	res.Kind = kind

	if req.Stream || res.Body == nil {
		if res.Response != nil {
			if err := d.pipeline.ExecuteResponse(gen, res.Response); err != nil {
				return nil, err
			}
		}
		if res.Body != nil && !fromCtx {
			res.Body.onClose(gen.Cancel)
			handedOff = true
		}
		return res, nil
	}

	// Non-streaming call against an adapter that only streams.
	resp, err := d.aggregate(gen, kind, outbound.Model, res.Body)
	if err != nil {
		return nil, err
	}
	if err := d.pipeline.ExecuteResponse(gen, resp); err != nil {
		return nil, err
	}
	return &Result{Kind: kind, Response: resp}, nil
}

func (d *Dispatcher) resolveCredential(kind ProviderKind, caps Capabilities) (string, error) {
	var (
		key string
		ok  bool
	)
	if d.credentials != nil {
		key, ok = d.credentials(kind)
	}
	if ok && key != "" {
		return key, nil
	}
	if caps.Anonymous {
		return "", nil
	}
	return "", &ConfigError{Kind: kind, Reason: "no API credential configured"}
}

func (d *Dispatcher) aggregate(gen *Generation, kind ProviderKind, model string, body *RawStream) (*ChatResponse, error) {
	text, err := stream.New(gen, body, stream.WithLogger(gen.Log)).Collect()
	if err != nil {
		if errors.Is(err, stream.ErrCancelled) {
			if cause := context.Cause(gen); cause != nil {
				return nil, cause
			}
		}
		return nil, &HTTPError{Kind: kind, Message: err.Error(), Err: err}
	}
	return NewTextResponse(model, text, FinishStop), nil
}
