package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type generationKey struct{}

// Generation is the handle of one in-flight assistant reply. It is a
// context: cancelling it aborts the transport and the stream reading from it.
type Generation struct {
	context.Context
	ID           string
	Kind         ProviderKind
	Model        string
	Capabilities Capabilities
	StartTime    time.Time
	Log          *zap.Logger

	cancel context.CancelFunc
}

// NewGeneration creates a generation with a fresh ID and a logger scoped to it
func NewGeneration(parent context.Context, log *zap.Logger) *Generation {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	gen := &Generation{
		ID:        id,
		StartTime: time.Now(),
		Log:       log.With(zap.String("generation_id", id)),
		cancel:    cancel,
	}
	gen.Context = context.WithValue(ctx, generationKey{}, gen)
	return gen
}

// GenerationFromContext returns the generation carried by ctx, if any
func GenerationFromContext(ctx context.Context) (*Generation, bool) {
	gen, ok := ctx.Value(generationKey{}).(*Generation)
	return gen, ok
}

// Cancel stops the generation. Calling it again has no effect.
func (g *Generation) Cancel() {
	g.cancel()
}

// Registry tracks in-flight generations so they can be cancelled by ID
type Registry struct {
	mu     sync.Mutex
	active map[string]*Generation
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Generation)}
}

// Start creates and registers a generation
func (r *Registry) Start(parent context.Context, log *zap.Logger) *Generation {
	gen := NewGeneration(parent, log)
	r.mu.Lock()
	r.active[gen.ID] = gen
	r.mu.Unlock()
	return gen
}

// Finish unregisters the generation and releases its context
func (r *Registry) Finish(gen *Generation) {
	r.mu.Lock()
	delete(r.active, gen.ID)
	r.mu.Unlock()
	gen.Cancel()
}

// Cancel cancels the generation with the given ID. It reports whether
// the ID was known.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	gen, ok := r.active[id]
	r.mu.Unlock()
	if ok {
		gen.Cancel()
	}
	return ok
}

// Len returns the number of in-flight generations
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
