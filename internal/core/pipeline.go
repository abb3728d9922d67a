package core

import (
	"fmt"
	"sort"
)

// Pipeline holds a collection of processors and manages their execution
type Pipeline struct {
	processors []Processor
}

// NewPipeline creates a new pipeline instance
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]Processor, 0),
	}
}

// AddProcessor adds a processor, keeping the list ordered by priority.
// Processors with equal priority run in insertion order.
func (p *Pipeline) AddProcessor(processor Processor) {
	p.processors = append(p.processors, processor)
	sort.SliceStable(p.processors, func(i, j int) bool {
		return p.processors[i].Priority() < p.processors[j].Priority()
	})
}

// Processors returns the processors in execution order
func (p *Pipeline) Processors() []Processor {
	out := make([]Processor, len(p.processors))
	copy(out, p.processors)
	return out
}

// ExecuteRequest runs every OnRequest in priority order and stops at the first error
func (p *Pipeline) ExecuteRequest(gen *Generation, req *ChatRequest) error {
	for _, processor := range p.processors {
		if err := processor.OnRequest(gen, req); err != nil {
			return fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}
	return nil
}

// ExecuteResponse runs every OnResponse in priority order and stops at the first error
func (p *Pipeline) ExecuteResponse(gen *Generation, resp *ChatResponse) error {
	for _, processor := range p.processors {
		if err := processor.OnResponse(gen, resp); err != nil {
			return fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}
	return nil
}
