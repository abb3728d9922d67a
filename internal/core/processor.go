package core

// Processor is the middleware interface for the dispatch pipeline
type Processor interface {
	// Name returns the processor name
	Name() string
	// Priority returns the execution priority (lower = earlier)
	Priority() int
	// OnRequest is called before the request is sent to the provider
	OnRequest(gen *Generation, req *ChatRequest) error
	// OnResponse is called with a complete (non-streaming) response
	OnResponse(gen *Generation, resp *ChatResponse) error
}
