package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const defaultChunkSize = 4 * 1024

// maxLoggedPayload caps how much of a skipped line ends up in the log
const maxLoggedPayload = 256

var (
	// ErrConsumed is yielded when a Stream is iterated a second time
	ErrConsumed = errors.New("stream already consumed")
	// ErrCancelled is returned by Collect when the stream was cancelled.
	// Fragments never yields it: cancellation is a terminal state, not a failure.
	ErrCancelled = errors.New("stream cancelled")
)

// State is the lifecycle position of a Stream
type State int32

const (
	StateIdle State = iota
	StateReading
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures a Stream
type Option func(*Stream)

// WithLogger sets the logger used for skipped lines
func WithLogger(log *zap.Logger) Option {
	return func(s *Stream) {
		if log != nil {
			s.log = log
		}
	}
}

// WithShapes replaces the envelope list used for shape dispatch
func WithShapes(shapes []Shape) Option {
	return func(s *Stream) {
		s.shapes = shapes
	}
}

// WithChunkSize sets the read buffer size
func WithChunkSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// Stream turns an SSE byte source into a single-pass sequence of text
// fragments. It exclusively owns src and closes it exactly once.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	src       io.ReadCloser
	synthetic *string

	log       *zap.Logger
	shapes    []Shape
	chunkSize int

	consumed  atomic.Bool
	state     atomic.Int32
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// New wraps src. Cancelling ctx has the same effect as calling Cancel.
func New(ctx context.Context, src io.ReadCloser, opts ...Option) *Stream {
	s := &Stream{
		src:       src,
		log:       zap.NewNop(),
		shapes:    DefaultShapes(),
		chunkSize: defaultChunkSize,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromText returns a stream that yields text as its only fragment. It is used
// for adapters that answer with a complete response.
func FromText(ctx context.Context, text string, opts ...Option) *Stream {
	s := New(ctx, nil, opts...)
	s.synthetic = &text
	return s
}

// State returns the current lifecycle state
func (s *Stream) State() State {
	return State(s.state.Load())
}

// Err returns the terminal read error, if the stream failed
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel aborts the transport and stops the iteration. Fragments produced
// after this call are discarded. Calling Cancel more than once is a no-op.
func (s *Stream) Cancel() {
	s.cancel()
	s.release()
	// Never iterated: there is no loop left to record the transition.
	s.state.CompareAndSwap(int32(StateIdle), int32(StateCancelled))
}

// Fragments returns the fragment sequence. The sequence can be ranged over
// once; breaking out of the loop cancels the stream and releases the source.
// A non-nil error is yielded at most once and ends the sequence.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield("", ErrConsumed)
			return
		}
		defer s.release()

		if s.synthetic != nil {
			s.emitSynthetic(yield)
			return
		}
		s.run(yield)
	}
}

// Collect drains the stream and returns the concatenated text
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for fragment, err := range s.Fragments() {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(fragment)
	}
	if s.State() == StateCancelled {
		return sb.String(), ErrCancelled
	}
	return sb.String(), nil
}

func (s *Stream) emitSynthetic(yield func(string, error) bool) {
	if s.ctx.Err() != nil {
		s.finish(StateCancelled, nil)
		return
	}
	if *s.synthetic != "" && !yield(*s.synthetic, nil) {
		s.finish(StateCancelled, nil)
		return
	}
	s.finish(StateDone, nil)
}

type readResult struct {
	data []byte
	err  error
}

// run is the consumer loop: wait for a chunk, frame it, classify and decode
// every complete line, yield fragments in order.
func (s *Stream) run(yield func(string, error) bool) {
	s.state.Store(int32(StateReading))
	chunks := s.pump()
	framer := NewFramer()

	for {
		if s.ctx.Err() != nil {
			framer.Reset()
			s.finish(StateCancelled, nil)
			return
		}

		var (
			res readResult
			ok  bool
		)
		select {
		case <-s.ctx.Done():
			framer.Reset()
			s.finish(StateCancelled, nil)
			return
		case res, ok = <-chunks:
		}

		if !ok {
			// Source ended cleanly: the tail is a complete final line.
			if line, has := framer.Flush(); has {
				if !s.handleLine(line, yield) {
					return
				}
			}
			s.finish(StateDone, nil)
			return
		}

		if res.err != nil {
			if s.ctx.Err() != nil {
				s.finish(StateCancelled, nil)
				return
			}
			err := fmt.Errorf("stream read failed: %w", res.err)
			s.finish(StateFailed, err)
			yield("", err)
			return
		}

		for _, line := range framer.Feed(res.data) {
			if !s.handleLine(line, yield) {
				return
			}
		}
	}
}

// handleLine processes one complete line. It returns false when the
// iteration must stop; the terminal state has been recorded by then.
func (s *Stream) handleLine(line string, yield func(string, error) bool) bool {
	kind, payload := Classify(line)
	switch kind {
	case LineDone:
		s.finish(StateDone, nil)
		return false
	case LineData:
	default:
		return true
	}

	if !gjson.Valid(payload) {
		s.log.Debug("skipping malformed stream line", zap.String("payload", truncate(payload)))
		return true
	}
	shape, text, ok := Dispatch(s.shapes, gjson.Parse(payload))
	if !ok {
		s.log.Debug("skipping unrecognized stream envelope", zap.String("payload", truncate(payload)))
		return true
	}
	if text == "" {
		return true
	}

	if s.ctx.Err() != nil {
		s.finish(StateCancelled, nil)
		return false
	}
	if !yield(text, nil) {
		s.log.Debug("stream consumer stopped early", zap.String("shape", shape))
		s.finish(StateCancelled, nil)
		return false
	}
	return true
}

// pump reads decoded chunks on its own goroutine so the consumer loop can
// observe cancellation while a read is blocked. It exits once the context
// is cancelled or the source is exhausted.
func (s *Stream) pump() <-chan readResult {
	out := make(chan readResult)
	reader := transform.NewReader(s.src, unicode.UTF8BOM.NewDecoder())

	go func() {
		defer close(out)
		for {
			buf := make([]byte, s.chunkSize)
			n, err := reader.Read(buf)
			if n > 0 {
				select {
				case out <- readResult{data: buf[:n]}:
				case <-s.ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case out <- readResult{err: err}:
				case <-s.ctx.Done():
				}
				return
			}
		}
	}()

	return out
}

func (s *Stream) finish(state State, err error) {
	s.mu.Lock()
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
	s.state.Store(int32(state))
}

// release closes the source exactly once and stops the pump goroutine
func (s *Stream) release() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.src != nil {
			if err := s.src.Close(); err != nil {
				s.log.Debug("failed to close stream source", zap.Error(err))
			}
		}
	})
}

func truncate(payload string) string {
	if len(payload) <= maxLoggedPayload {
		return payload
	}
	return payload[:maxLoggedPayload] + "..."
}
