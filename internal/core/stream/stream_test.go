package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// chunkSource hands out one predefined chunk per Read, like packets
// arriving from the network.
type chunkSource struct {
	chunks [][]byte
	err    error
	closed bool
}

func newChunkSource(chunks ...string) *chunkSource {
	src := &chunkSource{}
	for _, c := range chunks {
		src.chunks = append(src.chunks, []byte(c))
	}
	return src
}

func (c *chunkSource) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkSource) Close() error {
	c.closed = true
	return nil
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for fragment, err := range s.Fragments() {
		require.NoError(t, err)
		out = append(out, fragment)
	}
	return out
}

func deltaLine(text string) string {
	return `data: {"choices":[{"delta":{"content":"` + text + `"}}]}` + "\n\n"
}

func TestEndToEndChoicesDelta(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	src := newChunkSource(input)
	s := New(context.Background(), src)

	assert.Equal(t, []string{"Hel", "lo"}, collect(t, s))
	assert.Equal(t, StateDone, s.State())
	assert.True(t, src.closed)
	assert.NoError(t, s.Err())
}

func TestSplitAtEveryOffsetMatchesSingleChunk(t *testing.T) {
	input := deltaLine("Grüße, ") +
		": keep-alive\n" +
		deltaLine("世界") +
		"event: ping\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" 🙂"}}` + "\r\n\r\n" +
		deltaLine("!") +
		"data: [DONE]\n\n"

	want := collect(t, New(context.Background(), newChunkSource(input)))
	require.Equal(t, []string{"Grüße, ", "世界", " 🙂", "!"}, want)

	for offset := 1; offset < len(input); offset++ {
		s := New(context.Background(), newChunkSource(input[:offset], input[offset:]))
		got := collect(t, s)
		assert.Equal(t, want, got, "split at byte %d", offset)
	}
}

func TestSplitIntoSingleBytes(t *testing.T) {
	input := deltaLine("naïve ") + deltaLine("café") + "data: [DONE]\n"
	var chunks []string
	for i := 0; i < len(input); i++ {
		chunks = append(chunks, input[i:i+1])
	}

	got := collect(t, New(context.Background(), newChunkSource(chunks...), WithChunkSize(1)))
	assert.Equal(t, []string{"naïve ", "café"}, got)
}

func TestControlLinesAreSuppressed(t *testing.T) {
	input := ": ping\n" +
		"event: ping\n" +
		`data: {"type":"ping"}` + "\n\n" +
		deltaLine("a") +
		"id: 42\n" +
		"retry: 1000\n" +
		": ping\n" +
		deltaLine("b") +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	assert.Equal(t, []string{"a", "b"}, collect(t, New(context.Background(), newChunkSource(input))))
}

func TestMalformedLineIsSkipped(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	input := deltaLine("one") +
		"data: {\"choices\":[{\"delta\":{\"content\":\n\n" +
		deltaLine("two")

	s := New(context.Background(), newChunkSource(input), WithLogger(zap.New(core)))
	assert.Equal(t, []string{"one", "two"}, collect(t, s))
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed stream line").Len())
}

func TestBareKeepAliveIsNotMalformed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	input := "data: ping\n\n" +
		deltaLine("a") +
		"data: keep-alive\n\n" +
		deltaLine("b")

	s := New(context.Background(), newChunkSource(input), WithLogger(zap.New(core)))
	assert.Equal(t, []string{"a", "b"}, collect(t, s))
	assert.Equal(t, 0, logs.FilterMessage("skipping malformed stream line").Len())
}

func TestCustomShapes(t *testing.T) {
	candidates := Shape{
		Name:  "candidates",
		Match: func(doc gjson.Result) bool { return doc.Get("candidates.0.content.parts.0.text").Exists() },
		Extract: func(doc gjson.Result) string {
			return doc.Get("candidates.0.content.parts.0.text").String()
		},
	}
	input := `data: {"candidates":[{"content":{"parts":[{"text":"x"}]}}]}` + "\n" +
		deltaLine("ignored") +
		`data: {"candidates":[{"content":{"parts":[{"text":"y"}]}}]}` + "\n"

	s := New(context.Background(), newChunkSource(input), WithShapes([]Shape{candidates}))
	assert.Equal(t, []string{"x", "y"}, collect(t, s))
}

func TestShapePriority(t *testing.T) {
	input := `data: {"chunk":"custom","choices":[{"delta":{"content":"delta"}}]}` + "\n" +
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"block"},"choices":[{"message":{"content":"message"}}]}` + "\n" +
		`data: {"choices":[{"delta":{"content":"delta"},"message":{"content":"message"}}]}` + "\n" +
		`data: {"choices":[{"message":{"content":"message"}}]}` + "\n"

	got := collect(t, New(context.Background(), newChunkSource(input)))
	assert.Equal(t, []string{"custom", "block", "delta", "message"}, got)
}

func TestUnknownEnvelopeIsSkipped(t *testing.T) {
	input := `data: {"candidates":[{"content":{"parts":[{"text":"x"}]}}]}` + "\n" +
		`data: [1,2,3]` + "\n" +
		`data: "bare string"` + "\n" +
		`data: {"choices":[{"delta":{"content":null}}]}` + "\n" +
		`data: {"choices":[{"delta":{"role":"assistant","content":""}}]}` + "\n" +
		deltaLine("ok")

	assert.Equal(t, []string{"ok"}, collect(t, New(context.Background(), newChunkSource(input))))
}

func TestSentinelTerminatesWithoutFragment(t *testing.T) {
	input := deltaLine("before") + "data: [DONE]\n\n" + deltaLine("after")

	s := New(context.Background(), newChunkSource(input))
	assert.Equal(t, []string{"before"}, collect(t, s))
	assert.Equal(t, StateDone, s.State())
}

func TestUnterminatedFinalLineAtEOF(t *testing.T) {
	input := deltaLine("a") + `data: {"chunk":"tail"}`

	assert.Equal(t, []string{"a", "tail"}, collect(t, New(context.Background(), newChunkSource(input))))
}

func TestCancelDiscardsBufferedTail(t *testing.T) {
	// Everything arrives in a single chunk, so the remaining lines are
	// already buffered when the consumer cancels.
	input := deltaLine("1") + deltaLine("2") + deltaLine("3") + deltaLine("4")
	s := New(context.Background(), newChunkSource(input))

	var got []string
	for fragment, err := range s.Fragments() {
		require.NoError(t, err)
		got = append(got, fragment)
		if len(got) == 2 {
			s.Cancel()
			s.Cancel()
		}
	}

	assert.Equal(t, []string{"1", "2"}, got)
	assert.Equal(t, StateCancelled, s.State())
	assert.NoError(t, s.Err())
}

func TestCancelUnblocksPendingRead(t *testing.T) {
	pr, pw := io.Pipe()
	s := New(context.Background(), pr)

	go func() {
		_, _ = io.WriteString(pw, deltaLine("first"))
		_, _ = io.WriteString(pw, `data: {"choices":[{"delta":{"content":"partial`)
		// the writer never finishes the line nor closes the pipe
	}()

	first := make(chan struct{})
	done := make(chan []string)
	go func() {
		var got []string
		for fragment, err := range s.Fragments() {
			if err != nil {
				break
			}
			got = append(got, fragment)
			if len(got) == 1 {
				close(first)
			}
		}
		done <- got
	}()

	<-first
	s.Cancel()

	select {
	case got := <-done:
		assert.Equal(t, []string{"first"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("iteration did not stop after Cancel")
	}
	assert.Equal(t, StateCancelled, s.State())
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pr, pw := io.Pipe()
	defer pw.Close()

	s := New(ctx, pr)
	go func() {
		_, _ = io.WriteString(pw, deltaLine("x"))
	}()

	for fragment, err := range s.Fragments() {
		require.NoError(t, err)
		assert.Equal(t, "x", fragment)
		cancel()
	}
	assert.Equal(t, StateCancelled, s.State())
}

func TestBreakReleasesSource(t *testing.T) {
	src := newChunkSource(deltaLine("a"), deltaLine("b"))
	s := New(context.Background(), src)

	for range s.Fragments() {
		break
	}
	assert.True(t, src.closed)
	assert.Equal(t, StateCancelled, s.State())
}

func TestReadErrorIsTerminal(t *testing.T) {
	src := newChunkSource(deltaLine("a"))
	src.err = errors.New("connection reset")
	s := New(context.Background(), src)

	var (
		got  []string
		errs []error
	)
	for fragment, err := range s.Fragments() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, fragment)
	}

	assert.Equal(t, []string{"a"}, got)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "connection reset")
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, errs[0], s.Err())
}

func TestSecondIterationIsRejected(t *testing.T) {
	s := New(context.Background(), newChunkSource(deltaLine("a")))
	collect(t, s)

	var errs []error
	for _, err := range s.Fragments() {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrConsumed)
}

func TestInvalidUTF8IsReplaced(t *testing.T) {
	input := "data: {\"chunk\":\"a\xffb\"}\n"
	got := collect(t, New(context.Background(), newChunkSource(input)))
	assert.Equal(t, []string{"a\uFFFDb"}, got)
}

func TestLeadingBOMIsStripped(t *testing.T) {
	input := "\xef\xbb\xbf" + deltaLine("bom")
	assert.Equal(t, []string{"bom"}, collect(t, New(context.Background(), newChunkSource(input))))
}

func TestFromText(t *testing.T) {
	s := FromText(context.Background(), "complete answer")
	text, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "complete answer", text)
	assert.Equal(t, StateDone, s.State())

	empty := FromText(context.Background(), "")
	assert.Empty(t, collect(t, empty))
}

func TestCollect(t *testing.T) {
	input := strings.Repeat(deltaLine("ab"), 3) + "data: [DONE]\n"
	text, err := New(context.Background(), newChunkSource(input)).Collect()
	require.NoError(t, err)
	assert.Equal(t, "ababab", text)

	cancelled := New(context.Background(), newChunkSource(input))
	cancelled.Cancel()
	_, err = cancelled.Collect()
	assert.ErrorIs(t, err, ErrCancelled)
}
