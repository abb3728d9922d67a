package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatstream/internal/core"
	"chatstream/internal/core/stream"
)

const (
	headerProvider     = "X-Provider"
	headerGenerationID = "X-Generation-ID"

	// statusClientClosed is reported when the caller went away mid-request
	statusClientClosed = 499
)

// chatCompletionRequest is the canonical request plus an optional provider pick
type chatCompletionRequest struct {
	core.ChatRequest
	Provider string `json:"provider"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"active_generations": s.registry.Len(),
	})
}

func (s *Server) banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "chatstream is running"})
}

type providerInfo struct {
	Kind         core.ProviderKind `json:"kind"`
	Model        string            `json:"model,omitempty"`
	Streaming    bool              `json:"streaming"`
	NonStreaming bool              `json:"non_streaming"`
	Anonymous    bool              `json:"anonymous"`
	Default      bool              `json:"default"`
}

func (s *Server) listProviders(c *gin.Context) {
	defaultKind := ""
	if s.routes != nil {
		defaultKind = s.routes.GetConfig().DefaultProvider
	}

	out := make([]providerInfo, 0)
	for _, kind := range s.dispatcher.Kinds() {
		p, _ := s.dispatcher.Provider(kind)
		caps := p.Capabilities()
		info := providerInfo{
			Kind:         kind,
			Streaming:    caps.Streaming,
			NonStreaming: caps.NonStreaming,
			Anonymous:    caps.Anonymous,
			Default:      string(kind) == defaultKind,
		}
		if s.routes != nil {
			if pc, ok := s.routes.Provider(string(kind)); ok {
				info.Model = pc.Model
			}
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) cancelGeneration(c *gin.Context) {
	if !s.registry.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"type": "not_found", "message": "unknown generation"}})
		return
	}
	c.Status(http.StatusNoContent)
}

// chatCompletions dispatches one chat request. Streaming replies are
// re-emitted as data: {"chunk": ...} lines followed by data: [DONE].
func (s *Server) chatCompletions(c *gin.Context) {
	var body chatCompletionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"type": "invalid_request", "message": fmt.Sprintf("Invalid JSON: %v", err)}})
		return
	}
	req := body.ChatRequest

	kind := s.resolveKind(body.Provider, c.GetHeader(headerProvider), req.Model)
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"type": "invalid_request", "message": "no provider selected"}})
		return
	}

	gen := s.registry.Start(c.Request.Context(), s.log.Zap())
	defer s.registry.Finish(gen)
	c.Header(headerGenerationID, gen.ID)

	res, err := s.dispatcher.Dispatch(gen, kind, &req)
	if err != nil {
		s.writeError(c, kind, err)
		return
	}

	if !req.Stream {
		c.JSON(http.StatusOK, res.Response)
		return
	}
	s.relayStream(c, gen, res)
}

// resolveKind picks the provider: body field, then header, then model routing
func (s *Server) resolveKind(fromBody, fromHeader, model string) core.ProviderKind {
	if k := strings.TrimSpace(fromBody); k != "" {
		return core.ProviderKind(strings.ToLower(k))
	}
	if k := strings.TrimSpace(fromHeader); k != "" {
		return core.ProviderKind(strings.ToLower(k))
	}
	if s.routes != nil {
		return core.ProviderKind(s.routes.FindRoute(model))
	}
	return ""
}

func (s *Server) relayStream(c *gin.Context, gen *core.Generation, res *core.Result) {
	st := res.Stream(gen, stream.WithLogger(gen.Log))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	fragments := 0
	for fragment, err := range st.Fragments() {
		if err != nil {
			gen.Log.Warn("stream failed", zap.Error(err), zap.Int("fragments", fragments))
			writeEvent(c, gin.H{"error": err.Error()})
			return
		}
		if !writeEvent(c, gin.H{"chunk": fragment}) {
			break
		}
		fragments++
	}

	if st.State() == stream.StateCancelled {
		// A cancelled reply is not a finished one
		writeEvent(c, gin.H{"cancelled": true})
	} else {
		fmt.Fprint(c.Writer, "data: "+stream.DoneSentinel+"\n\n")
		c.Writer.Flush()
	}

	gen.Log.Info("Stream Finished",
		zap.String("state", st.State().String()),
		zap.Int("fragments", fragments),
	)
}

// writeEvent writes one SSE data line. It reports false once the client is gone.
func writeEvent(c *gin.Context, payload gin.H) bool {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

// writeError maps dispatch errors onto HTTP statuses
func (s *Server) writeError(c *gin.Context, kind core.ProviderKind, err error) {
	status := http.StatusInternalServerError
	detail := gin.H{"message": err.Error(), "provider": kind}

	var (
		configErr *core.ConfigError
		httpErr   *core.HTTPError
		shapeErr  *core.ShapeError
	)
	switch {
	case errors.Is(err, core.ErrNoMessages), errors.Is(err, core.ErrNoUserMessage):
		status = http.StatusBadRequest
		detail["type"] = "invalid_request"
	case errors.As(err, &configErr):
		detail["type"] = "config_error"
		if _, registered := s.dispatcher.Provider(kind); !registered {
			status = http.StatusBadRequest
		}
	case errors.Is(err, context.Canceled):
		status = statusClientClosed
		detail["type"] = "cancelled"
	case errors.As(err, &httpErr):
		status = http.StatusBadGateway
		detail["type"] = "upstream_error"
		detail["upstream_status"] = httpErr.Status
	case errors.As(err, &shapeErr):
		status = http.StatusBadGateway
		detail["type"] = "upstream_shape_error"
	default:
		detail["type"] = "internal_error"
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{"error": detail})
}
