package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bestruirui/tollfree/internal/errs"
	"github.com/bestruirui/tollfree/internal/fanout"
	"github.com/bestruirui/tollfree/internal/inspector"
	"github.com/bestruirui/tollfree/internal/server/middleware"
	"github.com/bestruirui/tollfree/internal/server/resp"
	"github.com/bestruirui/tollfree/internal/server/router"
	"github.com/bestruirui/tollfree/internal/sse"
	"github.com/bestruirui/tollfree/internal/utils/xstrings"
	"github.com/gin-gonic/gin"
)

func init() {
	router.NewGroupRouter("/v1").
		Use(middleware.RequireJSON()).
		AddRoute(
			router.NewRoute("/chat/completions", http.MethodPost).
				Handle(chatCompletions),
		)
}

type chatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// chatCompletionsRequest mirrors the OpenAI chat-completions body. Models
// is an extension accepted alongside the single Model field so a caller
// can fan a client call out across more than one free model in one
// request; when absent, Model alone is used.
type chatCompletionsRequest struct {
	Model    string        `json:"model" binding:"required"`
	Models   []string      `json:"models,omitempty"`
	Messages []chatMessage `json:"messages" binding:"required"`
	Stream   bool          `json:"stream"`
}

func (r chatCompletionsRequest) modelSelection() []string {
	if len(r.Models) > 0 {
		return r.Models
	}
	if strings.Contains(r.Model, ",") {
		return xstrings.SplitTrimCompact(",", r.Model)
	}
	return []string{r.Model}
}

func chatCompletions(c *gin.Context) {
	var req chatCompletionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, resp.ErrInvalidJSON)
		return
	}

	messages := make([]fanout.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, fanout.Message{Role: m.Role, Content: m.Content})
	}

	selection := req.modelSelection()
	ctx := c.Request.Context()

	call := fanout.ClientCall{
		ModelSelection: selection,
		Messages:       messages,
		Done:           ctx.Done(),
	}

	if verr := deps.Router.Validate(ctx, call); verr != nil {
		writeRouterError(c, verr)
		return
	}

	started := time.Now()

	if req.Stream {
		streamChatCompletions(c, call, started)
		return
	}
	nonStreamChatCompletions(c, call, started)
}

func writeRouterError(c *gin.Context, err *errs.Error) {
	status := err.HTTPStatus()
	if status == 0 {
		c.AbortWithStatus(http.StatusBadGateway)
		return
	}
	setRetryAfter(c, err)
	resp.Error(c, status, err.Error())
}

// setRetryAfter carries a circuit breaker's reset time or an upstream
// rate-limit's retry hint through to the client.
func setRetryAfter(c *gin.Context, err *errs.Error) {
	switch {
	case err.Kind == errs.KindCircuitOpen && err.ResetAt != nil:
		secs := int(time.Until(*err.ResetAt).Seconds())
		if secs < 0 {
			secs = 0
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	case err.RetryAfter != nil:
		c.Header("Retry-After", strconv.Itoa(int(err.RetryAfter.Seconds())))
	}
}

func streamChatCompletions(c *gin.Context, call fanout.ClientCall, started time.Time) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	singleModel := len(call.ModelSelection) == 1
	var streamErr string
	call.OnChunk = func(_ string, content string) {
		if err := sse.WriteChunk(c.Writer, content); err != nil {
			return
		}
		c.Writer.Flush()
	}
	call.OnModelDone = func(rec fanout.ModelRecord) {
		if rec.Error != "" {
			streamErr = rec.Error
		} else if !singleModel {
			// Aggregation mode delivers no incremental chunks, so the
			// caller gets this model's full content as one chunk.
			if err := sse.WriteChunk(c.Writer, rec.Content); err == nil {
				c.Writer.Flush()
			}
		}
		recordTransaction(c, rec, started)
	}

	if err := deps.Router.Dispatch(c.Request.Context(), call); err != nil {
		if streamErr == "" {
			streamErr = err.Error()
		}
	}
	if streamErr != "" {
		_ = sse.WriteError(c.Writer, streamErr)
		c.Writer.Flush()
		return
	}
	_ = sse.WriteDone(c.Writer)
	c.Writer.Flush()
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
}

func nonStreamChatCompletions(c *gin.Context, call fanout.ClientCall, started time.Time) {
	records := make([]fanout.ModelRecord, 0, len(call.ModelSelection))
	call.OnModelDone = func(rec fanout.ModelRecord) {
		records = append(records, rec)
		recordTransaction(c, rec, started)
	}

	if err := deps.Router.Dispatch(c.Request.Context(), call); err != nil {
		if rerr, ok := errs.As(err); ok {
			writeRouterError(c, rerr)
			return
		}
		resp.Error(c, http.StatusBadGateway, err.Error())
		return
	}

	choices := make([]chatCompletionChoice, 0, len(records))
	for i, rec := range records {
		finish := "stop"
		content := rec.Content
		if rec.Error != "" {
			finish = "error"
			content = rec.Error
		}
		choices = append(choices, chatCompletionChoice{
			Index:        i,
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: finish,
		})
	}

	c.JSON(http.StatusOK, chatCompletionResponse{
		Object:  "chat.completion",
		Created: started.Unix(),
		Model:   call.ModelSelection[0],
		Choices: choices,
	})
}

func recordTransaction(c *gin.Context, rec fanout.ModelRecord, started time.Time) {
	if !deps.Inspector.Enabled() {
		return
	}
	status := http.StatusOK
	if rec.Error != "" {
		status = http.StatusBadGateway
	}
	deps.Inspector.Record(inspector.Transaction{
		StartedAt:           started,
		EndedAt:             time.Now(),
		TTFB:                time.Duration(rec.TTFTMs) * time.Millisecond,
		RequestMethod:       c.Request.Method,
		RequestURL:          c.Request.URL.String(),
		RequestHeaders:      c.Request.Header,
		ResponseHeaders:     c.Writer.Header(),
		ResponseStatus:      status,
		ResponseBodySnippet: snippet(rec.Content, rec.Error),
	})
}

func snippet(content, errMsg string) string {
	if errMsg != "" {
		return errMsg
	}
	const max = 512
	if len(content) > max {
		return content[:max]
	}
	return content
}
