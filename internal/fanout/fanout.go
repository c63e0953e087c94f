// Package fanout implements the Fanout Router (C8): it turns one client
// call into N parallel Streaming Client invocations, exposing both a
// single-model streaming-egress mode and a multi-model aggregation mode.
package fanout

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bestruirui/tollfree/internal/cost"
	"github.com/bestruirui/tollfree/internal/errs"
	"github.com/bestruirui/tollfree/internal/ledger"
	"github.com/bestruirui/tollfree/internal/scanner"
	"github.com/bestruirui/tollfree/internal/streamclient"
	"github.com/bestruirui/tollfree/internal/utils/snowflake"
	"github.com/bestruirui/tollfree/internal/utils/xslice"
)

// RouteResolver maps a scanner.Model to the transport details the
// Streaming Client needs to reach it.
type RouteResolver func(m scanner.Model) streamclient.Route

// Router dispatches a client call across one or more models.
type Router struct {
	scanner       *scanner.Scanner
	client        *streamclient.Client
	ledger        *ledger.Ledger
	costEstimator cost.Estimator
	resolveRoute  RouteResolver
	maxModels     int
}

type Option func(*Router)

func WithMaxModels(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxModels = n
		}
	}
}

func New(sc *scanner.Scanner, cl *streamclient.Client, lg *ledger.Ledger, estimator cost.Estimator, resolve RouteResolver, opts ...Option) *Router {
	r := &Router{
		scanner:       sc,
		client:        cl,
		ledger:        lg,
		costEstimator: estimator,
		resolveRoute:  resolve,
		maxModels:     3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Message is one chat turn, re-exported at package boundary so callers
// don't need to import streamclient directly.
type Message = streamclient.Message

// ModelRecord is the per-model terminal state in aggregation mode.
type ModelRecord struct {
	Model    string `json:"model"`
	Loading  bool   `json:"loading"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
	TTFTMs   int64  `json:"ttft_ms,omitempty"`
	TotalMs  int64  `json:"total_ms,omitempty"`
}

// ClientCall is one inbound chat-completions request, already validated
// against the precondition checks in Validate.
type ClientCall struct {
	ModelSelection []string
	Messages       []Message

	// OnChunk is invoked for streaming egress mode (len(ModelSelection)==1).
	// Dispatch serializes every call to OnChunk and OnModelDone under its
	// own internal lock, so callers may mutate shared state (an
	// http.ResponseWriter, a result slice) from inside them without
	// separate synchronization of their own.
	OnChunk func(model, content string)
	// OnModelDone is invoked once per model as it reaches a terminal state,
	// used by aggregation mode to build the final per-model response. See
	// OnChunk for the serialization guarantee.
	OnModelDone func(rec ModelRecord)

	Done <-chan struct{}
}

// Validate checks the preconditions: non-empty, no duplicates,
// every model known and (if not ollama) configured, and the estimated
// aggregate cost fits within the spending caps. Failures the client
// could have avoided by sending a different request (empty/duplicate/
// over-cap selection, an unknown model) classify as InvalidRequest
// (400); only a missing credential for an otherwise-valid model
// classifies as Configuration (503) — that one is the server's to fix.
func (r *Router) Validate(ctx context.Context, call ClientCall) *errs.Error {
	if len(call.ModelSelection) == 0 {
		return errs.InvalidRequest("model_selection must be non-empty")
	}
	if len(xslice.Unique(call.ModelSelection)) != len(call.ModelSelection) {
		return errs.InvalidRequest("model_selection contains duplicate entries")
	}
	if len(call.ModelSelection) > r.maxModels {
		return errs.InvalidRequest(fmt.Sprintf("model_selection has %d entries, exceeds the configured cap of %d", len(call.ModelSelection), r.maxModels))
	}

	byID := make(map[string]scanner.Model)
	for _, m := range r.scanner.List(ctx) {
		byID[m.ID] = m
	}

	promptText := make([]string, 0, len(call.Messages))
	for _, m := range call.Messages {
		promptText = append(promptText, m.Content)
	}

	for _, id := range call.ModelSelection {
		m, ok := byID[id]
		if !ok {
			return errs.InvalidRequest(fmt.Sprintf("model %q is not in the free catalog", id))
		}
		if m.Source != scanner.SourceOllama && !m.Configured {
			return errs.Configuration(fmt.Sprintf("model %q requires a configured credential", id))
		}
	}

	n := len(call.ModelSelection)
	perModel := 0.0
	if len(call.ModelSelection) > 0 {
		perModel = cost.EstimateForPrompt(ctx, r.costEstimator, call.ModelSelection[0], promptText)
	}
	if err := r.ledger.Check(perModel * float64(n)); err != nil {
		return err
	}
	return nil
}

// Dispatch spawns one Streaming Client invocation per selected model and
// blocks until all of them reach a terminal state, or all records are
// delivered to OnModelDone. It succeeds overall as long as at least one
// child completes; failures are surfaced per-model. Only when every child
// fails does it return an error: the first child error captured.
//
// Every call into call.OnChunk or call.OnModelDone is made while holding
// mu, so the N per-model goroutines never invoke them concurrently with
// each other — this is what lets handlers write to a shared
// http.ResponseWriter or append to a shared slice from inside those
// callbacks without their own locking.
func (r *Router) Dispatch(ctx context.Context, call ClientCall) error {
	catalog := make(map[string]scanner.Model, len(call.ModelSelection))
	for _, m := range r.scanner.List(ctx) {
		catalog[m.ID] = m
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	var firstErr *errs.Error

	singleStreaming := len(call.ModelSelection) == 1 && call.OnChunk != nil

	for _, modelID := range call.ModelSelection {
		model := catalog[modelID]
		route := r.resolveRoute(model)
		requestID := strconv.FormatInt(snowflake.GenerateID(), 10)

		wg.Add(1)
		go func(modelID string, route streamclient.Route) {
			defer wg.Done()

			rec := ModelRecord{Model: modelID, Loading: true}

			onChunk := func(content string) {
				if !singleStreaming {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				call.OnChunk(modelID, content)
			}
			onComplete := func(res streamclient.Result) {
				rec.Loading = false
				rec.Content = res.Content
				rec.TTFTMs = res.TTFT.Milliseconds()
				rec.TotalMs = res.Total.Milliseconds()
				if r.ledger != nil {
					r.ledger.Record(cost.EstimateForPrompt(ctx, r.costEstimator, modelID, []string{res.Content}))
				}

				mu.Lock()
				defer mu.Unlock()
				succeeded++
				if call.OnModelDone != nil {
					call.OnModelDone(rec)
				}
			}
			onError := func(e *errs.Error) {
				rec.Loading = false
				rec.Error = e.Error()

				mu.Lock()
				defer mu.Unlock()
				if firstErr == nil {
					firstErr = e
				}
				if call.OnModelDone != nil {
					call.OnModelDone(rec)
				}
			}

			r.client.Stream(ctx, streamclient.Request{
				RequestID:  requestID,
				Model:      modelID,
				Route:      route,
				Messages:   call.Messages,
				OnChunk:    onChunk,
				OnComplete: onComplete,
				OnError:    onError,
				Done:       call.Done,
			})
		}(modelID, route)
	}

	wg.Wait()

	if succeeded == 0 {
		if firstErr != nil {
			return firstErr
		}
		return errs.Upstream("", 0, "all models in this call failed")
	}
	return nil
}
