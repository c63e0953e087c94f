package sse

import (
	"strings"
	"testing"
)

type recorder struct {
	chunks []string
	done   bool
	errs   []string
}

func newRecorder() (*recorder, *Framer) {
	r := &recorder{}
	f := New(
		func(c string) { r.chunks = append(r.chunks, c) },
		func() { r.done = true },
		func(msg string) { r.errs = append(r.errs, msg) },
	)
	return r, f
}

func TestFramer_BasicChunksAndDone(t *testing.T) {
	r, f := newRecorder()
	stream := `data: {"choices":[{"delta":{"content":"Hel"}}]}

data: {"choices":[{"delta":{"content":"lo"}}]}

data: [DONE]

`
	f.Feed([]byte(stream))

	if got := strings.Join(r.chunks, ""); got != "Hello" {
		t.Fatalf("got chunks %q, want %q", got, "Hello")
	}
	if !r.done {
		t.Fatalf("expected on_done to fire")
	}
}

func TestFramer_SplitAcrossFeedCalls(t *testing.T) {
	full := `data: {"choices":[{"delta":{"content":"Hel"}}]}

data: {"choices":[{"delta":{"content":"lo"}}]}

data: [DONE]

`
	for split := 0; split < len(full); split++ {
		r, f := newRecorder()
		f.Feed([]byte(full[:split]))
		f.Feed([]byte(full[split:]))

		if got := strings.Join(r.chunks, ""); got != "Hello" {
			t.Fatalf("split at %d: got chunks %q, want %q", split, got, "Hello")
		}
		if !r.done {
			t.Fatalf("split at %d: expected on_done to fire", split)
		}
	}
}

func TestFramer_MultipleEventsOneBuffer(t *testing.T) {
	r, f := newRecorder()
	f.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n"))

	if got := strings.Join(r.chunks, ""); got != "ab" {
		t.Fatalf("got %q, want %q", got, "ab")
	}
}

func TestFramer_EmptyChoicesProducesNothing(t *testing.T) {
	r, f := newRecorder()
	f.Feed([]byte(`data: {"choices":[]}` + "\n\n"))

	if len(r.chunks) != 0 || len(r.errs) != 0 || r.done {
		t.Fatalf("expected no callbacks, got chunks=%v errs=%v done=%v", r.chunks, r.errs, r.done)
	}
}

func TestFramer_MalformedJSONIsDroppedAndParsingContinues(t *testing.T) {
	r, f := newRecorder()
	f.Feed([]byte("data: {not json}\n\n"))
	f.Feed([]byte(`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n"))

	if got := strings.Join(r.chunks, ""); got != "ok" {
		t.Fatalf("got %q, want %q", got, "ok")
	}
}

func TestFramer_ErrorObjectExtractsMessage(t *testing.T) {
	r, f := newRecorder()
	f.Feed([]byte(`data: {"error":{"message":"boom"}}` + "\n\n"))

	if len(r.errs) != 1 || r.errs[0] != "boom" {
		t.Fatalf("got errs=%v, want [boom]", r.errs)
	}
}

func TestFramer_CommentLinesIgnored(t *testing.T) {
	r, f := newRecorder()
	f.Feed([]byte(": keepalive\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"))

	if got := strings.Join(r.chunks, ""); got != "x" {
		t.Fatalf("got %q, want %q", got, "x")
	}
}

func TestFramer_EndFlushesDanglingEvent(t *testing.T) {
	r, f := newRecorder()
	f.Feed([]byte(`data: {"choices":[{"delta":{"content":"tail"}}]}`))
	f.End()

	if got := strings.Join(r.chunks, ""); got != "tail" {
		t.Fatalf("got %q, want %q", got, "tail")
	}
}

func TestFramer_MidJSONSplitAcrossBuffers(t *testing.T) {
	r, f := newRecorder()
	payload := `data: {"choices":[{"delta":{"content":"joined"}}]}` + "\n\n"
	mid := len(payload) / 2
	f.Feed([]byte(payload[:mid]))
	if len(r.chunks) != 0 {
		t.Fatalf("expected no chunk before event completes, got %v", r.chunks)
	}
	f.Feed([]byte(payload[mid:]))
	if got := strings.Join(r.chunks, ""); got != "joined" {
		t.Fatalf("got %q, want %q", got, "joined")
	}
}
