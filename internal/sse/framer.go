// Package sse implements the wire-level server-sent-event framer used on
// both ingress (parsing upstream provider streams) and egress (serializing
// the gateway's own chat-completion stream back to its clients).
package sse

import (
	"bytes"
	"strings"
)

// Framer parses an arbitrary byte stream into discrete SSE events and
// extracts OpenAI-shaped chat-completion deltas from each one. Feed may be
// called repeatedly with partial data; no assumption is made about where
// byte boundaries fall relative to line or event boundaries.
type Framer struct {
	leftover  []byte
	dataLines []string

	OnChunk func(content string)
	OnDone  func()
	OnError func(msg string)
}

// New constructs a Framer with the given callbacks. Any callback may be nil.
func New(onChunk func(string), onDone func(), onError func(string)) *Framer {
	return &Framer{OnChunk: onChunk, OnDone: onDone, OnError: onError}
}

// Feed accepts an arbitrary byte slice, possibly spanning a partial line or
// a partial event, and emits callbacks for every complete event it can
// extract from the accumulated buffer.
func (f *Framer) Feed(data []byte) {
	f.leftover = append(f.leftover, data...)
	for {
		idx := bytes.IndexByte(f.leftover, '\n')
		if idx < 0 {
			break
		}
		line := f.leftover[:idx]
		f.leftover = f.leftover[idx+1:]
		f.processLine(strings.TrimSuffix(string(line), "\r"))
	}
}

// End flushes any buffered partial line and any pending event, for streams
// that close without a trailing blank line (e.g. no terminal [DONE]).
func (f *Framer) End() {
	if len(f.leftover) > 0 {
		line := strings.TrimSuffix(string(f.leftover), "\r")
		f.leftover = nil
		f.processLine(line)
	}
	f.dispatchEvent()
}

func (f *Framer) processLine(line string) {
	if line == "" {
		f.dispatchEvent()
		return
	}
	if strings.HasPrefix(line, ":") {
		return // comment line, commonly a keepalive
	}

	field, value := splitField(line)
	switch field {
	case "data":
		f.dataLines = append(f.dataLines, value)
	case "event":
		// accepted, not acted upon
	default:
		// unrecognized field, ignored
	}
}

func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return
}

func (f *Framer) dispatchEvent() {
	if len(f.dataLines) == 0 {
		return
	}
	payload := strings.Join(f.dataLines, "\n")
	f.dataLines = nil
	f.processPayload(payload)
}

const donePayload = "[DONE]"

func (f *Framer) processPayload(payload string) {
	if payload == donePayload {
		if f.OnDone != nil {
			f.OnDone()
		}
		return
	}

	obj, ok := parseJSONObject(payload)
	if !ok {
		return // malformed JSON, silently dropped
	}

	if errVal, present := obj["error"]; present {
		if msg := extractErrorMessage(errVal); msg != "" {
			if f.OnError != nil {
				f.OnError(msg)
			}
			return
		}
	}

	if content := extractContent(obj); content != "" {
		if f.OnChunk != nil {
			f.OnChunk(content)
		}
	}
}
