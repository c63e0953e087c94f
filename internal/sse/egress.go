package sse

import (
	"encoding/json"
	"io"

	gosse "github.com/tmaxmax/go-sse"
)

// chatDelta mirrors the OpenAI chat-completion streaming chunk shape used
// on the wire for egress serialization. Ingress parsing (parse.go) reads
// the same shape through a generic map instead.
type chatDelta struct {
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Delta deltaContent `json:"delta"`
}

type deltaContent struct {
	Content string `json:"content"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

// WriteChunk serializes one content chunk as a data: event, matching the
// framing this package's ingress side understands.
func WriteChunk(w io.Writer, content string) error {
	payload, err := json.Marshal(chatDelta{Choices: []deltaChoice{{Delta: deltaContent{Content: content}}}})
	if err != nil {
		return err
	}
	return writeMessage(w, string(payload))
}

// WriteDone emits the terminal [DONE] sentinel.
func WriteDone(w io.Writer) error {
	return writeMessage(w, donePayload)
}

// WriteError emits a mid-stream error event; callers must close the
// underlying stream immediately afterward.
func WriteError(w io.Writer, message string) error {
	payload, err := json.Marshal(errorEnvelope{Error: errorBody{Message: message}})
	if err != nil {
		return err
	}
	return writeMessage(w, string(payload))
}

func writeMessage(w io.Writer, data string) error {
	msg := &gosse.Message{}
	msg.AppendData(data)
	_, err := msg.WriteTo(w)
	return err
}
