package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type chunkEvent struct {
	Chunk string `json:"chunk"`
}

type doneEvent struct {
	Done bool `json:"done"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// eventStream writes server-sent events, flushing after every frame.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newEventStream sends the event-stream headers and a 200 status.
func newEventStream(w http.ResponseWriter) *eventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	es := &eventStream{w: w, rc: http.NewResponseController(w)}
	_ = es.flush()
	return es
}

func (es *eventStream) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(es.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return es.flush()
}

func (es *eventStream) flush() error {
	if err := es.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
