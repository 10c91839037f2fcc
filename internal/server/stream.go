package server

import (
	"net/http"
)

// streamWriter relays chunked plain text to the client. Headers are written
// lazily on the first chunk so an upstream failure before any output can
// still produce a JSON error response.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: flusher}
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if !sw.started {
		sw.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		sw.w.Header().Set("Cache-Control", "no-cache")
		sw.w.Header().Set("X-Accel-Buffering", "no")
		sw.w.WriteHeader(http.StatusOK)
		sw.started = true
	}
	n, err := sw.w.Write(p)
	if err == nil && sw.flusher != nil {
		sw.flusher.Flush()
	}
	return n, err
}

func (sw *streamWriter) Started() bool {
	return sw.started
}
