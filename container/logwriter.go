package container

import (
	"bytes"
	"context"
	"strings"

	"github.com/babydragon/buildtest/relay"
)

// lineWriter turns a byte stream into lines and sends each complete line to
// a sink. Both stdout and stderr of a log stream write through the same
// lineWriter so lines keep the engine's interleaving.
type lineWriter struct {
	ctx  context.Context
	sink relay.Sink
	buf  []byte
}

func newLineWriter(ctx context.Context, sink relay.Sink) *lineWriter {
	return &lineWriter{ctx: ctx, sink: sink}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if err := w.sink.Send(w.ctx, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush sends a trailing line that had no newline.
func (w *lineWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	line := string(w.buf)
	w.buf = nil
	return w.sink.Send(w.ctx, line)
}
