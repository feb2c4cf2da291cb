package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Handler presents relayed text downstream (console, logger, ...).
type Handler interface {
	Handle(text string) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(text string) error

// Handle calls f(text).
func (f HandlerFunc) Handle(text string) error { return f(text) }

// Drain is the consumer loop. It hands every item to h in FIFO order and
// returns nil once the relay is closed and empty. A receive failure on a
// relay that is not yet terminated is logged and the loop keeps going.
// Handler errors are logged and do not stop the loop.
//
// On return the receiver is closed, so producers still holding a Sender get
// ErrSinkClosed instead of blocking forever.
func (r *Relay) Drain(ctx context.Context, h Handler) error {
	defer r.CloseReceiver()

	for {
		text, err := r.Recv(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if r.IsTerminated() {
				slog.Debug("relay terminated")
				return nil
			}
			slog.Warn("relay receive failed", "error", err)
			continue
		}

		if err := h.Handle(text); err != nil {
			slog.Warn("relay handler failed", "error", err)
		}
	}
}

// WriterHandler prints each item on its own line.
type WriterHandler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterHandler returns a Handler writing to w.
func NewWriterHandler(w io.Writer) *WriterHandler {
	return &WriterHandler{w: w}
}

// Handle writes text followed by a single newline.
func (h *WriterHandler) Handle(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, strings.TrimRight(text, "\r\n"))
	return err
}

// LogHandler emits each item as a structured log record.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler returns a Handler logging through logger, or the default
// logger when logger is nil.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger}
}

// Handle logs text at info level. Blank lines are skipped.
func (h *LogHandler) Handle(text string) error {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	h.logger.Info("event", "text", text)
	return nil
}

// Handler names accepted by NewHandler.
const (
	HandlerConsole = "console"
	HandlerLog     = "log"
)

// ErrUnknownHandler is returned by NewHandler for an unrecognized name.
var ErrUnknownHandler = errors.New("unknown relay handler")

// NewHandler builds the named downstream handler. Console output goes to w.
func NewHandler(name string, w io.Writer) (Handler, error) {
	switch name {
	case HandlerConsole, "":
		return NewWriterHandler(w), nil
	case HandlerLog:
		return NewLogHandler(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
}
