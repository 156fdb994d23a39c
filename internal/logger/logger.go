package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Options controls handler selection
type Options struct {
	Format string // "json" or "text"
	Debug  bool
}

// Setup installs the default logger writing to w and returns it. Stdout is
// kept for transcripts, so callers pass stderr.
func Setup(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if opts.Debug {
		handlerOpts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = NewContextHandler(slog.NewJSONHandler(w, handlerOpts))
	} else {
		handler = NewContextHandler(slog.NewTextHandler(w, handlerOpts))
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

type ctxKey struct{}

type fields struct {
	component string
	runID     string
}

func fromContext(ctx context.Context) fields {
	if ctx == nil {
		return fields{}
	}
	f, _ := ctx.Value(ctxKey{}).(fields)
	return f
}

// WithComponent tags every record logged with ctx
func WithComponent(ctx context.Context, component string) context.Context {
	f := fromContext(ctx)
	f.component = component
	return context.WithValue(ctx, ctxKey{}, f)
}

// WithRunID tags every record logged with ctx with an analysis run id
func WithRunID(ctx context.Context, runID string) context.Context {
	f := fromContext(ctx)
	f.runID = runID
	return context.WithValue(ctx, ctxKey{}, f)
}

// ContextHandler adds component and run_id attributes carried by the context
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	f := fromContext(ctx)
	if f.component != "" {
		r.AddAttrs(slog.String("component", f.component))
	}
	if f.runID != "" {
		r.AddAttrs(slog.String("run_id", f.runID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
