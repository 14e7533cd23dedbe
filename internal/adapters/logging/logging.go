// Package logging configures the process-wide slog logger and forwards
// error-level records to Rollbar when a token is configured.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rollbar/rollbar-go"
)

// Options configures New.
type Options struct {
	Level        string // debug | info | warn | error
	JSON         bool
	RollbarToken string
	Environment  string
	CodeVersion  string
}

// ParseLevel maps a level name onto slog.Level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New builds a logger writing to w.
// POST: when opts.RollbarToken is set, error records are also reported
func New(w io.Writer, opts Options) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	if opts.RollbarToken != "" {
		rollbar.SetToken(opts.RollbarToken)
		rollbar.SetEnvironment(opts.Environment)
		rollbar.SetCodeVersion(opts.CodeVersion)
		rollbar.SetEnabled(true)
		h = NewRollbarHandler(h, rollbarReport)
	}
	return slog.New(h)
}

// Flush waits for queued Rollbar reports. Call before exit.
func Flush() {
	rollbar.Wait()
}

// ReportFunc delivers one error record to an external tracker.
type ReportFunc func(msg string, fields map[string]any)

func rollbarReport(msg string, fields map[string]any) {
	if err, ok := fields["error"].(error); ok {
		rollbar.Error(err, fields)
		return
	}
	rollbar.Error(msg, fields)
}

// RollbarHandler passes every record to the wrapped handler and additionally
// reports records at error level or above.
type RollbarHandler struct {
	next   slog.Handler
	report ReportFunc
	attrs  []slog.Attr // keys already qualified by the group in effect
	group  string
}

// NewRollbarHandler wraps next.
func NewRollbarHandler(next slog.Handler, report ReportFunc) *RollbarHandler {
	return &RollbarHandler{next: next, report: report}
}

// Enabled implements slog.Handler.
func (h *RollbarHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RollbarHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
		for _, a := range h.attrs {
			fields[a.Key] = a.Value.Any()
		}
		r.Attrs(func(a slog.Attr) bool {
			fields[h.key(a.Key)] = a.Value.Any()
			return true
		})
		h.report(r.Message, fields)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *RollbarHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.next = h.next.WithAttrs(attrs)
	cp.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &cp
}

// WithGroup implements slog.Handler.
func (h *RollbarHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.next = h.next.WithGroup(name)
	cp.group = h.key(name)
	return &cp
}

func (h *RollbarHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return fmt.Sprintf("%s.%s", h.group, k)
}
