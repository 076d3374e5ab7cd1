package main

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Bibi40k/vmgmt/pkg/system"
)

var (
	keyStyle   = dimStyle
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	numStyle   = warnStyle
	levelStyle = map[slog.Level]struct {
		mark string
		msg  lipgloss.Style
	}{
		slog.LevelDebug: {"·", dimStyle},
		slog.LevelInfo:  {"→", lipgloss.NewStyle().Bold(true)},
		slog.LevelWarn:  {"⚠", warnStyle.Bold(true)},
		slog.LevelError: {"✗", errStyle.Bold(true)},
	}
)

// prettyHandler writes one line per record for a human at a terminal:
// no timestamp, a level mark, the message and key=value pairs.
type prettyHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	prefix string // group path, "a.b."
	attrs  []slog.Attr
}

func newPrettyLogger(w io.Writer) *slog.Logger {
	return slog.New(&prettyHandler{mu: &sync.Mutex{}, out: w, level: slog.LevelInfo})
}

func newDebugLogger(w io.Writer) *slog.Logger {
	return slog.New(&prettyHandler{mu: &sync.Mutex{}, out: w, level: slog.LevelDebug})
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	lvl, ok := levelStyle[r.Level]
	if !ok {
		lvl = levelStyle[slog.LevelDebug]
		if r.Level > slog.LevelError {
			lvl = levelStyle[slog.LevelError]
		}
	}

	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(lvl.msg.UnsetBold().Render(lvl.mark))
	sb.WriteString(" ")
	sb.WriteString(lvl.msg.Render(r.Message))

	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.prefix, a)
		return true
	})
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			writeAttr(sb, p, g)
		}
		return
	}
	key := prefix + a.Key
	sb.WriteString("  ")
	sb.WriteString(keyStyle.Render(key + "="))
	sb.WriteString(valueStyle(a.Key, a.Value).Render(a.Value.String()))
}

// valueStyle picks a style from the attribute key, then the value kind.
func valueStyle(key string, v slog.Value) lipgloss.Style {
	switch key {
	case "error", "err":
		return errStyle
	case "state", "from", "to", "want":
		return stateStyle(system.State(v.String()))
	}
	switch v.Kind() {
	case slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindDuration:
		return numStyle
	case slog.KindString:
		if _, err := strconv.ParseFloat(v.String(), 64); err == nil {
			return numStyle
		}
	}
	return nameStyle
}
