package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one line per record:
//
//	2026-01-02T15:04:05Z INFO pipeline [fetch · Card_1_bust_card_20413550_1_png]: downloaded bytes=1024
//
// Component, stage and target form the prefix. The run id is printed only at
// debug level.
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  *slog.LevelVar
	source bool
	group  string
	head   lineHead
	fields []byte
}

type lineHead struct {
	component, stage, target, runID string
}

func newConsoleHandler(w io.Writer, level *slog.LevelVar, source bool) *consoleHandler {
	return &consoleHandler{mu: new(sync.Mutex), out: w, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	head := h.head
	fields := slices.Clone(h.fields)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, &head, h.group, attr)
		return true
	})

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}

	var buf bytes.Buffer
	buf.WriteString(when.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(record.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(head.prefix())
	buf.WriteString(msg)
	if h.source {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	if head.runID != "" && h.level.Level() <= slog.LevelDebug {
		buf.WriteString(" " + FieldRunID + "=" + quoteIfNeeded(head.runID))
	}
	buf.Write(fields)
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.fields = slices.Clone(h.fields)
	for _, attr := range attrs {
		clone.fields = appendField(clone.fields, &clone.head, clone.group, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group += name + "."
	return &clone
}

// prefix renders "component [stage · target]: " with the empty parts left out.
func (l lineHead) prefix() string {
	var subject string
	switch {
	case l.stage != "" && l.target != "":
		subject = l.stage + " · " + l.target
	case l.stage != "":
		subject = l.stage
	default:
		subject = l.target
	}
	switch {
	case l.component != "" && subject != "":
		return l.component + " [" + subject + "]: "
	case l.component != "":
		return l.component + ": "
	case subject != "":
		return subject + ": "
	}
	return ""
}

// appendField renders attr as " key=value" onto dst. Ungrouped component,
// stage, target and run id attributes go to head instead. The first component
// wins; later stage and target values replace earlier ones.
func appendField(dst []byte, head *lineHead, group string, attr slog.Attr) []byte {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			group += attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, head, group, member)
		}
		return dst
	}
	if group == "" {
		value := strings.TrimSpace(attr.Value.String())
		switch attr.Key {
		case FieldComponent:
			if head.component == "" {
				head.component = value
			}
			return dst
		case FieldStage:
			head.stage = value
			return dst
		case FieldTarget:
			head.target = value
			return dst
		case FieldRunID:
			head.runID = value
			return dst
		}
	}
	dst = append(dst, ' ')
	dst = append(dst, group...)
	dst = append(dst, attr.Key...)
	dst = append(dst, '=')
	return append(dst, formatValue(attr.Value)...)
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	}
	return quoteIfNeeded(v.String())
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
