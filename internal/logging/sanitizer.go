package logging

import (
	"context"
	"log/slog"
	"regexp"
)

// Sanitizer redacts credentials from log output.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

func NewSanitizer() *Sanitizer {
	raw := []string{
		`sk-[A-Za-z0-9_-]{20,}`,
		`tvly-[A-Za-z0-9_-]{16,}`,
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		`(?i)(api[_-]?key|x-api-key)["'\s:=]+[a-zA-Z0-9_-]{16,}`,
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return &Sanitizer{patterns: patterns, redacted: "[REDACTED]"}
}

func (s *Sanitizer) Sanitize(in string) string {
	out := in
	for _, p := range s.patterns {
		out = p.ReplaceAllString(out, s.redacted)
	}
	return out
}

// SanitizingHandler runs every message and string attribute through a Sanitizer.
type SanitizingHandler struct {
	handler   slog.Handler
	sanitizer *Sanitizer
}

func NewSanitizingHandler(handler slog.Handler, sanitizer *Sanitizer) *SanitizingHandler {
	return &SanitizingHandler{handler: handler, sanitizer: sanitizer}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := slog.NewRecord(r.Time, r.Level, h.sanitizer.Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, rec)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.sanitizeAttr(a)
	}
	return &SanitizingHandler{handler: h.handler.WithAttrs(clean), sanitizer: h.sanitizer}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{handler: h.handler.WithGroup(name), sanitizer: h.sanitizer}
}

func (h *SanitizingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.sanitizer.Sanitize(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = h.sanitizeAttr(g)
		}
		return slog.Group(a.Key, clean...)
	default:
		return a
	}
}
