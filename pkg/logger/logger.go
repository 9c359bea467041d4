// Package logger hands out per-component slog loggers whose levels can be
// tuned at runtime. Component names are dotted; a level set on "api" also
// applies to "api.http" unless that name has its own.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	timeFormat = "2006/01/02 15:04:05.000"
)

type settings struct {
	mu     sync.RWMutex
	def    slog.Level
	byName map[string]slog.Level
	format string
	out    io.Writer
}

var (
	current = &settings{
		def:    slog.LevelInfo,
		byName: map[string]slog.Level{},
		format: FormatText,
		out:    os.Stdout,
	}
	cache sync.Map
	pid   = os.Getpid()
)

func (s *settings) level(component string) slog.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := component
	for {
		if lvl, ok := s.byName[name]; ok {
			return lvl
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return s.def
		}
		name = name[:i]
	}
}

func (s *settings) handler(component string) slog.Handler {
	s.mu.RLock()
	out, format := s.out, s.format
	s.mu.RUnlock()

	g := gate{component: component}
	if format == FormatJSON {
		return &jsonHandler{gate: g, next: slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})}
	}
	return &textHandler{gate: g, mu: &sync.Mutex{}, w: out}
}

// Configure replaces the output format and every level. Loggers obtained
// earlier keep their old format.
func Configure(format string, level LogLevel, components map[string]LogLevel) {
	byName := make(map[string]slog.Level, len(components))
	for name, lvl := range components {
		byName[name] = parseLevel(lvl)
	}

	current.mu.Lock()
	current.def = parseLevel(level)
	current.byName = byName
	current.format = strings.ToLower(format)
	current.mu.Unlock()

	cache = sync.Map{}
}

// SetOutput redirects every logger obtained afterwards.
func SetOutput(w io.Writer) {
	current.mu.Lock()
	current.out = w
	current.mu.Unlock()

	cache = sync.Map{}
}

func Get(component string) *slog.Logger {
	if l, ok := cache.Load(component); ok {
		return l.(*slog.Logger)
	}
	l, _ := cache.LoadOrStore(component, slog.New(current.handler(component)))
	return l.(*slog.Logger)
}

func SetComponentLevel(component string, level LogLevel) {
	current.mu.Lock()
	current.byName[component] = parseLevel(level)
	current.mu.Unlock()
}

func ClearComponentLevel(component string) {
	current.mu.Lock()
	delete(current.byName, component)
	current.mu.Unlock()
}

func DefaultLevel() LogLevel {
	current.mu.RLock()
	defer current.mu.RUnlock()

	switch current.def {
	case slog.LevelDebug:
		return LogLevelDebug
	case slog.LevelWarn:
		return LogLevelWarn
	case slog.LevelError:
		return LogLevelError
	}
	return LogLevelInfo
}

func parseLevel(level LogLevel) slog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// gate filters records by the component's effective level. WithGroup on a
// logger nests the component name rather than the attribute keys.
type gate struct {
	component string
}

func (g gate) Enabled(_ context.Context, level slog.Level) bool {
	return level >= current.level(g.component)
}

func (g gate) nest(name string) gate {
	if g.component == "" {
		return gate{component: name}
	}
	return gate{component: g.component + "." + name}
}

// textHandler writes "time [pid] [component] message key=value" lines.
type textHandler struct {
	gate
	mu     *sync.Mutex
	w      io.Writer
	preset string
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format(timeFormat))
	fmt.Fprintf(&b, " [%d]", pid)
	if h.component != "" {
		fmt.Fprintf(&b, " [%s]", h.component)
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, "", a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.preset)
	for _, a := range attrs {
		writeAttr(&b, "", a)
	}
	return &textHandler{gate: h.gate, mu: h.mu, w: h.w, preset: b.String()}
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	return &textHandler{gate: h.nest(name), mu: h.mu, w: h.w, preset: h.preset}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, key, ga)
		}
		return
	}

	val := a.Value.String()
	if val == "" || strings.ContainsAny(val, " \t\n\"=") {
		val = strconv.Quote(val)
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(val)
}

type jsonHandler struct {
	gate
	next slog.Handler
}

func (h *jsonHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.component != "" {
		r.AddAttrs(slog.String("component", h.component))
	}
	return h.next.Handle(ctx, r)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &jsonHandler{gate: h.gate, next: h.next.WithAttrs(attrs)}
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	return &jsonHandler{gate: h.nest(name), next: h.next}
}

// ScopeAttrs describes the allocation scope a log line belongs to. Zero
// values are omitted.
type ScopeAttrs struct {
	ZoneID    int64
	PodID     int64
	AccountID int64
	Type      string
}

func WithScope(l *slog.Logger, attrs ScopeAttrs) *slog.Logger {
	var args []any
	if attrs.ZoneID != 0 {
		args = append(args, "zone_id", attrs.ZoneID)
	}
	if attrs.PodID != 0 {
		args = append(args, "pod_id", attrs.PodID)
	}
	if attrs.AccountID != 0 {
		args = append(args, "account_id", attrs.AccountID)
	}
	if attrs.Type != "" {
		args = append(args, "type", attrs.Type)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}
