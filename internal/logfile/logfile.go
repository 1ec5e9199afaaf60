// Package logfile implements the server's append-only transaction log.
//
// The log is a plain text file with one line per event:
//
//	2026-10-19 10:30:00 [Request] method=GET target=/index.html
//
// The file is opened, appended to and closed for every record. If it
// already existed when the server started it is truncated once, by the
// first write after Initialize.
package logfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FileName is the name of the log file placed next to the executable
const FileName = "myOwnWebServer.log"

// TimeFormat prefixes every line
const TimeFormat = "2006-01-02 15:04:05"

// DefaultPath returns FileName in the directory of the running executable
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), FileName), nil
}

// LoggerState records whether the log file existed at startup and whether
// that stale file has been truncated yet.
type LoggerState struct {
	existed     bool
	rotatedOnce bool
}

// Existed reports whether the file was present at the last Initialize
func (s LoggerState) Existed() bool {
	return s.existed
}

// RotatedOnce reports whether the stale file has been truncated
func (s LoggerState) RotatedOnce() bool {
	return s.rotatedOnce
}

type shared struct {
	mu    sync.Mutex
	path  string
	state LoggerState
}

// Handler is a slog.Handler writing to the transaction log file.
// Handlers derived with WithAttrs and WithGroup share the file and state.
type Handler struct {
	shared   *shared
	fallback slog.Handler
	prefix   string
	attrs    []slog.Attr
}

// New returns a handler for the log file at path. Write failures are
// reported to fallback, if non-nil, and otherwise dropped.
func New(path string, fallback slog.Handler) *Handler {
	return &Handler{
		shared:   &shared{path: path},
		fallback: fallback,
	}
}

// Path returns the log file location
func (h *Handler) Path() string {
	return h.shared.path
}

// Initialize records whether the log file exists now. It is called once
// when the server starts.
func (h *Handler) Initialize() {
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()

	_, err := os.Stat(h.shared.path)
	h.shared.state = LoggerState{existed: err == nil}
}

// State returns a copy of the current logger state
func (h *Handler) State() LoggerState {
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	return h.shared.state
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	line := h.format(r)

	h.shared.mu.Lock()
	err := h.shared.append(line)
	h.shared.mu.Unlock()

	if err != nil && h.fallback != nil {
		fr := slog.NewRecord(time.Now(), slog.LevelError, "log file write failed", 0)
		fr.AddAttrs(
			slog.String("path", h.shared.path),
			slog.String("error", err.Error()),
			slog.String("line", strings.TrimSuffix(line, "\n")),
		)
		_ = h.fallback.Handle(ctx, fr)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// append must be called with mu held
func (s *shared) append(line string) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	truncate := s.state.existed && !s.state.rotatedOnce
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return err
	}
	if truncate {
		s.state.rotatedOnce = true
	}

	_, err = f.WriteString(line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (h *Handler) format(r slog.Record) string {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(ts.Format(TimeFormat))
	b.WriteByte(' ')
	if r.Level >= slog.LevelWarn {
		b.WriteString(r.Level.String())
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')
	return b.String()
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, prefix, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " \t\r\n\"=") {
		v = strconv.Quote(v)
	}
	b.WriteString(v)
}
