package response

import (
	"bytes"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Brownie44l1/myownwebserver/internal/headers"
)

// DateFormat is the RFC 1123 layout used for the Date header
const DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Formatter composes complete responses for one server identity.
//
// Every response carries Server and Date headers. Content-Type and
// Content-Length are only sent with 200. Text bodies are appended to the
// header block with a trailing CRLF; binary responses are returned as the
// header block alone and the caller writes the bytes separately.
type Formatter struct {
	Version string
	Server  string // ip:port
	Now     func() time.Time
	Logger  *slog.Logger
}

func NewFormatter(version, server string, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Formatter{
		Version: version,
		Server:  server,
		Now:     time.Now,
		Logger:  logger,
	}
}

// Text formats a response whose payload is text
func (f *Formatter) Text(code StatusCode, contentType, body string) []byte {
	buf := &bytes.Buffer{}
	w := NewWriter(buf, f.Version)
	w.WriteStatusLine(code)
	w.WriteHeaders(f.headers(code, contentType, len(body)))
	if code == StatusOK {
		w.WriteBody([]byte(body + "\r\n"))
	}
	return buf.Bytes()
}

// Binary formats the header block of a response whose payload is raw
// bytes. The body itself is not included.
func (f *Formatter) Binary(code StatusCode, contentType string, body []byte) []byte {
	buf := &bytes.Buffer{}
	w := NewWriter(buf, f.Version)
	w.WriteStatusLine(code)
	w.WriteHeaders(f.headers(code, contentType, len(body)))
	return buf.Bytes()
}

func (f *Formatter) headers(code StatusCode, contentType string, length int) *headers.Headers {
	h := headers.NewHeaders()
	h.Set("Server", f.Server)
	h.Set("Date", f.Now().UTC().Format(DateFormat))

	if code != StatusOK {
		f.Logger.Info("[Response]", "status", int(code))
		return h
	}

	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(length))

	date, _ := h.Get("Date")
	f.Logger.Info("[Response]",
		"status", int(code),
		"content_type", contentType,
		"content_length", length,
		"server", f.Server,
		"date", date,
	)
	return h
}
