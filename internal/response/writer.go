package response

import (
	"fmt"
	"io"

	"github.com/Brownie44l1/myownwebserver/internal/headers"
)

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
)

// Writer writes HTTP responses to an io.Writer
type Writer struct {
	w       io.Writer
	version string
	state   writerState
}

// NewWriter creates a new response writer for the given protocol version
func NewWriter(w io.Writer, version string) *Writer {
	return &Writer{
		w:       w,
		version: version,
		state:   stateStart,
	}
}

// WriteStatusLine writes the HTTP status line
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return fmt.Errorf("status line already written")
	}

	statusLine := fmt.Sprintf("%s %d %s\r\n", w.version, code, StatusText(code))
	if _, err := w.w.Write([]byte(statusLine)); err != nil {
		return err
	}

	w.state = stateStatusWritten
	return nil
}

// WriteHeaders writes all headers followed by the blank separator line
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateStatusWritten {
		return fmt.Errorf("must write status line before headers")
	}

	if _, err := h.WriteTo(w.w); err != nil {
		return err
	}

	if _, err := w.w.Write([]byte("\r\n")); err != nil {
		return err
	}

	w.state = stateHeadersWritten
	return nil
}

// WriteBody writes the complete response body
func (w *Writer) WriteBody(data []byte) error {
	if w.state != stateHeadersWritten {
		return fmt.Errorf("must write headers before body")
	}

	if len(data) == 0 {
		w.state = stateBodyWritten
		return nil
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}

	w.state = stateBodyWritten
	return nil
}
