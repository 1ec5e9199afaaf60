package request

import (
	"bytes"
	"errors"
	"strings"
)

var (
	ErrNotStarted           = errors.New("server not started")
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrInvalidMethod        = errors.New("method not accepted")
	ErrUnsupportedVersion   = errors.New("unsupported HTTP version")
	ErrInvalidPath          = errors.New("invalid request path")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrNotFound             = errors.New("resource not found")
)

var crlf = []byte("\r\n")

// MethodGet is the only method the server accepts
const MethodGet = "GET"

// RequestLine holds the tokens of the first request line
type RequestLine struct {
	Method  string
	Target  string
	Version string
}

// parseRequestLine parses: METHOD TARGET VERSION
// The line ends at the first CRLF, or at the end of data if there is none.
// Tokens are separated by single spaces. With fewer than three tokens the
// ones present are still returned together with ErrMalformedRequestLine.
// Returns: request line, bytes consumed including the CRLF, error
func parseRequestLine(data []byte) (RequestLine, int, error) {
	line := data
	consumed := len(data)
	if idx := bytes.Index(data, crlf); idx != -1 {
		line = data[:idx]
		consumed = idx + len(crlf)
	}

	parts := strings.Split(string(line), " ")

	var rl RequestLine
	rl.Method = parts[0]
	if len(parts) > 1 {
		rl.Target = parts[1]
	}
	if len(parts) > 2 {
		rl.Version = parts[2]
	}

	if len(parts) < 3 {
		return rl, consumed, ErrMalformedRequestLine
	}
	return rl, consumed, nil
}

// isValidMethod checks the method token. Since the token is the first
// bytes of the request this also pins GET at offset 0.
func isValidMethod(method string) bool {
	return method == MethodGet
}

// isValidPath checks that the target is in origin form
func isValidPath(target string) bool {
	return strings.HasPrefix(target, "/")
}
