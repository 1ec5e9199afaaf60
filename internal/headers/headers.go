package headers

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

type field struct {
	name   string
	values []string
}

// Headers is an ordered header block. Lookups are case-insensitive, the
// name is written back with the case it was first set with.
type Headers struct {
	fields []field
	index  map[string]int
}

func NewHeaders() *Headers {
	return &Headers{
		index: make(map[string]int),
	}
}

// Get returns the first value for a header
func (h *Headers) Get(key string) (string, bool) {
	values := h.GetAll(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// GetAll returns all values for a header
func (h *Headers) GetAll(key string) []string {
	i, ok := h.index[strings.ToLower(key)]
	if !ok {
		return nil
	}
	return h.fields[i].values
}

// Set replaces all values for a header, keeping its position if present
func (h *Headers) Set(key, value string) {
	lower := strings.ToLower(key)
	if i, ok := h.index[lower]; ok {
		h.fields[i].values = []string{value}
		return
	}
	h.index[lower] = len(h.fields)
	h.fields = append(h.fields, field{name: key, values: []string{value}})
}

// Add appends a value to a header
func (h *Headers) Add(key, value string) {
	lower := strings.ToLower(key)
	if i, ok := h.index[lower]; ok {
		h.fields[i].values = append(h.fields[i].values, value)
		return
	}
	h.Set(key, value)
}

// Len returns the number of distinct header names
func (h *Headers) Len() int {
	return len(h.fields)
}

// WriteTo writes "Name: value\r\n" lines in insertion order. The
// terminating blank line is not written.
func (h *Headers) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, f := range h.fields {
		for _, v := range f.values {
			n, err := fmt.Fprintf(w, "%s: %s\r\n", f.name, v)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Parse parses headers from raw bytes
func (h *Headers) Parse(data []byte) (int, bool, error) {
	read := 0
	done := false

	for {
		idx := bytes.Index(data[read:], []byte("\r\n"))
		if idx == -1 {
			// Need more data
			break
		}

		if idx == 0 {
			// Empty line = end of headers
			done = true
			read += 2
			break
		}

		line := data[read : read+idx]

		// Obsolete line folding is rejected
		if line[0] == ' ' || line[0] == '\t' {
			return read, false, fmt.Errorf("obsolete line folding not supported")
		}

		name, value, err := parseHeader(line)
		if err != nil {
			return read, done, err
		}

		h.Add(name, value)

		read += idx + 2
	}

	return read, done, nil
}

func parseHeader(line []byte) (string, string, error) {
	colonIdx := bytes.IndexByte(line, ':')
	if colonIdx == -1 {
		return "", "", fmt.Errorf("malformed header: no colon")
	}

	name := line[:colonIdx]
	value := line[colonIdx+1:]

	if len(name) == 0 {
		return "", "", fmt.Errorf("malformed header: empty name")
	}

	if bytes.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("malformed header: whitespace in name")
	}

	for _, b := range name {
		if !isValidHeaderChar(b) {
			return "", "", fmt.Errorf("invalid character in header name: %c", b)
		}
	}

	value = bytes.TrimSpace(value)

	return string(name), string(value), nil
}

func isValidHeaderChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}
