package request

import (
	"github.com/Brownie44l1/myownwebserver/internal/headers"
)

// Request is what could be read from one buffer of client bytes
type Request struct {
	RequestLine
	Headers *headers.Headers
}

// Parse splits raw request bytes into the request line and the header
// block that follows it.
//
// Only the request line can make Parse fail. Header lines are collected
// best-effort: parsing stops quietly at the first malformed line or at the
// end of the buffer.
func Parse(raw []byte) (*Request, error) {
	rl, consumed, err := parseRequestLine(raw)
	req := &Request{
		RequestLine: rl,
		Headers:     headers.NewHeaders(),
	}
	if err != nil {
		return req, err
	}

	if consumed < len(raw) {
		req.Headers.Parse(raw[consumed:])
	}
	return req, nil
}

// Host returns the Host header, if the client sent one
func (r *Request) Host() string {
	host, _ := r.Headers.Get("Host")
	return host
}
