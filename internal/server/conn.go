package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Brownie44l1/myownwebserver/internal/request"
	"github.com/Brownie44l1/myownwebserver/internal/response"
)

// serveConn reads requests from conn until a response ends the
// connection or the peer stops sending. Only socket errors are returned.
func (s *Server) serveConn(conn net.Conn) error {
	defer conn.Close()

	s.setActive(conn)
	defer s.setActive(nil)
	if s.closed.Load() {
		return nil
	}

	s.Metrics.ActiveConnections.Add(1)
	defer s.Metrics.ActiveConnections.Add(-1)

	buf := s.buffers.get()
	defer s.buffers.put(buf)

	for {
		n, err := conn.Read(buf)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		start := time.Now()
		keepReading, code, written, err := s.respond(conn, buf[:n])
		s.Metrics.RecordRequest(code, written, time.Since(start))
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if !keepReading {
			return nil
		}
	}
}

// respond answers one raw request. keepReading is true only after a
// successful text response.
func (s *Server) respond(w io.Writer, raw []byte) (keepReading bool, code response.StatusCode, written int, err error) {
	res, verr := s.validator.Validate(raw, s.State() == StateStarted)
	s.logRequest(res, verr)

	if verr != nil {
		code = request.StatusOf(verr)
		written, err = w.Write(s.formatter.Text(code, "", ""))
		return false, code, written, err
	}

	payload, lerr := s.loader.Load(res.Name, res.ContentType)
	if lerr != nil {
		s.logger.Info("[Resource]", "path", res.Path, "error", lerr.Error())
		code = response.StatusNotFound
		written, err = w.Write(s.formatter.Text(code, res.ContentType, payload.Text))
		return false, code, written, err
	}
	s.logger.Info("[Resource]", "path", res.Path, "bytes", payload.Len())

	code = response.StatusOK
	if payload.Binary() {
		written, err = w.Write(s.formatter.Binary(code, payload.ContentType, payload.Bytes))
		if err != nil {
			return false, code, written, err
		}
		n, err := w.Write(payload.Bytes)
		return false, code, written + n, err
	}

	written, err = w.Write(s.formatter.Text(code, payload.ContentType, payload.Text))
	return err == nil, code, written, err
}

func (s *Server) logRequest(res *request.Resolved, err error) {
	var req *request.Request
	if res != nil {
		req = res.Request
	}
	var rerr *request.Error
	if errors.As(err, &rerr) {
		req = rerr.Request
	}

	args := []any{"status", int(request.StatusOf(err))}
	if req != nil {
		args = append(args, "method", req.Method, "target", req.Target, "version", req.Version)
		if host := req.Host(); host != "" {
			args = append(args, "host", host)
		}
	}
	if res != nil {
		args = append(args, "path", res.Path, "content_type", res.ContentType)
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	s.logger.Info("[Request]", args...)
}
