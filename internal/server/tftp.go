package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	tftp "github.com/pin/tftp/v3"

	"github.com/Brownie44l1/myownwebserver/internal/request"
	"github.com/Brownie44l1/myownwebserver/internal/resource"
)

var ErrReadOnly = errors.New("web root is served read-only")

// Mirror serves the web root over TFTP with the same resolution rules and
// extension whitelist as the HTTP side. Uploads are refused.
type Mirror struct {
	validator *request.Validator
	loader    *resource.Loader
	metrics   *Metrics
	logger    *slog.Logger
	srv       *tftp.Server
}

func NewMirror(s *Server, timeout time.Duration) *Mirror {
	m := &Mirror{
		validator: s.validator,
		loader:    s.loader,
		metrics:   s.Metrics,
		logger:    s.logger,
	}
	m.srv = tftp.NewServer(m.readHandler, m.writeHandler)
	m.srv.SetTimeout(timeout)
	return m
}

// ListenAndServe blocks until Shutdown
func (m *Mirror) ListenAndServe(addr string) error {
	m.logger.Info("[TFTP Started]", "addr", addr)
	return m.srv.ListenAndServe(addr)
}

// Serve runs the mirror on an existing packet connection
func (m *Mirror) Serve(conn net.PacketConn) error {
	m.logger.Info("[TFTP Started]", "addr", conn.LocalAddr().String())
	return m.srv.Serve(conn)
}

func (m *Mirror) Shutdown() {
	m.srv.Shutdown()
}

func (m *Mirror) readHandler(filename string, rf io.ReaderFrom) error {
	remote := ""
	ot, isOutgoing := rf.(tftp.OutgoingTransfer)
	if isOutgoing {
		addr := ot.RemoteAddr()
		remote = addr.String()
	}

	res, err := m.validator.Resolve(filename)
	if err != nil {
		m.logger.Info("[Transfer]", "file", filename, "remote", remote,
			"status", int(request.StatusOf(err)), "error", err.Error())
		return err
	}

	data, err := m.loader.ReadBytes(res.Name)
	if err != nil {
		m.logger.Info("[Transfer]", "file", filename, "remote", remote, "error", err.Error())
		return err
	}

	if isOutgoing {
		ot.SetSize(int64(len(data)))
	}
	n, err := rf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		m.logger.Info("[Transfer]", "file", filename, "remote", remote, "bytes", n, "error", err.Error())
		return err
	}

	m.metrics.RecordTransfer(n)
	m.logger.Info("[Transfer]", "file", filename, "remote", remote,
		"path", res.Path, "content_type", res.ContentType, "bytes", n)
	return nil
}

func (m *Mirror) writeHandler(filename string, _ io.WriterTo) error {
	m.logger.Info("[Transfer]", "file", filename, "error", ErrReadOnly.Error())
	return ErrReadOnly
}
