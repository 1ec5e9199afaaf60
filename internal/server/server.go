package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Brownie44l1/myownwebserver/internal/config"
	"github.com/Brownie44l1/myownwebserver/internal/logfile"
	"github.com/Brownie44l1/myownwebserver/internal/request"
	"github.com/Brownie44l1/myownwebserver/internal/resource"
	"github.com/Brownie44l1/myownwebserver/internal/response"
)

// Version is the only protocol version the server answers
const Version = "HTTP/1.1"

var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")
)

type State int32

const (
	StateStopped State = iota
	StateStarted
)

func (s State) String() string {
	if s == StateStarted {
		return "started"
	}
	return "stopped"
}

// Options carries the collaborators of a Server. Nil loggers discard.
type Options struct {
	// Logger receives the transaction log records
	Logger *slog.Logger
	// Console receives operator diagnostics such as socket errors
	Console *slog.Logger
	// LogFile is initialised when the server starts
	LogFile *logfile.Handler
}

// Server answers one connection at a time from a web root
type Server struct {
	cfg       *config.ServerConfig
	loader    *resource.Loader
	validator *request.Validator
	formatter *response.Formatter
	buffers   *bufferPool
	Metrics   *Metrics

	logger  *slog.Logger
	console *slog.Logger
	logFile *logfile.Handler

	listener net.Listener
	state    atomic.Int32
	closed   atomic.Bool

	mu     sync.Mutex
	active net.Conn
}

func New(cfg *config.ServerConfig, loader *resource.Loader, opts Options) *Server {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Logger == nil {
		opts.Logger = discard
	}
	if opts.Console == nil {
		opts.Console = discard
	}

	bufSize := cfg.Settings.ReadBufferSize
	if bufSize <= 0 {
		bufSize = config.DefaultReadBufferSize
	}

	return &Server{
		cfg:    cfg,
		loader: loader,
		validator: &request.Validator{
			Root:         cfg.WebRoot,
			Version:      Version,
			FlattenPaths: cfg.Settings.FlattenPaths,
			Loader:       loader,
		},
		formatter: response.NewFormatter(Version, cfg.Addr(), opts.Logger),
		buffers:   newBufferPool(bufSize),
		Metrics:   NewMetrics(),
		logger:    opts.Logger,
		console:   opts.Console,
		logFile:   opts.LogFile,
	}
}

func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and marks the server started
func (s *Server) Start() error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarted)) {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	s.closed.Store(false)
	s.formatter.Server = ln.Addr().String()

	if s.logFile != nil {
		s.logFile.Initialize()
	}

	s.logger.Info("[Server Started]",
		"root", s.cfg.WebRoot,
		"ip", s.cfg.IP.String(),
		"port", ln.Addr().(*net.TCPAddr).Port,
	)
	return nil
}

// Serve accepts and serves connections sequentially until ctx is done,
// Close is called, or a socket error occurs.
func (s *Server) Serve(ctx context.Context) error {
	if s.State() != StateStarted {
		return ErrNotStarted
	}
	stop := context.AfterFunc(ctx, func() {
		s.Close()
	})
	defer stop()
	defer s.state.Store(int32(StateStopped))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.console.Error("accept failed", "error", err)
			s.listener.Close()
			return fmt.Errorf("accept: %w", err)
		}

		if err := s.serveConn(conn); err != nil {
			if s.closed.Load() {
				return nil
			}
			s.console.Error("connection failed", "remote", conn.RemoteAddr().String(), "error", err)
			s.listener.Close()
			return err
		}
	}
}

// Close stops the listener and drops the connection being served
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(StateStopped))

	s.mu.Lock()
	if s.active != nil {
		s.active.Close()
	}
	s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	s.logger.Info("[Server Stopped]", "metrics", s.Metrics.Snapshot())
	return s.listener.Close()
}

func (s *Server) setActive(conn net.Conn) {
	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
}
