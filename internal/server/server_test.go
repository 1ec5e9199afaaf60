package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/myownwebserver/internal/config"
	"github.com/Brownie44l1/myownwebserver/internal/logfile"
	"github.com/Brownie44l1/myownwebserver/internal/resource"
	"github.com/Brownie44l1/myownwebserver/internal/response"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00;")

type testServer struct {
	*Server
	addr    string
	logPath string
	cancel  context.CancelFunc
	done    chan error
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "index.html", []byte("<h1>hi</h1>"), 0o644))
	require.NoError(t, util.WriteFile(fs, "notes.txt", []byte("plain notes"), 0o644))
	require.NoError(t, util.WriteFile(fs, "pixel.gif", gifBytes, 0o644))
	require.NoError(t, util.WriteFile(fs, "photo.bmp", []byte("BM"), 0o644))
	require.NoError(t, util.WriteFile(fs, "latin1.txt", []byte("caf\xe9"), 0o644))

	cfg := &config.ServerConfig{
		WebRoot:  "/srv/www",
		IP:       net.ParseIP("127.0.0.1"),
		Port:     0,
		Settings: config.DefaultSettings(),
	}
	logPath := filepath.Join(t.TempDir(), logfile.FileName)
	h := logfile.New(logPath, nil)

	return New(cfg, resource.NewLoader(fs), Options{Logger: slog.New(h), LogFile: h})
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	s := newTestServer(t)
	require.NoError(t, s.Start())

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		Server:  s,
		addr:    s.Addr().String(),
		logPath: s.logFile.Path(),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { ts.done <- s.Serve(ctx) }()

	t.Cleanup(func() { ts.stop(t) })
	return ts
}

func (ts *testServer) stop(t *testing.T) {
	t.Helper()
	ts.cancel()
	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type httpResponse struct {
	statusLine string
	header     textproto.MIMEHeader
	body       []byte
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

// readResponse reads one response. Text bodies are followed by CRLF.
func readResponse(t *testing.T, br *bufio.Reader) httpResponse {
	t.Helper()
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	require.NoError(t, err)
	h, err := tp.ReadMIMEHeader()
	require.NoError(t, err)

	resp := httpResponse{statusLine: line, header: h}
	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		require.NoError(t, err)
		resp.body = make([]byte, n)
		_, err = io.ReadFull(br, resp.body)
		require.NoError(t, err)

		if strings.HasPrefix(h.Get("Content-Type"), "text/") {
			crlf := make([]byte, 2)
			_, err = io.ReadFull(br, crlf)
			require.NoError(t, err)
			assert.Equal(t, "\r\n", string(crlf))
		}
	}
	return resp
}

func assertClosed(t *testing.T, br *bufio.Reader) {
	t.Helper()
	_, err := br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func get(target string) string {
	return "GET " + target + " HTTP/1.1\r\nHost: localhost\r\n\r\n"
}

func TestServeIndexHTML(t *testing.T) {
	ts := startTestServer(t)
	conn, br := dial(t, ts.addr)

	_, err := conn.Write([]byte(get("/index.html")))
	require.NoError(t, err)

	resp := readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, ts.addr, resp.header.Get("Server"))
	assert.Equal(t, "text/html", resp.header.Get("Content-Type"))
	assert.Equal(t, "11", resp.header.Get("Content-Length"))
	assert.Equal(t, "<h1>hi</h1>", string(resp.body))

	date, err := time.Parse(response.DateFormat, resp.header.Get("Date"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), date, time.Minute)
}

func TestServeKeepsReadingAfterText(t *testing.T) {
	ts := startTestServer(t)
	conn, br := dial(t, ts.addr)

	_, err := conn.Write([]byte(get("/index.html")))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK", readResponse(t, br).statusLine)

	_, err = conn.Write([]byte(get("/notes.txt")))
	require.NoError(t, err)
	resp := readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, "text/plain", resp.header.Get("Content-Type"))
	assert.Equal(t, "plain notes", string(resp.body))
}

func TestServeFailures(t *testing.T) {
	ts := startTestServer(t)

	cases := map[string]struct {
		raw  string
		want string
	}{
		"missing file":      {get("/missing.txt"), "HTTP/1.1 404 Not Found"},
		"post":              {"POST /index.html HTTP/1.1\r\n\r\n", "HTTP/1.1 406 Method Not Accepted"},
		"unsupported media": {get("/photo.bmp"), "HTTP/1.1 415 Unsupported Media Type"},
		"old protocol":      {"GET /index.html HTTP/1.0\r\n\r\n", "HTTP/1.1 505 HTTP Version Not Supported"},
		"short line":        {"GET /index.html\r\n\r\n", "HTTP/1.1 400 Bad Request"},
		"unrooted target":   {"GET index.html HTTP/1.1\r\n\r\n", "HTTP/1.1 400 Bad Request"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			conn, br := dial(t, ts.addr)
			_, err := conn.Write([]byte(c.raw))
			require.NoError(t, err)

			resp := readResponse(t, br)
			assert.Equal(t, c.want, resp.statusLine)
			assert.Equal(t, ts.addr, resp.header.Get("Server"))
			assert.NotEmpty(t, resp.header.Get("Date"))
			assert.Empty(t, resp.header.Get("Content-Type"))
			assert.Empty(t, resp.header.Get("Content-Length"))
			assert.Len(t, resp.header, 2)
			assertClosed(t, br)
		})
	}
}

func TestServeGIF(t *testing.T) {
	ts := startTestServer(t)
	conn, br := dial(t, ts.addr)

	_, err := conn.Write([]byte(get("/pixel.gif")))
	require.NoError(t, err)

	resp := readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, "image/gif", resp.header.Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(len(gifBytes)), resp.header.Get("Content-Length"))
	assert.Equal(t, gifBytes, resp.body)
	assertClosed(t, br)
}

func TestServeNonUTF8TextUnchanged(t *testing.T) {
	ts := startTestServer(t)
	conn, br := dial(t, ts.addr)

	_, err := conn.Write([]byte(get("/latin1.txt")))
	require.NoError(t, err)

	resp := readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, "4", resp.header.Get("Content-Length"))
	assert.Equal(t, []byte("caf\xe9"), resp.body)
}

func TestServeFlattensDirectories(t *testing.T) {
	ts := startTestServer(t)
	conn, br := dial(t, ts.addr)

	_, err := conn.Write([]byte(get("/deep/nested/index.html?v=1")))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK", readResponse(t, br).statusLine)
}

func TestServePeerHangupKeepsServing(t *testing.T) {
	ts := startTestServer(t)

	conn, _ := dial(t, ts.addr)
	require.NoError(t, conn.Close())

	conn, br := dial(t, ts.addr)
	_, err := conn.Write([]byte(get("/index.html")))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK", readResponse(t, br).statusLine)
}

func TestServeLogsTransactions(t *testing.T) {
	ts := startTestServer(t)

	conn, br := dial(t, ts.addr)
	_, err := conn.Write([]byte(get("/index.html")))
	require.NoError(t, err)
	readResponse(t, br)
	conn.Close()

	conn, br = dial(t, ts.addr)
	_, err = conn.Write([]byte(get("/missing.txt")))
	require.NoError(t, err)
	readResponse(t, br)
	assertClosed(t, br)

	ts.stop(t)

	data, err := os.ReadFile(ts.logPath)
	require.NoError(t, err)
	log := string(data)

	assert.Contains(t, log, "[Server Started] root=/srv/www ip=127.0.0.1 port=")
	assert.Contains(t, log, "[Request] status=200 method=GET target=/index.html version=HTTP/1.1 host=localhost")
	assert.Contains(t, log, "[Resource] path=/srv/www/index.html bytes=11")
	assert.Contains(t, log, "[Response] status=200 content_type=text/html content_length=11")
	assert.Contains(t, log, "[Request] status=404 method=GET target=/missing.txt")
	assert.Contains(t, log, "[Response] status=404")
	assert.Contains(t, log, "[Server Stopped] metrics.requests=2 metrics.errors_4xx=1")

	for _, line := range strings.Split(strings.TrimSpace(log), "\n") {
		_, err := time.Parse(logfile.TimeFormat, line[:len(logfile.TimeFormat)])
		assert.NoError(t, err, "line %q", line)
	}
}

func TestServeMetrics(t *testing.T) {
	ts := startTestServer(t)

	for _, raw := range []string{get("/pixel.gif"), get("/photo.bmp"), "DELETE / HTTP/1.1\r\n\r\n"} {
		conn, br := dial(t, ts.addr)
		_, err := conn.Write([]byte(raw))
		require.NoError(t, err)
		readResponse(t, br)
		assertClosed(t, br)
	}

	snap := ts.Metrics.Snapshot()
	assert.Equal(t, int64(3), snap.RequestsTotal)
	assert.Equal(t, int64(2), snap.Errors4xx)
	assert.Equal(t, int64(0), snap.Errors5xx)
	assert.Greater(t, snap.BytesSent, int64(len(gifBytes)))
}

func TestStartTwice(t *testing.T) {
	ts := startTestServer(t)
	assert.Equal(t, StateStarted, ts.State())
	assert.ErrorIs(t, ts.Start(), ErrAlreadyStarted)
}

func TestServeRequiresStart(t *testing.T) {
	s := newTestServer(t)
	assert.ErrorIs(t, s.Serve(context.Background()), ErrNotStarted)
	assert.Nil(t, s.Addr())
}

func TestServeStopsOnCancel(t *testing.T) {
	ts := startTestServer(t)
	ts.stop(t)

	assert.Equal(t, StateStopped, ts.State())
	_, err := net.DialTimeout("tcp", ts.addr, time.Second)
	assert.Error(t, err)
}

func TestServeStopsOnSocketError(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })
	addr := s.Addr().String()

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.Metrics.ActiveConnections.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Closing with zero linger resets the connection under the pending read
	require.NoError(t, conn.(*net.TCPConn).SetLinger(0))
	require.NoError(t, conn.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorContains(t, err, "read:")
		var opErr *net.OpError
		assert.ErrorAs(t, err, &opErr)
	case <-time.After(5 * time.Second):
		t.Fatal("server kept serving after a reset")
	}

	assert.Equal(t, StateStopped, s.State())
	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}

func TestRespondWhenStopped(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	keep, code, n, err := s.respond(&buf, []byte(get("/index.html")))
	require.NoError(t, err)

	assert.False(t, keep)
	assert.Equal(t, response.StatusServerError, code)
	assert.Equal(t, buf.Len(), n)
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 500 Server Error\r\nServer: 127.0.0.1:0\r\nDate: "))
	assert.True(t, strings.HasSuffix(buf.String(), "\r\n\r\n"))
}

func TestRespondDirectoryIsNotFound(t *testing.T) {
	s := newTestServer(t)
	s.state.Store(int32(StateStarted))
	require.NoError(t, s.loader.Filesystem().MkdirAll("docs.txt", 0o755))

	var buf bytes.Buffer
	keep, code, _, err := s.respond(&buf, []byte(get("/docs.txt")))
	require.NoError(t, err)

	assert.False(t, keep)
	assert.Equal(t, response.StatusNotFound, code)
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 404 Not Found\r\n"))
	assert.NotContains(t, buf.String(), "Not found")
}
