package httpd

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer starts a server on an ephemeral port and registers teardown.
func startServer(t *testing.T, h Handler, configure func(*Server)) *Server {
	t.Helper()
	s := NewServer(h)
	require.NoError(t, s.SetPort(0))
	if configure != nil {
		configure(s)
	}
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		s.Shutdown()
		waitStopped(t, s)
	})
	return s
}

func waitStopped(t *testing.T, s *Server) {
	t.Helper()
	require.Eventually(t, s.stopped, 10*time.Second, 10*time.Millisecond)
}

// exchange writes one raw request and returns everything the server sent
// before closing the connection.
func exchange(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)
	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

func statusLine(response string) string {
	i := strings.Index(response, "\r\n")
	if i == -1 {
		return response
	}
	return response[:i]
}

func echoHandler(r *Request) *Response {
	resp := NewResponse(200)
	for i := 0; i < r.Header.Len(); i++ {
		name, value := r.Header.Field(i)
		resp.Header().Add(name, value)
	}
	if r.Body != nil {
		return resp.SetBody(r.Header.Get("Content-Type"), r.Body)
	}
	return resp.NoBody()
}

func TestGetNoBody(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), nil)
	out := exchange(t, s.Addr(), "GET /test HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.Contains(t, out, "Host: x\r\n")
	head, body, found := strings.Cut(out, "\r\n\r\n")
	require.True(t, found)
	assert.NotEmpty(t, head)
	assert.Empty(t, body)
}

func TestRequestLineExtraction(t *testing.T) {
	var gotMethod, gotPath string
	h := HandlerFunc(func(r *Request) *Response {
		gotMethod, gotPath = r.Method, r.Path
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "GET /a%20b/c?q=1 SOMETHING/9.9\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.Equal(t, "GET", gotMethod)
	assert.Equal(t, "/a%20b/c?q=1", gotPath)
}

func TestMalformedRequestLineAbortsSilently(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), nil)
	out := exchange(t, s.Addr(), "GARBAGE\r\n\r\n")
	assert.Empty(t, out)
}

func TestEmptyRequestAbortsSilently(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), nil)
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	// Nothing to assert on the wire; the server must keep serving.
	out := exchange(t, s.Addr(), "GET / HTTP/1.1\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
}

func TestContentLengthZero(t *testing.T) {
	invoked := false
	var gotBody []byte
	h := HandlerFunc(func(r *Request) *Response {
		invoked = true
		gotBody = r.Body
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "POST /x HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.True(t, invoked)
	assert.Nil(t, gotBody)
}

func TestContentLengthBody(t *testing.T) {
	var gotBody []byte
	h := HandlerFunc(func(r *Request) *Response {
		gotBody = r.Body
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.Equal(t, "hello", string(gotBody))
}

func TestPayloadTooLarge(t *testing.T) {
	invoked := false
	h := HandlerFunc(func(r *Request) *Response {
		invoked = true
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, func(s *Server) {
		require.NoError(t, s.SetMaxRequestSize(10))
	})
	out := exchange(t, s.Addr(), "POST /x HTTP/1.1\r\nContent-Length: 11\r\n\r\n12345678901")
	require.Equal(t, "HTTP/1.1 413 Payload Too Large", statusLine(out))
	assert.False(t, invoked)
}

func TestBodyForbiddenMethodIgnoresLength(t *testing.T) {
	// A GET declaring a Content-Length is handled with no body and the
	// declared bytes are never read off the stream.
	var gotBody []byte
	invoked := false
	h := HandlerFunc(func(r *Request) *Response {
		invoked = true
		gotBody = r.Body
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "GET /x HTTP/1.1\r\nContent-Length: 5\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.True(t, invoked)
	assert.Nil(t, gotBody)
}

func TestChunkedBody(t *testing.T) {
	var gotBody []byte
	h := HandlerFunc(func(r *Request) *Response {
		gotBody = r.Body
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(),
		"POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.Equal(t, "hello", string(gotBody))
}

func TestChunkedTooLarge(t *testing.T) {
	invoked := false
	h := HandlerFunc(func(r *Request) *Response {
		invoked = true
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, func(s *Server) {
		require.NoError(t, s.SetMaxRequestSize(4))
	})
	out := exchange(t, s.Addr(),
		"POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nhey\r\n3\r\nyou\r\n0\r\n\r\n")
	require.Equal(t, "HTTP/1.1 413 Payload Too Large", statusLine(out))
	assert.False(t, invoked)
}

func TestLengthRequired(t *testing.T) {
	invoked := false
	h := HandlerFunc(func(r *Request) *Response {
		invoked = true
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "POST /x HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, "HTTP/1.1 411 Length Required", statusLine(out))
	assert.False(t, invoked)
}

func TestExpectContinue(t *testing.T) {
	invoked := false
	h := HandlerFunc(func(r *Request) *Response {
		invoked = true
		return NewResponse(200).NoBody()
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(),
		"POST /x HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\n")
	require.Equal(t, "HTTP/1.1 100 Continue", statusLine(out))
	assert.False(t, invoked)
	_, body, found := strings.Cut(out, "\r\n\r\n")
	require.True(t, found)
	assert.Empty(t, body)
}

func TestNilHandlerResponseIs404(t *testing.T) {
	h := HandlerFunc(func(r *Request) *Response { return nil })
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "GET / HTTP/1.1\r\n\r\n")
	require.Equal(t, "HTTP/1.1 404 Not Found", statusLine(out))
}

func TestFixedBodyContentLength(t *testing.T) {
	h := HandlerFunc(func(r *Request) *Response {
		return NewResponse(200).SetBody("text/plain", []byte("twelve bytes"))
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "GET / HTTP/1.1\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.Contains(t, out, "Content-Length: 12\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\ntwelve bytes"))
}

func TestStreamBodyNoContentLength(t *testing.T) {
	lines := strings.Repeat("data: tick\n\n", 5)
	h := HandlerFunc(func(r *Request) *Response {
		return NewResponse(200).SetStream("text/event-stream", strings.NewReader(lines))
	})
	s := startServer(t, h, nil)
	out := exchange(t, s.Addr(), "GET /events HTTP/1.1\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
	assert.NotContains(t, out, "Content-Length")
	assert.True(t, strings.HasSuffix(out, lines))
}

func TestStreamBodyFlushedIncrementally(t *testing.T) {
	pr, pw := io.Pipe()
	h := HandlerFunc(func(r *Request) *Response {
		return NewResponse(200).SetStream("text/event-stream", pr)
	})
	s := startServer(t, h, nil)

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET /events HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	// Each write must reach the client before the stream ends.
	for i := 0; i < 3; i++ {
		msg := fmt.Sprintf("data: tick %d\n\n", i)
		_, err := io.WriteString(pw, msg)
		require.NoError(t, err)
		got := make([]byte, len(msg))
		_, err = io.ReadFull(br, got)
		require.NoError(t, err)
		assert.Equal(t, msg, string(got))
	}
	require.NoError(t, pw.Close())
	_, err = br.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestInvalidContentLengthAborts(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), nil)
	out := exchange(t, s.Addr(), "POST /x HTTP/1.1\r\nContent-Length: nope\r\n\r\n")
	assert.Empty(t, out)
}

func TestSettersFailWhileRunning(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), nil)
	assert.ErrorIs(t, s.SetPort(9999), ErrServerStarted)
	assert.ErrorIs(t, s.SetHostname("example.com"), ErrServerStarted)
	assert.ErrorIs(t, s.SetMaxRequestSize(1), ErrServerStarted)
	assert.ErrorIs(t, s.SetDispatcher(InlineDispatcher{}), ErrServerStarted)
	assert.ErrorIs(t, s.SetHTTPS(DisabledHTTPS), ErrServerStarted)
	assert.ErrorIs(t, s.SetHandler(nil), ErrServerStarted)
}

func TestStartTwiceFails(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), nil)
	assert.ErrorIs(t, s.Start(), ErrServerStarted)
}

func TestShutdownIdempotent(t *testing.T) {
	s := NewServer(HandlerFunc(echoHandler))
	require.NoError(t, s.SetPort(0))
	require.NoError(t, s.Start())
	s.Shutdown()
	waitStopped(t, s)
	assert.NotPanics(t, s.Shutdown)
	assert.NotPanics(t, s.Shutdown)
}

func TestRestartAfterShutdown(t *testing.T) {
	s := NewServer(HandlerFunc(echoHandler))
	require.NoError(t, s.SetPort(0))
	require.NoError(t, s.Start())
	s.Shutdown()
	waitStopped(t, s)

	require.NoError(t, s.Start())
	defer func() {
		s.Shutdown()
		waitStopped(t, s)
	}()
	out := exchange(t, s.Addr(), "GET / HTTP/1.1\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
}

func TestConnectionClosableAfter413(t *testing.T) {
	s := startServer(t, HandlerFunc(echoHandler), func(s *Server) {
		require.NoError(t, s.SetMaxRequestSize(1))
	})
	out := exchange(t, s.Addr(), "POST /x HTTP/1.1\r\nContent-Length: 100\r\n\r\n")
	require.Equal(t, "HTTP/1.1 413 Payload Too Large", statusLine(out))
	// And the server keeps accepting.
	out = exchange(t, s.Addr(), "GET / HTTP/1.1\r\n\r\n")
	require.Equal(t, "HTTP/1.1 200 OK", statusLine(out))
}
