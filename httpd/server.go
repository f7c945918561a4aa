package httpd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"dqx0.com/go/serverx/httpd/internal/http1"
	"dqx0.com/go/serverx/internal/obs"
)

const (
	stateStopped = int32(iota)
	stateStarting
	stateRunning
	stateStopping
)

const maxLineBytes = 8 << 10

// Server is an embeddable HTTP/1.1 server. Configuration is mutable until
// Start and frozen afterwards; every setter fails with ErrServerStarted once
// the server is no longer stopped. Each accepted connection carries exactly
// one request/response exchange and is then closed.
type Server struct {
	state atomic.Int32

	port           int
	hostname       string
	maxRequestSize int64
	dispatcher     Dispatcher
	https          *HTTPS
	handler        Handler

	ln net.Listener
}

// NewServer returns a server with the defaults: port 8080, hostname
// "localhost", 64 KiB maximum request size, pooled dispatcher, TLS disabled.
func NewServer(h Handler) *Server {
	return &Server{
		port:           8080,
		hostname:       "localhost",
		maxRequestSize: 65536,
		https:          DisabledHTTPS,
		handler:        h,
	}
}

// SetPort sets the listening port.
func (s *Server) SetPort(port int) error {
	if !s.stopped() {
		return ErrServerStarted
	}
	s.port = port
	return nil
}

// SetHostname sets the bind hostname.
func (s *Server) SetHostname(hostname string) error {
	if !s.stopped() {
		return ErrServerStarted
	}
	s.hostname = hostname
	return nil
}

// SetMaxRequestSize sets the maximum request body size in bytes.
func (s *Server) SetMaxRequestSize(size int64) error {
	if !s.stopped() {
		return ErrServerStarted
	}
	s.maxRequestSize = size
	return nil
}

// SetDispatcher selects the dispatch strategy.
func (s *Server) SetDispatcher(d Dispatcher) error {
	if !s.stopped() {
		return ErrServerStarted
	}
	s.dispatcher = d
	return nil
}

// SetHTTPS sets the TLS identity. DisabledHTTPS (the default) serves
// plaintext only.
func (s *Server) SetHTTPS(h *HTTPS) error {
	if !s.stopped() {
		return ErrServerStarted
	}
	if h == nil {
		h = DisabledHTTPS
	}
	s.https = h
	return nil
}

// SetHandler sets the application logic.
func (s *Server) SetHandler(h Handler) error {
	if !s.stopped() {
		return ErrServerStarted
	}
	s.handler = h
	return nil
}

func (s *Server) stopped() bool {
	return s.state.Load() == stateStopped
}

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Hostname returns the configured bind hostname.
func (s *Server) Hostname() string { return s.hostname }

// Addr returns the bound address once running, or "" otherwise.
func (s *Server) Addr() string {
	if ln := s.ln; ln != nil {
		return ln.Addr().String()
	}
	return ""
}

// Start binds the listening socket, starts the dispatcher and launches the
// accept loop on its own goroutine before returning. It fails with
// ErrServerStarted unless the server is currently stopped; a bind failure
// aborts startup and leaves the server stopped.
func (s *Server) Start() error {
	if !s.state.CompareAndSwap(stateStopped, stateStarting) {
		return ErrServerStarted
	}
	dispatcher := s.dispatcher
	if dispatcher == nil {
		dispatcher = &PoolDispatcher{}
		s.dispatcher = dispatcher
	}
	dispatcher.Start()
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(s.hostname, strconv.Itoa(s.port)))
	if err != nil {
		dispatcher.Shutdown()
		s.state.Store(stateStopped)
		return fmt.Errorf("httpd: bind %s:%d: %w", s.hostname, s.port, err)
	}
	s.ln = ln
	s.state.Store(stateRunning)
	go s.acceptLoop(ln, dispatcher)
	return nil
}

// Shutdown interrupts the accept loop, which closes the listening socket,
// shuts the dispatcher down and marks the server stopped. Idempotent.
func (s *Server) Shutdown() {
	if s.state.CompareAndSwap(stateRunning, stateStopping) {
		_ = s.ln.Close()
	}
}

// acceptLoop accepts connections in arrival order and hands each one to the
// dispatcher. It exits only on a listener error, then tears everything down.
func (s *Server) acceptLoop(ln net.Listener, dispatcher Dispatcher) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.state.Load() != stateStopping {
				obs.Logf(obs.Error, "httpd: accept: %v", err)
			}
			break
		}
		dispatcher.Dispatch(&ConnTask{srv: s, conn: conn})
	}
	_ = ln.Close()
	dispatcher.Shutdown()
	s.state.Store(stateStopped)
}

// serve runs the full exchange for one accepted socket: optional TLS sniff
// and wrap, one parsed request, one handler call, one written response.
// The connection is closed unconditionally on every exit path and failures
// never escalate past this function.
func (s *Server) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	c := conn
	if s.https.enabled() {
		consumed, isTLS, err := sniffHello(conn)
		if err != nil {
			return
		}
		c = prependConn(conn, consumed)
		if isTLS {
			c, err = s.https.wrap(c)
			if err != nil {
				obs.Logf(obs.Warn, "httpd: handshake: %v", err)
				return
			}
			defer func() { _ = c.Close() }()
		}
	}

	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)
	rr := &http1.Reader{BR: br, MaxLineBytes: maxLineBytes}

	method, path, _, err := rr.ReadRequestLine()
	if err != nil {
		// A client that connected and sent nothing is not an error.
		if err != http1.ErrEmptyRequest {
			obs.Logf(obs.Warn, "httpd: request line: %v", err)
		}
		return
	}
	fields, err := rr.ReadHeaders()
	if err != nil {
		obs.Logf(obs.Warn, "httpd: headers: %v", err)
		return
	}
	hdr := &Headers{fields: fields}

	resp, err := s.frameAndHandle(br, method, path, hdr)
	if err != nil {
		obs.Logf(obs.Warn, "httpd: %s %s: %v", method, path, err)
		return
	}
	if resp == nil {
		resp = NewResponse(404).NoBody()
	}
	if err := writeResponse(bw, resp); err != nil {
		obs.Logf(obs.Warn, "httpd: write response: %v", err)
	}
}

// frameAndHandle applies the body-framing precedence rules, reads the body
// when one is framed, and invokes the handler. A nil response with nil error
// means the handler declined (404). A non-nil error aborts the connection
// without a response.
func (s *Server) frameAndHandle(br *bufio.Reader, method, path string, hdr *Headers) (*Response, error) {
	// An expectation short-circuits everything else: reply 100 Continue and
	// stop. The request supposed to follow the interim response is never
	// read on this connection; see the package documentation.
	if hdr.Get("Expect") == "100-continue" {
		return NewResponse(100).NoBody(), nil
	}

	permits := permitsRequestBody(method)
	length := int64(-1)
	if v := hdr.Get("Content-Length"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid Content-Length %q", v)
		}
		length = n
	}

	switch {
	case length > s.maxRequestSize:
		return NewResponse(413).NoBody(), nil
	case length == 0:
		return s.invoke(method, path, hdr, nil), nil
	case length > 0 && permits:
		body, err := http1.ReadFixedBody(br, length)
		if err != nil {
			return nil, err
		}
		return s.invoke(method, path, hdr, body), nil
	case length > 0:
		// The method's semantics forbid a body, so the declared length is
		// ignored and, notably, not consumed from the stream. Harmless here
		// because the connection serves a single request, but a latent bug
		// for any future keep-alive support.
		return s.invoke(method, path, hdr, nil), nil
	case hdr.Get("Transfer-Encoding") == "chunked":
		if !permits {
			return s.invoke(method, path, hdr, nil), nil
		}
		body, total, err := http1.ReadChunkedBody(br, s.maxRequestSize, maxLineBytes)
		if err != nil {
			return nil, err
		}
		if total > s.maxRequestSize {
			return NewResponse(413).NoBody(), nil
		}
		return s.invoke(method, path, hdr, body), nil
	case permits:
		return NewResponse(411).NoBody(), nil
	default:
		return s.invoke(method, path, hdr, nil), nil
	}
}

func (s *Server) invoke(method, path string, hdr *Headers, body []byte) *Response {
	if s.handler == nil {
		return nil
	}
	return s.handler.Serve(&Request{Method: method, Path: path, Header: hdr, Body: body})
}

// writeResponse serializes the status line, the headers in insertion order,
// a blank line and then the body per its descriptor. Fixed bodies are copied
// byte for byte; unknown-length bodies are streamed in bounded chunks with a
// flush after each one.
func writeResponse(bw *bufio.Writer, r *Response) error {
	if err := http1.WriteStatusLine(bw, r.Proto, r.Code, r.Reason); err != nil {
		return err
	}
	hdr := r.Header()
	if r.contentLength < 0 {
		hdr.Del("Content-Length")
	} else if r.body != nil {
		hdr.Set("Content-Length", strconv.FormatInt(r.contentLength, 10))
	}
	if err := http1.WriteHeaders(bw, hdr.fields); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if r.body == nil {
		return nil
	}
	if r.contentLength >= 0 {
		if _, err := io.CopyN(bw, r.body, r.contentLength); err != nil {
			return err
		}
		return bw.Flush()
	}
	return http1.StreamBody(bw, r.body)
}
