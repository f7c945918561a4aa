package httpd

import (
	"bytes"
	"io"
	"strconv"
)

// Response describes one outgoing response. The body is one of: absent,
// a fixed-length buffer, or a stream of unknown length. Fixed bodies always
// carry an exact Content-Length; streams never carry one and are delimited
// by closing the connection.
type Response struct {
	Proto  string // defaults to HTTP/1.1
	Code   int
	Reason string // defaults to the standard phrase for Code

	header        *Headers
	body          io.Reader
	contentLength int64 // -1 for streams, 0 with nil body for absent
}

// NewResponse returns a response with the given status code and no body.
func NewResponse(code int) *Response {
	return &Response{Code: code, header: NewHeaders()}
}

// Header returns the mutable header list.
func (r *Response) Header() *Headers {
	if r.header == nil {
		r.header = NewHeaders()
	}
	return r.header
}

// NoBody removes any body descriptor.
func (r *Response) NoBody() *Response {
	r.body = nil
	r.contentLength = 0
	r.Header().Del("Content-Length")
	return r
}

// SetBody attaches a fixed-length body and sets Content-Length to its exact
// byte count. An empty contentType leaves Content-Type untouched.
func (r *Response) SetBody(contentType string, b []byte) *Response {
	r.body = bytes.NewReader(b)
	r.contentLength = int64(len(b))
	if contentType != "" {
		r.Header().Set("Content-Type", contentType)
	}
	r.Header().Set("Content-Length", strconv.Itoa(len(b)))
	return r
}

// SetStream attaches a body of unknown length. No Content-Length is emitted;
// the stream is written in bounded chunks, each flushed immediately, until
// src is exhausted.
func (r *Response) SetStream(contentType string, src io.Reader) *Response {
	r.body = src
	r.contentLength = -1
	if contentType != "" {
		r.Header().Set("Content-Type", contentType)
	}
	r.Header().Del("Content-Length")
	return r
}
