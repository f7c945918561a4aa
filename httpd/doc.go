// Package httpd provides a small, embeddable HTTP/1.1 server: an accept
// loop with pluggable dispatch strategies, a byte-level request parser and
// response serializer, and an optional TLS layer with per-hostname (SNI)
// certificate selection.
//
// Each accepted connection carries exactly one request/response exchange
// and is closed when it completes. There is no keep-alive, pipelining,
// HTTP/2 or WebSocket support.
//
// Quick start:
//
//	h := httpd.HandlerFunc(func(r *httpd.Request) *httpd.Response {
//	    return httpd.NewResponse(200).SetBody("text/plain", []byte("hello"))
//	})
//	s := httpd.NewServer(h)
//	if err := s.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Shutdown()
//
// TLS is enabled by building an identity from PKCS#12 certificates and
// setting it before Start:
//
//	b := httpd.NewHTTPSBuilder()
//	_ = b.Certificate(mainP12)
//	_ = b.AddCertificate("other.example.com", otherP12)
//	id, err := b.Build()
//	...
//	_ = s.SetHTTPS(id)
//
// A TLS-enabled server still accepts plaintext connections on the same
// port: the first bytes of every connection are sniffed for a TLS
// client-hello and replayed into whichever path is taken.
//
// Known quirks, kept deliberately: a request whose method forbids a body
// but that declares a Content-Length is handled without consuming the
// declared bytes, and an Expect: 100-continue request is answered with the
// interim response only, without reading the request that was supposed to
// follow. Both are harmless while connections carry a single request.
package httpd
