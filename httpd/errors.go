package httpd

import "errors"

var (
	// ErrServerStarted is returned when configuration is mutated, or Start is
	// called again, while the server is not stopped.
	ErrServerStarted = errors.New("httpd: server already started")

	// ErrCertificateSet is returned when the main certificate is set twice.
	ErrCertificateSet = errors.New("httpd: main certificate already set")

	// ErrDuplicateHost is returned when a hostname certificate is registered
	// twice.
	ErrDuplicateHost = errors.New("httpd: certificate for host already set")

	// ErrNoCertificate is returned by Build when no main certificate was
	// supplied.
	ErrNoCertificate = errors.New("httpd: main certificate not set")

	// ErrNilCertificate is returned when a certificate payload is nil.
	ErrNilCertificate = errors.New("httpd: certificate payload is nil")

	// ErrNoPlatform is returned when no TLS platform variant supports the
	// current runtime.
	ErrNoPlatform = errors.New("httpd: unsupported platform")
)
