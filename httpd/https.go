package httpd

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"net"

	"golang.org/x/crypto/pkcs12"

	"dqx0.com/go/serverx/internal/obs"
)

// HTTPS holds the server's TLS identity: the main certificate, optional
// per-hostname certificates for SNI, the resolved protocol and cipher-suite
// lists, and the handshake parameters built once from them. Immutable after
// Build and safely shared across all connections.
type HTTPS struct {
	cert         *tls.Certificate
	hostCerts    map[string]*tls.Certificate
	protocols    []Protocol
	cipherSuites []uint16
	params       *tls.Config
}

// DisabledHTTPS is the identity of servers that do not use TLS. Its protocol
// and cipher lists are empty and wrap is a passthrough.
var DisabledHTTPS = &HTTPS{}

func (h *HTTPS) enabled() bool {
	return h != nil && h != DisabledHTTPS
}

// Protocols returns the resolved protocol list.
func (h *HTTPS) Protocols() []Protocol {
	return h.protocols
}

// CipherSuites returns the resolved cipher-suite list.
func (h *HTTPS) CipherSuites() []uint16 {
	return h.cipherSuites
}

// wrap turns a raw socket into a TLS socket using the resolved platform
// strategy. With no selected protocols the socket is returned unchanged.
func (h *HTTPS) wrap(conn net.Conn) (net.Conn, error) {
	if !h.enabled() || h.params == nil {
		return conn, nil
	}
	p, err := resolvePlatform()
	if err != nil {
		return nil, err
	}
	return p.wrapConn(conn, h)
}

// certificateFor selects the certificate for the SNI hostname the client
// stated, falling back to the main certificate.
func (h *HTTPS) certificateFor(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if c, ok := h.hostCerts[hello.ServerName]; ok {
		return c, nil
	}
	if h.cert == nil {
		return nil, errors.New("httpd: no usable certificate")
	}
	return h.cert, nil
}

// HTTPSBuilder assembles an HTTPS identity. Certificates are PKCS#12
// payloads; convert an openssl certificate with:
//
//	openssl pkcs12 -export -in cert.crt -inkey key.key -out cert.p12 -passout pass:
type HTTPSBuilder struct {
	certificate  []byte
	additional   map[string][]byte
	protocols    []Protocol
	protocolsSet bool
	cipherSuites []uint16
}

// NewHTTPSBuilder returns an empty builder.
func NewHTTPSBuilder() *HTTPSBuilder {
	return &HTTPSBuilder{additional: make(map[string][]byte)}
}

// Certificate sets the main certificate. Setting it twice is an error.
func (b *HTTPSBuilder) Certificate(p12 []byte) error {
	if p12 == nil {
		return ErrNilCertificate
	}
	if b.certificate != nil {
		return ErrCertificateSet
	}
	b.certificate = p12
	return nil
}

// AddCertificate registers an additional certificate for one hostname.
// Hostnames are unique and case-sensitive.
func (b *HTTPSBuilder) AddCertificate(hostname string, p12 []byte) error {
	if p12 == nil {
		return ErrNilCertificate
	}
	if _, ok := b.additional[hostname]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateHost, hostname)
	}
	b.additional[hostname] = p12
	return nil
}

// Protocols restricts the allowed protocols. Calling it with no arguments
// selects an explicitly empty list, which disables the handshake entirely.
func (b *HTTPSBuilder) Protocols(protocols ...Protocol) *HTTPSBuilder {
	b.protocols = protocols
	b.protocolsSet = true
	return b
}

// CipherSuites restricts the allowed cipher suites.
func (b *HTTPSBuilder) CipherSuites(suites ...uint16) *HTTPSBuilder {
	b.cipherSuites = suites
	return b
}

// Build resolves the platform strategy, loads every certificate payload and
// produces the immutable identity. A payload that fails to decode is dropped
// with a logged warning rather than failing the build; a server with a
// broken secondary-host certificate still serves its main host.
func (b *HTTPSBuilder) Build() (*HTTPS, error) {
	if b.certificate == nil {
		return nil, ErrNoCertificate
	}
	p, err := resolvePlatform()
	if err != nil {
		return nil, err
	}
	h := &HTTPS{hostCerts: make(map[string]*tls.Certificate, len(b.additional))}
	cert, err := loadCertificate(b.certificate)
	if err != nil {
		obs.Logf(obs.Warn, "httpd: dropping main certificate: %v", err)
	} else {
		h.cert = cert
	}
	for hostname, payload := range b.additional {
		cert, err := loadCertificate(payload)
		if err != nil {
			obs.Logf(obs.Warn, "httpd: dropping certificate for host %q: %v", hostname, err)
			continue
		}
		h.hostCerts[hostname] = cert
	}
	if b.protocolsSet {
		h.protocols = b.protocols
	} else {
		h.protocols = p.defaultProtocols()
	}
	if b.cipherSuites != nil {
		h.cipherSuites = b.cipherSuites
	} else {
		h.cipherSuites = p.defaultCipherSuites()
	}
	if len(h.protocols) > 0 {
		h.params = p.handshakeParameters(h)
	}
	return h, nil
}

// loadCertificate turns a PKCS#12 payload (empty password) into a usable
// TLS credential.
func loadCertificate(payload []byte) (*tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(payload, "")
	if err != nil {
		return nil, err
	}
	var certPEM, keyPEM []byte
	for _, block := range blocks {
		enc := pem.EncodeToMemory(block)
		if block.Type == "CERTIFICATE" {
			certPEM = append(certPEM, enc...)
		} else {
			keyPEM = append(keyPEM, enc...)
		}
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
