package httpd

import (
	"crypto/tls"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"

	"dqx0.com/go/serverx/internal/obs"
)

// Protocol is a TLS protocol version.
type Protocol uint16

const (
	ProtocolSSL3  Protocol = 0x0300
	ProtocolTLS1  Protocol = tls.VersionTLS10
	ProtocolTLS11 Protocol = tls.VersionTLS11
	ProtocolTLS12 Protocol = tls.VersionTLS12
	ProtocolTLS13 Protocol = tls.VersionTLS13
)

// platform is one runtime TLS strategy: default protocol and cipher lists,
// handshake parameter construction, and socket wrapping. Exactly one variant
// is selected per process by an ordered capability probe.
type platform interface {
	name() string
	defaultProtocols() []Protocol
	defaultCipherSuites() []uint16
	handshakeParameters(h *HTTPS) *tls.Config
	wrapConn(conn net.Conn, h *HTTPS) (net.Conn, error)
}

var (
	platformOnce sync.Once
	activePlat   platform
	platformErr  error
)

// resolvePlatform probes the candidate variants most-capable first and keeps
// the first one that declares itself supported. The result is cached for the
// process lifetime. Probes are cheap and side-effect-free.
func resolvePlatform() (platform, error) {
	platformOnce.Do(func() {
		probes := []func() platform{
			probeModernPlatform,
			probeBootALPNPlatform,
			probeLegacyPlatform,
			probeMobilePlatform,
		}
		for _, probe := range probes {
			if p := probe(); p != nil {
				activePlat = p
				obs.Logf(obs.Info, "%s platform", p.name())
				return
			}
		}
		platformErr = ErrNoPlatform
	})
	return activePlat, platformErr
}

var gcmCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

var cbcCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
}

func runtimeAdvertises(id uint16) bool {
	for _, cs := range tls.CipherSuites() {
		if cs.ID == id {
			return true
		}
	}
	return false
}

func mobileRuntime() bool {
	return runtime.GOOS == "android"
}

// mobileAPILevel is a probe hook; overridden in tests.
var mobileAPILevel = func() int {
	n, err := strconv.Atoi(os.Getenv("ANDROID_API_LEVEL"))
	if err != nil {
		return 0
	}
	return n
}

// basePlatform carries the parameter construction and socket wrapping shared
// by every variant.
type basePlatform struct{}

func (basePlatform) handshakeParameters(h *HTTPS) *tls.Config {
	min, max := protocolBounds(h.protocols)
	return &tls.Config{
		MinVersion:     min,
		MaxVersion:     max,
		CipherSuites:   h.cipherSuites,
		GetCertificate: h.certificateFor,
	}
}

func (basePlatform) wrapConn(conn net.Conn, h *HTTPS) (net.Conn, error) {
	if h.params == nil {
		return conn, nil
	}
	tc := tls.Server(conn, h.params)
	if err := tc.Handshake(); err != nil {
		return nil, err
	}
	return tc, nil
}

func protocolBounds(protocols []Protocol) (min, max uint16) {
	for _, p := range protocols {
		v := uint16(p)
		if min == 0 || v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// modernPlatform is the native strategy for runtimes that speak TLS 1.3.
type modernPlatform struct{ basePlatform }

func probeModernPlatform() platform {
	if mobileRuntime() || !runtimeAdvertises(tls.TLS_AES_128_GCM_SHA256) {
		return nil
	}
	return modernPlatform{}
}

func (modernPlatform) name() string { return "modern" }

func (modernPlatform) defaultProtocols() []Protocol {
	return []Protocol{ProtocolTLS13, ProtocolTLS12}
}

func (modernPlatform) defaultCipherSuites() []uint16 { return gcmCipherSuites }

// bootALPNPlatform covers TLS 1.2 runtimes that still negotiate ALPN.
type bootALPNPlatform struct{ basePlatform }

func probeBootALPNPlatform() platform {
	if mobileRuntime() || !runtimeAdvertises(tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256) {
		return nil
	}
	return bootALPNPlatform{}
}

func (bootALPNPlatform) name() string { return "boot ALPN" }

func (bootALPNPlatform) defaultProtocols() []Protocol {
	return []Protocol{ProtocolTLS12}
}

func (bootALPNPlatform) defaultCipherSuites() []uint16 { return gcmCipherSuites }

// legacyPlatform is the non-mobile fallback requiring explicit parameter
// construction.
type legacyPlatform struct{ basePlatform }

func probeLegacyPlatform() platform {
	if mobileRuntime() {
		return nil
	}
	return legacyPlatform{}
}

func (legacyPlatform) name() string { return "legacy" }

func (legacyPlatform) defaultProtocols() []Protocol {
	return []Protocol{ProtocolTLS12}
}

func (legacyPlatform) defaultCipherSuites() []uint16 { return gcmCipherSuites }

// mobilePlatform covers android runtimes at API level 16 and up. Levels
// below 20 default to CBC suites, newer levels to GCM. The threshold is a
// compatibility choice, not a security one.
type mobilePlatform struct {
	basePlatform
	apiLevel int
}

func probeMobilePlatform() platform {
	if !mobileRuntime() {
		return nil
	}
	level := mobileAPILevel()
	if level < 16 {
		return nil
	}
	return mobilePlatform{apiLevel: level}
}

func (mobilePlatform) name() string { return "mobile" }

func (mobilePlatform) defaultProtocols() []Protocol {
	return []Protocol{ProtocolTLS12}
}

func (p mobilePlatform) defaultCipherSuites() []uint16 {
	if p.apiLevel < 20 {
		return cbcCipherSuites
	}
	return gcmCipherSuites
}
