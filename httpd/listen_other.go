//go:build !unix

package httpd

import "syscall"

// reuseAddrControl is a no-op where the unix socket options are unavailable.
var reuseAddrControl func(network, address string, c syscall.RawConn) error
