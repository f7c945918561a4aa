package httpd

import (
	"bytes"
	"io"
	"net"
)

// TLS record layer: content type 0x16 (handshake) followed by the 0x03,xx
// protocol version bytes. Anything else is treated as plaintext.
const recordTypeHandshake = 0x16

// sniffHello reads the minimum leading bytes of a new connection needed to
// classify it as a TLS client-hello or plaintext. The bytes read are
// returned so the caller can replay them into whichever branch it takes;
// nothing is lost either way.
func sniffHello(conn net.Conn) (consumed []byte, isTLS bool, err error) {
	buf := make([]byte, 3)
	n, err := io.ReadFull(conn, buf)
	if err != nil {
		return buf[:n], false, err
	}
	isTLS = buf[0] == recordTypeHandshake && buf[1] == 0x03 && buf[2] <= 0x03
	return buf, isTLS, nil
}

// replayConn is a net.Conn whose reads drain the sniffed bytes before
// touching the socket again.
type replayConn struct {
	net.Conn
	r io.Reader
}

func (c *replayConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func prependConn(conn net.Conn, consumed []byte) net.Conn {
	if len(consumed) == 0 {
		return conn
	}
	return &replayConn{Conn: conn, r: io.MultiReader(bytes.NewReader(consumed), conn)}
}
