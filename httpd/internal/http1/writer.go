package http1

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// streamChunkSize bounds each read/write step when relaying a body of
// unknown length.
const streamChunkSize = 64 << 10

// WriteStatusLine writes "PROTO CODE REASON\r\n". An empty reason falls back
// to the standard phrase for the code.
func WriteStatusLine(bw *bufio.Writer, proto string, code int, reason string) error {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	if reason == "" {
		reason = ReasonPhrase(code)
	}
	_, err := fmt.Fprintf(bw, "%s %d %s\r\n", strings.ToUpper(proto), code, reason)
	return err
}

// WriteHeaders writes the header fields in the order given, then the blank
// line ending the response head.
func WriteHeaders(bw *bufio.Writer, fields []Field) error {
	for _, f := range fields {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", f.Name, SanitizeHeaderValue(f.Value)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(bw, "\r\n")
	return err
}

// WriteContinue writes an interim 100 Continue response.
func WriteContinue(bw *bufio.Writer) error {
	_, err := fmt.Fprint(bw, "HTTP/1.1 100 Continue\r\n\r\n")
	return err
}

// StreamBody copies r to bw in bounded chunks, flushing after each one so
// open-ended streams (event feeds) reach the client as they are produced.
func StreamBody(bw *bufio.Writer, r io.Reader) error {
	buf := make([]byte, streamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := bw.Write(buf[:n]); werr != nil {
				return werr
			}
			if werr := bw.Flush(); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// SanitizeHeaderKey ensures a header name is a valid token; returns the
// empty string if it is not.
func SanitizeHeaderKey(k string) string {
	if k == "" {
		return ""
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		default:
			return ""
		}
	}
	return k
}

// SanitizeHeaderValue removes CR/LF and control chars except HTAB.
func SanitizeHeaderValue(v string) string {
	if v == "" {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
