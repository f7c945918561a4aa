package http1

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	// ErrEmptyRequest marks a connection that closed, or sent a bare CRLF,
	// before any request line. Callers treat it as a silent abort.
	ErrEmptyRequest = errors.New("http1: empty request")

	ErrMalformedRequestLine = errors.New("http1: malformed request line")
	ErrMalformedHeader      = errors.New("http1: malformed header line")
)

// Field is one header line as it appeared on the wire. Order and duplicates
// are preserved by keeping headers as a flat sequence of fields.
type Field struct {
	Name  string
	Value string
}

// Reader parses the head of a single HTTP/1.1 request off a buffered stream.
type Reader struct {
	BR           *bufio.Reader
	MaxLineBytes int
}

// ReadRequestLine reads the request line and splits it on the first two
// spaces. The protocol token is returned but never interpreted.
func (r *Reader) ReadRequestLine() (method, path, proto string, err error) {
	line, err := r.readLine()
	if err != nil {
		if err == io.EOF {
			return "", "", "", ErrEmptyRequest
		}
		return "", "", "", err
	}
	if line == "" {
		return "", "", "", ErrEmptyRequest
	}
	i := strings.IndexByte(line, ' ')
	if i == -1 {
		return "", "", "", ErrMalformedRequestLine
	}
	j := strings.IndexByte(line[i+1:], ' ')
	if j == -1 {
		return "", "", "", ErrMalformedRequestLine
	}
	j += i + 1
	return line[:i], line[i+1 : j], line[j+1:], nil
}

// ReadHeaders reads "Name: value" lines until the empty line that ends the
// request head. Fields keep their wire order.
func (r *Reader) ReadHeaders() ([]Field, error) {
	var fields []Field
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			return fields, nil
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, ErrMalformedHeader
		}
		fields = append(fields, Field{
			Name:  strings.TrimSpace(line[:i]),
			Value: strings.TrimSpace(line[i+1:]),
		})
	}
}

func (r *Reader) readLine() (string, error) {
	return readLineLimit(r.BR, r.MaxLineBytes)
}

func readLineLimit(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
		if limit > 0 && sb.Len() > limit {
			return "", io.ErrShortBuffer
		}
	}
	return sb.String(), nil
}
