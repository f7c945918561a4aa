package http1

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

var ErrMalformedChunk = errors.New("http1: invalid chunk format")

// ReadFixedBody reads exactly n bytes of request body. A peer that closes
// the stream early yields whatever was read so far, not an error.
func ReadFixedBody(br *bufio.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(br, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return buf[:read], nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadChunkedBody reads a chunked body into memory. Each chunk is a hex size
// line, that many raw bytes, then a CRLF boundary; a zero-size chunk ends the
// sequence and must be followed by an empty trailer line.
//
// The running total of declared sizes is accumulated before each chunk is
// read. Once it exceeds max, reading stops and the partial body plus the
// over-limit total are returned with a nil error; the caller turns that into
// a 413 without touching the rest of the stream.
func ReadChunkedBody(br *bufio.Reader, max int64, maxLine int) (body []byte, total int64, err error) {
	var buf bytes.Buffer
	for {
		line, err := readLineLimit(br, maxLine)
		if err != nil {
			return nil, total, err
		}
		size, err := parseChunkSize(line)
		if err != nil {
			return nil, total, err
		}
		total += size
		if size == 0 {
			trailer, err := readLineLimit(br, maxLine)
			if err != nil {
				return nil, total, err
			}
			if trailer != "" {
				return nil, total, ErrMalformedChunk
			}
			break
		}
		if total > max {
			break
		}
		if _, err := io.CopyN(&buf, br, size); err != nil {
			return nil, total, err
		}
		boundary, err := readLineLimit(br, maxLine)
		if err != nil {
			return nil, total, err
		}
		if boundary != "" {
			return nil, total, ErrMalformedChunk
		}
	}
	return buf.Bytes(), total, nil
}

func parseChunkSize(line string) (int64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrMalformedChunk
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, ErrMalformedChunk
	}
	return n, nil
}
