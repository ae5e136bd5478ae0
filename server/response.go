package server

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusInternalServerError = 500
	StatusNotImplemented      = 501
)

// ErrUnderflow is returned when not all bytes of a response could be written.
var ErrUnderflow = errors.New("underflow")

var defaultVersion = []byte("HTTP/1.1")

// StatusText returns the reason phrase sent with a status code.
func StatusText(status int) string {
	switch status {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	default:
		return "Unknown"
	}
}

// writeResponse writes a status line echoing version, a Content-Length header,
// a blank line and the body, in a single write. A nil version is sent as
// HTTP/1.1.
func writeResponse(w io.Writer, version []byte, status int, body []byte) error {
	if len(version) == 0 {
		version = defaultVersion
	}
	buf := make([]byte, 0, len(version)+64+len(body))
	buf = append(buf, version...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, StatusText(status)...)
	buf = append(buf, "\r\nContent-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, "\r\n\r\n"...)
	buf = append(buf, body...)
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(buf), ErrUnderflow)
	}
	return nil
}
