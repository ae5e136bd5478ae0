// Package request parses the minimal HTTP-like requests the paste server
// accepts.
//
// The parser is a single pass over the buffer that borrows from it instead of
// copying. It is not a conformant HTTP parser: after the method and target it
// recognizes exactly three CRLF-delimited segments (version, header block,
// body), does not look inside the header block, and takes the body to be
// whatever follows the blank line, however much of it was read.
package request

import (
	"bytes"
)

// Request is a parsed request. All fields alias the buffer given to Parse and
// are only valid as long as that buffer is.
type Request struct {
	Method  []byte
	Target  []byte
	Version []byte

	// Headers is the raw header block without its terminating blank line.
	// It may be empty.
	Headers []byte

	// Body is everything after the blank line, verbatim. It may be empty.
	Body []byte
}

// ParseError names the structural element a request was missing.
type ParseError uint8

const (
	ErrMissingMethod ParseError = iota + 1
	ErrMissingRequestURI
	ErrMissingHTTPVersion
	ErrMissingHeaders
	ErrMissingMessageBody
)

func (e ParseError) Error() string {
	switch e {
	case ErrMissingMethod:
		return "missing method"
	case ErrMissingRequestURI:
		return "missing request uri"
	case ErrMissingHTTPVersion:
		return "missing http version"
	case ErrMissingHeaders:
		return "missing headers"
	case ErrMissingMessageBody:
		return "missing message body"
	default:
		return "unknown parse error"
	}
}

var (
	crlf     = []byte("\r\n")
	blank    = []byte("\r\n\r\n")
	linePads = " \t"
)

// Parse parses buf, which holds at most one request. It returns either a
// Request with every field set or exactly one ParseError.
func Parse(buf []byte) (*Request, error) {
	method, rest := token(buf)
	if len(method) == 0 {
		return nil, ErrMissingMethod
	}
	target, rest := token(rest)
	if len(target) == 0 {
		return nil, ErrMissingRequestURI
	}
	line, rest, found := bytes.Cut(rest, crlf)
	version := bytes.Trim(line, linePads)
	if len(version) == 0 {
		return nil, ErrMissingHTTPVersion
	}
	if !found {
		return nil, ErrMissingHeaders
	}
	var headers, body []byte
	if bytes.HasPrefix(rest, crlf) {
		headers, body = rest[:0], rest[len(crlf):]
	} else {
		i := bytes.Index(rest, blank)
		if i < 0 {
			return nil, ErrMissingMessageBody
		}
		headers, body = rest[:i], rest[i+len(blank):]
	}
	return &Request{
		Method:  method,
		Target:  target,
		Version: version,
		Headers: headers,
		Body:    body,
	}, nil
}

// token skips leading ASCII whitespace and returns the following run of
// non-whitespace bytes together with what comes after it.
func token(b []byte) (tok, rest []byte) {
	i := 0
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	j := i
	for j < len(b) && !isSpace(b[j]) {
		j++
	}
	return b[i:j], b[j:]
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}
