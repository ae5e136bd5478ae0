package server

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Mokuzzai/pastebin/paste"
	"github.com/Mokuzzai/pastebin/request"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
)

// DecodeError reports request bytes that are not valid UTF-8 under
// DecodeStrict.
type DecodeError struct {
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid utf-8 at byte %d", e.Offset)
}

// Bound on what is discarded from a client after the response, so that
// closing with unread input does not reset the connection under the response.
const maxLingerDrain = 256 << 10

type serverConn struct {
	id     uint64
	server *Server
	conn   net.Conn
	logger *log.Entry
}

func (s *Server) wrapConn(conn net.Conn) *serverConn {
	id := s.nextConnID()
	return &serverConn{
		id:     id,
		server: s,
		conn:   conn,
		logger: log.WithFields(log.Fields{
			"id":     id,
			"remote": conn.RemoteAddr(),
		}),
	}
}

// serve runs exactly one read, parse, dispatch, write cycle and closes the
// connection. Nothing that goes wrong here reaches the accept loop.
func (sc *serverConn) serve() {
	defer sc.server.removeConn(sc)
	defer sc.close()
	defer func() {
		if r := recover(); r != nil {
			sc.logger.WithField("panic", r).Error("Connection handler panicked")
		}
	}()
	if err := sc.cycle(); err != nil {
		sc.logger.WithField("err", err).Warn("Connection cycle failed")
	}
}

func (sc *serverConn) cycle() error {
	opts := &sc.server.opts
	if opts.readTimeout > 0 {
		if err := sc.conn.SetReadDeadline(time.Now().Add(opts.readTimeout)); err != nil {
			return err
		}
	}
	buf := make([]byte, opts.bufferSize)
	n, err := sc.conn.Read(buf)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		return fmt.Errorf("could not read request: %w", err)
	}
	if n == len(buf) {
		n = trimPartialRune(buf[:n])
	}
	text, err := decode(buf[:n], opts.decoding)
	if err != nil {
		return sc.reject(err)
	}
	req, err := request.Parse(text)
	if err != nil {
		return sc.reject(err)
	}
	status, body := sc.dispatch(req)
	sc.logger.WithFields(log.Fields{
		"method": string(req.Method),
		"target": string(req.Target),
		"status": status,
		"size":   len(body),
	}).Debug("Handled request")
	return sc.respond(req.Version, status, body)
}

// reject applies the parse error policy and returns err for logging.
func (sc *serverConn) reject(err error) error {
	if sc.server.opts.onParseError == OnParseErrorRespond {
		if werr := sc.respond(nil, StatusBadRequest, []byte(err.Error()+"\n")); werr != nil {
			return fmt.Errorf("%v; could not respond: %w", err, werr)
		}
	}
	return err
}

func (sc *serverConn) dispatch(req *request.Request) (status int, body []byte) {
	method := string(req.Method)
	target := string(req.Target)
	switch {
	case method == "GET" && target == "/":
		if page, ok := sc.asset(target); ok {
			return StatusOK, page
		}
		return StatusOK, []byte(Usage)
	case method == "POST" && target == "/":
		return sc.upload(req.Body)
	case method == "GET" && strings.HasPrefix(target, "/"):
		return sc.retrieve(target)
	case method == "GET" || method == "POST":
		return StatusNotFound, []byte("not found\n")
	default:
		return StatusNotImplemented, []byte(fmt.Sprintf("%.40q: method not implemented\n", method))
	}
}

func (sc *serverConn) upload(content []byte) (int, []byte) {
	id, err := sc.server.opts.strategy.Store(content)
	if err != nil {
		sc.logger.WithField("err", err).Error("Could not store paste")
		return StatusInternalServerError, []byte("could not store paste\n")
	}
	sc.logger.WithFields(log.Fields{
		"paste": id,
		"size":  len(content),
	}).Info("Stored paste")
	return StatusOK, []byte(id)
}

func (sc *serverConn) retrieve(target string) (int, []byte) {
	strategy := sc.server.opts.strategy
	id, err := strategy.ParseIdentifier(target[1:])
	if err != nil {
		if page, ok := sc.asset(target); ok {
			return StatusOK, page
		}
		sc.logger.WithField("err", err).Debug("Rejected identifier")
		return StatusBadRequest, []byte(err.Error() + "\n")
	}
	content, err := strategy.Load(id)
	if err != nil {
		logger := sc.logger.WithFields(log.Fields{
			"paste": id,
			"err":   err,
		})
		if errors.Is(err, paste.ErrNotFound) {
			logger.Debug("Not found")
		} else {
			logger.Error("Could not load paste")
		}
		return StatusNotFound, []byte("not found\n")
	}
	return StatusOK, content
}

func (sc *serverConn) asset(target string) ([]byte, bool) {
	if sc.server.opts.assets == nil {
		return nil, false
	}
	return sc.server.opts.assets.Asset(target)
}

func (sc *serverConn) respond(version []byte, status int, body []byte) error {
	if t := sc.server.opts.writeTimeout; t > 0 {
		if err := sc.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return err
		}
	}
	return writeResponse(sc.conn, version, status, body)
}

// close shuts down the write side first and briefly drains whatever the client
// sent past the read buffer, then closes. Closing a TCP socket with unread
// input makes the kernel send a reset, which can destroy the response before
// the client reads it.
func (sc *serverConn) close() {
	if tc, ok := sc.conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err == nil {
			_ = tc.SetReadDeadline(time.Now().Add(sc.server.opts.linger))
			_, _ = io.CopyN(ioutil.Discard, tc, maxLingerDrain)
		}
	}
	if err := sc.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		sc.logger.WithFields(log.Fields{
			"err": err,
		}).Warn("Could not close connection")
	}
	sc.logger.Debug("Client detached")
}

func decode(b []byte, mode Decoding) ([]byte, error) {
	if utf8.Valid(b) {
		return b, nil
	}
	if mode == DecodeStrict {
		return nil, &DecodeError{Offset: invalidOffset(b)}
	}
	return unicode.UTF8.NewDecoder().Bytes(b)
}

// trimPartialRune returns the length of b without a trailing multi-byte
// sequence that a full read buffer cut short.
func trimPartialRune(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			break
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return len(b) - i
			}
			break
		}
	}
	return len(b)
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
