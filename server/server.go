// Package server implements the paste service front-end: a TCP listener that
// reads one request per connection, parses it with package request, stores or
// loads pastes through a paste.Strategy, writes one response and closes the
// connection.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mokuzzai/pastebin/paste"
	log "github.com/sirupsen/logrus"
)

// Decoding selects what happens to request bytes that are not valid UTF-8.
type Decoding uint8

const (
	// DecodeStrict fails the connection with a DecodeError.
	DecodeStrict Decoding = iota
	// DecodeLossy replaces invalid sequences with U+FFFD.
	DecodeLossy
)

// ParseErrorPolicy selects what happens when a request cannot be decoded or
// parsed.
type ParseErrorPolicy uint8

const (
	// OnParseErrorClose closes the connection without a response.
	OnParseErrorClose ParseErrorPolicy = iota
	// OnParseErrorRespond writes a best-effort 400 response naming the
	// problem before closing.
	OnParseErrorRespond
)

const (
	DefaultAddress    = ":8000"
	DefaultBufferSize = 1024
)

type Option func(*options)

type options struct {
	address      string
	strategy     paste.Strategy
	assets       AssetResponder
	bufferSize   int
	decoding     Decoding
	onParseError ParseErrorPolicy
	concurrent   bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	linger       time.Duration
}

func WithAddress(value string) Option {
	return func(o *options) {
		o.address = value
	}
}

// WithStrategy sets the addressing strategy shared by all connections.
func WithStrategy(value paste.Strategy) Option {
	return func(o *options) {
		o.strategy = value
	}
}

// WithAssets sets a responder for pages other than the paste routes.
func WithAssets(value AssetResponder) Option {
	return func(o *options) {
		o.assets = value
	}
}

// WithBufferSize sets the capacity of the single read each connection gets.
// Anything a client sends beyond it is ignored.
func WithBufferSize(value int) Option {
	return func(o *options) {
		if value > 0 {
			o.bufferSize = value
		}
	}
}

func WithDecoding(value Decoding) Option {
	return func(o *options) {
		o.decoding = value
	}
}

func WithParseErrorPolicy(value ParseErrorPolicy) Option {
	return func(o *options) {
		o.onParseError = value
	}
}

// WithConcurrentConnections makes Serve handle each connection in its own
// goroutine instead of one after the other.
func WithConcurrentConnections(value bool) Option {
	return func(o *options) {
		o.concurrent = value
	}
}

// WithReadTimeout bounds the time a client has to send its request. Zero
// means no deadline.
func WithReadTimeout(value time.Duration) Option {
	return func(o *options) {
		o.readTimeout = value
	}
}

// WithWriteTimeout bounds the time spent writing a response. Zero means no
// deadline.
func WithWriteTimeout(value time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = value
	}
}

// BindError reports that the listener could not acquire its address.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("could not bind %q: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

type Server struct {
	opts    options
	ln      net.Listener
	connIDs uint64

	serving sync.WaitGroup
	mu      sync.Mutex
	conns   map[uint64]*serverConn
	stopped bool
}

func New(opts ...Option) *Server {
	s := &Server{
		conns: make(map[uint64]*serverConn),
	}
	s.opts.address = DefaultAddress
	s.opts.bufferSize = DefaultBufferSize
	s.opts.linger = 500 * time.Millisecond
	for _, o := range opts {
		o(&s.opts)
	}
	return s
}

// Listen binds the configured address. On failure the error is a *BindError.
func (s *Server) Listen() (addr string, err error) {
	if s.opts.strategy == nil {
		return "", errors.New("server has no addressing strategy")
	}
	s.ln, err = net.Listen("tcp", s.opts.address)
	if err != nil {
		return "", &BindError{Address: s.opts.address, Err: err}
	}
	addr = s.ln.Addr().String()
	return
}

// Serve accepts connections and runs one request/response cycle on each, by
// default strictly one connection at a time. Failed accepts and failed cycles
// are logged and do not stop the loop. Serve returns after Shutdown is
// called, once all connections it accepted are done.
func (s *Server) Serve() error {
	defer s.serving.Wait()
	var backoff time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Shutdown must've been called. Interrupt the accept loop.
				break
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			log.WithFields(log.Fields{
				"err":   err,
				"retry": backoff,
			}).Error("Could not accept connection")
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		sc := s.wrapConn(conn)
		if !s.addConn(sc) {
			sc.close()
			break
		}
		log.WithFields(log.Fields{
			"id":     sc.id,
			"remote": sc.conn.RemoteAddr(),
			"local":  sc.conn.LocalAddr(),
		}).Debug("Client attached")
		if s.opts.concurrent {
			s.serving.Add(1)
			go func() {
				defer s.serving.Done()
				sc.serve()
			}()
		} else {
			sc.serve()
		}
	}
	return nil
}

func (s *Server) addConn(sc *serverConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[sc.id] = sc
	return true
}

func (s *Server) removeConn(sc *serverConn) {
	s.mu.Lock()
	delete(s.conns, sc.id)
	s.mu.Unlock()
}

func (s *Server) nextConnID() uint64 {
	return atomic.AddUint64(&s.connIDs, 1)
}

// Shutdown instructs the server to shutdown. This method will return
// immediately, while the server will have to be considered shut down only when
// Serve returns. Connections still being served are closed.
func (s *Server) Shutdown() error {
	if s.ln == nil {
		return nil
	}
	// Stop accepting
	err := s.ln.Close()
	// Stop accepted
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, sc := range s.conns {
		if cerr := sc.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			log.WithFields(log.Fields{
				"id":  sc.id,
				"err": cerr,
			}).Warn("Could not close connection")
		}
	}
	return err
}
