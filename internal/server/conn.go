package server

import (
	"errors"
	"net"
	"sync"
	"time"

	"adpazar/internal/apperr"
	"adpazar/internal/protocol"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const writeTimeout = 10 * time.Second

// Identity is the session identity the dispatcher binds onto a connection
// after authorization, used for push routing and audit logging.
type Identity struct {
	Token    string
	Username string
	Role     string
}

// Conn is one client connection: a framed decoder on the read side and a
// mutex-serialized writer shared by responses and pushes.
type Conn struct {
	nc         net.Conn
	registry   *Registry
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	logger     zerolog.Logger

	mu    sync.Mutex
	ident Identity
}

func newConn(nc net.Conn, registry *Registry, dispatcher *Dispatcher, logger zerolog.Logger) *Conn {
	return &Conn{
		nc:         nc,
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
		logger:     logger.With().Str("remote_addr", nc.RemoteAddr().String()).Logger(),
	}
}

// Bind attaches the resolved identity to the connection and keeps the push
// registry in sync.
func (c *Conn) Bind(ident Identity) {
	c.mu.Lock()
	old := c.ident.Username
	c.ident = ident
	c.mu.Unlock()
	c.registry.bind(c, old, ident.Username)
}

// Send writes one envelope as a frame. Safe for concurrent use.
func (c *Conn) Send(env *protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.nc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err = c.nc.Write(frame)
	return err
}

func (c *Conn) serve() {
	defer c.close()

	decoder := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			if !c.drain(decoder) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drain yields every complete frame already buffered. It returns false when
// the stream can no longer be resynchronized.
func (c *Conn) drain(decoder *protocol.Decoder) bool {
	for {
		env, err := decoder.Next()
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			c.logger.Warn().Msg("Oversized frame, closing connection")
			return false
		}
		if err != nil {
			// Malformed frame: answer with a protocol error and keep the
			// connection; the decoder already consumed the bad frame.
			if sendErr := c.Send(protocol.NewFailure(nil, err)); sendErr != nil {
				return false
			}
			continue
		}
		if env == nil {
			return true
		}

		var resp *protocol.Envelope
		if !c.limiter.Allow() {
			resp = protocol.NewFailure(env, apperr.New(apperr.KindRateLimited, "too many requests, slow down"))
		} else {
			resp = c.dispatch(env)
		}
		if err := c.Send(resp); err != nil {
			return false
		}
	}
}

// dispatch guarantees exactly one response envelope even when a handler
// panics.
func (c *Conn) dispatch(env *protocol.Envelope) (resp *protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("command", string(env.Command)).Msg("Panic recovered in dispatch")
			resp = protocol.NewFailure(env, apperr.New(apperr.KindInternal, "an internal error occurred"))
		}
	}()
	return c.dispatcher.Dispatch(env, c)
}

func (c *Conn) close() {
	c.mu.Lock()
	username := c.ident.Username
	c.mu.Unlock()
	if username != "" {
		c.registry.remove(c, username)
	}
	c.nc.Close()
}
