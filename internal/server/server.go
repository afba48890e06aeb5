package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Server accepts client sockets and runs one connection handler per client.
type Server struct {
	addr       string
	registry   *Registry
	dispatcher *Dispatcher
	logger     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func New(addr string, registry *Registry, dispatcher *Dispatcher, logger zerolog.Logger) *Server {
	return &Server{
		addr:       addr,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[*Conn]struct{}),
	}
}

// ListenAndServe blocks until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", s.addr).Msg("Server listening")

	for {
		nc, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		s.startConn(nc)
	}
}

func (s *Server) startConn(nc net.Conn) {
	conn := newConn(nc, s.registry, s.dispatcher, s.logger)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		nc.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug().Str("remote_addr", nc.RemoteAddr().String()).Msg("Connection accepted")

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			s.wg.Done()
		}()
		conn.serve()
	}()
}

// Shutdown stops accepting, closes every live connection and waits for the
// handlers to drain or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	listener := s.listener
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, conn := range conns {
		conn.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
