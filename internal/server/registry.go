package server

import (
	"sync"

	"adpazar/internal/protocol"

	"github.com/rs/zerolog"
)

// Registry tracks the live connections per username so domain events can be
// pushed to every session of the affected user. It implements
// services.Notifier.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]map[*Conn]struct{}
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
}

// Notify sends a push envelope to every live connection of username.
func (r *Registry) Notify(username string, env *protocol.Envelope) {
	r.mu.Lock()
	targets := make([]*Conn, 0, len(r.conns[username]))
	for conn := range r.conns[username] {
		targets = append(targets, conn)
	}
	r.mu.Unlock()

	for _, conn := range targets {
		if err := conn.Send(env); err != nil {
			r.logger.Debug().Err(err).Str("username", username).Msg("Failed to push notification")
		}
	}
}

func (r *Registry) bind(conn *Conn, oldUsername, newUsername string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldUsername != "" && oldUsername != newUsername {
		r.removeLocked(conn, oldUsername)
	}
	if newUsername == "" {
		return
	}
	set, ok := r.conns[newUsername]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[newUsername] = set
	}
	set[conn] = struct{}{}
}

func (r *Registry) remove(conn *Conn, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn, username)
}

func (r *Registry) removeLocked(conn *Conn, username string) {
	if set, ok := r.conns[username]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.conns, username)
		}
	}
}

// ActiveConnections reports how many connections are bound to username.
func (r *Registry) ActiveConnections(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[username])
}
