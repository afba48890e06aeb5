package services

import "adpazar/internal/protocol"

// Notifier pushes a server-initiated envelope to every live connection of a
// username. The server's connection registry implements it.
type Notifier interface {
	Notify(username string, env *protocol.Envelope)
}

type NotifierFunc func(username string, env *protocol.Envelope)

func (f NotifierFunc) Notify(username string, env *protocol.Envelope) { f(username, env) }
