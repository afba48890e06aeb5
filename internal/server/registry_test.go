package server

import (
	"net"
	"testing"

	"adpazar/internal/protocol"

	"github.com/rs/zerolog"
)

// pipeConn builds a registry-attached connection over net.Pipe and returns
// the peer end for reading pushed frames.
func pipeConn(t *testing.T, registry *Registry) (*Conn, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return newConn(local, registry, nil, zerolog.Nop()), remote
}

func readEnvelope(t *testing.T, nc net.Conn) *protocol.Envelope {
	t.Helper()
	decoder := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if err != nil {
			t.Fatalf("read error = %v", err)
		}
		decoder.Feed(buf[:n])
		env, err := decoder.Next()
		if err != nil {
			t.Fatalf("decode error = %v", err)
		}
		if env != nil {
			return env
		}
	}
}

func TestRegistry_NotifyReachesEverySession(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	first, firstPeer := pipeConn(t, registry)
	second, secondPeer := pipeConn(t, registry)
	first.Bind(Identity{Token: "t1", Username: "ali", Role: "user"})
	second.Bind(Identity{Token: "t2", Username: "ali", Role: "user"})

	if got := registry.ActiveConnections("ali"); got != 2 {
		t.Fatalf("ActiveConnections() = %d, want 2", got)
	}

	push, err := protocol.NewPush(protocol.CmdNotifyWalletChanged, map[string]int64{"balance_tokens": 75})
	if err != nil {
		t.Fatalf("NewPush() error = %v", err)
	}
	// Pipe writes block until the peer reads, so both reads run before the
	// notify and in parallel.
	received := make(chan protocol.Command, 2)
	for _, peer := range []net.Conn{firstPeer, secondPeer} {
		go func(peer net.Conn) {
			received <- readEnvelope(t, peer).Command
		}(peer)
	}
	registry.Notify("ali", push)

	for i := 0; i < 2; i++ {
		if cmd := <-received; cmd != protocol.CmdNotifyWalletChanged {
			t.Errorf("pushed command = %q, want %q", cmd, protocol.CmdNotifyWalletChanged)
		}
	}
}

func TestRegistry_RebindMovesConnection(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	conn, _ := pipeConn(t, registry)
	conn.Bind(Identity{Token: "t1", Username: "ali", Role: "user"})

	// A rename rebinds the same connection under the new username.
	conn.Bind(Identity{Token: "t1", Username: "veli", Role: "user"})

	if got := registry.ActiveConnections("ali"); got != 0 {
		t.Errorf("ActiveConnections(ali) = %d, want 0 after rebind", got)
	}
	if got := registry.ActiveConnections("veli"); got != 1 {
		t.Errorf("ActiveConnections(veli) = %d, want 1", got)
	}

	conn.close()
	if got := registry.ActiveConnections("veli"); got != 0 {
		t.Errorf("ActiveConnections(veli) = %d, want 0 after close", got)
	}
}
