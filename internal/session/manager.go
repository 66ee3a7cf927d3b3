// Package session owns the single live connection to the graph store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphstore"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Target identifies a store endpoint.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Dialer opens a backend for a target.
type Dialer func(ctx context.Context, t Target) (graphstore.Backend, error)

// Manager serializes all access to one backend. Reconnecting replaces the
// backend wholesale.
type Manager struct {
	mu      sync.Mutex
	dial    Dialer
	backend graphstore.Backend
	target  Target
	state   State
	log     *slog.Logger
}

// NewManager returns a disconnected manager.
func NewManager(dial Dialer, log *slog.Logger) *Manager {
	return &Manager{dial: dial, log: log}
}

// Connect dials t unless already connected to it. Any previous backend is
// closed first. There is no retry.
func (m *Manager) Connect(ctx context.Context, t Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connected && m.target == t {
		return nil
	}
	m.dropLocked(ctx)
	m.state = Connecting
	m.target = t

	b, err := m.dial(ctx, t)
	if err == nil {
		err = handshake(ctx, b)
		if err != nil {
			b.Close(ctx)
		}
	}
	if err != nil {
		m.state = Disconnected
		m.log.Warn("connect failed", slog.String("target", t.String()), slog.String("error", err.Error()))
		if apperr.KindOf(err) == apperr.KindConnection {
			return err
		}
		return apperr.Connection(err, "session: connect %s", t)
	}

	m.backend = b
	m.state = Connected
	m.log.Info("connected", slog.String("target", t.String()), slog.String("backend", b.Name()))
	return nil
}

func handshake(ctx context.Context, b graphstore.Backend) error {
	if err := b.Ping(ctx); err != nil {
		return err
	}
	return b.EnsureSchema(ctx)
}

// HealthCheck reports whether a trivial round trip succeeds. It never
// changes state.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected || m.backend == nil {
		return false
	}
	return m.backend.Ping(ctx) == nil
}

// Do runs fn against the live backend while holding the session lock.
// Connectivity failures move the manager to Disconnected. Classified errors
// pass through; anything else is reported as a query error.
func (m *Manager) Do(ctx context.Context, fn func(graphstore.Backend) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected || m.backend == nil {
		return apperr.Connection(nil, "not connected")
	}
	err := fn(m.backend)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrConnection) {
		m.log.Warn("connection lost", slog.String("target", m.target.String()), slog.String("error", err.Error()))
		m.dropLocked(ctx)
		return err
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Query(err, "session")
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Target returns the last requested target.
func (m *Manager) Target() Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Close releases the backend.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend == nil {
		m.state = Disconnected
		return nil
	}
	err := m.backend.Close(ctx)
	m.backend = nil
	m.state = Disconnected
	if err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}

func (m *Manager) dropLocked(ctx context.Context) {
	if m.backend != nil {
		if err := m.backend.Close(ctx); err != nil {
			m.log.Debug("close backend", slog.String("error", err.Error()))
		}
	}
	m.backend = nil
	m.state = Disconnected
}
