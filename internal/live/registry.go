// Package live keeps the in-process set of open push channels per recipient.
//
// Delivery is best-effort and at-most-once: a connection whose buffer is full
// or whose write fails is dropped and unregistered. Persisted notifications
// remain the system of record.
package live

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/picto-request-service/internal/observability"
)

// Connection is one open stream for a recipient, e.g. a browser tab.
type Connection struct {
	ID        string
	Recipient string

	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Events yields encoded payloads queued for this connection.
func (c *Connection) Events() <-chan []byte {
	return c.events
}

// Done is closed once the connection is unregistered.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Registry multiplexes published payloads onto every connection of a recipient.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]map[string]*Connection
	bufferSize int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewRegistry builds an empty registry. bufferSize bounds how many events may
// queue on a single connection before it is considered dead.
func NewRegistry(bufferSize int, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:      make(map[string]map[string]*Connection),
		bufferSize: bufferSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// Subscribe opens a new connection for recipient.
func (r *Registry) Subscribe(recipient string) *Connection {
	conn := &Connection{
		ID:        uuid.NewString(),
		Recipient: recipient,
		events:    make(chan []byte, r.bufferSize),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	set, ok := r.conns[recipient]
	if !ok {
		set = make(map[string]*Connection)
		r.conns[recipient] = set
	}
	set[conn.ID] = conn
	r.mu.Unlock()

	r.logger.Debug("live connection opened", zap.String("recipient", recipient), zap.String("connection_id", conn.ID))
	return conn
}

// Unsubscribe removes conn. Calling it more than once is harmless.
func (r *Registry) Unsubscribe(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	if set, ok := r.conns[conn.Recipient]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(r.conns, conn.Recipient)
		}
	}
	r.mu.Unlock()
	conn.close()
}

// Publish queues payload on every open connection of recipient without
// blocking and returns how many connections accepted it. Connections that
// cannot accept it are unregistered.
func (r *Registry) Publish(recipient string, payload any) int {
	data, err := encode(payload)
	if err != nil {
		r.logger.Warn("live payload encode failed", zap.String("recipient", recipient), zap.Error(err))
		return 0
	}

	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns[recipient]))
	for _, conn := range r.conns[recipient] {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	var dead []*Connection
	for _, conn := range targets {
		select {
		case <-conn.done:
			continue
		default:
		}
		select {
		case conn.events <- data:
			delivered++
		default:
			dead = append(dead, conn)
		}
	}

	for _, conn := range dead {
		r.logger.Warn("live connection dropped", zap.String("recipient", recipient), zap.String("connection_id", conn.ID))
		r.metrics.Incr("live.dropped")
		r.Unsubscribe(conn)
	}
	return delivered
}

// Count returns the number of open connections for recipient.
func (r *Registry) Count(recipient string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[recipient])
}

// Close unregisters every connection; used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.conns
	r.conns = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, set := range all {
		for _, conn := range set {
			conn.close()
		}
	}
}

func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}
