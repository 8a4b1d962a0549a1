// Package session tracks the viewers connected to the push channel.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	lderrors "livedoc/internal/errors"
)

// WriteTimeout bounds a single write to a viewer. A viewer that stops
// reading is dropped once it expires instead of blocking the sender.
const WriteTimeout = 5 * time.Second

// Conn is the part of a push-channel connection a Session needs.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one connected viewer. Writes are serialized so a broadcast and
// a direct response never interleave on the same connection.
type Session struct {
	ID          string
	ConnectedAt time.Time

	conn   Conn
	mu     sync.Mutex
	closed bool
}

// New wraps conn in a Session with a fresh id.
func New(conn Conn) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send writes msg as JSON within WriteTimeout. A failed or timed out write
// closes the session and returns a CONNECTION_DROPPED error.
func (s *Session) Send(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lderrors.New(lderrors.CodeConnectionDropped, "session closed").WithDetail("session", s.ID)
	}
	err := s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err == nil {
		err = s.conn.WriteJSON(msg)
	}
	if err != nil {
		s.closed = true
		_ = s.conn.Close()
		return lderrors.Wrap(err, lderrors.CodeConnectionDropped, "writing to session").WithDetail("session", s.ID)
	}
	return nil
}

// Close closes the underlying connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Closed reports whether the session can no longer be written to.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Directory is the set of open sessions.
type Directory struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{sessions: make(map[string]*Session)}
}

// Add registers s.
func (d *Directory) Add(s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[s.ID] = s
}

// Remove unregisters the session with id and reports whether it was present.
func (d *Directory) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return false
	}
	delete(d.sessions, id)
	return true
}

// Get looks a session up by id.
func (d *Directory) Get(id string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	return s, ok
}

// Snapshot returns the open sessions ordered by connection time. The slice
// is a copy; later Add and Remove calls do not affect it.
func (d *Directory) Snapshot() []*Session {
	d.mu.RLock()
	out := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Len returns the number of open sessions.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}
