// Package session tracks which peers are connected to which story session
// and fans payloads out between them.
package session

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/metrics"
)

var (
	// ErrPeerClosed is returned by a Peer whose connection has gone away.
	ErrPeerClosed = errors.New("peer closed")
	// ErrPeerSlow is returned by a Peer whose outbound queue is full.
	ErrPeerSlow = errors.New("peer send buffer full")
)

// Peer is one connected client. Implementations must be comparable (usually
// a pointer) because membership and exclusion use identity. Send should
// return promptly: a broadcast holds the room's read lock while it delivers,
// so a slow Send delays joins and leaves of that room.
type Peer interface {
	Send(payload []byte) error
}

// room is the peer list of one session. The registry lock is never held
// while waiting for a room lock, so a slow delivery in one room does not
// stall the others. A closed room has been removed from the registry.
type room struct {
	mu     sync.RWMutex
	peers  []Peer
	closed bool
}

// Registry maps session ids to their connected peers. A session exists only
// while it has at least one peer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	sessions atomic.Int64
	members  atomic.Int64
	metrics  *metrics.Metrics
}

// SessionInfo describes one active session.
type SessionInfo struct {
	ID    string `json:"id"`
	Peers int    `json:"peers"`
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]*room),
		metrics: m,
	}
}

// Join adds peer to the session, creating the session on first join. Joining
// twice adds the peer twice.
func (r *Registry) Join(peer Peer, sessionID string) {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[sessionID]
		if !ok {
			rm = &room{}
			r.rooms[sessionID] = rm
			r.sessions.Add(1)
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.closed {
			// deleted after lookup; look again
			rm.mu.Unlock()
			continue
		}
		rm.peers = append(rm.peers, peer)
		n := len(rm.peers)
		rm.mu.Unlock()

		r.members.Add(1)
		r.report()
		logger.Debug("peer joined session %s (peers: %d)", sessionID, n)
		return
	}
}

// Leave removes every occurrence of peer from the session. Unknown sessions
// and absent peers are ignored. The session is deleted once it is empty.
func (r *Registry) Leave(peer Peer, sessionID string) {
	for {
		rm := r.lookup(sessionID)
		if rm == nil {
			return
		}

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}
		before := len(rm.peers)
		rm.peers = slices.DeleteFunc(rm.peers, func(p Peer) bool { return p == peer })
		removed := before - len(rm.peers)
		if len(rm.peers) == 0 {
			r.drop(sessionID, rm)
		}
		rm.mu.Unlock()

		if removed > 0 {
			r.members.Add(-int64(removed))
			logger.Debug("peer left session %s (peers: %d)", sessionID, before-removed)
		}
		r.report()
		return
	}
}

// drop deletes an empty room. The caller holds rm.mu.
func (r *Registry) drop(sessionID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[sessionID] != rm {
		return
	}
	rm.closed = true
	delete(r.rooms, sessionID)
	r.sessions.Add(-1)
	logger.Debug("session %s closed", sessionID)
}

func (r *Registry) lookup(sessionID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[sessionID]
}

// acquire returns the session's room with its read lock held, or nil when
// the session does not exist. The caller must call rm.mu.RUnlock.
func (r *Registry) acquire(sessionID string) *room {
	for {
		rm := r.lookup(sessionID)
		if rm == nil {
			return nil
		}
		rm.mu.RLock()
		if !rm.closed {
			return rm
		}
		rm.mu.RUnlock()
	}
}

// Peers returns a copy of the session's peers in join order.
func (r *Registry) Peers(sessionID string) []Peer {
	rm := r.acquire(sessionID)
	if rm == nil {
		return nil
	}
	defer rm.mu.RUnlock()
	return slices.Clone(rm.peers)
}

// Has reports whether peer is a member of the session.
func (r *Registry) Has(peer Peer, sessionID string) bool {
	rm := r.acquire(sessionID)
	if rm == nil {
		return false
	}
	defer rm.mu.RUnlock()
	return slices.Contains(rm.peers, peer)
}

// Len returns the number of memberships in the session.
func (r *Registry) Len(sessionID string) int {
	rm := r.acquire(sessionID)
	if rm == nil {
		return 0
	}
	defer rm.mu.RUnlock()
	return len(rm.peers)
}

// SessionCount returns the number of active sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sessions returns the active session ids, sorted.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	ids := lo.Keys(r.rooms)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Snapshot returns every active session with its peer count, sorted by id.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	rooms := maps.Clone(r.rooms)
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(rooms))
	for id, rm := range rooms {
		rm.mu.RLock()
		if !rm.closed {
			infos = append(infos, SessionInfo{ID: id, Peers: len(rm.peers)})
		}
		rm.mu.RUnlock()
	}

	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

func (r *Registry) report() {
	r.metrics.SetMembership(int(r.sessions.Load()), int(r.members.Load()))
}
