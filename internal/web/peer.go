package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// wsPeer is one websocket connection participating in a story session.
type wsPeer struct {
	ID        string
	sessionID string
	conn      *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newPeer(conn *websocket.Conn, sessionID string) *wsPeer {
	return &wsPeer{
		ID:        uuid.NewString(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, consts.PeerSendBuffer),
	}
}

// Send queues payload for the write pump. It never blocks. A peer that
// cannot keep up is closed, so the write pump flushes what is queued and
// sends a close frame, and the broadcaster prunes it.
func (p *wsPeer) Send(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return session.ErrPeerClosed
	}
	select {
	case p.send <- payload:
		return nil
	default:
		logger.Warn("Peer %s send buffer full, closing", p.ID)
		p.closeLocked()
		return session.ErrPeerSlow
	}
}

// close stops the write pump. Safe to call more than once.
func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *wsPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *wsPeer) closeLocked() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// readPump forwards every inbound frame to the other peers of the session
// until the connection fails or the peer is closed.
func (p *wsPeer) readPump(ctx context.Context, b *session.Broadcaster, maxFrameBytes int64) {
	p.conn.SetReadLimit(maxFrameBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("WebSocket read error on peer %s: %v", p.ID, err)
			}
			return
		}

		// a closed peer has been pruned and no longer relays
		if p.isClosed() {
			return
		}
		frame, ok := frameFromMessage(messageType, data)
		if !ok {
			continue
		}
		b.Broadcast(ctx, p.sessionID, frame.Payload(), p)
	}
}

// writePump writes queued payloads as binary frames and keeps the
// connection alive with pings.
func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				logger.Debug("Failed to write to peer %s: %v", p.ID, err)
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
