package session

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/metrics"
)

// Broadcaster delivers payloads to the peers of a session and evicts peers
// that fail to receive them.
type Broadcaster struct {
	registry *Registry
	limit    int
	metrics  *metrics.Metrics
}

// NewBroadcaster creates a Broadcaster over registry. fanoutLimit bounds the
// number of concurrent deliveries per broadcast; values below 1 use the
// default. m may be nil.
func NewBroadcaster(registry *Registry, fanoutLimit int, m *metrics.Metrics) *Broadcaster {
	if fanoutLimit < 1 {
		fanoutLimit = consts.DefaultFanoutLimit
	}
	return &Broadcaster{
		registry: registry,
		limit:    fanoutLimit,
		metrics:  m,
	}
}

// Broadcast sends payload to every peer in the session except exclude.
// Unknown sessions are a no-op. A peer whose Send fails is removed from the
// session once delivery to the others has finished; the failure is logged
// and never returned.
//
// The session's read lock is held for the duration of the delivery, so a
// peer that has left is never delivered to.
func (b *Broadcaster) Broadcast(ctx context.Context, sessionID string, payload []byte, exclude Peer) {
	rm := b.registry.acquire(sessionID)
	if rm == nil {
		return
	}

	var (
		mu        sync.Mutex
		failed    []Peer
		delivered int
	)

	var g errgroup.Group
	g.SetLimit(b.limit)
	for _, p := range rm.peers {
		if exclude != nil && p == exclude {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := p.Send(payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Debug("delivery to peer in session %s failed: %v", sessionID, err)
				failed = append(failed, p)
				return nil
			}
			delivered++
			return nil
		})
	}
	_ = g.Wait()
	rm.mu.RUnlock()

	b.metrics.Delivered(delivered)
	b.metrics.DeliveryFailed(len(failed))

	for _, p := range lo.Uniq(failed) {
		b.registry.Leave(p, sessionID)
		b.metrics.PeerPruned()
		logger.Warn("pruned unreachable peer from session %s", sessionID)
	}
}

// BroadcastText sends the UTF-8 bytes of text.
func (b *Broadcaster) BroadcastText(ctx context.Context, sessionID, text string, exclude Peer) {
	b.Broadcast(ctx, sessionID, []byte(text), exclude)
}
