package web

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/session"
)

func TestPeerSendClosesWhenBufferFull(t *testing.T) {
	req := require.New(t)
	p := newPeer(nil, "room1")

	for range consts.PeerSendBuffer {
		req.NoError(p.Send([]byte("x")))
	}
	req.ErrorIs(p.Send([]byte("overflow")), session.ErrPeerSlow)
	req.True(p.isClosed())
	req.ErrorIs(p.Send([]byte("late")), session.ErrPeerClosed)

	// queued payloads are still flushed, then the channel reports closed
	drained := 0
	for range p.send {
		drained++
	}
	req.Equal(consts.PeerSendBuffer, drained)

	p.close()
}

func TestSocketStalledPeerIsPrunedAndClosed(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "/ws/story/room1")
	b := env.dial(t, "/ws/story/room1")
	env.waitForPeers(t, "room1", 2)

	// b does not read, so its queue fills up and it gets pruned
	frame := bytes.Repeat([]byte{'s'}, 64*1024)
	for i := 0; i < 5000 && env.srv.Registry().Len("room1") == 2; i++ {
		require.NoError(t, a.WriteMessage(websocket.BinaryMessage, frame))
	}
	env.waitForPeers(t, "room1", 1)

	// b receives what was queued and then a close frame
	_ = b.SetReadDeadline(time.Now().Add(10 * time.Second))
	var err error
	for err == nil {
		_, _, err = b.ReadMessage()
	}
	var netErr net.Error
	require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "expected close, got %v", err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)

	// the pruned peer no longer reaches the session
	c := env.dial(t, "/ws/story/room1")
	env.waitForPeers(t, "room1", 2)
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte("still here")))
	_ = c.SetReadDeadline(time.Now().Add(testTimeout))
	for {
		// flood frames still in flight may arrive first
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		if string(data) == "still here" {
			break
		}
	}
	require.Equal(t, 2, env.srv.Registry().Len("room1"))
}
