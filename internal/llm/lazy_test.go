package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubClient struct {
	reply string
	err   error
	calls atomic.Int32
}

func (s *stubClient) Complete(context.Context, []Message) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

func (s *stubClient) GetModelName() string { return "stub" }

func TestLazyBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	stub := &stubClient{reply: "ok"}
	lazy := NewLazy("stub", func() (Client, error) {
		builds.Add(1)
		return stub, nil
	})
	require.Equal(t, int32(0), builds.Load(), "construction must wait for first use")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := lazy.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
			if err != nil || reply != "ok" {
				t.Errorf("Complete() = %q, %v", reply, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), builds.Load())
	require.Equal(t, int32(16), stub.calls.Load())
	require.Equal(t, "stub", lazy.GetModelName())
}

func TestLazyRemembersConstructionError(t *testing.T) {
	var builds atomic.Int32
	boom := errors.New("no api key")
	lazy := NewLazy("m", func() (Client, error) {
		builds.Add(1)
		return nil, boom
	})

	for range 3 {
		_, err := lazy.Complete(context.Background(), nil)
		require.ErrorIs(t, err, ErrGenerationUnavailable)
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, int32(1), builds.Load())
}
