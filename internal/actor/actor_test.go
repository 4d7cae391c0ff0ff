package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counter struct {
	n       int
	started bool
}

type incMsg struct{ by int }
type getMsg struct{}
type panicMsg struct{}

func (c *counter) Receive(ctx *Context, msg any) {
	switch m := msg.(type) {
	case Started:
		c.started = true
	case incMsg:
		c.n += m.by
	case getMsg:
		ctx.Reply(c.n)
	case panicMsg:
		panic("boom")
	}
}

func TestEngineSpawnIsIdempotentPerID(t *testing.T) {
	e := NewEngine()
	pid1 := e.GetOrSpawn("x", func() Receiver { return &counter{} })
	pid2 := e.GetOrSpawn("x", func() Receiver { return &counter{} })
	require.Equal(t, pid1, pid2)
}

func TestTellAskRoundtrip(t *testing.T) {
	e := NewEngine()
	addr := NewAddress[any](e, e.GetOrSpawn("c1", func() Receiver { return &counter{} }))

	ctx := context.Background()
	require.NoError(t, addr.Tell(ctx, incMsg{by: 3}))
	require.NoError(t, addr.Tell(ctx, incMsg{by: 4}))

	got, err := Ask[any, int](ctx, addr, getMsg{})
	require.NoError(t, err)
	require.Equal(t, 7, got)
}

func TestActorSurvivesPanicInReceive(t *testing.T) {
	e := NewEngine()
	addr := NewAddress[any](e, e.GetOrSpawn("c2", func() Receiver { return &counter{} }))
	ctx := context.Background()

	require.NoError(t, addr.Tell(ctx, panicMsg{}))
	require.NoError(t, addr.Tell(ctx, incMsg{by: 1}))

	got, err := Ask[any, int](ctx, addr, getMsg{})
	require.NoError(t, err)
	require.Equal(t, 1, got)
}

func TestAskTimesOutWhenNoReply(t *testing.T) {
	e := NewEngine()
	addr := NewAddress[any](e, e.GetOrSpawn("c3", func() Receiver { return &counter{} }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Ask[any, int](ctx, addr, incMsg{by: 1}) // incMsg never replies
	require.Error(t, err)
}

func TestStopDrainsStoppingAndRemovesFromRegistry(t *testing.T) {
	e := NewEngine()
	pid := e.GetOrSpawn("c4", func() Receiver { return &counter{} })

	e.Stop("c4")

	_, ok := e.Lookup("c4")
	require.False(t, ok)

	newPID := e.GetOrSpawn("c4", func() Receiver { return &counter{} })
	require.Equal(t, pid, newPID) // same id, freshly spawned cell
}
