package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/wire"
)

func TestConnectReturnsSnapshot(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()

	snap, err := reg.Connect(ctx, Connect{PlayerID: 7, PlayerName: "Host", ClientVersion: 1, Queue: NewOutboundQueue(7)})
	require.NoError(t, err)
	require.Equal(t, PlayerID(7), snap.PlayerID)
	require.Equal(t, "Host", snap.PlayerName)
	require.Equal(t, GameID(0), snap.JoinedGameID)
}

func TestMultiLoginDisplacesPriorQueue(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()

	q1 := NewOutboundQueue(1)
	_, err := reg.Connect(ctx, Connect{PlayerID: 1, PlayerName: "A", Queue: q1})
	require.NoError(t, err)

	q2 := NewOutboundQueue(1)
	_, err = reg.Connect(ctx, Connect{PlayerID: 1, PlayerName: "A", Queue: q2})
	require.NoError(t, err)

	item, ok := q1.Recv(make(chan struct{}))
	require.True(t, ok)
	require.True(t, item.Disconnect)
	require.Equal(t, wire.ReasonMultiLogin, item.Reason)
}

func TestSendPacketNotConnected(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()

	err := reg.SendPacket(ctx, 99, &wire.Ping{ServerMs: 1})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendPacketDeliversToQueue(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()
	q := NewOutboundQueue(1)
	_, err := reg.Connect(ctx, Connect{PlayerID: 1, Queue: q})
	require.NoError(t, err)

	require.NoError(t, reg.SendPacket(ctx, 1, &wire.Pong{}))

	item, ok := q.Recv(make(chan struct{}))
	require.True(t, ok)
	require.Equal(t, &wire.Pong{}, item.Packet)
}

func TestUpdatePingMonotonic(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()

	old := time.Now()
	newer := old.Add(time.Second)

	require.NoError(t, reg.UpdatePing(ctx, UpdatePing{
		PlayerID: 1,
		Samples:  map[NodeID]model.PingSample{1: {Avg: 50, At: newer}},
	}))
	require.NoError(t, reg.UpdatePing(ctx, UpdatePing{
		PlayerID: 1,
		Samples:  map[NodeID]model.PingSample{1: {Avg: 999, At: old}},
	}))

	snap, err := reg.PingSnapshot(ctx, []PlayerID{1})
	require.NoError(t, err)
	require.Equal(t, int32(50), snap[1][1].Avg)
}

func TestPingSnapshotUnknownPlayerIsEmpty(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()

	snap, err := reg.PingSnapshot(ctx, []PlayerID{42})
	require.NoError(t, err)
	require.Empty(t, snap[42])
}

func TestBroadcastSkipsDisconnectedPlayers(t *testing.T) {
	reg := NewRegistry(actor.NewEngine())
	ctx := context.Background()
	q := NewOutboundQueue(1)
	_, err := reg.Connect(ctx, Connect{PlayerID: 1, Queue: q})
	require.NoError(t, err)

	b := NewBroadcaster(reg, []PlayerID{1, 2})
	b.Broadcast(ctx, &wire.Pong{})

	item, ok := q.Recv(make(chan struct{}))
	require.True(t, ok)
	require.Equal(t, &wire.Pong{}, item.Packet)
}

func TestOutboundQueueDropsOldestNonCritical(t *testing.T) {
	q := NewOutboundQueue(1)
	for i := 0; i < DefaultQueueDepth+10; i++ {
		require.NoError(t, q.Enqueue(OutboundItem{Packet: &wire.PlayerPingMapUpdate{PlayerID: int32(i)}}))
	}

	item, ok := q.Recv(make(chan struct{}))
	require.True(t, ok)
	pingUpdate, isPing := item.Packet.(*wire.PlayerPingMapUpdate)
	require.True(t, isPing)
	require.Greater(t, int(pingUpdate.PlayerID), 0) // the very first entries got evicted
}

func TestOutboundQueueNeverDropsCritical(t *testing.T) {
	q := NewOutboundQueue(1)
	for i := 0; i < DefaultQueueDepth+10; i++ {
		require.NoError(t, q.Enqueue(OutboundItem{Packet: &wire.Ping{ServerMs: int64(i)}}))
	}
	count := 0
	for {
		_, ok := q.Recv(closedChan())
		if !ok {
			break
		}
		count++
		if count > DefaultQueueDepth+10 {
			break
		}
	}
	require.Equal(t, DefaultQueueDepth+10, count)
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
