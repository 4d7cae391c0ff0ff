package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/noderpc"
	"github.com/udisondev/w3ctl/internal/session"
	"github.com/udisondev/w3ctl/internal/store"
	"github.com/udisondev/w3ctl/internal/testutil"
	"github.com/udisondev/w3ctl/internal/wire"
)

type fakeNodeClient struct {
	reply func(req noderpc.CreateGameRequest) (noderpc.CreateGameResult, error)
}

func (f *fakeNodeClient) CreateGame(ctx context.Context, req noderpc.CreateGameRequest) (noderpc.CreateGameResult, error) {
	return f.reply(req)
}

func newTestRegistries(t *testing.T, nodeClient noderpc.Client) (*session.Registry, *Registry) {
	t.Helper()
	engine := actor.NewEngine()
	sessions := session.NewRegistry(engine)
	nodes := map[NodeID]model.Node{1: {ID: 1, Name: "n1", Addr: "unused", Capacity: 10}}
	games := NewRegistry(engine, sessions, nodes, func(addr string) noderpc.Client { return nodeClient }, nil)
	return sessions, games
}

func connectAndQueue(t *testing.T, ctx context.Context, sessions *session.Registry, id PlayerID) *session.OutboundQueue {
	t.Helper()
	q := session.NewOutboundQueue(id)
	_, err := sessions.Connect(ctx, session.Connect{PlayerID: id, PlayerName: "p", Queue: q})
	require.NoError(t, err)
	return q
}

func TestHappyStartFlow(t *testing.T) {
	ctx := context.Background()
	tokens := map[model.PlayerID][16]byte{1: {1}, 2: {2}, 3: {3}}
	sessions, games := newTestRegistries(t, &fakeNodeClient{
		reply: func(req noderpc.CreateGameRequest) (noderpc.CreateGameResult, error) {
			return noderpc.CreateGameResult{Tokens: tokens}, nil
		},
	})

	qH := connectAndQueue(t, ctx, sessions, 1)
	qP1 := connectAndQueue(t, ctx, sessions, 2)
	qP2 := connectAndQueue(t, ctx, sessions, 3)

	gameID, err := games.CreateGame(ctx, CreateGameParams{
		Name:         "Game",
		Map:          model.MapInfo{NumPlayers: 3},
		HostPlayerID: 1,
		HostName:     "Host",
	})
	require.NoError(t, err)

	_, err = games.Join(ctx, gameID, 2, "P1")
	require.NoError(t, err)
	_, err = games.Join(ctx, gameID, 3, "P2")
	require.NoError(t, err)

	require.NoError(t, games.SelectNode(ctx, gameID, SelectNode{PlayerID: 1, NodeID: 1}))
	require.NoError(t, games.StartGameCheck(ctx, gameID, 1))

	for _, id := range []PlayerID{1, 2, 3} {
		require.NoError(t, games.StartGamePlayerAck(ctx, gameID, StartGamePlayerAck{
			PlayerID: id, War3Version: "1.32.10", MapSHA1: []byte{0xAB},
		}))
	}

	requireTokenDelivered(t, qH, 1)
	requireTokenDelivered(t, qP1, 1)
	requireTokenDelivered(t, qP2, 1)
}

func requireTokenDelivered(t *testing.T, q *session.OutboundQueue, nodeID int32) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for GamePlayerToken")
		default:
		}
		item, ok := q.Recv(closedNever())
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if tok, isTok := item.Packet.(*wire.GamePlayerToken); isTok {
			require.Equal(t, nodeID, tok.NodeID)
			return
		}
	}
}

func closedNever() chan struct{} {
	return make(chan struct{})
}

func TestVersionMismatchRejectsAndResetsToPreparing(t *testing.T) {
	ctx := context.Background()
	sessions, games := newTestRegistries(t, &fakeNodeClient{
		reply: func(req noderpc.CreateGameRequest) (noderpc.CreateGameResult, error) {
			t.Fatal("create_game should not be called on version mismatch")
			return noderpc.CreateGameResult{}, nil
		},
	})

	connectAndQueue(t, ctx, sessions, 1)
	qP2 := connectAndQueue(t, ctx, sessions, 2)

	gameID, err := games.CreateGame(ctx, CreateGameParams{Map: model.MapInfo{NumPlayers: 2}, HostPlayerID: 1, HostName: "H"})
	require.NoError(t, err)
	_, err = games.Join(ctx, gameID, 2, "P2")
	require.NoError(t, err)

	require.NoError(t, games.SelectNode(ctx, gameID, SelectNode{PlayerID: 1, NodeID: 1}))
	require.NoError(t, games.StartGameCheck(ctx, gameID, 1))

	require.NoError(t, games.StartGamePlayerAck(ctx, gameID, StartGamePlayerAck{PlayerID: 1, War3Version: "1.32.10", MapSHA1: []byte{0xAB}}))
	require.NoError(t, games.StartGamePlayerAck(ctx, gameID, StartGamePlayerAck{PlayerID: 2, War3Version: "1.32.10", MapSHA1: []byte{0xCD}}))

	reject := requireRejectDelivered(t, qP2)
	require.Equal(t, wire.StartRejectVersionMismatch, reject.Reason)

	// The game must be back in Preparing: a new StartGameCheck succeeds.
	require.NoError(t, games.StartGameCheck(ctx, gameID, 1))
}

func requireRejectDelivered(t *testing.T, q *session.OutboundQueue) *wire.GameStartReject {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for GameStartReject")
		default:
		}
		item, ok := q.Recv(closedNever())
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if reject, isReject := item.Packet.(*wire.GameStartReject); isReject {
			return reject
		}
	}
}

func TestHostLeaveEndsGame(t *testing.T) {
	ctx := context.Background()
	sessions, games := newTestRegistries(t, &fakeNodeClient{})

	connectAndQueue(t, ctx, sessions, 1)
	qP1 := connectAndQueue(t, ctx, sessions, 2)

	gameID, err := games.CreateGame(ctx, CreateGameParams{Map: model.MapInfo{NumPlayers: 2}, HostPlayerID: 1, HostName: "H"})
	require.NoError(t, err)
	_, err = games.Join(ctx, gameID, 2, "P1")
	require.NoError(t, err)

	require.NoError(t, games.Leave(ctx, gameID, 1))

	item, ok := qP1.Recv(closedNever())
	require.True(t, ok)
	leave, isLeave := item.Packet.(*wire.GamePlayerLeave)
	require.True(t, isLeave)
	require.Equal(t, int32(1), leave.PlayerID)
	require.Equal(t, wire.ReasonLeft, leave.Reason)
}

// TestGameTokensArePersistedAndSurviveActorLoss exercises the success path
// of handleNodeCreateReply end to end against a real store: a successful
// create_game reply must durably persist the issued tokens, and a lookup
// against a game id with no spawned actor must still recover them.
func TestGameTokensArePersistedAndSurviveActorLoss(t *testing.T) {
	dsn, _ := testutil.SetupTestDB(t)
	ctx := context.Background()
	db, err := store.New(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	engine := actor.NewEngine()
	sessions := session.NewRegistry(engine)
	nodes := map[NodeID]model.Node{1: {ID: 1, Name: "n1", Addr: "unused", Capacity: 10}}
	tokens := map[model.PlayerID][16]byte{1: {0xAA}, 2: {0xBB}}
	games := NewRegistry(engine, sessions, nodes, func(addr string) noderpc.Client {
		return &fakeNodeClient{reply: func(req noderpc.CreateGameRequest) (noderpc.CreateGameResult, error) {
			return noderpc.CreateGameResult{Tokens: tokens}, nil
		}}
	}, db)

	qH := connectAndQueue(t, ctx, sessions, 1)
	qP1 := connectAndQueue(t, ctx, sessions, 2)

	gameID, err := games.CreateGame(ctx, CreateGameParams{
		Name: "Game", Map: model.MapInfo{NumPlayers: 2}, HostPlayerID: 1, HostName: "Host",
	})
	require.NoError(t, err)
	_, err = games.Join(ctx, gameID, 2, "P1")
	require.NoError(t, err)
	require.NoError(t, games.SelectNode(ctx, gameID, SelectNode{PlayerID: 1, NodeID: 1}))
	require.NoError(t, games.StartGameCheck(ctx, gameID, 1))

	for _, id := range []PlayerID{1, 2} {
		require.NoError(t, games.StartGamePlayerAck(ctx, gameID, StartGamePlayerAck{
			PlayerID: id, War3Version: "1.32.10", MapSHA1: []byte{0xAB},
		}))
	}
	requireTokenDelivered(t, qH, 1)
	requireTokenDelivered(t, qP1, 1)

	require.Eventually(t, func() bool {
		got, err := db.LoadGameTokens(ctx, gameID)
		return err == nil && got[1] == tokens[1] && got[2] == tokens[2]
	}, 2*time.Second, 10*time.Millisecond, "tokens were not persisted to the store")

	// A lookup against a game id with no spawned actor (e.g. after a
	// restart) must still recover the token from the store.
	tok, ok, err := games.Token(ctx, gameID+1000, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.SaveGameTokens(ctx, gameID+1000, map[model.PlayerID][16]byte{1: {0xCC}}))
	tok, ok, err = games.Token(ctx, gameID+1000, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [16]byte{0xCC}, tok)
}

func TestJoinRejectsSecondJoinElsewhere(t *testing.T) {
	ctx := context.Background()
	sessions, games := newTestRegistries(t, &fakeNodeClient{})

	connectAndQueue(t, ctx, sessions, 1)
	connectAndQueue(t, ctx, sessions, 2)

	g1, err := games.CreateGame(ctx, CreateGameParams{Map: model.MapInfo{NumPlayers: 2}, HostPlayerID: 1, HostName: "H1"})
	require.NoError(t, err)
	g2, err := games.CreateGame(ctx, CreateGameParams{Map: model.MapInfo{NumPlayers: 2}, HostPlayerID: 2, HostName: "H2"})
	require.NoError(t, err)

	_, err = games.Join(ctx, g1, 2, "P")
	require.NoError(t, err)

	_, err = games.Join(ctx, g2, 2, "P")
	require.ErrorIs(t, err, ErrMultiJoin)
}
