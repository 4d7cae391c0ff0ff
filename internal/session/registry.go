// Package session implements the player session registry (component D):
// one actor per connected-or-in-game player, its ping book, and its
// per-connection outbound queue.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/wire"
)

type (
	PlayerID = model.PlayerID
	GameID   = model.GameID
	NodeID   = model.NodeID
)

// ErrNotConnected is returned by SendPacket when the player has no live
// sender attached.
var ErrNotConnected = fmt.Errorf("session: player not connected")

// Snapshot is the initial per-connection state handed back on Connect.
type Snapshot struct {
	PlayerID     PlayerID
	PlayerName   string
	JoinedGameID GameID
}

// ---- messages ---------------------------------------------------------------

// Connect registers (or re-registers) a player's live connection. If a
// prior queue exists it is sent a MultiLogin disconnect before being
// replaced.
type Connect struct {
	PlayerID      PlayerID
	PlayerName    string
	ClientVersion int32
	Queue         *OutboundQueue
}

// Disconnect clears the player's live connection. If the player is also not
// in a game, the actor is removed from the registry.
type Disconnect struct {
	PlayerID PlayerID
}

// UpdatePing merges samples into the player's ping book; a sample older
// than the one already on file for its node is dropped (invariant 7).
type UpdatePing struct {
	PlayerID PlayerID
	Samples  map[NodeID]model.PingSample
}

// GetPlayersPingSnapshot asks for every requested player's ping book.
// Missing or unknown players contribute an empty map.
type GetPlayersPingSnapshot struct {
	PlayerIDs []PlayerID
}

// SendPacket enqueues one packet on the player's outbound queue.
type SendPacket struct {
	PlayerID PlayerID
	Packet   wire.Packet
}

// SetJoinedGame records which game (if any) a player currently occupies a
// slot in; used by the game registry when seating/evicting a player so the
// session actor can answer JoinedGameID queries without asking the game.
type SetJoinedGame struct {
	PlayerID PlayerID
	GameID   GameID // 0 clears it
}

// GetState asks for a copy of the player's current state, chiefly
// JoinedGameID — used by the game registry to enforce "player not already
// joined elsewhere" ahead of acquiring the game's own lock (player lock
// precedes game lock, see invariant enforcement in the game registry).
type GetState struct {
	PlayerID PlayerID
}

// ---- registry -----------------------------------------------------------

// Registry is the process-wide player session registry (component D).
type Registry struct {
	engine *actor.Engine
}

// NewRegistry returns an empty registry backed by engine.
func NewRegistry(engine *actor.Engine) *Registry {
	return &Registry{engine: engine}
}

func pidFor(id PlayerID) actor.PID {
	return actor.PID{ID: fmt.Sprintf("player:%d", id)}
}

func (r *Registry) addressFor(id PlayerID) actor.Address[any] {
	pid := r.engine.GetOrSpawn(pidFor(id).ID, func() actor.Receiver {
		return &playerActor{player: model.Player{ID: id, PingBook: model.PingBook{}}}
	})
	return actor.NewAddress[any](r.engine, pid)
}

// Connect delivers a Connect message and returns the resulting snapshot.
func (r *Registry) Connect(ctx context.Context, msg Connect) (Snapshot, error) {
	return actor.Ask[any, Snapshot](ctx, r.addressFor(msg.PlayerID), msg)
}

// Disconnect delivers a Disconnect message.
func (r *Registry) Disconnect(ctx context.Context, playerID PlayerID) error {
	return r.addressFor(playerID).Tell(ctx, Disconnect{PlayerID: playerID})
}

// UpdatePing delivers an UpdatePing message.
func (r *Registry) UpdatePing(ctx context.Context, msg UpdatePing) error {
	return r.addressFor(msg.PlayerID).Tell(ctx, msg)
}

// sendResult wraps an error so Ask always gets a concrete, non-nil reply
// value to type-assert against (a bare nil error doesn't survive the any
// round-trip as itself).
type sendResult struct{ Err error }

// SendPacket delivers a SendPacket message and returns ErrNotConnected if
// the player has no live queue.
func (r *Registry) SendPacket(ctx context.Context, playerID PlayerID, p wire.Packet) error {
	res, err := actor.Ask[any, sendResult](ctx, r.addressFor(playerID), SendPacket{PlayerID: playerID, Packet: p})
	if err != nil {
		return err
	}
	return res.Err
}

// SetJoinedGame delivers a SetJoinedGame message.
func (r *Registry) SetJoinedGame(ctx context.Context, playerID PlayerID, gameID GameID) error {
	return r.addressFor(playerID).Tell(ctx, SetJoinedGame{PlayerID: playerID, GameID: gameID})
}

// GetState asks for a copy of the player's current state.
func (r *Registry) GetState(ctx context.Context, playerID PlayerID) (model.Player, error) {
	return actor.Ask[any, model.Player](ctx, r.addressFor(playerID), GetState{PlayerID: playerID})
}

// PingSnapshot asks every listed player's actor for its ping book and
// aggregates the replies. Unknown players contribute an empty book.
func (r *Registry) PingSnapshot(ctx context.Context, ids []PlayerID) (map[PlayerID]model.PingBook, error) {
	out := make(map[PlayerID]model.PingBook, len(ids))
	for _, id := range ids {
		book, err := actor.Ask[any, model.PingBook](ctx, r.addressFor(id), GetPlayersPingSnapshot{PlayerIDs: []PlayerID{id}})
		if err != nil {
			return nil, err
		}
		out[id] = book
	}
	return out, nil
}

// ---- playerActor --------------------------------------------------------

type playerActor struct {
	player model.Player
	queue  *OutboundQueue
}

func (a *playerActor) Receive(ctx *actor.Context, msg any) {
	switch m := msg.(type) {
	case actor.Started:
		// nothing to do; player struct is already zero-valued correctly.

	case Connect:
		if a.queue != nil {
			_ = a.queue.Enqueue(OutboundItem{Disconnect: true, Reason: wire.ReasonMultiLogin})
		}
		a.player.Name = m.PlayerName
		a.player.ClientVersion = m.ClientVersion
		a.player.ConnectedAt = time.Now()
		a.queue = m.Queue
		ctx.Reply(Snapshot{PlayerID: a.player.ID, PlayerName: a.player.Name, JoinedGameID: a.player.JoinedGameID})

	case Disconnect:
		if a.queue != nil {
			a.queue.Close()
		}
		a.queue = nil
		if a.player.JoinedGameID == 0 {
			go ctx.Engine().Stop(ctx.Self().ID)
		}

	case UpdatePing:
		if a.player.PingBook == nil {
			a.player.PingBook = model.PingBook{}
		}
		for node, sample := range m.Samples {
			if existing, ok := a.player.PingBook[node]; ok && !sample.At.After(existing.At) {
				continue
			}
			a.player.PingBook[node] = sample
		}

	case GetPlayersPingSnapshot:
		ctx.Reply(a.player.PingBook.Clone())

	case GetState:
		ctx.Reply(a.player)

	case SendPacket:
		if a.queue == nil {
			ctx.Reply(sendResult{Err: ErrNotConnected})
			return
		}
		ctx.Reply(sendResult{Err: a.queue.Enqueue(OutboundItem{Packet: m.Packet})})

	case SetJoinedGame:
		a.player.JoinedGameID = m.GameID
		if m.GameID == 0 && a.queue == nil {
			go ctx.Engine().Stop(ctx.Self().ID)
		}

	case actor.Stopping:
		if a.queue != nil {
			a.queue.Close()
		}
	}
}
