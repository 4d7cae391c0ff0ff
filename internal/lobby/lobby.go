// Package lobby implements the game state registry (component E): one
// actor per live game, its Start FSM, and slot/membership invariants.
package lobby

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/noderpc"
	"github.com/udisondev/w3ctl/internal/session"
	"github.com/udisondev/w3ctl/internal/store"
	"github.com/udisondev/w3ctl/internal/wire"
)

type (
	PlayerID = model.PlayerID
	GameID   = model.GameID
	NodeID   = model.NodeID
)

// StartAckTimeout and NodeCreateTimeout match spec §5's timeout table.
const (
	StartAckTimeout   = 15 * time.Second
	NodeCreateTimeout = noderpc.DefaultCreateGameTimeout
)

// CreateGameParams seeds a new lobby; the caller (the connection handler,
// on whatever request triggers "create game" in the surrounding product)
// supplies the host and map.
type CreateGameParams struct {
	Name         string
	Map          model.MapInfo
	HostPlayerID PlayerID
	HostName     string
}

// ---- messages -------------------------------------------------------------

// Join seats player_id into the lowest free slot.
type Join struct {
	PlayerID   PlayerID
	PlayerName string
}

// Leave removes player_id from the game.
type Leave struct {
	PlayerID PlayerID
}

// UpdateSlot changes one slot's settings; only its occupant or the host
// (for open/closed toggles) may do so, and only while Preparing.
type UpdateSlot struct {
	PlayerID  PlayerID
	SlotIndex int32
	Settings  model.SlotSettings
}

// SelectNode is host-only; NodeID 0 clears the selection.
type SelectNode struct {
	PlayerID PlayerID
	NodeID   NodeID
}

// StartGameCheck is host-only and begins the Start FSM.
type StartGameCheck struct {
	PlayerID PlayerID
}

// StartGamePlayerAck is one occupant's version/map report during Starting.
type StartGamePlayerAck struct {
	PlayerID    PlayerID
	War3Version string
	MapSHA1     []byte
}

// GetOccupants asks for the current list of seated player ids, used by the
// connection handler to fan out ping updates and snapshots to peers.
type GetOccupants struct{}

// GetInfo asks for the current wire-level snapshot of a game, used on
// reconnect to the game the player is still seated in (spec §4.6 step 5).
type GetInfo struct{}

// GetToken asks for a player's connect token if the game has reached
// Created, used alongside GetInfo on reconnect.
type GetToken struct{ PlayerID PlayerID }

// onStartTimeout fires internally once StartAckTimeout elapses without a
// complete ack round.
type onStartTimeout struct{ epoch uint64 }

// onNodeCreateReply fires internally once the create_game RPC resolves.
type onNodeCreateReply struct {
	epoch  uint64
	result noderpc.CreateGameResult
	err    error
}

// ---- registry -------------------------------------------------------------

// Registry is the process-wide game state registry (component E).
type Registry struct {
	engine   *actor.Engine
	sessions *session.Registry
	nodes    map[NodeID]model.Node
	nodeRPC  func(addr string) noderpc.Client
	store    *store.Store

	nextID atomic.Int32
}

// NewRegistry builds a Registry. nodes is the static node catalog loaded at
// startup; nodeRPC constructs an RPC client for a node's address (swapped
// in tests for a fake). tokenStore persists connect tokens past the life of
// a single game actor (spec §7 "Token lifetime": in memory plus
// persistence) and may be nil in tests that don't exercise reconnect.
func NewRegistry(engine *actor.Engine, sessions *session.Registry, nodes map[NodeID]model.Node, nodeRPC func(addr string) noderpc.Client, tokenStore *store.Store) *Registry {
	if nodeRPC == nil {
		nodeRPC = func(addr string) noderpc.Client { return noderpc.NewTCPClient(addr) }
	}
	return &Registry{engine: engine, sessions: sessions, nodes: nodes, nodeRPC: nodeRPC, store: tokenStore}
}

func (r *Registry) pidFor(id GameID) actor.PID {
	return actor.PID{ID: fmt.Sprintf("game:%d", id)}
}

// CreateGame spawns a new game actor with host seated in slot 0 and returns
// its id.
func (r *Registry) CreateGame(ctx context.Context, params CreateGameParams) (GameID, error) {
	id := GameID(r.nextID.Add(1))
	r.engine.GetOrSpawn(r.pidFor(id).ID, func() actor.Receiver {
		return newGameActor(id, params, r.sessions, r.nodes, r.nodeRPC, r.store)
	})
	if err := r.sessions.SetJoinedGame(ctx, params.HostPlayerID, id); err != nil {
		return 0, err
	}
	return id, nil
}

// lookup returns the address for id if a game actor is currently spawned.
func (r *Registry) lookup(id GameID) (actor.Address[any], bool) {
	pid, ok := r.engine.Lookup(r.pidFor(id).ID)
	if !ok {
		return actor.Address[any]{}, false
	}
	return actor.NewAddress[any](r.engine, pid), true
}

// Join seats playerID into game gameID's lowest free slot, enforcing the
// player-lock-then-game-lock order: the session registry is asked first to
// reject a player already joined elsewhere before the game actor is asked
// to mutate its slots.
func (r *Registry) Join(ctx context.Context, gameID GameID, playerID PlayerID, playerName string) (*wire.GameInfo, error) {
	state, err := r.sessions.GetState(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if state.JoinedGameID != 0 {
		return nil, ErrMultiJoin
	}

	addr, ok := r.lookup(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}
	res, err := actor.Ask[any, joinResult](ctx, addr, Join{PlayerID: playerID, PlayerName: playerName})
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	if err := r.sessions.SetJoinedGame(ctx, playerID, gameID); err != nil {
		return nil, err
	}
	return res.info, nil
}

// Leave removes playerID from gameID.
func (r *Registry) Leave(ctx context.Context, gameID GameID, playerID PlayerID) error {
	addr, ok := r.lookup(gameID)
	if !ok {
		return ErrGameNotFound
	}
	err, askErr := actor.Ask[any, errReply](ctx, addr, Leave{PlayerID: playerID})
	if askErr != nil {
		return askErr
	}
	if err.err == nil {
		_ = r.sessions.SetJoinedGame(ctx, playerID, 0)
	}
	return err.err
}

// UpdateSlot delivers an UpdateSlot message.
func (r *Registry) UpdateSlot(ctx context.Context, gameID GameID, msg UpdateSlot) error {
	addr, ok := r.lookup(gameID)
	if !ok {
		return ErrGameNotFound
	}
	res, err := actor.Ask[any, errReply](ctx, addr, msg)
	if err != nil {
		return err
	}
	return res.err
}

// SelectNode delivers a SelectNode message.
func (r *Registry) SelectNode(ctx context.Context, gameID GameID, msg SelectNode) error {
	addr, ok := r.lookup(gameID)
	if !ok {
		return ErrGameNotFound
	}
	res, err := actor.Ask[any, errReply](ctx, addr, msg)
	if err != nil {
		return err
	}
	return res.err
}

// StartGameCheck delivers a StartGameCheck message.
func (r *Registry) StartGameCheck(ctx context.Context, gameID GameID, playerID PlayerID) error {
	addr, ok := r.lookup(gameID)
	if !ok {
		return ErrGameNotFound
	}
	res, err := actor.Ask[any, errReply](ctx, addr, StartGameCheck{PlayerID: playerID})
	if err != nil {
		return err
	}
	return res.err
}

// StartGamePlayerAck delivers a StartGamePlayerAck message.
func (r *Registry) StartGamePlayerAck(ctx context.Context, gameID GameID, msg StartGamePlayerAck) error {
	addr, ok := r.lookup(gameID)
	if !ok {
		return ErrGameNotFound
	}
	res, err := actor.Ask[any, errReply](ctx, addr, msg)
	if err != nil {
		return err
	}
	return res.err
}

// Info returns the current wire-level snapshot of gameID.
func (r *Registry) Info(ctx context.Context, gameID GameID) (*wire.GameInfo, error) {
	addr, ok := r.lookup(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}
	res, err := actor.Ask[any, joinResult](ctx, addr, GetInfo{})
	if err != nil {
		return nil, err
	}
	return res.info, res.err
}

// Token returns playerID's connect token for gameID if one has been issued.
// The live game actor is asked first; if it has no token on hand (it may
// have been respawned, or the process restarted since the token was
// issued), the durable store is consulted as a fallback so a reconnecting
// player still recovers their token.
func (r *Registry) Token(ctx context.Context, gameID GameID, playerID PlayerID) ([16]byte, bool, error) {
	if addr, ok := r.lookup(gameID); ok {
		res, err := actor.Ask[any, tokenResult](ctx, addr, GetToken{PlayerID: playerID})
		if err != nil {
			return [16]byte{}, false, err
		}
		if res.ok {
			return res.token, true, nil
		}
	}

	if r.store == nil {
		return [16]byte{}, false, nil
	}
	tokens, err := r.store.LoadGameTokens(ctx, gameID)
	if err != nil {
		return [16]byte{}, false, err
	}
	tok, ok := tokens[playerID]
	return tok, ok, nil
}

// Occupants returns the current list of seated player ids for gameID.
func (r *Registry) Occupants(ctx context.Context, gameID GameID) ([]PlayerID, error) {
	addr, ok := r.lookup(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}
	res, err := actor.Ask[any, occupantsResult](ctx, addr, GetOccupants{})
	if err != nil {
		return nil, err
	}
	return res.ids, nil
}

// joinResult, errReply and occupantsResult give Ask a concrete,
// always-non-nil reply type to assert against (a bare nil error doesn't
// survive the any round-trip).
type joinResult struct {
	info *wire.GameInfo
	err  error
}

type errReply struct{ err error }

type occupantsResult struct{ ids []PlayerID }

type tokenResult struct {
	token [16]byte
	ok    bool
}
