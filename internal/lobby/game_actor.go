package lobby

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/noderpc"
	"github.com/udisondev/w3ctl/internal/session"
	"github.com/udisondev/w3ctl/internal/store"
	"github.com/udisondev/w3ctl/internal/wire"
)

type gameActor struct {
	game     model.Game
	sessions *session.Registry
	nodes    map[NodeID]model.Node
	nodeRPC  func(addr string) noderpc.Client
	store    *store.Store

	// epoch is bumped every time a Starting attempt falls back to Preparing
	// (rejected start or failed node create), so stale
	// onStartTimeout/onNodeCreateReply messages scheduled by a prior attempt
	// are recognized and ignored. The move to Created leaves epoch unchanged;
	// the Status check in those handlers ignores late messages there.
	epoch uint64
}

func newGameActor(id GameID, params CreateGameParams, sessions *session.Registry, nodes map[NodeID]model.Node, nodeRPC func(addr string) noderpc.Client, tokenStore *store.Store) *gameActor {
	numPlayers := params.Map.NumPlayers
	if numPlayers <= 0 {
		numPlayers = 1
	}
	slots := make([]model.Slot, numPlayers)
	for i := range slots {
		slots[i] = model.Slot{Index: int32(i), Settings: model.SlotSettings{ComputerLevel: -1}}
	}
	slots[0] = model.Slot{
		Index:      0,
		PlayerID:   params.HostPlayerID,
		PlayerName: params.HostName,
		Settings:   model.SlotSettings{ComputerLevel: -1, Status: model.SlotOccupied},
	}

	return &gameActor{
		game: model.Game{
			ID:           id,
			Name:         params.Name,
			Map:          params.Map,
			HostPlayerID: params.HostPlayerID,
			Slots:        slots,
			Status:       model.StatusPreparing,
		},
		sessions: sessions,
		nodes:    nodes,
		nodeRPC:  nodeRPC,
		store:    tokenStore,
	}
}

func (a *gameActor) Receive(ctx *actor.Context, msg any) {
	switch m := msg.(type) {
	case actor.Started:
		// game state is fully initialized by newGameActor.

	case Join:
		a.handleJoin(ctx, m)

	case Leave:
		ctx.Reply(errReply{a.handleLeave(ctx, m)})

	case UpdateSlot:
		ctx.Reply(errReply{a.handleUpdateSlot(ctx, m)})

	case SelectNode:
		ctx.Reply(errReply{a.handleSelectNode(ctx, m)})

	case StartGameCheck:
		ctx.Reply(errReply{a.handleStartGameCheck(ctx, m)})

	case StartGamePlayerAck:
		ctx.Reply(errReply{a.handleStartGamePlayerAck(ctx, m)})

	case GetOccupants:
		ctx.Reply(occupantsResult{ids: a.occupantIDs()})

	case GetInfo:
		ctx.Reply(joinResult{info: a.toWire()})

	case GetToken:
		tok, ok := a.game.CreatedTokenByPlayer[m.PlayerID]
		ctx.Reply(tokenResult{token: tok, ok: ok})

	case onStartTimeout:
		a.handleStartTimeout(ctx, m)

	case onNodeCreateReply:
		a.handleNodeCreateReply(ctx, m)
	}
}

func (a *gameActor) occupantIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(a.game.Slots))
	for _, s := range a.game.Slots {
		if s.Occupied() {
			ids = append(ids, s.PlayerID)
		}
	}
	return ids
}

func (a *gameActor) broadcaster() *session.Broadcaster {
	return session.NewBroadcaster(a.sessions, a.occupantIDs())
}

func (a *gameActor) toWire() *wire.GameInfo {
	slots := make([]wire.SlotInfo, len(a.game.Slots))
	for i, s := range a.game.Slots {
		slots[i] = wire.SlotInfo{
			Index:      s.Index,
			PlayerID:   int32(s.PlayerID),
			PlayerName: s.PlayerName,
			Settings: wire.SlotSettings{
				Team:          s.Settings.Team,
				Color:         s.Settings.Color,
				Handicap:      s.Settings.Handicap,
				Race:          s.Settings.Race,
				Status:        int32(s.Settings.Status),
				ComputerLevel: s.Settings.ComputerLevel,
			},
		}
	}
	return &wire.GameInfo{
		GameID:         int32(a.game.ID),
		Name:           a.game.Name,
		MapPath:        a.game.Map.Path,
		MapSHA1:        a.game.Map.SHA1[:],
		Width:          a.game.Map.Width,
		Height:         a.game.Map.Height,
		Checksum:       a.game.Map.Checksum,
		NumPlayers:     a.game.Map.NumPlayers,
		HostPlayerID:   int32(a.game.HostPlayerID),
		SelectedNodeID: int32(a.game.SelectedNodeID),
		Status:         int32(a.game.Status),
		Slots:          slots,
	}
}

func (a *gameActor) handleJoin(ctx *actor.Context, m Join) {
	if a.game.Status != model.StatusPreparing {
		ctx.Reply(joinResult{err: ErrGameBusy})
		return
	}
	free := -1
	for i, s := range a.game.Slots {
		if !s.Occupied() && s.Settings.Status != model.SlotClosed {
			free = i
			break
		}
	}
	if free < 0 {
		ctx.Reply(joinResult{err: ErrPlayerSlotNotFound})
		return
	}
	a.game.Slots[free].PlayerID = m.PlayerID
	a.game.Slots[free].PlayerName = m.PlayerName
	a.game.Slots[free].Settings.Status = model.SlotOccupied

	info := a.toWire()
	ctx.Reply(joinResult{info: info})

	peers := session.NewBroadcaster(a.sessions, a.peerIDs(m.PlayerID))
	peers.Broadcast(context.Background(), &wire.GamePlayerEnter{GameID: int32(a.game.ID), Slot: info.Slots[free]})
}

func (a *gameActor) peerIDs(exclude PlayerID) []PlayerID {
	ids := a.occupantIDs()
	out := ids[:0]
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func (a *gameActor) handleLeave(ctx *actor.Context, m Leave) error {
	idx := a.game.SlotOf(m.PlayerID)
	if idx < 0 {
		return ErrPlayerNotInGame
	}

	isHost := m.PlayerID == a.game.HostPlayerID
	remainingAfter := a.game.OccupiedSlotCount() - 1

	if isHost || remainingAfter == 0 {
		peers := a.peerIDs(m.PlayerID)
		a.game.Slots[idx] = model.Slot{Index: int32(idx), Settings: model.SlotSettings{ComputerLevel: -1}}
		a.game.Status = model.StatusEnded
		b := session.NewBroadcaster(a.sessions, append(peers, m.PlayerID))
		b.Broadcast(context.Background(), &wire.GamePlayerLeave{GameID: int32(a.game.ID), PlayerID: int32(m.PlayerID), Reason: wire.ReasonLeft})
		for _, id := range peers {
			_ = a.sessions.SetJoinedGame(context.Background(), id, 0)
		}
		return nil
	}

	a.game.Slots[idx] = model.Slot{Index: int32(idx), Settings: model.SlotSettings{ComputerLevel: -1}}
	a.broadcaster().Broadcast(context.Background(), &wire.GamePlayerLeave{GameID: int32(a.game.ID), PlayerID: int32(m.PlayerID), Reason: wire.ReasonLeft})
	return nil
}

func (a *gameActor) handleUpdateSlot(ctx *actor.Context, m UpdateSlot) error {
	if a.game.Status != model.StatusPreparing {
		return ErrGameBusy
	}
	if int(m.SlotIndex) < 0 || int(m.SlotIndex) >= len(a.game.Slots) {
		return ErrPlayerSlotNotFound
	}
	slot := &a.game.Slots[m.SlotIndex]
	isHost := m.PlayerID == a.game.HostPlayerID
	switch {
	case slot.PlayerID == m.PlayerID:
		slot.Settings = m.Settings
	case isHost && !slot.Occupied() && (m.Settings.Status == model.SlotOpen || m.Settings.Status == model.SlotClosed):
		// The host may only open or close a slot it does not occupy.
		slot.Settings.Status = m.Settings.Status
	default:
		return ErrPlayerNotInGame
	}

	a.broadcaster().Broadcast(context.Background(), &wire.GameSlotUpdate{
		GameID: int32(a.game.ID),
		Slot: wire.SlotInfo{
			Index: slot.Index, PlayerID: int32(slot.PlayerID), PlayerName: slot.PlayerName,
			Settings: wire.SlotSettings{
				Team: slot.Settings.Team, Color: slot.Settings.Color, Handicap: slot.Settings.Handicap,
				Race: slot.Settings.Race, Status: int32(slot.Settings.Status), ComputerLevel: slot.Settings.ComputerLevel,
			},
		},
	})
	return nil
}

func (a *gameActor) handleSelectNode(ctx *actor.Context, m SelectNode) error {
	if m.PlayerID != a.game.HostPlayerID {
		return ErrPlayerNotHost
	}
	if m.NodeID != 0 {
		node, ok := a.nodes[m.NodeID]
		if !ok {
			return ErrGameNotFound
		}
		if !node.HasCapacity() {
			return ErrGameBusy
		}
	}
	a.game.SelectedNodeID = m.NodeID
	a.broadcaster().Broadcast(context.Background(), &wire.GameSelectNode{GameID: int32(a.game.ID), NodeID: int32(m.NodeID)})
	return nil
}

func (a *gameActor) handleStartGameCheck(ctx *actor.Context, m StartGameCheck) error {
	if m.PlayerID != a.game.HostPlayerID {
		return ErrPlayerNotHost
	}
	if a.game.SelectedNodeID == 0 {
		return ErrGameNodeNotSelected
	}
	if a.game.Status != model.StatusPreparing {
		return ErrGameBusy
	}

	a.game.Status = model.StatusStarting
	a.game.StartState = &model.StartState{Acks: map[PlayerID]model.ClientInfo{}, Deadline: time.Now().Add(StartAckTimeout)}
	epoch := a.epoch

	a.broadcaster().Broadcast(context.Background(), &wire.GameStarting{GameID: int32(a.game.ID)})

	engine := ctx.Engine()
	self := ctx.Self()
	time.AfterFunc(StartAckTimeout, func() {
		_ = engine.Tell(context.Background(), self, onStartTimeout{epoch: epoch})
	})
	return nil
}

func (a *gameActor) handleStartGamePlayerAck(ctx *actor.Context, m StartGamePlayerAck) error {
	if a.game.Status != model.StatusStarting || a.game.StartState == nil {
		return ErrGameBusy
	}
	if a.game.SlotOf(m.PlayerID) < 0 {
		return ErrPlayerNotInGame
	}

	a.game.StartState.Acks[m.PlayerID] = model.ClientInfo{War3Version: m.War3Version, MapSHA1: m.MapSHA1}
	if len(a.game.StartState.Acks) < a.game.OccupiedSlotCount() {
		return nil
	}

	if !a.acksAgree() {
		a.rejectStart(wire.StartRejectVersionMismatch, true)
		return nil
	}

	a.startNodeCreate(ctx)
	return nil
}

func (a *gameActor) acksAgree() bool {
	var first *model.ClientInfo
	for _, info := range a.game.StartState.Acks {
		info := info
		if first == nil {
			first = &info
			continue
		}
		if first.War3Version != info.War3Version || !bytes.Equal(first.MapSHA1, info.MapSHA1) {
			return false
		}
	}
	return true
}

func (a *gameActor) rejectStart(reason string, broadcastToAll bool) {
	infoMap := make(map[PlayerID]model.ClientInfo, len(a.game.StartState.Acks))
	for id, info := range a.game.StartState.Acks {
		infoMap[id] = info
	}
	a.game.PlayerClientInfoMap = infoMap
	a.game.Status = model.StatusPreparing
	a.game.StartState = nil
	a.epoch++

	pkt := &wire.GameStartReject{GameID: int32(a.game.ID), Reason: reason, PlayerClientInfoMap: toWireClientInfoMap(infoMap)}
	if broadcastToAll {
		a.broadcaster().Broadcast(context.Background(), pkt)
	} else {
		_ = a.sessions.SendPacket(context.Background(), a.game.HostPlayerID, pkt)
	}
}

func toWireClientInfoMap(m map[PlayerID]model.ClientInfo) []wire.ClientInfo {
	if len(m) == 0 {
		return nil
	}
	out := make([]wire.ClientInfo, 0, len(m))
	for id, info := range m {
		out = append(out, wire.ClientInfo{PlayerID: int32(id), War3Version: info.War3Version, MapSHA1: info.MapSHA1})
	}
	return out
}

func (a *gameActor) startNodeCreate(ctx *actor.Context) {
	epoch := a.epoch
	node, ok := a.nodes[a.game.SelectedNodeID]
	engine := ctx.Engine()
	self := ctx.Self()

	if !ok {
		go func() {
			_ = engine.Tell(context.Background(), self, onNodeCreateReply{epoch: epoch, err: ErrGameNotFound})
		}()
		return
	}

	req := noderpc.CreateGameRequest{
		GameID:    a.game.ID,
		Settings:  wire.GameSettings{MapPath: a.game.Map.Path, HostName: a.hostName(), Width: uint16(a.game.Map.Width), Height: uint16(a.game.Map.Height), Checksum: uint32(a.game.Map.Checksum), SHA1: a.game.Map.SHA1},
		PlayerIDs: a.occupantIDs(),
	}
	client := a.nodeRPC(node.Addr)

	go func() {
		reqCtx, cancel := context.WithTimeout(context.Background(), NodeCreateTimeout)
		defer cancel()
		result, err := client.CreateGame(reqCtx, req)
		_ = engine.Tell(context.Background(), self, onNodeCreateReply{epoch: epoch, result: result, err: err})
	}()
}

func (a *gameActor) hostName() string {
	if idx := a.game.SlotOf(a.game.HostPlayerID); idx >= 0 {
		return a.game.Slots[idx].PlayerName
	}
	return ""
}

func (a *gameActor) handleStartTimeout(ctx *actor.Context, m onStartTimeout) {
	if m.epoch != a.epoch || a.game.Status != model.StatusStarting {
		return // stale timer from a prior attempt
	}
	a.rejectStart(wire.StartRejectTimeout, true)
}

func (a *gameActor) handleNodeCreateReply(ctx *actor.Context, m onNodeCreateReply) {
	if m.epoch != a.epoch || a.game.Status != model.StatusStarting {
		return // stale RPC reply from a prior attempt
	}

	if m.err != nil {
		reason := mapNodeCreateErr(m.err)
		a.game.Status = model.StatusPreparing
		a.game.StartState = nil
		a.epoch++
		_ = a.sessions.SendPacket(context.Background(), a.game.HostPlayerID, &wire.GameStartReject{
			GameID: int32(a.game.ID), Reason: reason,
		})
		return
	}

	tokens := make(map[PlayerID][16]byte, len(m.result.Tokens))
	for id, tok := range m.result.Tokens {
		tokens[id] = tok
	}
	a.game.CreatedTokenByPlayer = tokens
	a.game.Status = model.StatusCreated
	a.game.StartState = nil

	if a.store != nil {
		if err := a.store.SaveGameTokens(context.Background(), a.game.ID, tokens); err != nil {
			slog.Error("persisting game tokens failed", "game_id", a.game.ID, "error", err)
		}
	}

	nodeID := a.game.SelectedNodeID
	gameID := a.game.ID
	a.broadcaster().BroadcastBy(context.Background(), func(id PlayerID) wire.Packet {
		tok, ok := tokens[id]
		if !ok {
			return nil
		}
		return &wire.GamePlayerToken{NodeID: int32(nodeID), GameID: int32(gameID), Token: tok[:]}
	})
}

func mapNodeCreateErr(err error) string {
	if errors.Is(err, noderpc.ErrCreateGameTimeout) {
		return "game creation timed out"
	}
	var rejectErr *noderpc.RejectError
	if errors.As(err, &rejectErr) {
		return rejectErr.Reason
	}
	slog.Debug("node create_game failed", "error", err)
	return "game creation failed"
}
