// Package controller implements the connection handler (component F):
// handshake, heartbeat, and per-connection dispatch loop, generalized from
// the teacher's gslistener accept/handle/dispatch trio to this protocol's
// typed packet set.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/w3ctl/internal/auth"
	"github.com/udisondev/w3ctl/internal/lobby"
	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/session"
	"github.com/udisondev/w3ctl/internal/transport"
	"github.com/udisondev/w3ctl/internal/wire"
)

// Heartbeat timing (spec §5 "Timeouts: heartbeat (5 s for pong)" / §4.6).
const (
	HeartbeatInterval = 30 * time.Second
	PongTimeout       = 5 * time.Second
)

// Handler wires one accepted connection to the session and lobby
// registries. One Handler is shared by every connection; HandleConnection
// holds the per-connection state.
type Handler struct {
	Sessions         *session.Registry
	Games            *lobby.Registry
	Signer           *auth.Signer
	Registry         *wire.Registry
	Nodes            []wire.NodeInfo
	MinClientVersion int32
}

// HandleConnection drives one accepted stream through the handshake and
// dispatch loop described in spec §4.6. It returns once the connection is
// done, having cleaned up the player's session state.
func (h *Handler) HandleConnection(ctx context.Context, stream *transport.Stream) {
	playerID, playerName, queue, ok := h.handshake(ctx, stream)
	if !ok {
		return
	}

	defer func() {
		if err := h.Sessions.Disconnect(context.Background(), playerID); err != nil {
			slog.Debug("disconnect cleanup failed", "player_id", playerID, "error", err)
		}
	}()

	h.dispatchLoop(ctx, stream, playerID, playerName, queue)
}

// handshake implements spec §4.6 steps 1-5. On any failure it sends the
// appropriate reject, closes the stream, and returns ok=false.
func (h *Handler) handshake(ctx context.Context, stream *transport.Stream) (model.PlayerID, string, *session.OutboundQueue, bool) {
	frame, err := stream.Recv(ctx)
	if err != nil {
		slog.Debug("handshake: read first frame failed", "error", err)
		return 0, "", nil, false
	}
	if frame.TypeID != wire.TypeConnectLobby {
		slog.Debug("handshake: unexpected first frame", "type_id", frame.TypeID)
		stream.Close()
		return 0, "", nil, false
	}

	var hello wire.ConnectLobby
	if err := hello.Decode(wire.NewReader(frame.Payload)); err != nil {
		slog.Debug("handshake: decode ConnectLobby failed", "error", err)
		stream.Close()
		return 0, "", nil, false
	}

	playerID, err := h.Signer.Verify(hello.Token)
	if err != nil {
		_ = stream.Send(&wire.ConnectReject{Reason: wire.RejectInvalidToken})
		stream.Close()
		return 0, "", nil, false
	}

	if hello.ConnectVersion < h.MinClientVersion {
		_ = stream.Send(&wire.ConnectReject{Reason: wire.RejectVersionTooOld, ServerVersion: h.MinClientVersion})
		stream.Close()
		return 0, "", nil, false
	}

	queue := session.NewOutboundQueue(playerID)
	snap, err := h.Sessions.Connect(ctx, session.Connect{
		PlayerID:      playerID,
		PlayerName:    fmt.Sprintf("player-%d", playerID),
		ClientVersion: hello.ConnectVersion,
		Queue:         queue,
	})
	if err != nil {
		slog.Error("handshake: session connect failed", "player_id", playerID, "error", err)
		stream.Close()
		return 0, "", nil, false
	}

	if err := stream.Send(&wire.ConnectAccept{
		Session: wire.SessionSnapshot{
			PlayerID:     int32(playerID),
			PlayerName:   snap.PlayerName,
			JoinedGameID: int32(snap.JoinedGameID),
		},
		Nodes: h.Nodes,
	}); err != nil {
		stream.Close()
		return 0, "", nil, false
	}

	if snap.JoinedGameID != 0 {
		h.sendReconnectState(ctx, stream, playerID, snap.JoinedGameID)
	}

	return playerID, snap.PlayerName, queue, true
}

// sendReconnectState re-delivers GameInfo (and GamePlayerToken if the game
// already reached Created) to a player rejoining an existing connection.
func (h *Handler) sendReconnectState(ctx context.Context, stream *transport.Stream, playerID model.PlayerID, gameID model.GameID) {
	info, err := h.Games.Info(ctx, gameID)
	if err != nil {
		slog.Debug("reconnect: game info unavailable", "game_id", gameID, "error", err)
		return
	}
	if err := stream.Send(info); err != nil {
		return
	}

	if info.Status != int32(model.StatusCreated) {
		return
	}
	token, ok, err := h.Games.Token(ctx, gameID, playerID)
	if err != nil || !ok {
		return
	}
	_ = stream.Send(&wire.GamePlayerToken{NodeID: info.SelectedNodeID, GameID: info.GameID, Token: token[:]})
}

// dispatchLoop is the single select over heartbeat timer, outbound queue,
// and inbound frames described in spec §4.6 step 6.
func (h *Handler) dispatchLoop(ctx context.Context, stream *transport.Stream, playerID model.PlayerID, playerName string, queue *session.OutboundQueue) {
	outboundDone := make(chan struct{})
	defer close(outboundDone)
	outboundCh := pumpOutbound(queue, outboundDone)

	inboundCh, inboundErrCh := h.pumpInbound(ctx, stream)

	heartbeat := time.NewTimer(HeartbeatInterval)
	defer heartbeat.Stop()
	var pongTimeout *time.Timer
	defer func() {
		if pongTimeout != nil {
			pongTimeout.Stop()
		}
	}()

	for {
		var pongC <-chan time.Time
		if pongTimeout != nil {
			pongC = pongTimeout.C
		}

		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			if err := stream.Send(&wire.Ping{ServerMs: time.Now().UnixMilli()}); err != nil {
				return
			}
			pongTimeout = time.NewTimer(PongTimeout)

		case <-pongC:
			slog.Info("connection heartbeat timeout", "player_id", playerID)
			_ = stream.Send(&wire.ClientDisconnect{Reason: wire.ReasonHeartbeatTimeout})
			stream.Close()
			return

		case item, ok := <-outboundCh:
			if !ok {
				return
			}
			if item.Disconnect {
				_ = stream.Send(&wire.ClientDisconnect{Reason: item.Reason})
				stream.Close()
				return
			}
			if err := stream.Send(item.Packet); err != nil {
				return
			}

		case err := <-inboundErrCh:
			slog.Debug("connection read failed", "player_id", playerID, "error", err)
			return

		case frame := <-inboundCh:
			if pongTimeout != nil {
				pongTimeout.Stop()
				pongTimeout = nil
			}
			heartbeat.Reset(HeartbeatInterval)
			h.handleFrame(ctx, stream, playerID, playerName, frame)
		}
	}
}

// pumpOutbound relays items off queue onto a channel dispatchLoop's select
// can read alongside the heartbeat timer and inbound frames; it exits once
// the queue reports closed-and-drained.
func pumpOutbound(queue *session.OutboundQueue, done <-chan struct{}) <-chan session.OutboundItem {
	out := make(chan session.OutboundItem)
	go func() {
		defer close(out)
		for {
			item, ok := queue.Recv(done)
			if !ok {
				return
			}
			select {
			case out <- item:
			case <-done:
				return
			}
		}
	}()
	return out
}

func (h *Handler) pumpInbound(ctx context.Context, stream *transport.Stream) (<-chan wire.Frame, <-chan error) {
	frames := make(chan wire.Frame)
	errs := make(chan error, 1)
	go func() {
		for {
			frame, err := stream.Recv(ctx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames, errs
}

// handleFrame decodes and routes one inbound frame per spec §4.6 step 6.
func (h *Handler) handleFrame(ctx context.Context, stream *transport.Stream, playerID model.PlayerID, playerName string, frame wire.Frame) {
	pkt, err := h.Registry.Decode(frame.TypeID, frame.Payload)
	if err != nil {
		slog.Debug("dropping frame", "player_id", playerID, "error", err)
		return
	}

	switch m := pkt.(type) {
	case *wire.Pong:
		// RTT sample update only; no actor message and no reply.

	case *wire.GameSlotUpdateRequest:
		h.handleSlotUpdate(ctx, playerID, m)

	case *wire.ListNodesRequest:
		_ = stream.Send(&wire.ListNodes{Nodes: h.Nodes})

	case *wire.PlayerPingMapUpdateRequest:
		h.handlePingUpdate(ctx, playerID, m)

	case *wire.GamePlayerPingMapSnapshotRequest:
		h.handlePingSnapshot(ctx, stream, m)

	case *wire.GameSelectNode:
		if err := h.Games.SelectNode(ctx, model.GameID(m.GameID), lobby.SelectNode{PlayerID: playerID, NodeID: model.NodeID(m.NodeID)}); err != nil {
			slog.Debug("select node rejected", "player_id", playerID, "error", err)
		}

	case *wire.GameStartRequest:
		if err := h.Games.StartGameCheck(ctx, model.GameID(m.GameID), playerID); err != nil {
			slog.Debug("start check rejected", "player_id", playerID, "error", err)
		}

	case *wire.GameStartPlayerClientInfoRequest:
		err := h.Games.StartGamePlayerAck(ctx, model.GameID(m.GameID), lobby.StartGamePlayerAck{
			PlayerID: playerID, War3Version: m.War3Version, MapSHA1: m.MapSHA1,
		})
		if err != nil {
			slog.Debug("start ack rejected", "player_id", playerID, "error", err)
		}

	default:
		slog.Debug("unhandled frame type", "type_id", frame.TypeID, "player_id", playerID)
	}
}

func (h *Handler) handleSlotUpdate(ctx context.Context, playerID model.PlayerID, m *wire.GameSlotUpdateRequest) {
	state, err := h.Sessions.GetState(ctx, playerID)
	if err != nil || state.JoinedGameID == 0 {
		return
	}
	err = h.Games.UpdateSlot(ctx, state.JoinedGameID, lobby.UpdateSlot{
		PlayerID:  playerID,
		SlotIndex: m.SlotIndex,
		Settings: model.SlotSettings{
			Team: m.Settings.Team, Color: m.Settings.Color, Handicap: m.Settings.Handicap,
			Race: m.Settings.Race, Status: model.SlotStatus(m.Settings.Status), ComputerLevel: m.Settings.ComputerLevel,
		},
	})
	if err != nil {
		slog.Debug("slot update rejected", "player_id", playerID, "error", err)
	}
}

func (h *Handler) handlePingUpdate(ctx context.Context, playerID model.PlayerID, m *wire.PlayerPingMapUpdateRequest) {
	samples := make(map[model.NodeID]model.PingSample, len(m.Samples))
	for _, s := range m.Samples {
		samples[model.NodeID(s.NodeID)] = model.PingSample{
			Min: s.Min, Max: s.Max, Avg: s.Avg, Current: s.Current, LossRate: s.LossRate, At: time.Now(),
		}
	}
	if err := h.Sessions.UpdatePing(ctx, session.UpdatePing{PlayerID: playerID, Samples: samples}); err != nil {
		slog.Debug("ping update failed", "player_id", playerID, "error", err)
		return
	}

	state, err := h.Sessions.GetState(ctx, playerID)
	if err != nil || state.JoinedGameID == 0 {
		return
	}
	peers, err := h.Games.Occupants(ctx, state.JoinedGameID)
	if err != nil {
		return
	}
	update := &wire.PlayerPingMapUpdate{PlayerID: int32(playerID), Samples: m.Samples}
	for _, peer := range peers {
		if peer == playerID {
			continue
		}
		_ = h.Sessions.SendPacket(ctx, peer, update)
	}
}

func (h *Handler) handlePingSnapshot(ctx context.Context, stream *transport.Stream, m *wire.GamePlayerPingMapSnapshotRequest) {
	gameID := model.GameID(m.GameID)
	occupants, err := h.Games.Occupants(ctx, gameID)
	if err != nil {
		return
	}
	books, err := h.Sessions.PingSnapshot(ctx, occupants)
	if err != nil {
		return
	}

	entries := make([]wire.PlayerPingEntry, 0, len(books))
	for playerID, book := range books {
		samples := make([]wire.PingSample, 0, len(book))
		for nodeID, s := range book {
			samples = append(samples, wire.PingSample{
				NodeID: int32(nodeID), Min: s.Min, Max: s.Max, Avg: s.Avg, Current: s.Current, LossRate: s.LossRate,
			})
		}
		entries = append(entries, wire.PlayerPingEntry{PlayerID: int32(playerID), Samples: samples})
	}

	_ = stream.Send(&wire.GamePlayerPingMapSnapshot{GameID: m.GameID, Entries: entries})
}
