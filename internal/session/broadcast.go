package session

import (
	"context"
	"log/slog"

	"github.com/udisondev/w3ctl/internal/wire"
)

// Broadcaster is a thin fan-out view over the registry's SendPacket ask: it
// encodes nothing itself (each recipient's connection encodes the packet
// when it writes it), it just clones the recipient list and drives the sends. Recipients with no live
// connection are silently skipped, matching D's SendPacket/NotConnected
// contract.
type Broadcaster struct {
	registry *Registry
	players  []PlayerID
}

// NewBroadcaster returns a Broadcaster over playerIDs, resolved against
// registry.
func NewBroadcaster(registry *Registry, playerIDs []PlayerID) *Broadcaster {
	players := make([]PlayerID, len(playerIDs))
	copy(players, playerIDs)
	return &Broadcaster{registry: registry, players: players}
}

// Broadcast sends the same packet to every recipient. Broadcasts are not
// atomic across recipients: one may observe it before another.
func (b *Broadcaster) Broadcast(ctx context.Context, p wire.Packet) {
	for _, id := range b.players {
		if err := b.registry.SendPacket(ctx, id, p); err != nil && err != ErrNotConnected {
			slog.Warn("broadcast send failed", "player_id", id, "error", err)
		}
	}
}

// BroadcastBy calls fn once per recipient and sends whatever it returns;
// fn returning nil skips that recipient. Used for per-player payloads such
// as GamePlayerToken where every recipient's token differs.
func (b *Broadcaster) BroadcastBy(ctx context.Context, fn func(id PlayerID) wire.Packet) {
	for _, id := range b.players {
		p := fn(id)
		if p == nil {
			continue
		}
		if err := b.registry.SendPacket(ctx, id, p); err != nil && err != ErrNotConnected {
			slog.Warn("broadcast send failed", "player_id", id, "error", err)
		}
	}
}
