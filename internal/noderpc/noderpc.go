// Package noderpc is the controller's client contract to a game-relay node:
// one request/reply RPC, create_game, used by the game actor once a Start
// FSM ack round completes successfully.
package noderpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/udisondev/w3ctl/internal/model"
	"github.com/udisondev/w3ctl/internal/transport"
	"github.com/udisondev/w3ctl/internal/wire"
)

// DefaultCreateGameTimeout matches spec's "node create" timeout.
const DefaultCreateGameTimeout = 30 * time.Second

// ErrCreateGameTimeout is returned when the node does not reply within the
// create-game deadline.
var ErrCreateGameTimeout = errors.New("noderpc: create_game timed out")

// RejectError wraps a node-reported rejection reason, distinct from a
// timeout or transport failure so the game actor can map it to the right
// GameStartReject text.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return fmt.Sprintf("noderpc: node rejected: %s", e.Reason) }

// CreateGameRequest is what the game actor asks a node to do.
type CreateGameRequest struct {
	GameID    model.GameID
	Settings  wire.GameSettings
	PlayerIDs []model.PlayerID
}

// CreateGameResult is the successful outcome: one 16-byte token per player.
type CreateGameResult struct {
	Tokens map[model.PlayerID][16]byte
}

// Client issues create_game calls to one game-relay node.
type Client interface {
	CreateGame(ctx context.Context, req CreateGameRequest) (CreateGameResult, error)
}

// TCPClient dials a node's address fresh for every call. Nodes are expected
// to be low-QPS relative to the lobby traffic (one call per game start), so
// connection reuse is not worth the complexity here.
type TCPClient struct {
	Addr    string
	Timeout time.Duration
}

// NewTCPClient returns a client for addr with DefaultCreateGameTimeout.
func NewTCPClient(addr string) *TCPClient {
	return &TCPClient{Addr: addr, Timeout: DefaultCreateGameTimeout}
}

// CreateGame dials Addr, sends a CreateGameRequest, and waits for the
// matching CreateGameReply or the deadline, whichever comes first.
func (c *TCPClient) CreateGame(ctx context.Context, req CreateGameRequest) (CreateGameResult, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCreateGameTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return CreateGameResult{}, fmt.Errorf("noderpc: dial %s: %w", c.Addr, err)
	}

	stream := transport.NewStream(conn, transport.Options{})
	defer stream.Close()

	playerIDs := make([]int32, len(req.PlayerIDs))
	for i, id := range req.PlayerIDs {
		playerIDs[i] = int32(id)
	}

	settings := req.Settings.EncodeStatString()
	if err := stream.Send(&wire.CreateGameRequest{
		GameID:    int32(req.GameID),
		Settings:  settings,
		PlayerIDs: playerIDs,
	}); err != nil {
		return CreateGameResult{}, fmt.Errorf("noderpc: send create_game: %w", err)
	}

	frame, err := stream.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return CreateGameResult{}, ErrCreateGameTimeout
		}
		return CreateGameResult{}, fmt.Errorf("noderpc: recv reply: %w", err)
	}

	reg := wire.NewGameNodeRegistry()
	p, err := reg.Decode(frame.TypeID, frame.Payload)
	if err != nil {
		return CreateGameResult{}, fmt.Errorf("noderpc: decode reply: %w", err)
	}
	reply, ok := p.(*wire.CreateGameReply)
	if !ok {
		return CreateGameResult{}, fmt.Errorf("noderpc: unexpected reply type_id 0x%02x", frame.TypeID)
	}
	if !reply.Ok {
		return CreateGameResult{}, &RejectError{Reason: reply.Reason}
	}

	tokens := make(map[model.PlayerID][16]byte, len(reply.Tokens))
	for _, t := range reply.Tokens {
		var tok [16]byte
		copy(tok[:], t.Token)
		tokens[model.PlayerID(t.PlayerID)] = tok
	}
	return CreateGameResult{Tokens: tokens}, nil
}
