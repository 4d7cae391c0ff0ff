package controller

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/w3ctl/internal/actor"
	"github.com/udisondev/w3ctl/internal/auth"
	"github.com/udisondev/w3ctl/internal/lobby"
	"github.com/udisondev/w3ctl/internal/noderpc"
	"github.com/udisondev/w3ctl/internal/session"
	"github.com/udisondev/w3ctl/internal/transport"
	"github.com/udisondev/w3ctl/internal/wire"
)

func newTestHandler(t *testing.T) (*Handler, *auth.Signer) {
	t.Helper()
	engine := actor.NewEngine()
	sessions := session.NewRegistry(engine)
	games := lobby.NewRegistry(engine, sessions, nil, func(addr string) noderpc.Client { return nil }, nil)
	signer := auth.NewSigner([]byte("test-secret"))

	return &Handler{
		Sessions:         sessions,
		Games:            games,
		Signer:           signer,
		Registry:         wire.NewRegistry(),
		MinClientVersion: 1,
	}, signer
}

// TestHandshakeAcceptsValidTokenAndDeliversQueuedPackets exercises the full
// handshake plus the outbound pump: a packet enqueued on the player's
// session after the handshake must reach the client over the wire.
func TestHandshakeAcceptsValidTokenAndDeliversQueuedPackets(t *testing.T) {
	h, signer := newTestHandler(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	clientStream := transport.NewStream(clientConn, transport.Options{})
	defer clientStream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serverStream := transport.NewStream(serverConn, transport.Options{})
		defer serverStream.Close()
		h.HandleConnection(ctx, serverStream)
	}()

	token := signer.Issue(42)
	require.NoError(t, clientStream.Send(&wire.ConnectLobby{ConnectVersion: 1, Token: token}))

	frame, err := clientStream.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.TypeConnectAccept, frame.TypeID)

	pkt, err := h.Registry.Decode(frame.TypeID, frame.Payload)
	require.NoError(t, err)
	accept, ok := pkt.(*wire.ConnectAccept)
	require.True(t, ok)
	require.Equal(t, int32(42), accept.Session.PlayerID)

	// A packet enqueued on the player's session after the handshake must be
	// relayed through the connection's outbound pump.
	require.NoError(t, h.Sessions.SendPacket(ctx, 42, &wire.Pong{}))

	frame, err = clientStream.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.TypePong, frame.TypeID)

	cancel()
	<-done
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	h, _ := newTestHandler(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	clientStream := transport.NewStream(clientConn, transport.Options{})
	defer clientStream.Close()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serverStream := transport.NewStream(serverConn, transport.Options{})
		defer serverStream.Close()
		h.HandleConnection(ctx, serverStream)
	}()

	require.NoError(t, clientStream.Send(&wire.ConnectLobby{ConnectVersion: 1, Token: []byte("bogus")}))

	frame, err := clientStream.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.TypeConnectReject, frame.TypeID)

	pkt, err := h.Registry.Decode(frame.TypeID, frame.Payload)
	require.NoError(t, err)
	reject, ok := pkt.(*wire.ConnectReject)
	require.True(t, ok)
	require.Equal(t, wire.RejectInvalidToken, reject.Reason)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after rejecting handshake")
	}
}

func TestHandshakeRejectsVersionTooOld(t *testing.T) {
	h, signer := newTestHandler(t)
	h.MinClientVersion = 5

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	clientStream := transport.NewStream(clientConn, transport.Options{})
	defer clientStream.Close()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serverStream := transport.NewStream(serverConn, transport.Options{})
		defer serverStream.Close()
		h.HandleConnection(ctx, serverStream)
	}()

	require.NoError(t, clientStream.Send(&wire.ConnectLobby{ConnectVersion: 1, Token: signer.Issue(1)}))

	frame, err := clientStream.Recv(ctx)
	require.NoError(t, err)
	pkt, err := h.Registry.Decode(frame.TypeID, frame.Payload)
	require.NoError(t, err)
	reject, ok := pkt.(*wire.ConnectReject)
	require.True(t, ok)
	require.Equal(t, wire.RejectVersionTooOld, reject.Reason)

	<-done
}
