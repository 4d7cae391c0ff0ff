package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// roundtrip encodes p, decodes it back through the registry by type_id, and
// returns the freshly decoded Packet for field-by-field comparison.
func roundtrip(t *testing.T, reg *Registry, p Packet) Packet {
	t.Helper()
	w := NewWriter(32)
	p.Encode(w)
	got, err := reg.Decode(p.TypeID(), w.Bytes())
	require.NoError(t, err)
	return got
}

func TestPacketRoundtripAllTypes(t *testing.T) {
	reg := NewRegistry()

	cases := []Packet{
		&ConnectLobby{ConnectVersion: 42, Token: []byte{1, 2, 3}},
		&ConnectLobby{ConnectVersion: 0, Token: []byte{}},
		&ConnectAccept{
			Session: SessionSnapshot{PlayerID: 7, PlayerName: "Host", JoinedGameID: 0},
			Nodes:   []NodeInfo{{ID: 1, Name: "us-east", Addr: "1.2.3.4:6112", Country: "US"}},
		},
		&ConnectAccept{Session: SessionSnapshot{}, Nodes: nil},
		&ConnectReject{Reason: RejectInvalidToken, ServerVersion: 100},
		&ClientDisconnect{Reason: ReasonMultiLogin},
		&Ping{ServerMs: 1234567890},
		&Pong{},
		&GameInfo{
			GameID: 1, Name: "Test Game", MapPath: `Maps\(2)EchoIsles.w3x`,
			MapSHA1: make([]byte, 20), Width: 64, Height: 64, Checksum: 7,
			NumPlayers: 2, HostPlayerID: 1, SelectedNodeID: 0, Status: 0,
			Slots: []SlotInfo{
				{Index: 0, PlayerID: 1, PlayerName: "Host", Settings: SlotSettings{Team: 0, Color: 0, Race: 1, Status: 2, ComputerLevel: -1}},
				{Index: 1, PlayerID: 0, PlayerName: "", Settings: SlotSettings{Status: 0, ComputerLevel: -1}},
			},
		},
		&GameInfo{GameID: 2, Name: "", MapSHA1: []byte{}, Slots: nil},
		&GamePlayerEnter{GameID: 1, Slot: SlotInfo{Index: 1, PlayerID: 2, PlayerName: "P2"}},
		&GamePlayerLeave{GameID: 1, PlayerID: 2, Reason: ReasonLeft},
		&GameSlotUpdate{GameID: 1, Slot: SlotInfo{Index: 0, Settings: SlotSettings{Team: 1}}},
		&GameSlotUpdateRequest{SlotIndex: 0, Settings: SlotSettings{Race: 2}},
		&GameSelectNode{GameID: 1, NodeID: 5},
		&GameSelectNode{GameID: 1, NodeID: 0},
		&GameStartRequest{GameID: 1},
		&GameStarting{GameID: 1},
		&GameStartReject{
			GameID: 1, Reason: StartRejectVersionMismatch,
			PlayerClientInfoMap: []ClientInfo{{PlayerID: 1, War3Version: "1.32.10", MapSHA1: make([]byte, 20)}},
		},
		&GameStartReject{GameID: 1, Reason: StartRejectTimeout, PlayerClientInfoMap: nil},
		&GameStartPlayerClientInfoRequest{GameID: 1, War3Version: "1.32.10", MapSHA1: make([]byte, 20)},
		&GamePlayerToken{NodeID: 3, GameID: 1, Token: make([]byte, 16)},
		&PlayerPingMapUpdateRequest{Samples: []PingSample{{NodeID: 1, Min: 10, Max: 50, Avg: 20, Current: 22, LossRate: 0.0123}}},
		&PlayerPingMapUpdateRequest{Samples: nil},
		&PlayerPingMapUpdate{PlayerID: 1, Samples: []PingSample{{NodeID: 1}}},
		&GamePlayerPingMapSnapshotRequest{GameID: 1},
		&GamePlayerPingMapSnapshot{GameID: 1, Entries: []PlayerPingEntry{{PlayerID: 1, Samples: []PingSample{{NodeID: 2}}}}},
		&GamePlayerPingMapSnapshot{GameID: 1, Entries: nil},
		&ListNodesRequest{},
		&ListNodes{Nodes: []NodeInfo{{ID: 1, Name: "n1"}, {ID: 2, Name: "n2"}}},
		&ListNodes{Nodes: nil},
	}

	for _, want := range cases {
		got := roundtrip(t, reg, want)
		require.Equal(t, want, got)
	}
}

func TestEncodeAsFrameAndDecodeViaRegistry(t *testing.T) {
	reg := NewRegistry()
	p := &Ping{ServerMs: 42}

	buf, err := EncodeAsFrame(nil, p)
	require.NoError(t, err)

	frame, err := ReadFrame(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, TypePing, frame.TypeID)

	got, err := reg.Decode(frame.TypeID, frame.Payload)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestDecodeUnknownType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Decode(0xEE, nil)
	require.Error(t, err)
	var unknown ErrUnknownType
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, uint8(0xEE), unknown.TypeID)
}
