package wire

import "fmt"

// Registry maps a type_id to a factory for the matching Packet, forming the
// closed set of message shapes spoken on the lobby connection.
type Registry struct {
	factories map[uint8]func() Packet
}

// NewRegistry builds the registry for every type_id in the external
// interface table. It is built explicitly (no package-level mutable global)
// so tests and alternate wire profiles can construct independent registries.
func NewRegistry() *Registry {
	reg := &Registry{factories: make(map[uint8]func() Packet, 32)}
	reg.register(func() Packet { return &ConnectLobby{} })
	reg.register(func() Packet { return &ConnectAccept{} })
	reg.register(func() Packet { return &ConnectReject{} })
	reg.register(func() Packet { return &ClientDisconnect{} })
	reg.register(func() Packet { return &Ping{} })
	reg.register(func() Packet { return &Pong{} })
	reg.register(func() Packet { return &GameInfo{} })
	reg.register(func() Packet { return &GamePlayerEnter{} })
	reg.register(func() Packet { return &GamePlayerLeave{} })
	reg.register(func() Packet { return &GameSlotUpdate{} })
	reg.register(func() Packet { return &GameSlotUpdateRequest{} })
	reg.register(func() Packet { return &GameSelectNode{} })
	reg.register(func() Packet { return &GameStartRequest{} })
	reg.register(func() Packet { return &GameStarting{} })
	reg.register(func() Packet { return &GameStartReject{} })
	reg.register(func() Packet { return &GameStartPlayerClientInfoRequest{} })
	reg.register(func() Packet { return &GamePlayerToken{} })
	reg.register(func() Packet { return &PlayerPingMapUpdateRequest{} })
	reg.register(func() Packet { return &PlayerPingMapUpdate{} })
	reg.register(func() Packet { return &GamePlayerPingMapSnapshotRequest{} })
	reg.register(func() Packet { return &GamePlayerPingMapSnapshot{} })
	reg.register(func() Packet { return &ListNodesRequest{} })
	reg.register(func() Packet { return &ListNodes{} })
	return reg
}

func (reg *Registry) register(factory func() Packet) {
	p := factory()
	reg.factories[p.TypeID()] = factory
}

// ErrUnknownType is returned by Decode for a type_id outside the registry.
// Callers treat this as a drop-and-continue condition, not a fatal error
// (see the controller's dispatch loop).
type ErrUnknownType struct{ TypeID uint8 }

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("wire: unknown packet type_id 0x%02x", e.TypeID)
}

// Decode looks up type_id's factory, constructs a zero-value Packet, and
// decodes payload into it.
func (reg *Registry) Decode(typeID uint8, payload []byte) (Packet, error) {
	factory, ok := reg.factories[typeID]
	if !ok {
		return nil, ErrUnknownType{TypeID: typeID}
	}
	p := factory()
	if err := p.Decode(NewReader(payload)); err != nil {
		return nil, fmt.Errorf("decode type_id 0x%02x: %w", typeID, err)
	}
	return p, nil
}

// NewGameNodeRegistry builds the registry for the disjoint game-node
// type_id space used by controller<->node RPC (see game_codec.go).
func NewGameNodeRegistry() *Registry {
	reg := &Registry{factories: make(map[uint8]func() Packet, 2)}
	reg.register(func() Packet { return &CreateGameRequest{} })
	reg.register(func() Packet { return &CreateGameReply{} })
	return reg
}

// EncodeAsFrame implements encode_as_frame(payload) = header(type_id,
// payload_bytes) ++ payload_bytes from spec §4.1. buf is reused as scratch
// capacity when large enough.
func EncodeAsFrame(buf []byte, p Packet) ([]byte, error) {
	w := NewWriter(64)
	p.Encode(w)
	return EncodeFrame(buf, p.TypeID(), w.Bytes())
}
