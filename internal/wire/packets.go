package wire

import "fmt"

// Packet is implemented by every typed lobby payload. TypeID returns the
// wire-compatible constant from types.go; Encode/Decode (de)serialize the
// payload body only — framing is handled separately by EncodeFrame/ReadFrame.
type Packet interface {
	TypeID() uint8
	Encode(w *Writer)
	Decode(r *Reader) error
}

// ---- connect / disconnect -------------------------------------------------

// ConnectLobby is the first frame a client must send.
type ConnectLobby struct {
	ConnectVersion int32
	Token          []byte
}

func (p *ConnectLobby) TypeID() uint8 { return TypeConnectLobby }
func (p *ConnectLobby) Encode(w *Writer) {
	w.WriteInt32(p.ConnectVersion)
	w.WriteBytes(p.Token)
}
func (p *ConnectLobby) Decode(r *Reader) error {
	var err error
	if p.ConnectVersion, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Token, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// SessionSnapshot mirrors the initial per-connection state handed back on
// successful handshake.
type SessionSnapshot struct {
	PlayerID      int32
	PlayerName    string
	JoinedGameID  int32 // 0 = not in a game
}

func (s *SessionSnapshot) encode(w *Writer) {
	w.WriteInt32(s.PlayerID)
	w.WriteString(s.PlayerName)
	w.WriteInt32(s.JoinedGameID)
}
func (s *SessionSnapshot) decode(r *Reader) error {
	var err error
	if s.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	if s.PlayerName, err = r.ReadString(); err != nil {
		return err
	}
	if s.JoinedGameID, err = r.ReadInt32(); err != nil {
		return err
	}
	return nil
}

// NodeInfo describes one entry of the static-ish node registry.
type NodeInfo struct {
	ID      int32
	Name    string
	Addr    string
	Country string
}

func (n *NodeInfo) encode(w *Writer) {
	w.WriteInt32(n.ID)
	w.WriteString(n.Name)
	w.WriteString(n.Addr)
	w.WriteString(n.Country)
}
func (n *NodeInfo) decode(r *Reader) error {
	var err error
	if n.ID, err = r.ReadInt32(); err != nil {
		return err
	}
	if n.Name, err = r.ReadString(); err != nil {
		return err
	}
	if n.Addr, err = r.ReadString(); err != nil {
		return err
	}
	if n.Country, err = r.ReadString(); err != nil {
		return err
	}
	return nil
}

// ConnectAccept is sent once the handshake succeeds.
type ConnectAccept struct {
	Session SessionSnapshot
	Nodes   []NodeInfo
}

func (p *ConnectAccept) TypeID() uint8 { return TypeConnectAccept }
func (p *ConnectAccept) Encode(w *Writer) {
	w.WriteMessage(p.Session.encode)
	w.WriteVarint(uint64(len(p.Nodes)))
	for i := range p.Nodes {
		w.WriteMessage(p.Nodes[i].encode)
	}
}
func (p *ConnectAccept) Decode(r *Reader) error {
	if err := r.ReadMessage(p.Session.decode); err != nil {
		return fmt.Errorf("ConnectAccept.session: %w", err)
	}
	n, err := r.ReadVarint()
	if err != nil {
		return fmt.Errorf("ConnectAccept.nodes_count: %w", err)
	}
	p.Nodes = nil
	if n > 0 {
		p.Nodes = make([]NodeInfo, n)
		for i := range p.Nodes {
			if err := r.ReadMessage(p.Nodes[i].decode); err != nil {
				return fmt.Errorf("ConnectAccept.nodes[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// ConnectReject is sent when a handshake is refused; the connection is then
// closed by the sender.
type ConnectReject struct {
	Reason        string
	ServerVersion int32
}

func (p *ConnectReject) TypeID() uint8 { return TypeConnectReject }
func (p *ConnectReject) Encode(w *Writer) {
	w.WriteString(p.Reason)
	w.WriteInt32(p.ServerVersion)
}
func (p *ConnectReject) Decode(r *Reader) error {
	var err error
	if p.Reason, err = r.ReadString(); err != nil {
		return err
	}
	if p.ServerVersion, err = r.ReadInt32(); err != nil {
		return err
	}
	return nil
}

// ClientDisconnect notifies a client it is being forcibly closed.
type ClientDisconnect struct {
	Reason string
}

func (p *ClientDisconnect) TypeID() uint8 { return TypeClientDisconnect }
func (p *ClientDisconnect) Encode(w *Writer) { w.WriteString(p.Reason) }
func (p *ClientDisconnect) Decode(r *Reader) error {
	var err error
	p.Reason, err = r.ReadString()
	return err
}

// ---- heartbeat -------------------------------------------------------------

// Ping carries the server's wall-clock time in Unix milliseconds.
type Ping struct {
	ServerMs int64
}

func (p *Ping) TypeID() uint8 { return TypePing }
func (p *Ping) Encode(w *Writer) { w.WriteVarint(uint64(p.ServerMs)) }
func (p *Ping) Decode(r *Reader) error {
	v, err := r.ReadVarint()
	p.ServerMs = int64(v)
	return err
}

// Pong is the client's heartbeat reply; it carries no payload.
type Pong struct{}

func (p *Pong) TypeID() uint8        { return TypePong }
func (p *Pong) Encode(w *Writer)     {}
func (p *Pong) Decode(r *Reader) error { return nil }

// ---- lobby / slots ----------------------------------------------------------

// SlotSettings is the mutable per-slot configuration.
type SlotSettings struct {
	Team          int32
	Color         int32
	Handicap      int32
	Race          int32
	Status        int32 // 0=Open 1=Closed 2=Occupied
	ComputerLevel int32 // -1 = not a computer slot
}

func (s *SlotSettings) encode(w *Writer) {
	w.WriteInt32(s.Team)
	w.WriteInt32(s.Color)
	w.WriteInt32(s.Handicap)
	w.WriteInt32(s.Race)
	w.WriteInt32(s.Status)
	w.WriteInt32(s.ComputerLevel)
}
func (s *SlotSettings) decode(r *Reader) error {
	var err error
	for _, f := range []*int32{&s.Team, &s.Color, &s.Handicap, &s.Race, &s.Status, &s.ComputerLevel} {
		if *f, err = r.ReadInt32(); err != nil {
			return err
		}
	}
	return nil
}

// SlotInfo is one wire-level slot: index, settings, and the occupant's id
// (0 = empty).
type SlotInfo struct {
	Index      int32
	PlayerID   int32
	PlayerName string
	Settings   SlotSettings
}

func (s *SlotInfo) encode(w *Writer) {
	w.WriteInt32(s.Index)
	w.WriteInt32(s.PlayerID)
	w.WriteString(s.PlayerName)
	w.WriteMessage(s.Settings.encode)
}
func (s *SlotInfo) decode(r *Reader) error {
	var err error
	if s.Index, err = r.ReadInt32(); err != nil {
		return err
	}
	if s.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	if s.PlayerName, err = r.ReadString(); err != nil {
		return err
	}
	return r.ReadMessage(s.Settings.decode)
}

// GameInfo is the full lobby snapshot returned to a joiner, and re-sent on
// reconnect to a player still seated in a game, whatever its status.
type GameInfo struct {
	GameID         int32
	Name           string
	MapPath        string
	MapSHA1        []byte
	Width, Height  int32
	Checksum       int32
	NumPlayers     int32
	HostPlayerID   int32
	SelectedNodeID int32 // 0 = none
	Status         int32 // 0=Preparing 1=Starting 2=Created 3=Ended
	Slots          []SlotInfo
}

func (p *GameInfo) TypeID() uint8 { return TypeGameInfo }
func (p *GameInfo) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteString(p.Name)
	w.WriteString(p.MapPath)
	w.WriteBytes(p.MapSHA1)
	w.WriteInt32(p.Width)
	w.WriteInt32(p.Height)
	w.WriteInt32(p.Checksum)
	w.WriteInt32(p.NumPlayers)
	w.WriteInt32(p.HostPlayerID)
	w.WriteInt32(p.SelectedNodeID)
	w.WriteInt32(p.Status)
	w.WriteVarint(uint64(len(p.Slots)))
	for i := range p.Slots {
		w.WriteMessage(p.Slots[i].encode)
	}
}
func (p *GameInfo) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return err
	}
	if p.MapPath, err = r.ReadString(); err != nil {
		return err
	}
	if p.MapSHA1, err = r.ReadBytes(); err != nil {
		return err
	}
	for _, f := range []*int32{&p.Width, &p.Height, &p.Checksum, &p.NumPlayers, &p.HostPlayerID, &p.SelectedNodeID, &p.Status} {
		if *f, err = r.ReadInt32(); err != nil {
			return err
		}
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.Slots = nil
	if n > 0 {
		p.Slots = make([]SlotInfo, n)
		for i := range p.Slots {
			if err := r.ReadMessage(p.Slots[i].decode); err != nil {
				return fmt.Errorf("GameInfo.slots[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// GamePlayerEnter notifies peers a player joined a slot.
type GamePlayerEnter struct {
	GameID int32
	Slot   SlotInfo
}

func (p *GamePlayerEnter) TypeID() uint8 { return TypeGamePlayerEnter }
func (p *GamePlayerEnter) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteMessage(p.Slot.encode)
}
func (p *GamePlayerEnter) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	return r.ReadMessage(p.Slot.decode)
}

// GamePlayerLeave notifies peers a player left (or was evicted from) a game.
type GamePlayerLeave struct {
	GameID   int32
	PlayerID int32
	Reason   string
}

func (p *GamePlayerLeave) TypeID() uint8 { return TypeGamePlayerLeave }
func (p *GamePlayerLeave) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteInt32(p.PlayerID)
	w.WriteString(p.Reason)
}
func (p *GamePlayerLeave) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	p.Reason, err = r.ReadString()
	return err
}

// GameSlotUpdate broadcasts the new settings of one slot.
type GameSlotUpdate struct {
	GameID int32
	Slot   SlotInfo
}

func (p *GameSlotUpdate) TypeID() uint8 { return TypeGameSlotUpdate }
func (p *GameSlotUpdate) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteMessage(p.Slot.encode)
}
func (p *GameSlotUpdate) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	return r.ReadMessage(p.Slot.decode)
}

// GameSlotUpdateRequest asks the server to change one slot's settings.
type GameSlotUpdateRequest struct {
	SlotIndex int32
	Settings  SlotSettings
}

func (p *GameSlotUpdateRequest) TypeID() uint8 { return TypeGameSlotUpdateRequest }
func (p *GameSlotUpdateRequest) Encode(w *Writer) {
	w.WriteInt32(p.SlotIndex)
	w.WriteMessage(p.Settings.encode)
}
func (p *GameSlotUpdateRequest) Decode(r *Reader) error {
	var err error
	if p.SlotIndex, err = r.ReadInt32(); err != nil {
		return err
	}
	return r.ReadMessage(p.Settings.decode)
}

// GameSelectNode is sent both ways: as a request (C->S, NodeID set by the
// host) and as the resulting broadcast (S->C).
type GameSelectNode struct {
	GameID int32
	NodeID int32 // 0 = cleared
}

func (p *GameSelectNode) TypeID() uint8 { return TypeGameSelectNode }
func (p *GameSelectNode) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteInt32(p.NodeID)
}
func (p *GameSelectNode) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	p.NodeID, err = r.ReadInt32()
	return err
}

// ---- start handshake --------------------------------------------------------

// GameStartRequest is the host's request to begin the start handshake.
type GameStartRequest struct {
	GameID int32
}

func (p *GameStartRequest) TypeID() uint8  { return TypeGameStartRequest }
func (p *GameStartRequest) Encode(w *Writer) { w.WriteInt32(p.GameID) }
func (p *GameStartRequest) Decode(r *Reader) error {
	var err error
	p.GameID, err = r.ReadInt32()
	return err
}

// GameStarting is broadcast when the Start FSM enters Starting.
type GameStarting struct {
	GameID int32
}

func (p *GameStarting) TypeID() uint8  { return TypeGameStarting }
func (p *GameStarting) Encode(w *Writer) { w.WriteInt32(p.GameID) }
func (p *GameStarting) Decode(r *Reader) error {
	var err error
	p.GameID, err = r.ReadInt32()
	return err
}

// ClientInfo is one player's reported build/map identity during the start
// handshake's ack phase.
type ClientInfo struct {
	PlayerID   int32
	War3Version string
	MapSHA1    []byte
}

func (c *ClientInfo) encode(w *Writer) {
	w.WriteInt32(c.PlayerID)
	w.WriteString(c.War3Version)
	w.WriteBytes(c.MapSHA1)
}
func (c *ClientInfo) decode(r *Reader) error {
	var err error
	if c.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	if c.War3Version, err = r.ReadString(); err != nil {
		return err
	}
	c.MapSHA1, err = r.ReadBytes()
	return err
}

// GameStartReject is broadcast (or sent host-only, for node create errors)
// when the Start FSM resets to Preparing.
type GameStartReject struct {
	GameID              int32
	Reason              string
	PlayerClientInfoMap []ClientInfo
}

func (p *GameStartReject) TypeID() uint8 { return TypeGameStartReject }
func (p *GameStartReject) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteString(p.Reason)
	w.WriteVarint(uint64(len(p.PlayerClientInfoMap)))
	for i := range p.PlayerClientInfoMap {
		w.WriteMessage(p.PlayerClientInfoMap[i].encode)
	}
}
func (p *GameStartReject) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Reason, err = r.ReadString(); err != nil {
		return err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.PlayerClientInfoMap = nil
	if n > 0 {
		p.PlayerClientInfoMap = make([]ClientInfo, n)
		for i := range p.PlayerClientInfoMap {
			if err := r.ReadMessage(p.PlayerClientInfoMap[i].decode); err != nil {
				return fmt.Errorf("GameStartReject.info[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// GameStartPlayerClientInfoRequest is one player's ack during Starting.
type GameStartPlayerClientInfoRequest struct {
	GameID      int32
	War3Version string
	MapSHA1     []byte
}

func (p *GameStartPlayerClientInfoRequest) TypeID() uint8 {
	return TypeGameStartPlayerClientInfoRequest
}
func (p *GameStartPlayerClientInfoRequest) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteString(p.War3Version)
	w.WriteBytes(p.MapSHA1)
}
func (p *GameStartPlayerClientInfoRequest) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.War3Version, err = r.ReadString(); err != nil {
		return err
	}
	p.MapSHA1, err = r.ReadBytes()
	return err
}

// GamePlayerToken delivers the per-player opaque secret once the node
// accepts create_game. Duplicates are idempotent on the client side.
type GamePlayerToken struct {
	NodeID int32
	GameID int32
	Token  []byte // 16 bytes
}

func (p *GamePlayerToken) TypeID() uint8 { return TypeGamePlayerToken }
func (p *GamePlayerToken) Encode(w *Writer) {
	w.WriteInt32(p.NodeID)
	w.WriteInt32(p.GameID)
	w.WriteFixedBytes(p.Token)
}
func (p *GamePlayerToken) Decode(r *Reader) error {
	var err error
	if p.NodeID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	p.Token, err = r.ReadFixedBytes(16)
	return err
}

// ---- ping maps ---------------------------------------------------------------

// PingSample is one node's ping statistics as observed by a player.
type PingSample struct {
	NodeID   int32
	Min      int32
	Max      int32
	Avg      int32
	Current  int32
	LossRate float64 // 0..1, encoded as a fixed-point varint (×10000)
}

func (p *PingSample) encode(w *Writer) {
	w.WriteInt32(p.NodeID)
	w.WriteInt32(p.Min)
	w.WriteInt32(p.Max)
	w.WriteInt32(p.Avg)
	w.WriteInt32(p.Current)
	w.WriteVarint(uint64(p.LossRate * 10000))
}
func (p *PingSample) decode(r *Reader) error {
	var err error
	for _, f := range []*int32{&p.NodeID, &p.Min, &p.Max, &p.Avg, &p.Current} {
		if *f, err = r.ReadInt32(); err != nil {
			return err
		}
	}
	v, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.LossRate = float64(v) / 10000
	return nil
}

// PlayerPingMapUpdateRequest reports the sender's current ping book.
type PlayerPingMapUpdateRequest struct {
	Samples []PingSample
}

func (p *PlayerPingMapUpdateRequest) TypeID() uint8 { return TypePlayerPingMapUpdateRequest }
func (p *PlayerPingMapUpdateRequest) Encode(w *Writer) {
	w.WriteVarint(uint64(len(p.Samples)))
	for i := range p.Samples {
		w.WriteMessage(p.Samples[i].encode)
	}
}
func (p *PlayerPingMapUpdateRequest) Decode(r *Reader) error {
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.Samples = nil
	if n > 0 {
		p.Samples = make([]PingSample, n)
		for i := range p.Samples {
			if err := r.ReadMessage(p.Samples[i].decode); err != nil {
				return err
			}
		}
	}
	return nil
}

// PlayerPingMapUpdate fans out one player's ping book to peers in the same game.
type PlayerPingMapUpdate struct {
	PlayerID int32
	Samples  []PingSample
}

func (p *PlayerPingMapUpdate) TypeID() uint8 { return TypePlayerPingMapUpdate }
func (p *PlayerPingMapUpdate) Encode(w *Writer) {
	w.WriteInt32(p.PlayerID)
	w.WriteVarint(uint64(len(p.Samples)))
	for i := range p.Samples {
		w.WriteMessage(p.Samples[i].encode)
	}
}
func (p *PlayerPingMapUpdate) Decode(r *Reader) error {
	var err error
	if p.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.Samples = nil
	if n > 0 {
		p.Samples = make([]PingSample, n)
		for i := range p.Samples {
			if err := r.ReadMessage(p.Samples[i].decode); err != nil {
				return err
			}
		}
	}
	return nil
}

// GamePlayerPingMapSnapshotRequest asks for every occupant's ping book.
type GamePlayerPingMapSnapshotRequest struct {
	GameID int32
}

func (p *GamePlayerPingMapSnapshotRequest) TypeID() uint8 {
	return TypeGamePlayerPingMapSnapshotRequest
}
func (p *GamePlayerPingMapSnapshotRequest) Encode(w *Writer) { w.WriteInt32(p.GameID) }
func (p *GamePlayerPingMapSnapshotRequest) Decode(r *Reader) error {
	var err error
	p.GameID, err = r.ReadInt32()
	return err
}

// PlayerPingEntry pairs a player id with its snapshot of samples.
type PlayerPingEntry struct {
	PlayerID int32
	Samples  []PingSample
}

func (e *PlayerPingEntry) encode(w *Writer) {
	w.WriteInt32(e.PlayerID)
	w.WriteVarint(uint64(len(e.Samples)))
	for i := range e.Samples {
		w.WriteMessage(e.Samples[i].encode)
	}
}
func (e *PlayerPingEntry) decode(r *Reader) error {
	var err error
	if e.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	e.Samples = nil
	if n > 0 {
		e.Samples = make([]PingSample, n)
		for i := range e.Samples {
			if err := r.ReadMessage(e.Samples[i].decode); err != nil {
				return err
			}
		}
	}
	return nil
}

// GamePlayerPingMapSnapshot answers GamePlayerPingMapSnapshotRequest.
type GamePlayerPingMapSnapshot struct {
	GameID  int32
	Entries []PlayerPingEntry
}

func (p *GamePlayerPingMapSnapshot) TypeID() uint8 { return TypeGamePlayerPingMapSnapshot }
func (p *GamePlayerPingMapSnapshot) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteVarint(uint64(len(p.Entries)))
	for i := range p.Entries {
		w.WriteMessage(p.Entries[i].encode)
	}
}
func (p *GamePlayerPingMapSnapshot) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.Entries = nil
	if n > 0 {
		p.Entries = make([]PlayerPingEntry, n)
		for i := range p.Entries {
			if err := r.ReadMessage(p.Entries[i].decode); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---- node catalog -----------------------------------------------------------

// ListNodesRequest has no payload.
type ListNodesRequest struct{}

func (p *ListNodesRequest) TypeID() uint8        { return TypeListNodesRequest }
func (p *ListNodesRequest) Encode(w *Writer)     {}
func (p *ListNodesRequest) Decode(r *Reader) error { return nil }

// ListNodes carries the node catalog in answer to ListNodesRequest; at
// connect time the same list travels inside ConnectAccept instead.
type ListNodes struct {
	Nodes []NodeInfo
}

func (p *ListNodes) TypeID() uint8 { return TypeListNodes }
func (p *ListNodes) Encode(w *Writer) {
	w.WriteVarint(uint64(len(p.Nodes)))
	for i := range p.Nodes {
		w.WriteMessage(p.Nodes[i].encode)
	}
}
func (p *ListNodes) Decode(r *Reader) error {
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.Nodes = nil
	if n > 0 {
		p.Nodes = make([]NodeInfo, n)
		for i := range p.Nodes {
			if err := r.ReadMessage(p.Nodes[i].decode); err != nil {
				return err
			}
		}
	}
	return nil
}
