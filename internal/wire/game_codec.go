package wire

import (
	"encoding/binary"
	"fmt"
)

// Game-node namespace type_id values. Disjoint from the lobby namespace in
// types.go, per spec §4.1 ("a second, independent codec ... a disjoint
// type_id space"). These are internal to the controller<->node RPC and are
// not spoken by game clients.
const (
	GameTypeCreateGameRequest uint8 = 0x01
	GameTypeCreateGameReply   uint8 = 0x02
)

// CreateGameRequest asks a game-relay node to host gameID with the given
// packed (stat-string encoded) GameSettings and the roster of player ids to
// mint tokens for.
type CreateGameRequest struct {
	GameID    int32
	Settings  []byte // EncodeStatString output
	PlayerIDs []int32
}

func (p *CreateGameRequest) TypeID() uint8 { return GameTypeCreateGameRequest }
func (p *CreateGameRequest) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteBytes(p.Settings)
	w.WriteVarint(uint64(len(p.PlayerIDs)))
	for _, id := range p.PlayerIDs {
		w.WriteInt32(id)
	}
}
func (p *CreateGameRequest) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Settings, err = r.ReadBytes(); err != nil {
		return err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.PlayerIDs = nil
	if n > 0 {
		p.PlayerIDs = make([]int32, n)
		for i := range p.PlayerIDs {
			if p.PlayerIDs[i], err = r.ReadInt32(); err != nil {
				return err
			}
		}
	}
	return nil
}

// PlayerToken pairs a player id with its minted 16-byte connect token.
type PlayerToken struct {
	PlayerID int32
	Token    []byte // 16 bytes
}

func (t *PlayerToken) encode(w *Writer) {
	w.WriteInt32(t.PlayerID)
	w.WriteFixedBytes(t.Token)
}
func (t *PlayerToken) decode(r *Reader) error {
	var err error
	if t.PlayerID, err = r.ReadInt32(); err != nil {
		return err
	}
	t.Token, err = r.ReadFixedBytes(16)
	return err
}

// CreateGameReply answers CreateGameRequest. Ok false means Reason carries
// one of the node-side rejection strings (or a timeout/other marker chosen
// by the caller).
type CreateGameReply struct {
	GameID int32
	Ok     bool
	Reason string
	Tokens []PlayerToken
}

func (p *CreateGameReply) TypeID() uint8 { return GameTypeCreateGameReply }
func (p *CreateGameReply) Encode(w *Writer) {
	w.WriteInt32(p.GameID)
	w.WriteBool(p.Ok)
	w.WriteString(p.Reason)
	w.WriteVarint(uint64(len(p.Tokens)))
	for i := range p.Tokens {
		w.WriteMessage(p.Tokens[i].encode)
	}
}
func (p *CreateGameReply) Decode(r *Reader) error {
	var err error
	if p.GameID, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Ok, err = r.ReadBool(); err != nil {
		return err
	}
	if p.Reason, err = r.ReadString(); err != nil {
		return err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	p.Tokens = nil
	if n > 0 {
		p.Tokens = make([]PlayerToken, n)
		for i := range p.Tokens {
			if err := r.ReadMessage(p.Tokens[i].decode); err != nil {
				return err
			}
		}
	}
	return nil
}

// GameSettings is the packed lobby configuration handed to a game-relay node
// on create_game, encoded as a stat-string per spec §6:
//
//	flags(u32 LE) | 0x00 | w(u16 LE) | h(u16 LE) | checksum(u32 LE) |
//	map_path(cstr) | host_name(cstr) | 0x00 | sha1(20 bytes)
//
// Layout grounded on the w3gs GameSettings record (see DESIGN.md).
type GameSettings struct {
	Flags    uint32
	Width    uint16
	Height   uint16
	Checksum uint32
	MapPath  string
	HostName string
	SHA1     [20]byte
}

// Pack encodes the settings as a raw byte buffer, ready for EncodeStatString.
func (g *GameSettings) Pack() []byte {
	buf := make([]byte, 0, 4+1+2+2+4+len(g.MapPath)+1+len(g.HostName)+1+1+20)
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:4], g.Flags)
	buf = append(buf, tmp[:4]...)
	buf = append(buf, 0x00)

	binary.LittleEndian.PutUint16(tmp[:2], g.Width)
	buf = append(buf, tmp[:2]...)
	binary.LittleEndian.PutUint16(tmp[:2], g.Height)
	buf = append(buf, tmp[:2]...)

	binary.LittleEndian.PutUint32(tmp[:4], g.Checksum)
	buf = append(buf, tmp[:4]...)

	buf = append(buf, []byte(g.MapPath)...)
	buf = append(buf, 0x00)
	buf = append(buf, []byte(g.HostName)...)
	buf = append(buf, 0x00)
	buf = append(buf, 0x00)
	buf = append(buf, g.SHA1[:]...)

	return buf
}

// Unpack decodes a raw byte buffer produced by Pack.
func (g *GameSettings) Unpack(raw []byte) error {
	if len(raw) < 13 {
		return fmt.Errorf("wire: GameSettings.Unpack: short buffer (%d bytes)", len(raw))
	}
	r := NewReader(raw)

	flagsLo, err := r.ReadFixedBytes(4)
	if err != nil {
		return err
	}
	g.Flags = binary.LittleEndian.Uint32(flagsLo)

	if _, err := r.ReadByte(); err != nil { // skip the fixed 0x00
		return err
	}

	wh, err := r.ReadFixedBytes(4)
	if err != nil {
		return err
	}
	g.Width = binary.LittleEndian.Uint16(wh[0:2])
	g.Height = binary.LittleEndian.Uint16(wh[2:4])

	cksum, err := r.ReadFixedBytes(4)
	if err != nil {
		return err
	}
	g.Checksum = binary.LittleEndian.Uint32(cksum)

	if g.MapPath, err = r.ReadCString(); err != nil {
		return fmt.Errorf("GameSettings.MapPath: %w", err)
	}
	if g.HostName, err = r.ReadCString(); err != nil {
		return fmt.Errorf("GameSettings.HostName: %w", err)
	}
	if _, err := r.ReadByte(); err != nil { // trailing separator 0x00
		return err
	}
	sha1, err := r.ReadFixedBytes(20)
	if err != nil {
		return fmt.Errorf("GameSettings.SHA1: %w", err)
	}
	copy(g.SHA1[:], sha1)
	return nil
}

// EncodeStatString packs and escapes g in one step.
func (g *GameSettings) EncodeStatString() []byte {
	return EncodeStatString(g.Pack())
}

// DecodeGameSettingsStatString reverses EncodeStatString (including the
// unescape step) into a GameSettings value.
func DecodeGameSettingsStatString(enc []byte) (*GameSettings, error) {
	raw, err := DecodeStatString(enc)
	if err != nil {
		return nil, fmt.Errorf("wire: DecodeGameSettingsStatString: %w", err)
	}
	g := &GameSettings{}
	if err := g.Unpack(raw); err != nil {
		return nil, err
	}
	return g, nil
}
