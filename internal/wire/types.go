package wire

// Lobby/connect namespace type_id values. These are wire-compatible
// constants: changing a numeric value breaks every existing client, so they
// are never renumbered, only added to.
const (
	TypeConnectLobby                     uint8 = 0x01 // C->S
	TypeConnectAccept                    uint8 = 0x02 // S->C
	TypeConnectReject                    uint8 = 0x03 // S->C
	TypeClientDisconnect                 uint8 = 0x04 // S->C

	TypePing uint8 = 0x10 // S->C
	TypePong uint8 = 0x11 // C->S

	TypeGameInfo              uint8 = 0x20 // S->C
	TypeGamePlayerEnter       uint8 = 0x21 // S->C
	TypeGamePlayerLeave       uint8 = 0x22 // S->C
	TypeGameSlotUpdate        uint8 = 0x23 // S->C
	TypeGameSlotUpdateRequest uint8 = 0x24 // C->S
	TypeGameSelectNode        uint8 = 0x25 // S<->C

	TypeGameStartRequest                  uint8 = 0x30 // C->S
	TypeGameStarting                      uint8 = 0x31 // S->C
	TypeGameStartReject                   uint8 = 0x32 // S->C
	TypeGameStartPlayerClientInfoRequest  uint8 = 0x33 // C->S
	TypeGamePlayerToken                   uint8 = 0x34 // S->C

	TypePlayerPingMapUpdateRequest       uint8 = 0x40 // C->S
	TypePlayerPingMapUpdate              uint8 = 0x41 // S->C
	TypeGamePlayerPingMapSnapshotRequest uint8 = 0x42 // C->S
	TypeGamePlayerPingMapSnapshot        uint8 = 0x43 // S->C

	TypeListNodesRequest uint8 = 0x50 // C->S
	TypeListNodes        uint8 = 0x51 // S<->C
)

// ConnectReject reason codes.
const (
	RejectInvalidToken   = "invalid token"
	RejectVersionTooOld  = "client version too old"
)

// ClientDisconnect / GameStartReject reason tags.
const (
	ReasonMultiLogin       = "multi_login"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonLeft             = "left"

	StartRejectVersionMismatch = "game version check failed"
	StartRejectTimeout         = "did not response in time"
)
