// Package protocol implements the MazeWar wire format: a fixed 16-byte
// header, network byte order for multi-byte fields, and an optional
// variable-length payload — see SPEC_FULL.md §4.1.
package protocol

// FrameType identifies the kind of packet on the wire. Values are fixed
// by compatibility with existing clients (spec.md §4.1).
type FrameType uint8

const (
	TypeLogin   FrameType = iota // C->S: request login. param1=avatar, payload=username.
	TypeMove                     // C->S: step. param1=sign (+1/-1).
	TypeTurn                     // C->S: rotate. param1=sign (+1=CCW, -1=CW).
	TypeFire                     // C->S: fire laser.
	TypeRefresh                  // C->S: force full view redraw.
	TypeSend                     // C->S: chat. payload=message bytes.
	TypeReady                    // S->C: login accepted.
	TypeInUse                    // S->C: avatar taken.
	TypeClear                    // S->C: clear client view.
	TypeShow                     // S->C: paint one view cell. param1=byte, param2=x, param3=d.
	TypeAlert                    // S->C: you were hit.
	TypeScore                    // S->C: scoreboard update. param1=avatar, param2=score (-1=remove).
	TypeChat                     // S->C: broadcast chat line. payload=text.
)

// HeaderSize is the fixed on-wire size of Header, in bytes.
const HeaderSize = 16

// Header is the fixed packet header described in spec.md §3. Fields are
// always held here in host byte order; Send/Recv handle the network
// byte order conversion for Size, TimestampSec and TimestampNsec.
type Header struct {
	Type          FrameType
	Size          uint16
	Param1        uint8
	Param2        uint8
	Param3        uint8
	TimestampSec  uint32
	TimestampNsec uint32
}

// Size, TimestampSec and TimestampNsec on a Header passed to Send are
// overwritten from the payload length and the current clock reading
// respectively; callers only need to set Type and the Param fields.
