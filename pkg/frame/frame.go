// Package frame implements the fixed wire shapes of §3/§4.3: the 8-byte
// data-frame header, payload, and 2-byte footer, and the 5-byte response
// frame. These are plain structs with direct encoding/binary helpers —
// unlike pkg/codec's declarative payload schemas, the frame shape itself
// is fixed and never varies, so it is hand-encoded exactly the way the
// teacher's usock.go hand-encodes its own fixed header/footer.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/librescoot/serialtransport/pkg/checksum"
)

// PacketType is the 2-bit type carried in bits 8-9 of the little-endian
// start token, i.e. the low 2 bits of the second start-token byte.
type PacketType uint8

const (
	TypeResponse PacketType = iota
	TypeData
	TypeDataNack
	TypeDataFAF
)

func (t PacketType) String() string {
	switch t {
	case TypeResponse:
		return "RESPONSE"
	case TypeData:
		return "DATA"
	case TypeDataNack:
		return "DATA_NACK"
	case TypeDataFAF:
		return "DATA_FAF"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// ResponseKind is the kind byte of a Response frame.
type ResponseKind uint8

const (
	ResponseACK ResponseKind = iota
	ResponseNACK
	ResponseNYET
	ResponseREJECT
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseACK:
		return "ACK"
	case ResponseNACK:
		return "NACK"
	case ResponseNYET:
		return "NYET"
	case ResponseREJECT:
		return "REJECT"
	default:
		return fmt.Sprintf("ResponseKind(%d)", uint8(k))
	}
}

// headerTokenFixed is the 16-bit start token with the packet type bits
// cleared: the 14-bit pattern every frame start must match.
const headerTokenFixed = 0xACB5

// tokenTypeMask isolates the fixed 14-bit pattern, leaving bits 8-9
// (the packet type) free.
const tokenTypeMask = 0xFCFF

// encodeToken packs t into bits 8-9 of the 16-bit start token.
func encodeToken(t PacketType) uint16 {
	return headerTokenFixed | (uint16(t) << 8)
}

// PeekPacketType inspects a 2-byte start-token window and, if it matches
// the fixed frame pattern, returns the packet type it carries. ok is
// false when the two bytes are not a valid frame start (the caller
// should then discard the first byte and retry, as WAIT does in §4.4).
func PeekPacketType(tokenBytes []byte) (PacketType, bool) {
	if len(tokenBytes) < 2 {
		return 0, false
	}
	token := binary.LittleEndian.Uint16(tokenBytes)
	if token&tokenTypeMask != headerTokenFixed {
		return 0, false
	}
	return PacketType((token >> 8) & 0x03), true
}

// DataHeaderSize is the fixed 8-byte header length.
const DataHeaderSize = 8

// DataFooterSize is the fixed 2-byte footer length.
const DataFooterSize = 2

// ResponseSize is the fixed 5-byte response frame length.
const ResponseSize = 5

// DataHeader is the 8-byte header preceding a data frame's payload.
type DataHeader struct {
	PacketType  PacketType
	Sync        uint8
	Channel     uint8
	PacketID    uint8
	PayloadSize uint16
	Checksum    uint8
}

// MarshalBinary encodes the header, computing the CRC-8 over the first
// 7 bytes.
func (h DataHeader) MarshalBinary() []byte {
	buf := make([]byte, DataHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], encodeToken(h.PacketType))
	buf[2] = h.Sync
	buf[3] = h.Channel
	buf[4] = h.PacketID
	binary.LittleEndian.PutUint16(buf[5:7], h.PayloadSize)
	buf[7] = checksum.CRC8(0, buf[:7])
	return buf
}

// UnmarshalDataHeader parses an 8-byte header. It does not itself
// validate the checksum — callers compare the returned Checksum field
// against checksum.CRC8(0, raw[:7]).
func UnmarshalDataHeader(raw []byte) (DataHeader, error) {
	if len(raw) != DataHeaderSize {
		return DataHeader{}, fmt.Errorf("frame: data header must be %d bytes, got %d", DataHeaderSize, len(raw))
	}
	packetType, ok := PeekPacketType(raw[0:2])
	if !ok {
		return DataHeader{}, fmt.Errorf("frame: invalid start token")
	}
	return DataHeader{
		PacketType:  packetType,
		Sync:        raw[2],
		Channel:     raw[3],
		PacketID:    raw[4],
		PayloadSize: binary.LittleEndian.Uint16(raw[5:7]),
		Checksum:    raw[7],
	}, nil
}

// HeaderCRCValid reports whether the header's embedded checksum matches
// the CRC-8 over its first 7 bytes.
func (h DataHeader) HeaderCRCValid(raw []byte) bool {
	return len(raw) == DataHeaderSize && h.Checksum == checksum.CRC8(0, raw[:7])
}

// DataFooter is the 2-byte payload checksum trailing a data frame.
type DataFooter struct {
	Checksum uint16
}

func (f DataFooter) MarshalBinary() []byte {
	buf := make([]byte, DataFooterSize)
	binary.LittleEndian.PutUint16(buf, f.Checksum)
	return buf
}

func UnmarshalDataFooter(raw []byte) (DataFooter, error) {
	if len(raw) != DataFooterSize {
		return DataFooter{}, fmt.Errorf("frame: footer must be %d bytes, got %d", DataFooterSize, len(raw))
	}
	return DataFooter{Checksum: binary.LittleEndian.Uint16(raw)}, nil
}

// DataFrame is a complete data frame: header, payload, and footer.
type DataFrame struct {
	Header  DataHeader
	Payload []byte
	Footer  DataFooter
}

// NewDataFrame builds a data frame ready to transmit; Sync is left zero
// for the caller (typically the transmit window) to assign.
func NewDataFrame(packetType PacketType, channel, packetID uint8, payload []byte) *DataFrame {
	return &DataFrame{
		Header: DataHeader{
			PacketType:  packetType,
			Channel:     channel,
			PacketID:    packetID,
			PayloadSize: uint16(len(payload)),
		},
		Payload: payload,
	}
}

// MarshalBinary encodes the complete frame, computing the payload's
// CRC-16 footer over the exact bytes being sent.
func (f *DataFrame) MarshalBinary() []byte {
	f.Header.PayloadSize = uint16(len(f.Payload))
	f.Footer = DataFooter{Checksum: checksum.CRC16(0, f.Payload)}

	out := make([]byte, 0, DataHeaderSize+len(f.Payload)+DataFooterSize)
	out = append(out, f.Header.MarshalBinary()...)
	out = append(out, f.Payload...)
	out = append(out, f.Footer.MarshalBinary()...)
	return out
}

// ResponseFrame is the 5-byte ACK/NACK/NYET/REJECT frame.
type ResponseFrame struct {
	Kind     ResponseKind
	SyncID   uint8
	Checksum uint8
}

func NewResponseFrame(kind ResponseKind, syncID uint8) *ResponseFrame {
	return &ResponseFrame{Kind: kind, SyncID: syncID}
}

func (r *ResponseFrame) MarshalBinary() []byte {
	buf := make([]byte, ResponseSize)
	binary.LittleEndian.PutUint16(buf[0:2], encodeToken(TypeResponse))
	buf[2] = uint8(r.Kind)
	buf[3] = r.SyncID
	buf[4] = checksum.CRC8(0, buf[:4])
	r.Checksum = buf[4]
	return buf
}

func UnmarshalResponseFrame(raw []byte) (*ResponseFrame, error) {
	if len(raw) != ResponseSize {
		return nil, fmt.Errorf("frame: response must be %d bytes, got %d", ResponseSize, len(raw))
	}
	if _, ok := PeekPacketType(raw[0:2]); !ok {
		return nil, fmt.Errorf("frame: invalid start token")
	}
	r := &ResponseFrame{
		Kind:     ResponseKind(raw[2]),
		SyncID:   raw[3],
		Checksum: raw[4],
	}
	return r, nil
}

// CRCValid reports whether the response's embedded checksum matches the
// CRC-8 over its first 4 bytes.
func (r *ResponseFrame) CRCValid(raw []byte) bool {
	return len(raw) == ResponseSize && r.Checksum == checksum.CRC8(0, raw[:4])
}
