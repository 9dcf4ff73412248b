package transport

import (
	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
)

// Status is the lifecycle state of a packet record, per §3.
type Status int

const (
	StatusNone Status = iota
	StatusReceiving
	StatusTransmitting
	StatusComplete
	StatusValid
	StatusPending
	StatusBuffered
	StatusInTransit
	StatusRetry
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusReceiving:
		return "RECEIVING"
	case StatusTransmitting:
		return "TRANSMITTING"
	case StatusComplete:
		return "COMPLETE"
	case StatusValid:
		return "VALID"
	case StatusPending:
		return "PENDING"
	case StatusBuffered:
		return "BUFFERED"
	case StatusInTransit:
		return "INTRANSIT"
	case StatusRetry:
		return "RETRY"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// OutboundPacket is whatever a Service hands to the transport for
// framing and transmission. The transport calls SetStatus as the
// packet's frame moves through the window so a service's blocking
// SendPacket can wait for it to reach a terminal status.
type OutboundPacket interface {
	PacketID() uint8
	Payload() ([]byte, error)
	SetStatus(Status)
}

// Service is the interface a channel-attached service presents to the
// transport: a schema table for decoding inbound frames, a dispatch
// sink for decoded packets, and an outbound queue the worker drains.
type Service interface {
	// Schema looks up the registered schema for a packet id on this
	// service, mirroring the original's per-service packet table.
	Schema(packetID uint8) (*codec.Schema, bool)
	// Dispatch delivers a decoded inbound record to the service's
	// inbox or an active typed listener.
	Dispatch(packetID uint8, rec *codec.Record, source *frame.DataFrame)
	// DequeueOutbound pops the next outbound packet queued by the
	// service, if any.
	DequeueOutbound() (frame.PacketType, OutboundPacket, bool)
}

// Notifier receives transport health events. Attaching one is
// optional; a nil Notifier is never called.
type Notifier interface {
	OnSynchronised(maxBlockSize int)
	OnReconnect(attempt int, err error)
	OnWindowDrop(sync uint8, reason string)
}
