package service

import (
	"sync"

	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/transport"
)

// outboundPacket adapts a service-level send request to
// transport.OutboundPacket, giving a blocking SendPacket caller a
// channel that closes once the frame reaches a terminal status.
type outboundPacket struct {
	id  uint8
	rec *codec.Record

	mu   sync.Mutex
	st   transport.Status
	done chan struct{}
	once sync.Once
}

func newOutboundPacket(id uint8, rec *codec.Record) *outboundPacket {
	return &outboundPacket{id: id, rec: rec, done: make(chan struct{})}
}

func (p *outboundPacket) PacketID() uint8 { return p.id }

func (p *outboundPacket) Payload() ([]byte, error) {
	return codec.Encode(p.rec)
}

func (p *outboundPacket) SetStatus(s transport.Status) {
	p.mu.Lock()
	p.st = s
	p.mu.Unlock()

	if s == transport.StatusComplete || s == transport.StatusFailed {
		p.once.Do(func() { close(p.done) })
	}
}

func (p *outboundPacket) status() transport.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}
