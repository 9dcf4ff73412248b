package transport

import (
	"sync"

	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
	"github.com/librescoot/serialtransport/pkg/logx"
)

// fakeChannel is an in-memory ByteChannel for unit tests: bytes
// written via Write land in outbound, and bytes queued via feed() are
// returned by Read.
type fakeChannel struct {
	mu       sync.Mutex
	inbound  []byte
	outbound []byte
	writeErr error
}

func (f *fakeChannel) feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, b...)
}

func (f *fakeChannel) Read(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > len(f.inbound) {
		n = len(f.inbound)
	}
	b := f.inbound[:n]
	f.inbound = f.inbound[n:]
	return b, nil
}

func (f *fakeChannel) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.outbound = append(f.outbound, buf...)
	return len(buf), nil
}

func (f *fakeChannel) Open() error  { return nil }
func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) BytesAvailable() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inbound)
}

func (f *fakeChannel) takeOutbound() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.outbound
	f.outbound = nil
	return b
}

// fakePacket is a minimal OutboundPacket for tests.
type fakePacket struct {
	id      uint8
	payload []byte
	status  Status
}

func (p *fakePacket) PacketID() uint8            { return p.id }
func (p *fakePacket) Payload() ([]byte, error)    { return p.payload, nil }
func (p *fakePacket) SetStatus(s Status)          { p.status = s }

// fakeService is a minimal transport.Service for tests.
type fakeService struct {
	mu       sync.Mutex
	schemas  map[uint8]*codec.Schema
	inbox    []*codec.Record
	outbound []fakeOutbound
}

type fakeOutbound struct {
	packetType frame.PacketType
	pkt        *fakePacket
}

func newFakeService() *fakeService {
	return &fakeService{schemas: make(map[uint8]*codec.Schema)}
}

func (s *fakeService) register(id uint8, schema *codec.Schema) {
	s.schemas[id] = schema
}

func (s *fakeService) Schema(packetID uint8) (*codec.Schema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schemas[packetID]
	return sc, ok
}

func (s *fakeService) Dispatch(packetID uint8, rec *codec.Record, source *frame.DataFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = append(s.inbox, rec)
}

func (s *fakeService) enqueue(packetType frame.PacketType, pkt *fakePacket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbound = append(s.outbound, fakeOutbound{packetType: packetType, pkt: pkt})
}

func (s *fakeService) DequeueOutbound() (frame.PacketType, OutboundPacket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outbound) == 0 {
		return 0, nil, false
	}
	o := s.outbound[0]
	s.outbound = s.outbound[1:]
	return o.packetType, o.pkt, true
}

func newTestTransport(ch ByteChannel) *Transport {
	return New(ch, 512, WithLogger(logx.Nop{}))
}
