// Package service implements the per-channel packet registry and
// dispatch primitives services build on: a packet-id-to-schema table,
// a generic inbox, and scope-bound typed listeners (spec.md §4.5).
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
	"github.com/librescoot/serialtransport/pkg/logx"
	"github.com/librescoot/serialtransport/pkg/transport"
)

// waitPollInterval is how often WaitPacket rechecks the inbox. The
// original poller uses the same short-sleep-and-recheck shape.
const waitPollInterval = 2 * time.Millisecond

// Packet is a decoded inbound record together with its originating
// frame, kept only for diagnostics (e.g. reporting the channel/sync it
// arrived on).
type Packet struct {
	ID     uint8
	Record *codec.Record
	Source *frame.DataFrame
}

// Service is a channel-attached consumer of decoded packets: a
// packet-id-to-schema table, a catch-all inbox, and per-packet-id
// typed listeners, plus an outbound queue the transport worker drains.
type Service struct {
	name   string
	logger logx.Logger

	mu        sync.Mutex
	schemas   map[uint8]*codec.Schema
	inbox     []*Packet
	listeners map[uint8]chan *Packet

	outMu sync.Mutex
	out   []pendingSend

	transport *transport.Transport
}

type pendingSend struct {
	packetType frame.PacketType
	pkt        *outboundPacket
}

// New constructs a Service. name is used only in log lines.
func New(name string, logger logx.Logger) *Service {
	if logger == nil {
		logger = logx.Default()
	}
	return &Service{
		name:      name,
		logger:    logger,
		schemas:   make(map[uint8]*codec.Schema),
		listeners: make(map[uint8]chan *Packet),
	}
}

// BindTransport satisfies transport.Binder; Transport.Attach calls
// this automatically.
func (s *Service) BindTransport(t *transport.Transport) {
	s.transport = t
}

// Transport returns the transport this service was attached to, or nil
// before Attach runs. Services that need to reach transport-level
// operations not exposed through the Service interface (raw writes,
// direct sends, sync-state updates) use this accessor.
func (s *Service) Transport() *transport.Transport {
	return s.transport
}

// RegisterPacket binds a schema to a packet id on this service.
func (s *Service) RegisterPacket(packetID uint8, schema *codec.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("registered packet", "service", s.name, "packet_id", packetID, "schema", schema.Name)
	s.schemas[packetID] = schema
}

// Schema satisfies transport.Service.
func (s *Service) Schema(packetID uint8) (*codec.Schema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schemas[packetID]
	return sc, ok
}

// Dispatch satisfies transport.Service: route a decoded record to the
// active listener for its packet id, or the general inbox.
func (s *Service) Dispatch(packetID uint8, rec *codec.Record, source *frame.DataFrame) {
	p := &Packet{ID: packetID, Record: rec, Source: source}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.listeners[packetID]; ok {
		select {
		case ch <- p:
		default:
			// a full listener channel means the caller isn't draining;
			// fall back to the inbox rather than blocking the worker.
			s.inbox = append(s.inbox, p)
		}
		return
	}
	s.inbox = append(s.inbox, p)
}

// DequeueOutbound satisfies transport.Service.
func (s *Service) DequeueOutbound() (frame.PacketType, transport.OutboundPacket, bool) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if len(s.out) == 0 {
		return 0, nil, false
	}
	item := s.out[0]
	s.out = s.out[1:]
	return item.packetType, item.pkt, true
}

// SendPacket encodes rec with its registered schema and enqueues it
// for transmission as packetType. If block is true and packetType is
// DATA, SendPacket waits until the frame's status becomes COMPLETE or
// FAILED, or ctx is done (returning transport.ErrTimeout).
func (s *Service) SendPacket(ctx context.Context, packetID uint8, rec *codec.Record, packetType frame.PacketType, block bool) (transport.Status, error) {
	schema, ok := s.Schema(packetID)
	if !ok {
		return transport.StatusNone, fmt.Errorf("service %s: packet id %d is not registered", s.name, packetID)
	}
	if rec == nil {
		var err error
		rec, err = schema.New()
		if err != nil {
			return transport.StatusNone, err
		}
	}

	pkt := newOutboundPacket(packetID, rec)
	s.outMu.Lock()
	s.out = append(s.out, pendingSend{packetType: packetType, pkt: pkt})
	s.outMu.Unlock()

	if !block || packetType != frame.TypeData {
		return pkt.status(), nil
	}

	select {
	case <-pkt.done:
		return pkt.status(), nil
	case <-ctx.Done():
		return pkt.status(), transport.ErrTimeout
	}
}

// WaitPacket blocks until a packet of the given id appears in the
// inbox (skipping any non-matching packets already queued there), or
// ctx is done. It polls rather than signals: the worker goroutine that
// populates the inbox must never block on a waiter showing up.
func (s *Service) WaitPacket(ctx context.Context, packetID uint8) (*Packet, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		for i, p := range s.inbox {
			if p.ID == packetID {
				s.inbox = append(s.inbox[:i], s.inbox[i+1:]...)
				s.mu.Unlock()
				return p, nil
			}
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, transport.ErrTimeout
		case <-ticker.C:
		}
	}
}

// Listener is a scope-bound typed FIFO: packets matching its packet id
// bypass the general inbox while the listener is active.
type Listener struct {
	ch      chan *Packet
	service *Service
	id      uint8
}

// C returns the listener's channel.
func (l *Listener) C() <-chan *Packet { return l.ch }

// Close removes the listener, guaranteeing teardown at scope exit.
func (l *Listener) Close() {
	l.service.mu.Lock()
	defer l.service.mu.Unlock()
	delete(l.service.listeners, l.id)
}

// Listen installs a typed listener for packetID. At most one listener
// per packet id may be active at a time.
func (s *Service) Listen(packetID uint8) (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.listeners[packetID]; exists {
		return nil, fmt.Errorf("service %s: listener already active for packet id %d", s.name, packetID)
	}
	ch := make(chan *Packet, 16)
	s.listeners[packetID] = ch
	return &Listener{ch: ch, service: s, id: packetID}, nil
}

// MaxBlockSize reports the negotiated payload ceiling for the attached
// transport, 0 before synchronisation.
func (s *Service) MaxBlockSize() int {
	if s.transport == nil {
		return 0
	}
	return s.transport.MaxBlockSize()
}
