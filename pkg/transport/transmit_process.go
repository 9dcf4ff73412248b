package transport

import (
	"time"

	"github.com/librescoot/serialtransport/pkg/frame"
)

// processTransmit is the transmit half of one worker iteration: drain
// synchronised services into the global data queue, then write one
// pending response (always) and, if the window has room, admit and
// write one pending data frame.
func (t *Transport) processTransmit() error {
	if t.IsSynchronised() {
		t.drainServiceQueues()
	}

	if item, ok := t.out.popResponse(); ok {
		if err := t.writeResponse(item); err != nil {
			return err
		}
	}

	if !t.tx.canAdmit() {
		return nil
	}
	item, ok := t.out.popData()
	if !ok {
		return nil
	}
	return t.writeData(item)
}

// drainServiceQueues pulls at most one outbound packet from each
// attached service, round-robin, and pushes it onto the global data
// queue — the same one-per-service-per-iteration fairness the
// original's `for channel in self.services` loop gives.
func (t *Transport) drainServiceQueues() {
	t.mu.RLock()
	order := make([]uint8, len(t.serviceOrder))
	copy(order, t.serviceOrder)
	services := make(map[uint8]Service, len(t.services))
	for k, v := range t.services {
		services[k] = v
	}
	t.mu.RUnlock()

	for _, ch := range order {
		svc := services[ch]
		packetType, pkt, ok := svc.DequeueOutbound()
		if !ok {
			continue
		}
		payload, err := pkt.Payload()
		if err != nil {
			t.logger.Error("outbound payload encode failed", "channel", ch, "err", err)
			pkt.SetStatus(StatusFailed)
			continue
		}
		t.out.pushData(outboundItem{
			packetType: packetType,
			channel:    ch,
			packetID:   pkt.PacketID(),
			payload:    payload,
			packet:     pkt,
		})
	}
}

func (t *Transport) writeResponse(item responseItem) error {
	rf := frame.NewResponseFrame(item.kind, item.syncID)
	raw := rf.MarshalBinary()
	if _, err := t.channel.Write(raw); err != nil {
		return newError(KindIO, "write response", err)
	}
	if t.rawOut != nil {
		t.rawOut.Write(raw)
	}
	return nil
}

// writeData admits a data-frame request into the window (unless it is
// fire-and-forget) and writes it to the wire, per spec.md §4.4b.
func (t *Transport) writeData(item outboundItem) error {
	if item.packetType == frame.TypeDataFAF {
		df := frame.NewDataFrame(frame.TypeDataFAF, item.channel, item.packetID, item.payload)
		raw := df.MarshalBinary()
		if item.packet != nil {
			item.packet.SetStatus(StatusComplete)
		}
		if _, err := t.channel.Write(raw); err != nil {
			return newError(KindIO, "write data", err)
		}
		if t.rawOut != nil {
			t.rawOut.Write(raw)
		}
		return nil
	}

	packetType := item.packetType
	if t.tx.shouldPromote() && packetType == frame.TypeDataNack {
		packetType = frame.TypeData
	}

	df := frame.NewDataFrame(packetType, item.channel, item.packetID, item.payload)
	df.Header.Sync = t.tx.nextSync()
	entry := &windowEntry{df: df, packet: item.packet, admittedAt: time.Now()}
	entry.setStatus(StatusInTransit)
	t.tx.admit(entry)

	raw := df.MarshalBinary()
	if _, err := t.channel.Write(raw); err != nil {
		return newError(KindIO, "write data", err)
	}
	if t.rawOut != nil {
		t.rawOut.Write(raw)
	}
	return nil
}
