package transport

import (
	"sync"

	"github.com/librescoot/serialtransport/pkg/frame"
)

// outboundItem is a data frame request awaiting a window slot.
type outboundItem struct {
	packetType frame.PacketType
	channel    uint8
	packetID   uint8
	payload    []byte
	packet     OutboundPacket
}

// responseItem is a response frame to emit. Unlike the original, which
// mixes responses into the same tx_queue and so gates them behind the
// transmit window's capacity check, responses here get their own
// queue and are always flushed ahead of data frames: an ACK/NACK/
// REJECT we owe the peer is unrelated to how full our own outbound
// window happens to be, and gating it the original's way would stall
// acknowledgement of inbound traffic whenever our window filled up.
type responseItem struct {
	kind   frame.ResponseKind
	syncID uint8
}

// outboundQueue holds the two FIFOs the worker drains each iteration:
// responses (always eligible) and data frames (gated by window room).
type outboundQueue struct {
	mu        sync.Mutex
	responses []responseItem
	data      []outboundItem
}

func (q *outboundQueue) pushResponse(item responseItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses = append(q.responses, item)
}

func (q *outboundQueue) popResponse() (responseItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.responses) == 0 {
		return responseItem{}, false
	}
	item := q.responses[0]
	q.responses = q.responses[1:]
	return item, true
}

func (q *outboundQueue) pushData(item outboundItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = append(q.data, item)
}

// pushDataFront requeues items (in the given order) ahead of whatever
// is already queued, used to retransmit a dropped window in its
// original order.
func (q *outboundQueue) pushDataFront(items []outboundItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = append(items, q.data...)
}

func (q *outboundQueue) popData() (outboundItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return outboundItem{}, false
	}
	item := q.data[0]
	q.data = q.data[1:]
	return item, true
}

func (q *outboundQueue) dataLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *outboundQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data) == 0 && len(q.responses) == 0
}
