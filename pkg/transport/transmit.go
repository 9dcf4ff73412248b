package transport

import (
	"sync"
	"time"

	"github.com/librescoot/serialtransport/pkg/frame"
)

// maxWindowGate is the transmit window's hard cap: the worker only
// moves a frame from the global transmit queue into the window while
// the window is shorter than this, keeping window.size <= 255 at all
// times per spec.md §4.4b/§8.
const maxWindowGate = 255

// promoteThreshold is the window length at which the next DATA_NACK
// frame about to enter the window is upgraded to DATA, forcing an ack
// and bounding how long an unacknowledged frame can sit unconfirmed.
// One below maxWindowGate: the entry being admitted at this point is
// the last one the cap allows in.
const promoteThreshold = maxWindowGate - 1

// windowEntry is one in-flight data frame plus the service-side handle
// used to report completion back to a blocking SendPacket caller.
type windowEntry struct {
	df         *frame.DataFrame
	packet     OutboundPacket
	status     Status
	admittedAt time.Time
}

func (e *windowEntry) setStatus(s Status) {
	e.status = s
	if e.packet != nil {
		e.packet.SetStatus(s)
	}
}

// transmitStream is the transmit-side stream state from §3: last
// assigned sync, last acknowledged sync, and the FIFO window.
type transmitStream struct {
	mu         sync.Mutex
	syncSet    bool
	sync       uint8
	syncLast   uint8
	window     []*windowEntry
}

func (t *transmitStream) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncSet = false
	t.sync = 0
	t.syncLast = 0
	t.window = nil
}

// nextSync assigns and records the next sync number mod 256.
func (t *transmitStream) nextSync() uint8 {
	if !t.syncSet {
		t.sync = 0
		t.syncSet = true
	} else {
		t.sync = (t.sync + 1) & 0xFF
	}
	return t.sync
}

func (t *transmitStream) windowLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window)
}

// canAdmit reports whether the window has room for another in-flight
// frame, gating the worker's drain of the global transmit queue.
func (t *transmitStream) canAdmit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window) < maxWindowGate
}

// shouldPromote reports whether the window is at the threshold where a
// DATA_NACK about to be admitted should be upgraded to DATA.
func (t *transmitStream) shouldPromote() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window) == promoteThreshold
}

func (t *transmitStream) admit(e *windowEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = append(t.window, e)
}

// indexOf returns the position of the entry with the given sync, or -1.
func (t *transmitStream) indexOf(sync uint8) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.window {
		if e.df.Header.Sync == sync {
			return i
		}
	}
	return -1
}

// popFront removes and returns the head entry.
func (t *transmitStream) popFront() *windowEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.window) == 0 {
		return nil
	}
	e := t.window[0]
	t.window = t.window[1:]
	return e
}

// drainAll empties the window, returning its entries in their original
// front-to-back order so the caller can requeue them onto the front of
// the transmit queue in that same order (the original pops from the
// back and prepends one at a time, which nets out to this order).
func (t *transmitStream) drainAll() []*windowEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.window
	t.window = nil
	return out
}

func (t *transmitStream) head() *windowEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.window) == 0 {
		return nil
	}
	return t.window[0]
}

// headIsStale reports whether the window's head entry has been
// in-transit longer than timeout with no response, for the worker's
// watchdog (spec.md §9's timeout TODO, resolved in SPEC_FULL §4.4).
func (t *transmitStream) headIsStale(timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.window) == 0 {
		return false
	}
	return time.Since(t.window[0].admittedAt) > timeout
}

func (t *transmitStream) setSyncLast(v uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncLast = v
}
