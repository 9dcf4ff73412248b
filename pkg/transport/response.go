package transport

import "github.com/librescoot/serialtransport/pkg/frame"

// processResponse applies an incoming response frame to the transmit
// window per spec.md §4.4b.
func (t *Transport) processResponse(resp *frame.ResponseFrame) {
	idx := t.tx.indexOf(resp.SyncID)
	if idx < 0 {
		t.logger.Error("received invalid response", "sync_id", resp.SyncID, "kind", resp.Kind.String())
		return
	}

	// Cumulative ack: every entry strictly before sync_id in window
	// order is implicitly acknowledged by this response.
	for i := 0; i < idx; i++ {
		e := t.tx.popFront()
		e.setStatus(StatusComplete)
	}

	switch resp.Kind {
	case frame.ResponseACK:
		e := t.tx.popFront()
		e.setStatus(StatusComplete)
		t.tx.setSyncLast(resp.SyncID)

	case frame.ResponseREJECT:
		// the remote will never accept this frame; it is never retried.
		e := t.tx.popFront()
		e.setStatus(StatusFailed)
		t.tx.setSyncLast(resp.SyncID)

	default:
		// NACK, and NYET treated conservatively as NACK-like per
		// spec.md §9 — the per-channel tail-requeue sketched in the
		// original's comments is not implemented; unknown response
		// kinds fall into this same path.
		if resp.Kind == frame.ResponseNYET {
			t.logger.Warn("received NYET, handling as NACK-like retry", "sync_id", resp.SyncID)
		} else if resp.Kind != frame.ResponseNACK {
			t.logger.Warn("received unrecognized response kind, handling as NACK-like", "kind", resp.Kind.String())
		}

		entries := t.tx.drainAll()
		items := make([]outboundItem, 0, len(entries))
		for _, e := range entries {
			e.setStatus(StatusRetry)
			if t.notifier != nil {
				t.notifier.OnWindowDrop(e.df.Header.Sync, resp.Kind.String())
			}
			items = append(items, outboundItem{
				packetType: e.df.Header.PacketType,
				channel:    e.df.Header.Channel,
				packetID:   e.df.Header.PacketID,
				payload:    e.df.Payload,
				packet:     e.packet,
			})
		}
		t.out.pushDataFront(items)
	}
}

// watchdog marks the entire window RETRY and requeues it if the head
// entry has been waiting longer than responseTimeout with no
// response — the worker-level watchdog named in spec.md §9 as the
// chosen resolution for the original's unimplemented timeout TODOs.
func (t *Transport) watchdog() {
	if !t.tx.headIsStale(t.responseTimeout) {
		return
	}
	entries := t.tx.drainAll()
	if len(entries) == 0 {
		return
	}
	t.logger.Warn("response timeout, retrying window", "count", len(entries))
	items := make([]outboundItem, 0, len(entries))
	for _, e := range entries {
		e.setStatus(StatusRetry)
		if t.notifier != nil {
			t.notifier.OnWindowDrop(e.df.Header.Sync, "timeout")
		}
		items = append(items, outboundItem{
			packetType: e.df.Header.PacketType,
			channel:    e.df.Header.Channel,
			packetID:   e.df.Header.PacketID,
			payload:    e.df.Payload,
			packet:     e.packet,
		})
	}
	t.out.pushDataFront(items)
}
