package transport

import (
	"fmt"

	"github.com/librescoot/serialtransport/pkg/checksum"
	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
)

// rxState is the receive parser's explicit state, stepped once per
// worker iteration rather than expressed as closures over self (the
// original) or an inline byte-at-a-time switch (the teacher's
// usock.go) — the same shape as both, generalized to carry sync
// numbers, retry budget, and response dispatch.
type rxState int

const (
	rxReset rxState = iota
	rxWait
	rxHeader
	rxData
	rxFooter
	rxResend
	rxError
	rxResponse
)

func (s rxState) String() string {
	switch s {
	case rxReset:
		return "RESET"
	case rxWait:
		return "WAIT"
	case rxHeader:
		return "HEADER"
	case rxData:
		return "DATA"
	case rxFooter:
		return "FOOTER"
	case rxResend:
		return "RESEND"
	case rxError:
		return "ERROR"
	case rxResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// receiveStream is the receive-side stream state from §3.
type receiveStream struct {
	state   rxState
	sync    uint8
	retries int

	buf        []byte
	header     frame.DataHeader
	current    *frame.DataFrame
	payloadCRC uint16
}

func (r *receiveStream) resetConnection() {
	r.sync = 0
	r.retries = 0
	r.resetPacket()
}

func (r *receiveStream) resetPacket() {
	r.state = rxReset
	r.buf = nil
	r.current = nil
	r.payloadCRC = 0
}

// receiveStep advances the receive parser by one step, reading
// whatever bytes are immediately available from the channel. It never
// blocks; the worker loop calls it repeatedly.
func (t *Transport) receiveStep() error {
	switch t.rx.state {
	case rxReset:
		t.rx.resetPacket()
		t.rx.state = rxWait
		return nil
	case rxWait:
		return t.stepWait()
	case rxHeader:
		return t.stepHeader()
	case rxData:
		return t.stepData()
	case rxFooter:
		return t.stepFooter()
	case rxResend:
		return t.stepResend()
	case rxError:
		return t.stepError()
	case rxResponse:
		return t.stepResponse()
	default:
		return fmt.Errorf("transport: unknown receive state %v", t.rx.state)
	}
}

func (t *Transport) readBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	b, err := t.channel.Read(n)
	if err != nil {
		return nil, newError(KindIO, "read", err)
	}
	if len(b) > 0 && t.rawIn != nil {
		t.rawIn.Write(b)
	}
	return b, nil
}

func (t *Transport) stepWait() error {
	if t.channel.BytesAvailable() <= 0 {
		return nil
	}
	b, err := t.readBytes(1)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	t.rx.buf = append(t.rx.buf, b...)
	if len(t.rx.buf) != 2 {
		return nil
	}

	pt, ok := frame.PeekPacketType(t.rx.buf)
	if !ok {
		// noise on the bus: drop the oldest byte and keep resyncing
		t.rx.buf = t.rx.buf[1:]
		return nil
	}
	if pt == frame.TypeResponse {
		t.rx.state = rxResponse
	} else {
		t.rx.header = frame.DataHeader{PacketType: pt}
		t.rx.state = rxHeader
	}
	return nil
}

func (t *Transport) stepHeader() error {
	need := frame.DataHeaderSize - len(t.rx.buf)
	b, err := t.readBytes(need)
	if err != nil {
		return err
	}
	t.rx.buf = append(t.rx.buf, b...)
	if len(t.rx.buf) != frame.DataHeaderSize {
		return nil
	}

	header, err := frame.UnmarshalDataHeader(t.rx.buf)
	if err != nil {
		t.logger.Error("header parse failed", "err", err)
		t.rx.state = rxError
		return nil
	}
	valid := header.HeaderCRCValid(t.rx.buf)

	switch {
	case valid && (header.Sync == t.rx.sync || header.PacketType == frame.TypeDataFAF):
		t.rx.header = header
		if header.PayloadSize == 0 {
			t.rx.current = &frame.DataFrame{Header: header}
			t.dispatchFrame(t.rx.current)
			t.rx.state = rxReset
		} else {
			t.rx.current = &frame.DataFrame{Header: header, Payload: make([]byte, 0, header.PayloadSize)}
			t.rx.payloadCRC = 0
			t.rx.buf = nil
			t.rx.state = rxData
		}

	case valid && header.Sync == (t.rx.sync-1)&0xFF:
		// previous ACK was lost; the peer is retransmitting what we
		// already accepted — re-emit the ACK and drop the duplicate.
		t.enqueueResponse(frame.ResponseACK, (t.rx.sync-1)&0xFF)
		t.rx.state = rxReset

	case valid && t.rx.retries == 0:
		t.rx.state = rxResend

	case valid:
		// mismatched sync while already retrying: drop everything
		t.rx.state = rxReset

	case !valid && header.PacketType == frame.TypeDataFAF:
		// corrupt FAF header: best-effort, just drop it
		t.rx.state = rxReset

	case !valid && t.rx.retries > 0:
		t.rx.state = rxReset

	default:
		t.rx.state = rxResend
	}
	return nil
}

func (t *Transport) stepData() error {
	need := int(t.rx.current.Header.PayloadSize) - len(t.rx.current.Payload)
	b, err := t.readBytes(need)
	if err != nil {
		return err
	}
	if len(b) > 0 {
		t.rx.payloadCRC = checksum.CRC16(t.rx.payloadCRC, b)
		t.rx.current.Payload = append(t.rx.current.Payload, b...)
	}
	if len(t.rx.current.Payload) != int(t.rx.current.Header.PayloadSize) {
		return nil
	}
	t.rx.buf = nil
	t.rx.state = rxFooter
	return nil
}

func (t *Transport) stepFooter() error {
	need := frame.DataFooterSize - len(t.rx.buf)
	b, err := t.readBytes(need)
	if err != nil {
		return err
	}
	t.rx.buf = append(t.rx.buf, b...)
	if len(t.rx.buf) != frame.DataFooterSize {
		return nil
	}

	footer, err := frame.UnmarshalDataFooter(t.rx.buf)
	if err != nil {
		return err
	}
	t.rx.current.Footer = footer
	if t.rx.payloadCRC == footer.Checksum {
		t.dispatchFrame(t.rx.current)
		t.rx.state = rxReset
	} else {
		t.rx.state = rxResend
	}
	return nil
}

func (t *Transport) stepResend() error {
	if t.rx.retries < t.maxRetries {
		t.rx.retries++
		t.enqueueResponse(frame.ResponseNACK, t.rx.sync)
		t.rx.state = rxReset
		return nil
	}
	t.rx.state = rxError
	return nil
}

func (t *Transport) stepError() error {
	t.logger.Error("data stream error, resetting receive connection")
	t.rx.resetConnection()
	return nil
}

func (t *Transport) stepResponse() error {
	need := frame.ResponseSize - len(t.rx.buf)
	b, err := t.readBytes(need)
	if err != nil {
		return err
	}
	t.rx.buf = append(t.rx.buf, b...)
	if len(t.rx.buf) != frame.ResponseSize {
		return nil
	}

	resp, err := frame.UnmarshalResponseFrame(t.rx.buf)
	if err != nil {
		return err
	}
	if resp.CRCValid(t.rx.buf) {
		t.processResponse(resp)
	} else {
		t.logger.Warn("corrupt response frame discarded")
	}
	t.rx.state = rxReset
	return nil
}

// dispatchFrame hands an accepted data frame to its channel's service,
// or rejects it when the channel or packet id is unregistered.
//
// Expected sync only advances on this path for non-FAF frames; a
// REJECT leaves it unchanged (spec.md §4.5, §7) — a deliberate
// clarification of the original, whose dispatch_packet increments
// rx_stream.sync unconditionally after both the accept and reject
// branches, which would silently desynchronise a peer that only ever
// sends unregistered packet ids.
func (t *Transport) dispatchFrame(df *frame.DataFrame) {
	svc, ok := t.serviceFor(df.Header.Channel)
	var schema *codec.Schema
	if ok {
		schema, ok = svc.Schema(df.Header.PacketID)
	}
	if !ok {
		t.logger.Debug("rejected inbound frame", "channel", df.Header.Channel, "packet_id", df.Header.PacketID)
		t.enqueueResponse(frame.ResponseREJECT, df.Header.Sync)
		return
	}

	rec, err := codec.Decode(schema, df.Payload)
	if err != nil {
		t.logger.Error("payload decode failed", "channel", df.Header.Channel, "packet_id", df.Header.PacketID, "err", err)
		t.enqueueResponse(frame.ResponseREJECT, df.Header.Sync)
		return
	}

	svc.Dispatch(df.Header.PacketID, rec, df)
	t.enqueueResponse(frame.ResponseACK, df.Header.Sync)

	if df.Header.PacketType != frame.TypeDataFAF {
		t.rx.sync = (t.rx.sync + 1) & 0xFF
	}
}

func (t *Transport) enqueueResponse(kind frame.ResponseKind, syncID uint8) {
	t.out.pushResponse(responseItem{kind: kind, syncID: syncID})
}
