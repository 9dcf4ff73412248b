// Package control implements the channel-0 control service: the
// version/buffer-size sync handshake, graceful close, and remote reset
// (spec.md §4.6). Callers attach it to a transport themselves, on
// Channel (0), which is reserved for it by convention.
package control

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
	"github.com/librescoot/serialtransport/pkg/logx"
	"github.com/librescoot/serialtransport/pkg/service"
	"github.com/librescoot/serialtransport/pkg/transport"
)

// Packet ids reserved on channel 0.
const (
	PacketSync  uint8 = 5
	PacketClose uint8 = 7
	PacketReset uint8 = 8
)

// Channel is the channel number the control service is conventionally
// attached to.
const Channel uint8 = 0

// prologue cues the peer into binary mode before the first sync
// attempt. It is the only plaintext byte sequence this transport ever
// emits on the wire.
const prologue = "\nM28B1\n"

var syncSchema = codec.NewSchema("Sync",
	codec.U8("version_major"),
	codec.U8("version_minor"),
	codec.U8("version_patch"),
	codec.U16("serial_buffer_size"),
	codec.U16("payload_buffer_size"),
)

var closeSchema = codec.NewSchema("Close")
var resetSchema = codec.NewSchema("Reset")

// Version is the three-part protocol version advertised in SYNC.
type Version struct {
	Major, Minor, Patch uint8
}

// Control is the channel-0 service. It embeds *service.Service so
// Attach sees it as a transport.Service and Binder without any extra
// plumbing, and overrides Dispatch to intercept SYNC replies itself
// rather than stash them in the general inbox.
type Control struct {
	*service.Service

	logger logx.Logger

	version           Version
	serialBufferSize  int
	payloadBufferSize int
	prologueSent      atomic.Bool
}

// New constructs the control service. serialBufferSize and
// payloadBufferSize are the locally advertised buffer capacities sent
// in SYNC; payloadBufferSize is also the ceiling this side is willing
// to negotiate down to when the peer advertises a smaller one.
func New(logger logx.Logger, version Version, serialBufferSize, payloadBufferSize int) *Control {
	if logger == nil {
		logger = logx.Default()
	}
	svc := service.New("control", logger)
	c := &Control{
		Service:           svc,
		logger:            logger,
		version:           version,
		serialBufferSize:  serialBufferSize,
		payloadBufferSize: payloadBufferSize,
	}
	svc.RegisterPacket(PacketSync, syncSchema)
	svc.RegisterPacket(PacketClose, closeSchema)
	svc.RegisterPacket(PacketReset, resetSchema)
	return c
}

// Dispatch satisfies transport.Service, shadowing the embedded
// *service.Service implementation so SYNC replies are handled here
// instead of landing in the general inbox.
func (c *Control) Dispatch(packetID uint8, rec *codec.Record, source *frame.DataFrame) {
	if packetID == PacketSync {
		c.handleSyncReply(rec, source)
		return
	}
	c.Service.Dispatch(packetID, rec, source)
}

func (c *Control) handleSyncReply(rec *codec.Record, source *frame.DataFrame) {
	t := c.Service.Transport()
	if t == nil {
		return
	}
	raw, _ := rec.Get("payload_buffer_size")
	peerSize, ok := raw.(uint16)
	if !ok {
		c.logger.Warn("sync reply missing payload_buffer_size")
		return
	}
	t.SetSynchronised(int(peerSize))

	if source != nil && source.Header.PacketType == frame.TypeDataFAF {
		c.sendSyncFAF()
	}
}

// Synchronise emits the plaintext prologue (once per transport
// lifetime) and sends the initial SYNC attempt as DATA_FAF. It
// satisfies the `interface{ Synchronise() }` that transport.Connect
// and transport.Reconnect expect of their control argument.
func (c *Control) Synchronise() {
	t := c.Service.Transport()
	if t == nil {
		return
	}
	if c.prologueSent.CompareAndSwap(false, true) {
		if err := t.WriteRaw([]byte(prologue)); err != nil {
			c.logger.Error("failed to write sync prologue", "err", err)
		}
	}
	c.sendSyncFAF()
}

func (c *Control) sendSyncFAF() {
	t := c.Service.Transport()
	if t == nil {
		return
	}
	rec, err := syncSchema.New(c.version.Major, c.version.Minor, c.version.Patch,
		uint16(c.serialBufferSize), uint16(c.payloadBufferSize))
	if err != nil {
		c.logger.Error("failed to build sync record", "err", err)
		return
	}
	payload, err := codec.Encode(rec)
	if err != nil {
		c.logger.Error("failed to encode sync record", "err", err)
		return
	}
	t.SendDirect(frame.TypeDataFAF, Channel, PacketSync, payload, &directPacket{id: PacketSync, payload: payload})
}

// Close sends a blocking CLOSE and marks the transport disconnected
// once the handshake settles, win or lose.
func (c *Control) Close(ctx context.Context) error {
	rec, err := closeSchema.New()
	if err != nil {
		return err
	}
	status, err := c.Service.SendPacket(ctx, PacketClose, rec, frame.TypeData, true)
	if t := c.Service.Transport(); t != nil {
		t.MarkDisconnected()
	}
	if err != nil {
		return err
	}
	if status != transport.StatusComplete {
		return fmt.Errorf("control: close was not acknowledged (status %s)", status)
	}
	return nil
}

// Reset requests a remote reboot. It is fire-and-forget: the caller is
// responsible for understanding that any packets still in flight will
// be lost when the peer restarts.
func (c *Control) Reset() error {
	c.logger.Warn("requesting remote reset; in-flight packets will be lost")
	rec, err := resetSchema.New()
	if err != nil {
		return err
	}
	_, err = c.Service.SendPacket(context.Background(), PacketReset, rec, frame.TypeData, false)
	return err
}

// directPacket is a minimal transport.OutboundPacket for the
// fire-and-forget initial SYNC attempt, which nobody blocks on.
type directPacket struct {
	id      uint8
	payload []byte
}

func (p *directPacket) PacketID() uint8            { return p.id }
func (p *directPacket) Payload() ([]byte, error)   { return p.payload, nil }
func (p *directPacket) SetStatus(transport.Status) {}
