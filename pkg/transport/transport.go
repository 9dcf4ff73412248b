// Package transport implements the reliable, framed, multi-channel
// serial transport engine: the byte-stream parser state machine, the
// transmit window with selective ACK/NACK/REJECT handling, and the
// worker loop that ties both to a set of attached channel services.
package transport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/librescoot/serialtransport/pkg/frame"
	"github.com/librescoot/serialtransport/pkg/logx"
)

const (
	defaultMaxRetries      = 8
	defaultResponseTimeout = 2 * time.Second
	defaultReconnectTries  = 5
)

// Binder is optionally implemented by a Service to receive the
// Transport handle it was attached to, mirroring the original's
// `service._transport_layer = self` wiring.
type Binder interface {
	BindTransport(t *Transport)
}

// Option configures a Transport at construction time.
type Option func(*Transport)

func WithLogger(l logx.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

func WithNotifier(n Notifier) Option {
	return func(t *Transport) { t.notifier = n }
}

func WithMaxRetries(n int) Option {
	return func(t *Transport) { t.maxRetries = n }
}

func WithResponseTimeout(d time.Duration) Option {
	return func(t *Transport) { t.responseTimeout = d }
}

// WithRawLogs attaches append-only diagnostic byte sinks mirroring the
// original's optional serial_in.log/serial_out.log artifacts. Either
// may be nil.
func WithRawLogs(in, out io.Writer) Option {
	return func(t *Transport) {
		t.rawIn = in
		t.rawOut = out
	}
}

// Transport is the engine from §4.4/§4.4b: one worker goroutine per
// instance, driving the receive parser, the transmit window, and
// dispatch to attached services.
type Transport struct {
	channel ByteChannel
	logger  logx.Logger

	notifier Notifier

	mu           sync.RWMutex
	services     map[uint8]Service
	serviceOrder []uint8

	defaultMaxBlockSize int
	maxBlockSize        int
	synchronised        atomic.Bool

	rx  *receiveStream
	tx  *transmitStream
	out *outboundQueue

	maxRetries      int
	responseTimeout time.Duration

	rawIn  io.Writer
	rawOut io.Writer

	active atomic.Bool
	done   chan struct{}

	// recoverConnection is bound by cmd wiring to Reconnect(control),
	// since Reconnect needs a handle capable of re-running the sync
	// handshake; nil means I/O errors only log, they don't recover.
	recoverConnection func() error
}

// SetReconnectHandler installs the closure the worker calls on I/O
// error. cmd wiring binds this to t.Reconnect(control) once the
// control service is constructed.
func (t *Transport) SetReconnectHandler(fn func() error) {
	t.recoverConnection = fn
}

// New constructs a Transport bound to channel. The worker goroutine is
// not started until Connect is called.
func New(channel ByteChannel, defaultMaxBlockSize int, opts ...Option) *Transport {
	t := &Transport{
		channel:             channel,
		logger:              logx.Default(),
		services:            make(map[uint8]Service),
		defaultMaxBlockSize: defaultMaxBlockSize,
		rx:                  &receiveStream{},
		tx:                  &transmitStream{},
		out:                 &outboundQueue{},
		maxRetries:          defaultMaxRetries,
		responseTimeout:     defaultResponseTimeout,
		done:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Attach registers service on channel. Channel 0 is conventionally
// reserved for the control service, but this is enforced by
// convention (cmd wiring), not by Attach itself.
func (t *Transport) Attach(channel uint8, svc Service) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.services[channel]; exists {
		return newError(KindCaller, "channel already attached", nil)
	}
	t.services[channel] = svc
	t.serviceOrder = append(t.serviceOrder, channel)
	if b, ok := svc.(Binder); ok {
		b.BindTransport(t)
	}
	return nil
}

func (t *Transport) serviceFor(channel uint8) (Service, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	svc, ok := t.services[channel]
	return svc, ok
}

// IsSynchronised reports whether the sync handshake has completed.
func (t *Transport) IsSynchronised() bool { return t.synchronised.Load() }

// MaxBlockSize returns the negotiated payload ceiling, or 0 before sync.
func (t *Transport) MaxBlockSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxBlockSize
}

// DefaultMaxBlockSize returns the locally configured ceiling offered
// during the handshake.
func (t *Transport) DefaultMaxBlockSize() int { return t.defaultMaxBlockSize }

// SetSynchronised records the negotiated block size and marks the
// transport synchronised; called by the control service once it
// processes a peer SYNC reply.
func (t *Transport) SetSynchronised(peerPayloadBufferSize int) {
	t.mu.Lock()
	size := peerPayloadBufferSize
	if t.defaultMaxBlockSize < size {
		size = t.defaultMaxBlockSize
	}
	t.maxBlockSize = size
	t.mu.Unlock()

	t.synchronised.Store(true)
	t.logger.Info("transport synchronised", "max_block_size", size)
	if t.notifier != nil {
		t.notifier.OnSynchronised(size)
	}
}

// WriteRaw writes buf directly to the byte channel, bypassing the
// transmit queue entirely. This exists solely for the plaintext
// "\nM28B1\n" prologue the control service emits before the first sync
// attempt (spec.md §4.6).
func (t *Transport) WriteRaw(buf []byte) error {
	if _, err := t.channel.Write(buf); err != nil {
		return newError(KindIO, "write raw", err)
	}
	if t.rawOut != nil {
		t.rawOut.Write(buf)
	}
	return nil
}

// SendDirect enqueues a data frame onto the global transmit queue
// without going through a service's own outbound queue or the
// synchronised gate. Used by the control service to send the initial
// SYNC attempt before the transport considers itself synchronised.
func (t *Transport) SendDirect(packetType frame.PacketType, channel, packetID uint8, payload []byte, pkt OutboundPacket) {
	t.out.pushData(outboundItem{
		packetType: packetType,
		channel:    channel,
		packetID:   packetID,
		payload:    payload,
		packet:     pkt,
	})
}

// Connect runs the sync handshake to completion (or until ctx expires)
// and starts the worker goroutine if not already running.
func (t *Transport) Connect(ctx context.Context, control interface{ Synchronise() }) error {
	if t.active.CompareAndSwap(false, true) {
		go t.run()
	}

	control.Synchronise()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for !t.IsSynchronised() {
		select {
		case <-ctx.Done():
			return ErrTimeout
		case <-ticker.C:
			control.Synchronise()
		}
	}
	return nil
}

// MarkDisconnected clears the synchronised flag; called by the control
// service once a CLOSE attempt settles, whether or not it was
// acknowledged.
func (t *Transport) MarkDisconnected() {
	t.synchronised.Store(false)
}

// Shutdown stops the worker goroutine and waits for it to exit.
func (t *Transport) Shutdown() {
	if t.active.CompareAndSwap(true, false) {
		<-t.done
	}
}

// Reconnect closes and reopens the byte channel, resetting both stream
// states, retrying open up to defaultReconnectTries times with
// backoff, per spec.md §4.4b.
func (t *Transport) Reconnect(control interface{ Synchronise() }) error {
	t.synchronised.Store(false)
	_ = t.channel.Close()
	t.tx.reset()
	t.rx.resetConnection()

	time.Sleep(time.Second)
	t.logger.Warn("attempting reconnection")
	for attempt := 1; attempt <= defaultReconnectTries; attempt++ {
		_ = t.channel.Close()
		time.Sleep(100 * time.Millisecond)
		if err := t.channel.Open(); err != nil {
			t.logger.Error("reconnect attempt failed", "attempt", attempt, "err", err)
			if t.notifier != nil {
				t.notifier.OnReconnect(attempt, err)
			}
			time.Sleep(2 * time.Second)
			continue
		}
		control.Synchronise()
		if t.notifier != nil {
			t.notifier.OnReconnect(attempt, nil)
		}
		return nil
	}
	return newError(KindIO, "unable to reconnect", nil)
}

// run is the single worker goroutine: it alternates one receive-parser
// step with one transmit step, forever, until Shutdown.
func (t *Transport) run() {
	t.logger.Debug("transport worker started")
	defer close(t.done)
	defer t.logger.Debug("transport worker finished")

	for t.active.Load() {
		if err := t.receiveStep(); err != nil {
			t.handleIOError(err)
			continue
		}
		if err := t.processTransmit(); err != nil {
			t.handleIOError(err)
			continue
		}
		t.watchdog()
		if t.rx.current == nil && t.out.empty() && t.channel.BytesAvailable() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (t *Transport) handleIOError(err error) {
	t.logger.Error("transport I/O error", "err", err)
	if t.recoverConnection != nil {
		if rerr := t.recoverConnection(); rerr != nil {
			t.logger.Error("reconnect failed, transport is down", "err", rerr)
			t.active.Store(false)
		}
	}
}
