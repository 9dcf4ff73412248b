package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
	"github.com/librescoot/serialtransport/pkg/logx"
	"github.com/librescoot/serialtransport/pkg/transport"
)

// fakeChannel is a minimal in-memory transport.ByteChannel for control
// tests; bytes written land in outbound, bytes queued via feed() come
// back out of Read.
type fakeChannel struct {
	mu       sync.Mutex
	inbound  []byte
	outbound []byte
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

func newHarness() (*transport.Transport, *Control, *fakeChannel) {
	ch := &fakeChannel{}
	tr := transport.New(ch, 512, transport.WithLogger(logx.Nop{}))
	ctrl := New(logx.Nop{}, Version{0, 2, 0}, 512, 512)
	if err := tr.Attach(Channel, ctrl); err != nil {
		panic(err)
	}
	return tr, ctrl, ch
}

// waitForOutbound polls ch until the worker goroutine has written at
// least minLen bytes, or the budget expires.
func waitForOutbound(ch *fakeChannel, minLen int) []byte {
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		ch.mu.Lock()
		n := len(ch.outbound)
		ch.mu.Unlock()
		if n >= minLen {
			return ch.takeOutbound()
		}
		time.Sleep(time.Millisecond)
	}
	return ch.takeOutbound()
}

func TestSynchroniseSendsPrologueOnceThenJustFAFSync(t *testing.T) {
	tr, ctrl, ch := newHarness()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	defer tr.Shutdown()

	_ = tr.Connect(ctx, ctrl)
	first := waitForOutbound(ch, len(prologue))
	assert.Contains(t, string(first), prologue)

	ctrl.Synchronise()
	second := waitForOutbound(ch, 1)
	assert.NotContains(t, string(second), prologue, "prologue must be sent only once per transport lifetime")
}

func TestSyncReplyMarksTransportSynchronisedWithNegotiatedSize(t *testing.T) {
	tr, ctrl, _ := newHarness()

	rec, err := syncSchema.New(uint8(0), uint8(2), uint8(0), uint16(256), uint16(256))
	require.NoError(t, err)
	payload, err := codec.Encode(rec)
	require.NoError(t, err)

	df := frame.NewDataFrame(frame.TypeData, Channel, PacketSync, payload)
	ctrl.Dispatch(PacketSync, rec, df)

	assert.True(t, tr.IsSynchronised())
	assert.Equal(t, 256, tr.MaxBlockSize())
}

func TestSyncReplyToFAFTriggersOwnReply(t *testing.T) {
	tr, ctrl, ch := newHarness()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	defer tr.Shutdown()

	_ = tr.Connect(ctx, ctrl)
	waitForOutbound(ch, len(prologue))

	rec, err := syncSchema.New(uint8(0), uint8(2), uint8(0), uint16(128), uint16(128))
	require.NoError(t, err)
	df := frame.NewDataFrame(frame.TypeDataFAF, Channel, PacketSync, nil)
	ctrl.Dispatch(PacketSync, rec, df)

	out := waitForOutbound(ch, 1)
	assert.NotEmpty(t, out, "a FAF sync reply must be written in response to a FAF sync")
	assert.True(t, tr.IsSynchronised())
}

func TestCloseMarksDisconnectedEvenWithoutAck(t *testing.T) {
	tr, ctrl, _ := newHarness()
	tr.SetSynchronised(512)
	require.True(t, tr.IsSynchronised())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_ = ctrl.Close(ctx)

	assert.False(t, tr.IsSynchronised())
}

func TestResetIsNonBlockingAndDoesNotError(t *testing.T) {
	_, ctrl, _ := newHarness()
	err := ctrl.Reset()
	assert.NoError(t, err)
}
