package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/librescoot/serialtransport/pkg/codec"
	"github.com/librescoot/serialtransport/pkg/frame"
)

// noiseByteGen produces bytes that can never themselves form a valid
// start token, so the generated noise never accidentally resyncs onto
// a frame that isn't the one the test placed deliberately.
func noiseByteGen() *rapid.Generator[byte] {
	return rapid.Custom(func(t *rapid.T) byte {
		for {
			b := rapid.Byte().Draw(t, "noiseByte")
			if _, ok := frame.PeekPacketType([]byte{b, 0xAC}); !ok {
				return b
			}
		}
	})
}

// TestReceiveStepIsResilientToArbitraryNoisePrefix is the property the
// original byte-at-a-time resync logic (§4.4 WAIT) exists for: however
// much junk precedes a well-formed frame, the receive loop must discard
// it one byte at a time and still dispatch the frame behind it exactly
// once, without panicking or wedging.
func TestReceiveStepIsResilientToArbitraryNoisePrefix(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		noise := rapid.SliceOfN(noiseByteGen(), 0, 64).Draw(rt, "noise")
		a := rapid.Uint16().Draw(rt, "a")
		b := rapid.Uint16().Draw(rt, "b")

		ch := &fakeChannel{}
		tr := newTestTransport(ch)
		svc := newFakeService()
		svc.register(5, pairSchema())
		require.NoError(rt, tr.Attach(1, svc))

		schema := pairSchema()
		rec, err := schema.New(a, b)
		require.NoError(rt, err)
		payload, err := codec.Encode(rec)
		require.NoError(rt, err)

		df := frame.NewDataFrame(frame.TypeData, 1, 5, payload)
		df.Header.Sync = 0
		ch.feed(append(append([]byte{}, noise...), df.MarshalBinary()...))

		runReceive(tr)

		require.Len(rt, svc.inbox, 1)
		got, _ := svc.inbox[0].Get("a")
		require.Equal(rt, a, got)
		require.Equal(rt, uint8(1), tr.rx.sync)
	})
}

// TestReceiveStepNeverAdvancesSyncOnRejectedPacket checks the inverse:
// whatever packet id rapid throws at a schema table holding only id 0, an
// unregistered id must be rejected without ever advancing rx.sync,
// matching §4.3's rule that only an accepted frame moves the window.
func TestReceiveStepNeverAdvancesSyncOnRejectedPacket(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		packetID := rapid.Uint8Range(1, 255).Draw(rt, "packetID") // 0 left registered below
		payloadLen := rapid.IntRange(0, 32).Draw(rt, "payloadLen")
		payload := rapid.SliceOfN(rapid.Byte(), payloadLen, payloadLen).Draw(rt, "payload")

		ch := &fakeChannel{}
		tr := newTestTransport(ch)
		svc := newFakeService()
		svc.register(0, pairSchema()) // packetID is always drawn >= 1, so id 0 never collides
		require.NoError(rt, tr.Attach(1, svc))

		df := frame.NewDataFrame(frame.TypeData, 1, packetID, payload)
		df.Header.Sync = 0
		ch.feed(df.MarshalBinary())

		runReceive(tr)

		require.Empty(rt, svc.inbox)
		require.Equal(rt, uint8(0), tr.rx.sync)
	})
}
