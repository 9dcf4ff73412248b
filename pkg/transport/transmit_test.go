package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/serialtransport/pkg/frame"
)

func TestFAFNeverOccupiesWindow(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)
	pkt := &fakePacket{id: 5, payload: []byte{1, 2}}

	tr.SendDirect(frame.TypeDataFAF, 0, 5, pkt.payload, pkt)
	require.NoError(t, tr.processTransmit())

	assert.Equal(t, 0, tr.tx.windowLen())
	assert.Equal(t, StatusComplete, pkt.status)
}

func TestDataFrameAdmittedAndWrittenGetsIncreasingSync(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)

	for i := 0; i < 3; i++ {
		pkt := &fakePacket{id: 5, payload: []byte{byte(i)}}
		tr.SendDirect(frame.TypeData, 0, 5, pkt.payload, pkt)
		require.NoError(t, tr.processTransmit())
	}

	require.Equal(t, 3, tr.tx.windowLen())
	for i, e := range tr.tx.window {
		assert.Equal(t, uint8(i), e.df.Header.Sync)
		assert.Equal(t, StatusInTransit, e.status)
	}
}

func TestResponseACKCumulativelyCompletesEarlierEntries(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)

	pkts := make([]*fakePacket, 3)
	for i := range pkts {
		pkts[i] = &fakePacket{id: 5, payload: []byte{byte(i)}}
		tr.SendDirect(frame.TypeData, 0, 5, pkts[i].payload, pkts[i])
		require.NoError(t, tr.processTransmit())
	}

	resp := &frame.ResponseFrame{Kind: frame.ResponseACK, SyncID: 2}
	tr.processResponse(resp)

	assert.Equal(t, 0, tr.tx.windowLen())
	for _, p := range pkts {
		assert.Equal(t, StatusComplete, p.status)
	}
}

func TestNACKRetriesEntireWindowInOriginalOrder(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)

	pkts := make([]*fakePacket, 3)
	for i := range pkts {
		pkts[i] = &fakePacket{id: 5, payload: []byte{byte(i)}}
		tr.SendDirect(frame.TypeData, 0, 5, pkts[i].payload, pkts[i])
		require.NoError(t, tr.processTransmit())
	}

	resp := &frame.ResponseFrame{Kind: frame.ResponseNACK, SyncID: 0}
	tr.processResponse(resp)

	assert.Equal(t, 0, tr.tx.windowLen())
	for _, p := range pkts {
		assert.Equal(t, StatusRetry, p.status)
	}

	// requeued in original order: packet 0 first out, packet 2 last
	for i := 0; i < 3; i++ {
		item, ok := tr.out.popData()
		require.True(t, ok)
		assert.Equal(t, pkts[i], item.packet)
	}
}

func TestRejectNeverRetried(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)
	pkt := &fakePacket{id: 5, payload: []byte{1}}
	tr.SendDirect(frame.TypeData, 0, 5, pkt.payload, pkt)
	require.NoError(t, tr.processTransmit())

	tr.processResponse(&frame.ResponseFrame{Kind: frame.ResponseREJECT, SyncID: 0})

	assert.Equal(t, StatusFailed, pkt.status)
	assert.Equal(t, 0, tr.tx.windowLen())
	assert.Equal(t, 0, tr.out.dataLen())
}

func TestInvalidResponseSyncIsDroppedWithoutPanicking(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)
	pkt := &fakePacket{id: 5, payload: []byte{1}}
	tr.SendDirect(frame.TypeData, 0, 5, pkt.payload, pkt)
	require.NoError(t, tr.processTransmit())

	tr.processResponse(&frame.ResponseFrame{Kind: frame.ResponseACK, SyncID: 99})

	assert.Equal(t, 1, tr.tx.windowLen())
	assert.Equal(t, StatusInTransit, pkt.status)
}

func TestWindowPromotesDataNackWhenNearCapacity(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)

	for i := 0; i < promoteThreshold; i++ {
		pkt := &fakePacket{id: 5, payload: []byte{byte(i)}}
		tr.SendDirect(frame.TypeData, 0, 5, pkt.payload, pkt)
		require.NoError(t, tr.processTransmit())
	}
	require.Equal(t, promoteThreshold, tr.tx.windowLen())

	pkt := &fakePacket{id: 5, payload: []byte{0xFF}}
	tr.SendDirect(frame.TypeDataNack, 0, 5, pkt.payload, pkt)
	require.NoError(t, tr.processTransmit())

	last := tr.tx.window[len(tr.tx.window)-1]
	assert.Equal(t, frame.TypeData, last.df.Header.PacketType)
}

func TestNYETTreatedAsNACKLike(t *testing.T) {
	ch := &fakeChannel{}
	tr := newTestTransport(ch)
	pkt := &fakePacket{id: 5, payload: []byte{1}}
	tr.SendDirect(frame.TypeData, 0, 5, pkt.payload, pkt)
	require.NoError(t, tr.processTransmit())

	tr.processResponse(&frame.ResponseFrame{Kind: frame.ResponseNYET, SyncID: 0})

	assert.Equal(t, StatusRetry, pkt.status)
	assert.Equal(t, 1, tr.out.dataLen())
}
