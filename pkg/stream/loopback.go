package stream

import (
	"io"
	"sync"
)

// LoopbackChannel is an in-process transport.ByteChannel pair, used to
// run two Transports against each other without a real serial link —
// for local demos and end-to-end tests. Like SerialChannel, it runs a
// background goroutine draining its underlying io.Pipe into a plain
// buffer, since io.Pipe offers no way to peek at buffered bytes and
// the transport worker gates reads on BytesAvailable() being nonzero.
type LoopbackChannel struct {
	name string

	reader *io.PipeReader
	writer *io.PipeWriter

	mu      sync.Mutex
	buf     []byte
	readErr error

	wg sync.WaitGroup
}

// NewLoopbackPair returns two channels, each other's peer: bytes
// written to a arrive readable on b, and vice versa.
func NewLoopbackPair(nameA, nameB string) (*LoopbackChannel, *LoopbackChannel) {
	aToB, bFromA := io.Pipe()
	bToA, aFromB := io.Pipe()

	a := &LoopbackChannel{name: nameA, reader: aFromB, writer: aToB}
	b := &LoopbackChannel{name: nameB, reader: bFromA, writer: bToA}

	a.wg.Add(1)
	go a.readLoop()
	b.wg.Add(1)
	go b.readLoop()
	return a, b
}

func (c *LoopbackChannel) readLoop() {
	defer c.wg.Done()
	chunk := make([]byte, 256)
	for {
		n, err := c.reader.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.buf = append(c.buf, chunk[:n]...)
			c.mu.Unlock()
		}
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
	}
}

func (c *LoopbackChannel) Open() error { return nil }

// Close closes this side's write end; the peer sees EOF on its next
// Read once its buffer drains.
func (c *LoopbackChannel) Close() error {
	err := c.writer.Close()
	_ = c.reader.Close()
	return err
}

// Read pulls up to n bytes already buffered by the read loop, without
// blocking. Once the buffer is empty and the read loop has stopped, it
// returns the error that stopped it (io.EOF after the peer closed).
func (c *LoopbackChannel) Read(n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.buf) {
		n = len(c.buf)
	}
	b := c.buf[:n]
	c.buf = c.buf[n:]
	if len(b) == 0 && c.readErr != nil {
		return nil, c.readErr
	}
	return b, nil
}

func (c *LoopbackChannel) Write(buf []byte) (int, error) {
	return c.writer.Write(buf)
}

// BytesAvailable reports how many bytes the read loop has buffered but
// not yet delivered via Read.
func (c *LoopbackChannel) BytesAvailable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
