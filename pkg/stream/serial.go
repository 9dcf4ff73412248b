// Package stream provides transport.ByteChannel implementations: a
// real serial port backed by go.bug.st/serial, and an in-process
// loopback pair for tests and local demos.
package stream

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/librescoot/serialtransport/pkg/logx"
)

// SerialChannel adapts a go.bug.st/serial port to transport.ByteChannel.
// Like the teacher's USOCK, it runs its own background read-loop
// goroutine pulling bytes off the port into an internal buffer — but
// unlike USOCK, which parses frames itself and dispatches via a
// callback, the buffer here is dumb storage: the transport worker's
// own state machine drains it through Read/BytesAvailable.
type SerialChannel struct {
	portName string
	mode     *serial.Mode
	logger   logx.Logger

	port serial.Port

	mu       sync.Mutex
	buf      []byte
	readErr  error
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Config describes how to open the serial device.
type Config struct {
	PortName string
	BaudRate int
	DataBits int // 0 defaults to 8
}

// NewSerialChannel constructs a channel bound to cfg.PortName. The
// port is not opened until Open is called.
func NewSerialChannel(cfg Config, logger logx.Logger) *SerialChannel {
	if logger == nil {
		logger = logx.Default()
	}
	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	return &SerialChannel{
		portName: cfg.PortName,
		logger:   logger,
		mode: &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: dataBits,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
}

// Open opens the serial device and starts the background read loop.
// Calling Open on an already-open channel closes and reopens it.
func (c *SerialChannel) Open() error {
	c.closePort()

	port, err := serial.Open(c.portName, c.mode)
	if err != nil {
		return fmt.Errorf("stream: open %s: %w", c.portName, err)
	}
	if err := port.SetReadTimeout(250 * time.Millisecond); err != nil {
		_ = port.Close()
		return fmt.Errorf("stream: set read timeout on %s: %w", c.portName, err)
	}

	c.mu.Lock()
	c.port = port
	c.buf = nil
	c.readErr = nil
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()

	c.logger.Info("serial port opened", "port", c.portName, "baud", c.mode.BaudRate)
	return nil
}

// readLoop continuously pulls bytes off the port into the internal
// buffer, the same shape as the teacher's USOCK.readLoop, minus the
// frame parsing: that lives in the transport package now.
func (c *SerialChannel) readLoop() {
	defer c.wg.Done()
	chunk := make([]byte, 256)
	for {
		c.mu.Lock()
		stop := c.stopChan
		port := c.port
		c.mu.Unlock()
		if port == nil {
			return
		}

		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(chunk)
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		if n == 0 {
			continue
		}
		c.mu.Lock()
		c.buf = append(c.buf, chunk[:n]...)
		c.mu.Unlock()
	}
}

func (c *SerialChannel) closePort() {
	c.mu.Lock()
	port := c.port
	stop := c.stopChan
	c.port = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if port != nil {
		_ = port.Close()
	}
	c.wg.Wait()
}

// Close stops the read loop and closes the underlying port.
func (c *SerialChannel) Close() error {
	c.closePort()
	return nil
}

// Read returns up to n bytes already buffered by the read loop,
// without blocking.
func (c *SerialChannel) Read(n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil && len(c.buf) == 0 {
		return nil, fmt.Errorf("stream: port not open")
	}
	if n > len(c.buf) {
		n = len(c.buf)
	}
	b := c.buf[:n]
	c.buf = c.buf[n:]
	if len(b) == 0 && c.readErr != nil {
		return nil, fmt.Errorf("stream: read loop stopped: %w", c.readErr)
	}
	return b, nil
}

// Write writes buf to the port in full.
func (c *SerialChannel) Write(buf []byte) (int, error) {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("stream: port not open")
	}
	n, err := port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("stream: write: %w", err)
	}
	return n, nil
}

// BytesAvailable reports how many bytes the read loop has buffered but
// not yet delivered via Read.
func (c *SerialChannel) BytesAvailable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
