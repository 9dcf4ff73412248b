package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/librescoot/serialtransport/pkg/logx"
)

func TestNewSerialChannelDefaultsDataBitsToEight(t *testing.T) {
	c := NewSerialChannel(Config{PortName: "/dev/ttyUSB0", BaudRate: 115200}, logx.Nop{})
	assert.Equal(t, 8, c.mode.DataBits)
	assert.Equal(t, 115200, c.mode.BaudRate)
}

func TestSerialChannelReadWithoutOpenErrors(t *testing.T) {
	c := NewSerialChannel(Config{PortName: "/dev/ttyUSB0", BaudRate: 9600}, logx.Nop{})
	_, err := c.Read(1)
	assert.Error(t, err)
}

func TestSerialChannelBytesAvailableIsZeroBeforeOpen(t *testing.T) {
	c := NewSerialChannel(Config{PortName: "/dev/ttyUSB0", BaudRate: 9600}, logx.Nop{})
	assert.Equal(t, 0, c.BytesAvailable())
}
