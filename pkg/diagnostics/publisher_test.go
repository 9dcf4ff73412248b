package diagnostics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSync(t *testing.T) {
	assert.Equal(t, "max_block_size:256", formatSync(256))
}

func TestFormatReconnectSuccess(t *testing.T) {
	assert.Equal(t, "attempt:2,ok:true", formatReconnect(2, nil))
}

func TestFormatReconnectFailure(t *testing.T) {
	got := formatReconnect(3, errors.New("boom"))
	assert.Equal(t, "attempt:3,ok:false,err:boom", got)
}

func TestFormatWindowDrop(t *testing.T) {
	assert.Equal(t, "sync:7,reason:timeout", formatWindowDrop(7, "timeout"))
}
