// Package diagnostics publishes transport health events to Redis, the
// way the teacher's service layer surfaces state to the rest of the
// scooter's software over the same bus (pkg/redis/client.go before
// this rework folded its publish path in here and dropped the
// hash-storage and blocking-list helpers this package never needed).
package diagnostics

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/librescoot/serialtransport/pkg/logx"
)

// Redis channels this package publishes to.
const (
	ChannelSync       = "transport:sync"
	ChannelReconnect  = "transport:reconnect"
	ChannelWindowDrop = "transport:window-drop"
)

// Publisher adapts a transport.Notifier to Redis pub/sub, one message
// per event, formatted as simple "field:value[,field:value...]"
// strings in the same style as the teacher's WriteAndPublishString.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
	logger logx.Logger
}

// New connects to the Redis instance at addr and returns a Publisher.
// db selects the logical database, matching go-redis's usual Options.
func New(addr, password string, db int, logger logx.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logx.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("diagnostics: connect to redis at %s: %w", addr, err)
	}

	return &Publisher{client: client, ctx: ctx, logger: logger}, nil
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// OnSynchronised satisfies transport.Notifier.
func (p *Publisher) OnSynchronised(maxBlockSize int) {
	p.publish(ChannelSync, formatSync(maxBlockSize))
}

// OnReconnect satisfies transport.Notifier. A nil err means the
// attempt succeeded.
func (p *Publisher) OnReconnect(attempt int, err error) {
	p.publish(ChannelReconnect, formatReconnect(attempt, err))
}

// OnWindowDrop satisfies transport.Notifier.
func (p *Publisher) OnWindowDrop(sync uint8, reason string) {
	p.publish(ChannelWindowDrop, formatWindowDrop(sync, reason))
}

// formatSync, formatReconnect and formatWindowDrop are split out as
// pure functions so the message shape can be tested without a live
// Redis connection.
func formatSync(maxBlockSize int) string {
	return fmt.Sprintf("max_block_size:%d", maxBlockSize)
}

func formatReconnect(attempt int, err error) string {
	if err != nil {
		return fmt.Sprintf("attempt:%d,ok:false,err:%s", attempt, err)
	}
	return fmt.Sprintf("attempt:%d,ok:true", attempt)
}

func formatWindowDrop(sync uint8, reason string) string {
	return fmt.Sprintf("sync:%d,reason:%s", sync, reason)
}

func (p *Publisher) publish(channel, message string) {
	if err := p.client.Publish(p.ctx, channel, message).Err(); err != nil {
		p.logger.Warn("diagnostics publish failed", "channel", channel, "err", err)
	}
}
