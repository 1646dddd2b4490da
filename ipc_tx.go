package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-redis/redis/v8"
)

const (
	ipcStatusKey     = "motor-drive"
	ipcStatusChannel = "motor-drive"
)

type IPCTx struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client) *IPCTx {
	return &IPCTx{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (tx *IPCTx) Destroy() {}

// SendStatus writes the motor-drive hash. A state change is also announced
// on the motor-drive channel.
func (tx *IPCTx) SendStatus(data RedisMotorStatus, changed bool) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	pipe.HSet(tx.ctx, ipcStatusKey, data.Fields())

	if changed {
		pipe.Publish(tx.ctx, ipcStatusChannel, "state")
	}

	if _, err := pipe.Exec(tx.ctx); err != nil {
		return fmt.Errorf("failed to send motor status: %w", err)
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
