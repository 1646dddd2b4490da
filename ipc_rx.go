package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ipcCommandKey     = "motor-drive:cmd"
	ipcCommandTimeout = 5 * time.Second
)

// Resetter accepts an external fault reset
type Resetter interface {
	RequestReset()
}

type IPCRx struct {
	log    *LeveledLogger
	redis  *redis.Client
	reset  Resetter
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIPCRx(logger *LeveledLogger, redis *redis.Client, reset Resetter) *IPCRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &IPCRx{
		log:    logger,
		redis:  redis,
		reset:  reset,
		ctx:    ctx,
		cancel: cancel,
	}

	rx.wg.Add(1)
	go rx.listen()

	return rx
}

// listen pops commands off the command list. BRPOP times out periodically
// so cancellation is noticed.
func (rx *IPCRx) listen() {
	defer rx.wg.Done()
	rx.log.Info("Starting command listener for %s", ipcCommandKey)

	for {
		result, err := rx.redis.BRPop(rx.ctx, ipcCommandTimeout, ipcCommandKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if rx.ctx.Err() != nil {
				return
			}
			// Closed client, panic to trigger systemd restart
			if err.Error() == "redis: client is closed" {
				rx.log.Error("Redis connection lost on command listener - restarting service")
				panic("Redis disconnected")
			}
			rx.log.Error("Command listener error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		// BRPOP returns [key, value]
		if len(result) < 2 {
			continue
		}
		if err := rx.handleCommand(result[1]); err != nil {
			rx.log.Warn("Error handling %s command: %v", ipcCommandKey, err)
		}
	}
}

func (rx *IPCRx) handleCommand(value string) error {
	rx.log.Debug("Received command from %s: %s", ipcCommandKey, value)

	switch value {
	case "reset":
		rx.log.Info("Fault reset requested")
		rx.reset.RequestReset()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", value)
	}
}

func (rx *IPCRx) Destroy() {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	if rx.cancel != nil {
		rx.cancel()
	}
	rx.wg.Wait()
}
