package comms

import (
	"context"
	"sync"
	"time"

	"drive-service/drive"
)

// LinkTimeout is how long a link may stay silent before it is reported stale
const LinkTimeout = 500 * time.Millisecond

// baseLink holds the command state shared by all links
type baseLink struct {
	mu            sync.RWMutex
	logger        Logger
	ctx           context.Context
	cancel        context.CancelFunc
	lastFrameTime time.Time

	accel uint8
	brake uint8
	seen  bool
}

func (b *baseLink) startBase(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx, b.cancel = context.WithCancel(ctx)
}

func (b *baseLink) stopBase() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// setCommands records a valid message. Callers hold b.mu.
func (b *baseLink) setCommands(accel, brake uint8) {
	b.accel = accel
	b.brake = brake
	b.seen = true
	b.lastFrameTime = time.Now()
}

func (b *baseLink) Snapshot() drive.Commands {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmd := drive.Commands{Accel: b.accel, Brake: b.brake, LinkSeen: b.seen}
	b.seen = false
	return cmd
}

func (b *baseLink) IsStale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastFrameTime.IsZero() || time.Since(b.lastFrameTime) > LinkTimeout
}
