package main

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"

	"drive-service/drive"
	"drive-service/scheduler"
)

const (
	diagGroupName           = "motor-drive"
	diagFaultSetKey         = "motor-drive:fault"
	diagEventStream         = "events:faults"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "motor-drive"
)

// faultReporter publishes fault transitions
type faultReporter interface {
	reportFaultPresent(fault drive.Fault, config drive.FaultConfig)
	reportFaultAbsent(fault drive.Fault)
}

type Diag struct {
	log         *LeveledLogger
	reporter    faultReporter
	mu          sync.RWMutex
	faultStates map[drive.Fault]bool
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:         logger,
		reporter:    &redisFaultReporter{log: logger, redis: redis, ctx: context.Background()},
		faultStates: make(map[drive.Fault]bool),
	}
}

func (d *Diag) Destroy() {}

// SetFaults reports every fault whose presence differs from the last call.
func (d *Diag) SetFaults(faults map[drive.Fault]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for fault := drive.Fault(1); fault <= drive.LastFault; fault++ {
		newPresent := faults[fault]
		wasPresent := d.faultStates[fault]

		if newPresent == wasPresent {
			continue
		}

		d.faultStates[fault] = newPresent

		config, ok := drive.GetFaultConfig(fault)
		if !ok {
			continue
		}

		if newPresent {
			d.log.Warn("Fault set: code=%d, description=%s", fault, config.Description)
			d.reporter.reportFaultPresent(fault, config)
		} else {
			d.log.Info("Fault cleared: code=%d, description=%s", fault, config.Description)
			d.reporter.reportFaultAbsent(fault)
		}
	}
}

// statusFaults is the fault set for one status. The link counts as lost
// as soon as the transport goes stale, ahead of the CAN watchdog.
func statusFaults(st scheduler.Status, linkStale bool) map[drive.Fault]bool {
	faults := drive.ActiveFaults(&st.ModuleState, st.Faults)
	if linkStale {
		faults[drive.FaultLinkLost] = true
	}
	return faults
}

type redisFaultReporter struct {
	log   *LeveledLogger
	redis *redis.Client
	ctx   context.Context
}

func (r *redisFaultReporter) reportFaultPresent(fault drive.Fault, config drive.FaultConfig) {
	pipe := r.redis.Pipeline()

	pipe.SAdd(r.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"group":       diagGroupName,
			"code":        uint32(fault),
			"description": config.Description,
		},
	})

	pipe.Publish(r.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.log.Error("Failed to report fault present: %v", err)
	}
}

func (r *redisFaultReporter) reportFaultAbsent(fault drive.Fault) {
	pipe := r.redis.Pipeline()

	pipe.SRem(r.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"group": diagGroupName,
			"code":  -int32(fault),
		},
	})

	pipe.Publish(r.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.log.Error("Failed to report fault absent: %v", err)
	}
}
