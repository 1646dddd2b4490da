package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/brutella/can"
	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"drive-service/comms"
	"drive-service/controller"
	"drive-service/drive"
	"drive-service/hardware"
	"drive-service/scheduler"
	"drive-service/sensors"
	"drive-service/telemetry"
)

// canStatusEvery is the number of ticks between motor status frames.
const canStatusEvery = 10

// DriveApp wires the supervisory loop to its adapters and to Redis.
type DriveApp struct {
	log   *LeveledLogger
	opts  *Options
	redis *redis.Client
	ipcRx *IPCRx
	ipcTx *IPCTx
	diag  *Diag

	bus     *can.Bus
	link    comms.Link
	canLink *comms.CANLink

	adc     sensors.ADC
	pickups []*sensors.PulseCounter
	buffer  *sensors.Buffer
	sampler *sensors.Sampler

	outputs hardware.Outputs
	gear    hardware.GearSensor
	ctrl    *controller.Current
	sched   *scheduler.Scheduler

	mqtt     *telemetry.MQTTPublisher
	reporter *telemetry.Reporter

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriveApp(opts *Options) (*DriveApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &DriveApp{
		log:    NewLeveledLogger(log.New(os.Stdout, fmt.Sprintf("%s: ", ProjectName), log.LstdFlags), opts.LogLevel),
		opts:   opts,
		buffer: &sensors.Buffer{},
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.init(); err != nil {
		app.Destroy()
		return nil, err
	}
	return app, nil
}

func (app *DriveApp) init() error {
	opts := app.opts

	// Initialize Redis client with timeouts
	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)
	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.log.Info("Successfully connected to Redis")

	app.ipcTx = NewIPCTx(app.log, app.redis)
	app.diag = NewDiag(app.log, app.redis)
	app.writeDefaultRedisState()

	go app.redisHealthCheck()

	if err := app.initHardware(); err != nil {
		return err
	}
	if err := app.initLink(); err != nil {
		return err
	}

	app.ctrl = controller.NewCurrent(opts.Controller)
	state := drive.NewModuleState(opts.Powertrain)
	state.MsgMode = opts.MsgMode

	app.sched = scheduler.New(scheduler.Config{
		Logger:   app.log,
		Machine:  drive.NewMachine(app.ctrl, drive.NewSynch(opts.Synch)),
		State:    state,
		Sensors:  app.buffer,
		Commands: app.link,
		Gear:     app.gear,
		Outputs:  app.outputs,
		Period:   opts.Tick,
	})
	app.log.Info("Supervisory loop configured: powertrain=%s link=%s", opts.Powertrain, opts.MsgMode)

	if opts.MQTT.Broker != "" {
		pub, err := telemetry.ConnectMQTT(opts.MQTT, app.log)
		if err != nil {
			return err
		}
		app.mqtt = pub
		app.reporter = telemetry.NewReporter(pub, opts.MQTT.Prefix, opts.MQTT.Every, app.log)
		app.log.Info("Telemetry publishing to %s under %s", opts.MQTT.Broker, opts.MQTT.Prefix)
	}

	app.ipcRx = NewIPCRx(app.log, app.redis, app.sched)

	if err := app.link.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start command link: %w", err)
	}

	app.wg.Add(3)
	go func() {
		defer app.wg.Done()
		app.sampler.Run(app.ctx)
	}()
	go func() {
		defer app.wg.Done()
		app.sched.Run(app.ctx)
	}()
	go app.handleStatus()

	return nil
}

// initHardware opens the ADC, the speed pickups and the power stage, or
// their in-memory stand-ins when running on the bench.
func (app *DriveApp) initHardware() error {
	opts := app.opts
	var wheel, motor sensors.SpeedSource

	if opts.Hardware {
		adc, err := sensors.OpenMCP3208(opts.SPI.Port, physic.Frequency(opts.SPI.SpeedHz)*physic.Hertz)
		if err != nil {
			return err
		}
		app.adc = adc

		for _, p := range []struct {
			name string
			cfg  PickupConfig
			dst  *sensors.SpeedSource
		}{
			{"wheel", opts.WheelSpeed, &wheel},
			{"motor", opts.MotorSpeed, &motor},
		} {
			pc, err := sensors.OpenPulseCounter(p.cfg.Chip, p.cfg.Offset, p.cfg.UnitsPerHz)
			if err != nil {
				return fmt.Errorf("failed to open %s speed pickup: %w", p.name, err)
			}
			app.pickups = append(app.pickups, pc)
			*p.dst = pc
		}

		linux, err := hardware.OpenLinux(opts.IO)
		if err != nil {
			return err
		}
		app.outputs, app.gear = linux, linux
		app.log.Info("Hardware initialized: PWM %s at %d Hz", opts.IO.PWMPin, opts.IO.PWMFrequency)
	} else {
		app.adc = sensors.NewStaticADC(map[sensors.Channel]uint16{
			sensors.ChMotorCurrent:   opts.Bench.MotorCurrent,
			sensors.ChBatteryCurrent: opts.Bench.BatteryCurrent,
			sensors.ChBatteryVoltage: opts.Bench.BatteryVoltage,
			sensors.ChMotorTemp:      opts.Bench.MotorTemp,
		})
		sim := hardware.NewSimulated(5)
		app.outputs, app.gear = sim, sim
		app.log.Warn("Running without hardware: bench ADC counts and simulated power stage")
	}

	app.sampler = sensors.NewSampler(sensors.SamplerConfig{
		Logger:      app.log,
		ADC:         app.adc,
		Calibration: opts.Calibration,
		Buffer:      app.buffer,
		Wheel:       wheel,
		Motor:       motor,
	})
	return nil
}

func (app *DriveApp) initLink() error {
	opts := app.opts
	cfg := comms.LinkConfig{
		Logger:   app.log,
		Mode:     opts.MsgMode,
		FrameIDs: opts.FrameIDs,
		Serial:   opts.Serial,
	}

	if opts.MsgMode == drive.MsgModeCAN {
		bus, err := can.NewBusForInterfaceWithName(opts.CANDevice)
		if err != nil {
			return fmt.Errorf("failed to initialize CAN bus: %w", err)
		}
		app.bus = bus
		cfg.CANBus = bus

		go func() {
			if err := bus.ConnectAndPublish(); err != nil {
				app.log.Error("CAN bus publish error: %v", err)
			}
		}()
	}

	link, err := comms.NewLink(cfg)
	if err != nil {
		return fmt.Errorf("failed to create command link: %w", err)
	}
	app.link = link
	if cl, ok := link.(*comms.CANLink); ok {
		app.canLink = cl
	}
	app.log.Info("Command link initialized: %s", opts.MsgMode)
	return nil
}

// handleStatus fans the scheduler status out to Redis, diagnostics, the
// CAN status frame and telemetry. It ends when the scheduler closes the
// status channel.
func (app *DriveApp) handleStatus() {
	defer app.wg.Done()

	n := 0
	for st := range app.sched.Status() {
		n++
		if st.Changed() || n >= app.opts.StatusEvery {
			n = 0
			if err := app.ipcTx.SendStatus(NewRedisMotorStatus(st), st.Changed()); err != nil {
				app.log.Error("Failed to send status: %v", err)
			}
		}

		app.diag.SetFaults(statusFaults(st, app.link.IsStale()))

		if st.Changed() {
			d := app.ctrl.Diagnostics()
			app.log.Debug("Entered %s: duty=%d error=%.2f integral=%.2f", st.MotorStatus, st.DutyCycle, d.Error, d.Integral)
		}

		if app.canLink != nil && st.Tick%canStatusEvery == 0 {
			if err := app.canLink.SendStatus(comms.StatusFrame{
				Status:       st.MotorStatus,
				MotorCurrent: st.MotorCurrent,
				Energy:       st.Energy,
				CarSpeed:     st.CarSpeed,
			}); err != nil {
				app.log.Debug("Failed to send CAN status: %v", err)
			}
		}

		if app.reporter != nil {
			// failures are logged by the reporter
			_ = app.reporter.Report(st)
		}
	}
}

// writeDefaultRedisState writes the power-up record to Redis
func (app *DriveApp) writeDefaultRedisState() {
	app.mu.Lock()
	defer app.mu.Unlock()

	st := scheduler.Status{ModuleState: *drive.NewModuleState(app.opts.Powertrain)}
	if err := app.ipcTx.SendStatus(NewRedisMotorStatus(st), true); err != nil {
		app.log.Error("Failed to send default status: %v", err)
	}
	app.log.Info("Default Redis state written")
}

func (app *DriveApp) redisHealthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Warn("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

// Destroy stops the loops, de-energizes the power stage and releases every
// device. Close errors are collected and logged together.
func (app *DriveApp) Destroy() {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.log.Info("Shutting down drive application...")

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()
	app.log.Info("Supervisory loop shutdown complete")

	if app.ipcRx != nil {
		app.ipcRx.Destroy()
		app.log.Info("IPC RX shutdown complete")
	}

	var err error
	if app.link != nil {
		err = multierr.Append(err, app.link.Close())
	}
	if app.bus != nil {
		err = multierr.Append(err, app.bus.Disconnect())
	}
	if app.outputs != nil {
		err = multierr.Append(err, app.outputs.Close())
	}
	for _, pc := range app.pickups {
		err = multierr.Append(err, pc.Close())
	}
	if c, ok := app.adc.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if app.mqtt != nil {
		err = multierr.Append(err, app.mqtt.Close())
	}
	for _, e := range multierr.Errors(err) {
		app.log.Error("Shutdown: %v", e)
	}
	app.log.Info("Devices released")

	if app.diag != nil {
		app.diag.Destroy()
	}
	if app.ipcTx != nil {
		app.ipcTx.Destroy()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error("Error closing Redis connection: %v", err)
		} else {
			app.log.Info("Redis connection closed")
		}
	}

	app.log.Info("Drive application shutdown complete")
}
