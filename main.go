package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	version    = flag.Bool("version", false, "Print version info")
	help       = flag.Bool("help", false, "Print help")
	configPath = flag.String("config", "", "YAML configuration file")
	_          = flag.Int("log", 3, "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	_          = flag.String("redis_server", "127.0.0.1", "Redis server address")
	_          = flag.Int("redis_port", 6379, "Redis server port")
	_          = flag.String("can_device", "can0", "CAN device name")
	_          = flag.String("msg_mode", "can", "Command link (can or uart)")
	_          = flag.String("uart_device", "/dev/ttyS1", "Serial device for the uart command link")
	_          = flag.Int("uart_baud", 500000, "Serial baud rate")
	_          = flag.String("powertrain", "belt", "Powertrain (belt or geared)")
	_          = flag.Bool("hardware", false, "Drive the real SPI ADC, GPIO lines and PWM instead of the bench stand-ins")
	_          = flag.String("mqtt_broker", "", "MQTT broker host:port, empty disables telemetry")
	_          = flag.String("mqtt_prefix", "drive/motor", "MQTT topic prefix")
	_          = flag.Duration("tick", 10*time.Millisecond, "Supervisory tick period")
	_          = flag.Int("status_every", 10, "Write the Redis status every n ticks")
)

const (
	ProjectName    = "drive-service"
	ProjectVersion = "1.0.0"
)

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	opts := DefaultOptions()
	if *configPath != "" {
		fc, err := LoadFileConfig(*configPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if opts, err = fc.Options(); err != nil {
			log.Fatalf("invalid config %s: %v", *configPath, err)
		}
	}

	// Flags given on the command line win over the file
	if err := applyFlags(flag.CommandLine, opts); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("Selected powertrain: %s, command link: %s", opts.Powertrain, opts.MsgMode)

	app, err := NewDriveApp(opts)
	if err != nil {
		log.Fatalf("failed to create drive app: %v", err)
	}
	defer app.Destroy()

	// Handle SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Run until signal received
	<-sigChan
}
