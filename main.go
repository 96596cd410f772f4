package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/ericogr/soil-moisture-monitor/pkg/monitor"
	"github.com/ericogr/soil-moisture-monitor/pkg/network"
	"github.com/ericogr/soil-moisture-monitor/pkg/output/console"
	"github.com/ericogr/soil-moisture-monitor/pkg/output/mqtt"
	"github.com/ericogr/soil-moisture-monitor/pkg/sensor"
	"github.com/ericogr/soil-moisture-monitor/pkg/watchdog"
	"github.com/ericogr/soil-moisture-monitor/pkg/web"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("starting...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadFromFlags()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
	log.Println("stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, w := range cfg.Warnings() {
		log.Printf("config: %s", w)
	}

	state := monitor.NewState()

	if cfg.Network.Address != "" {
		ip, err := network.WaitForAddress(ctx, cfg.Network, network.InterfaceAddrs(cfg.Network.Interface))
		if err != nil {
			log.Printf("network bootstrap: %v", err)
			state.SetNetworkError(err)
		} else if port, err := network.PortFromAddr(cfg.HTTP.Addr); err != nil {
			log.Printf("mdns: %v", err)
		} else if responder, err := network.Advertise(cfg.Network.Hostname, ip, port, cfg.Network.Interface); err != nil {
			log.Printf("mdns: %v", err)
		} else {
			defer responder.Close()
		}
	}

	s, err := sensor.New(cfg)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer s.Close()

	if acq := computeSensorInterval(cfg); acq >= cfg.IntervalMs {
		log.Printf("acquisition takes ~%dms, longer than interval %dms", acq, cfg.IntervalMs)
	}

	entries, err := initOutputs(&cfg, cfg.IntervalMs)
	if err != nil {
		return fmt.Errorf("outputs: %w", err)
	}
	defer func() {
		for _, e := range entries {
			e.Output.Close()
		}
	}()

	est := moisture.Estimator{
		WetRaw:     cfg.Estimator.WetRaw,
		DryRaw:     cfg.Estimator.DryRaw,
		Clamp:      cfg.Estimator.Clamp,
		Fractional: cfg.Estimator.Fractional,
	}
	srv := web.NewServer(state, web.Options{
		Page: web.PageOptions{
			Title:          cfg.Page.Title,
			Language:       cfg.Page.Language,
			RefreshSeconds: cfg.Page.RefreshSeconds,
		},
		Estimator:  est,
		StaleAfter: time.Duration(cfg.StaleAfterMs) * time.Millisecond,
	})
	entries = append(entries, &monitor.OutputEntry{Name: "websocket", Output: srv.Hub()})

	guard, err := watchdog.New(cfg.Watchdog, func() {
		log.Fatalf("watchdog: sampling loop stalled for %ds, exiting", cfg.Watchdog.TimeoutSec)
	})
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	defer guard.Close()
	log.Printf("watchdog %s armed, timeout %ds", cfg.Watchdog.Type, cfg.Watchdog.TimeoutSec)

	mon := monitor.New(s, guard, state, monitor.Options{
		Interval:  time.Duration(cfg.IntervalMs) * time.Millisecond,
		Estimator: est,
		Language:  cfg.Page.Language,
		Outputs:   entries,
	})

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx, cfg.HTTP.Addr) }()

	loopErr := make(chan error, 1)
	go func() { loopErr <- mon.Run(ctx) }()

	select {
	case err := <-srvErr:
		stop()
		<-loopErr
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sampling loop: %v", err)
		}
		stop()
		if err := <-srvErr; err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	return nil
}

// computeSensorInterval estimates how long one acquisition pass takes in
// milliseconds: ADS1115 conversion time (if used) plus the settle pause for
// every enabled channel.
func computeSensorInterval(cfg config.Config) int {
	perChannel := time.Duration(cfg.SettleMs) * time.Millisecond
	if cfg.SensorType == config.SensorADS1115 {
		perChannel += sensor.ConversionDelay(cfg.SampleRate)
	}
	n := len(cfg.EnabledChannels())
	if n == 0 {
		return int(sensor.ConversionDelay(cfg.SampleRate) / time.Millisecond)
	}
	return int(perChannel*time.Duration(n)) / int(time.Millisecond)
}

// initOutputs builds the configured outputs. Outputs without their own
// interval inherit intervalMs.
func initOutputs(cfg *config.Config, intervalMs int) ([]*monitor.OutputEntry, error) {
	entries := make([]*monitor.OutputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		if o.IntervalMs == 0 {
			o.IntervalMs = intervalMs
		}
		entry := &monitor.OutputEntry{Name: o.Type, Interval: time.Duration(o.IntervalMs) * time.Millisecond}
		switch strings.ToLower(o.Type) {
		case "console":
			entry.Output = console.NewConsole()
		case "mqtt":
			mc := config.MQTTConfig{}
			if o.MQTT != nil {
				mc = *o.MQTT
			}
			out, err := mqtt.NewMQTT(mc)
			if err != nil {
				return nil, err
			}
			entry.Output = out
		default:
			return nil, fmt.Errorf("unknown output type %q", o.Type)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
