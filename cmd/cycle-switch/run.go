package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sweeney/cycle-switch/internal/config"
	"github.com/sweeney/cycle-switch/internal/gpio"
	"github.com/sweeney/cycle-switch/internal/logging"
	"github.com/sweeney/cycle-switch/internal/mqtt"
	"github.com/sweeney/cycle-switch/internal/status"
	"github.com/sweeney/cycle-switch/internal/switcher"
	"github.com/sweeney/cycle-switch/internal/timer"
	"github.com/sweeney/cycle-switch/internal/web"
	"github.com/sweeney/cycle-switch/internal/worker"
)

// refreshInterval is how often the loop samples the MQTT link for status.
const refreshInterval = time.Second

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Run the switch daemon",
	Flags: runFlags(),
	Action: func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return cli.Exit(err, 1)
		}
		logger := logging.SetupLogger(cfg.Log.Format, cfg.Log.Level)
		if err := run(ctx, cfg, logger); err != nil {
			return cli.Exit(fmt.Errorf("fatal: %w", err), 1)
		}
		return nil
	},
}

// runFlags returns the run flags. Flags hold their parsed values, so each
// command gets fresh ones.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to TOML configuration file (defaults apply when omitted)",
			Sources: cli.EnvVars("CYCLE_SWITCH_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "broker",
			Usage:   "MQTT broker address, overrides mqtt.broker",
			Sources: cli.EnvVars("CYCLE_SWITCH_BROKER"),
		},
		&cli.StringFlag{
			Name:    "http",
			Usage:   `HTTP status address, overrides http.addr ("off" disables)`,
			Sources: cli.EnvVars("CYCLE_SWITCH_HTTP"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Sources: cli.EnvVars("CYCLE_SWITCH_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "text or json",
			Sources: cli.EnvVars("CYCLE_SWITCH_LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "autostart",
			Usage:   "Start the configured cycle immediately, overrides cycle.autostart",
			Sources: cli.EnvVars("CYCLE_SWITCH_AUTOSTART"),
		},
	}
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if cmd.IsSet("broker") {
		cfg.MQTT.Broker = cmd.String("broker")
	}
	if cmd.IsSet("http") {
		cfg.HTTP.Addr = cmd.String("http")
		if cfg.HTTP.Addr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("autostart") {
		cfg.Cycle.Autostart = cmd.Bool("autostart")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	heartbeat, err := cfg.HeartbeatInterval()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initialize GPIO
	out, err := gpio.NewRealOutput(cfg.Output.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer out.Close()

	// Timer expiries and MQTT commands are serialized on one worker
	queue := worker.NewQueue(worker.DefaultQueueSize, logger)
	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker stopped", "error", err)
		}
	}()

	ctrl, err := switcher.New(cfg.Output.Pin, out, timer.NewRuntime(), queue,
		switcher.WithActiveHigh(cfg.Output.ActiveHigh),
		switcher.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init switch: %w", err)
	}
	defer ctrl.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(ctrl, time.Now(), status.Config{
		Name:        cfg.Name,
		Pin:         cfg.Output.Pin,
		ActiveHigh:  cfg.Output.ActiveHigh,
		HeartbeatMs: heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize MQTT
	topics := mqtt.NewTopics(cfg.MQTT.Prefix, cfg.Name)
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:    cfg.MQTT.Broker,
		ClientID:  "cycle-switch-" + cfg.Name,
		Topics:    topics,
		OnCommand: mqtt.CommandHandler(ctrl, queue, logger),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	tracker.SetMQTTConnected(publisher.IsConnected())

	d := &daemon{
		ctrl:       ctrl,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		logger:     logger,
		heartbeat:  heartbeat,
		notify:     func() {},
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, logger)
		d.notify = srv.Notify
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	if err := d.setup(cfg); err != nil {
		return err
	}

	logger.Info("started",
		"name", cfg.Name,
		"pin", cfg.Output.Pin,
		"broker", cfg.MQTT.Broker,
		"topics", topics.Events,
		"heartbeat", heartbeat,
	)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.runLoop(ctx, ticker.C, sigCh)
}

// daemon ties the switch to its reporting surfaces.
type daemon struct {
	ctrl       *switcher.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	logger     *slog.Logger
	heartbeat  time.Duration
	notify     func() // pushes the state to live web clients
}

// setup registers the switch callbacks, applies the configured cycle and
// publishes the STARTUP event.
func (d *daemon) setup(cfg config.Config) error {
	for _, kind := range []switcher.EventKind{
		switcher.EventStart,
		switcher.EventWorkDone,
		switcher.EventPauseDone,
		switcher.EventFinished,
	} {
		if err := d.ctrl.SetCallback(kind, d.handleEvent); err != nil {
			return fmt.Errorf("register %s callback: %w", kind, err)
		}
	}

	if cfg.HasCycle() {
		if err := d.ctrl.SetParams(cfg.Params()); err != nil {
			return fmt.Errorf("apply cycle: %w", err)
		}
	}

	d.publishSystem("STARTUP", "")
	d.publishState(d.ctrl.Snapshot())

	if cfg.Cycle.Autostart {
		if err := d.ctrl.Start(); err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
	}
	return nil
}

// handleEvent is the callback for every switch phase boundary.
func (d *daemon) handleEvent(ev switcher.Event) {
	attrs := []any{
		"event", ev.Kind.String(),
		"state", ev.Status.Phase.String(),
		"cycles_left", ev.Status.CyclesLeft,
		"elapsed", ev.Status.Elapsed,
		"run_id", ev.Status.RunID,
	}
	if ev.Kind == switcher.EventFinished {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Err != nil {
		d.logger.Error("switch event", append(attrs, "error", ev.Err)...)
	} else {
		d.logger.Info("switch event", attrs...)
	}

	d.tracker.Record(ev)
	if err := d.publisher.Publish(ev); err != nil {
		d.logger.Warn("publish error", "error", err)
		// Don't crash on publish failure
	}

	s := ev.Status
	if s.Phase == switcher.PhaseFinished {
		// Finished is transient: the switch is Ready once callbacks return.
		s.Phase = switcher.PhaseReady
	}
	d.publishState(s)
	d.notify()
}

func (d *daemon) publishState(s switcher.Status) {
	if err := d.publisher.PublishState(switcher.FormatState(d.ctrl.Pin(), s)); err != nil {
		d.logger.Warn("state publish error", "error", err)
	}
}

func (d *daemon) publishSystem(event, reason string) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.logger.Warn("failed to publish system event", "event", event, "error", err)
		return
	}
	d.logger.Debug("published system event", "event", event)
}

func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := d.tracker.Snapshot().StartTime

	for {
		select {
		case <-ctx.Done():
			d.shutdown("CANCELLED")
			return nil

		case s := <-sig:
			d.logger.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.shutdown(signalName)
			return nil

		case t := <-tick:
			if d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}

			if d.heartbeat <= 0 || t.Sub(lastHeartbeat) < d.heartbeat {
				continue
			}
			lastHeartbeat = t

			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			snap := d.tracker.Snapshot()
			d.logger.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"state", snap.Switch.Phase.String(),
				"starts", snap.Counts.Starts,
				"finished", snap.Counts.Finished,
			)
			d.publishSystem("HEARTBEAT", "")
			d.publishState(d.ctrl.Snapshot())
		}
	}
}

// shutdown stops a running cycle, leaving the output OFF, and publishes SHUTDOWN.
func (d *daemon) shutdown(reason string) {
	if err := d.ctrl.Stop(); err != nil {
		d.logger.Warn("stop on shutdown", "error", err)
	}
	d.publishSystem("SHUTDOWN", reason)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
