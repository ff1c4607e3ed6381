package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/clock"
	"github.com/atharvap8/intelliverter/internal/config"
	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/display"
	"github.com/atharvap8/intelliverter/internal/indicator"
	"github.com/atharvap8/intelliverter/internal/input"
	"github.com/atharvap8/intelliverter/internal/level"
	wlog "github.com/atharvap8/intelliverter/internal/log"
	"github.com/atharvap8/intelliverter/internal/metrics"
	"github.com/atharvap8/intelliverter/internal/mqtt"
	"github.com/atharvap8/intelliverter/internal/notify"
	"github.com/atharvap8/intelliverter/internal/program"
	"github.com/atharvap8/intelliverter/internal/status"
	"github.com/atharvap8/intelliverter/internal/web"
)

const (
	appID       = "intelliverter"
	notifyQueue = 64
	statusTick  = 250 * time.Millisecond
)

func newRunCmd(configPath *string) *cobra.Command {
	var fake bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the washer controller daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if fake {
				cfg.Hardware.Fake = true
			}
			log, _, err := wlog.New(appID, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := run(cfg, log, sigCh); err != nil {
				log.Errorw("fatal", "err", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fake, "fake", false, "run against in-memory GPIO and a simulated tub")
	return cmd
}

func run(cfg config.Config, log *zap.SugaredLogger, sig <-chan os.Signal) error {
	clk := clock.Real{}

	hw, err := openHardware(cfg, clk)
	if err != nil {
		return err
	}
	defer hw.Close()

	bank := actuator.NewBank(hw.lines, hw.drive, cfg.Rules(), log)
	if err := bank.AllStop(); err != nil {
		return fmt.Errorf("initial all-stop: %w", err)
	}
	defer bank.AllStop()

	sensor := level.NewAdapter(hw.sensor, cfg.Calibration(), clk, log)

	lcd := display.New(cfg.Display.Cols, cfg.Display.Rows)
	display.Splash(lcd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := indicator.LampTest(ctx, hw.lines, clk); err != nil {
		log.Warnw("lamp test", "err", err)
	}

	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Prefix:     cfg.MQTT.TopicPrefix,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		BufferSize: cfg.MQTT.BufferSize,
	}, log)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:          cfg.Timeouts.Poll.Milliseconds(),
		ConfirmWindowMs: cfg.Timing.ConfirmWindow.Milliseconds(),
		HeartbeatMs:     cfg.MQTT.Heartbeat.Milliseconds(),
		FillTarget:      cfg.Levels.FillTarget,
		DrainComplete:   cfg.Levels.DrainComplete,
		DrainDuringSpin: cfg.Interlock.DrainDuringSpin,
		Simulation:      cfg.Sensor.Simulation || cfg.Hardware.Fake,
		Broker:          cfg.MQTT.Broker,
		HTTPPort:        cfg.HTTP.Addr,
		DisplayCols:     cfg.Display.Cols,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	events := notify.NewDispatcher(notifyQueue, log)
	collector := metrics.NewCollector()
	collector.GaugeFunc("mqtt_buffered_messages", "Messages waiting for the broker connection.", func() float64 {
		return float64(client.Buffered())
	})
	collector.CounterFunc("notify_dropped_total", "Events dropped because the notification queue was full.", func() float64 {
		return float64(events.Dropped())
	})
	events.Add("mqtt", client)
	events.Add("log", notify.LogReporter(log))
	events.Add("metrics", collector)
	go events.Run(ctx)

	leds := indicator.New(hw.lines, clk, client.IsConnected, log)

	ctl := cycle.New(cycle.Deps{
		Bank:      bank,
		Level:     sensor,
		Clock:     clk,
		Sink:      events,
		Display:   lcd,
		Observers: []cycle.Observer{tracker, leds, collector},
		Log:       log,
	}, cfg.Profile())

	sel := input.NewSelector()
	orch := program.New(program.Deps{
		Controller: ctl,
		Selector:   sel,
		Clock:      clk,
		Sink:       events,
		Display:    lcd,
		Listeners:  []program.Listener{tracker, leds, collector},
		Log:        log,
	}, cfg.ProgramConfig())

	inputs := input.NewDispatcher(sel, orch, cfg.Wiring.Lockout, log)
	if err := hw.watchButtons(cfg, inputs.Press); err != nil {
		return err
	}
	if err := client.HandleCommands(inputs.Execute); err != nil {
		log.Warnw("subscribe to commands", "err", err)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, inputs, collector.Handler(), log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	go func() {
		if err := leds.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnw("indicator stopped", "err", err)
		}
	}()
	served := make(chan struct{})
	go func() {
		defer close(served)
		orch.Serve(ctx)
	}()

	refresh := func() {
		mode := sel.Mode()
		if rep, ok := orch.Current(); ok {
			mode = rep.Mode
		}
		tracker.Update(bank.State(), mode, lcd.Lines())
	}
	refresh()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startup); err != nil {
		log.Warnw("publish startup event", "err", err)
	}

	log.Infow("started",
		"fake", cfg.Hardware.Fake,
		"broker", cfg.MQTT.Broker,
		"topics", client.Topics().Events,
		"heartbeat", cfg.MQTT.Heartbeat,
		"drain_during_spin", cfg.Interlock.DrainDuringSpin,
	)

	ticker := time.NewTicker(statusTick)
	defer ticker.Stop()

	runLoop(client, client, tracker, refresh, cfg.MQTT.Heartbeat, time.Now, ticker.C, sig, log)

	// Stop any running program, then let queued notifications go out before
	// the broker connection closes.
	orch.Halt()
	cancel()
	<-served
	if err := bank.AllStop(); err != nil {
		log.Errorw("shutdown all-stop", "err", err)
	}
	select {
	case <-events.Done():
	case <-time.After(5 * time.Second):
		log.Warnw("notification queue not drained")
	}
	return nil
}

// runLoop keeps the tracker fresh, publishes a status heartbeat every
// heartbeat interval (0 disables) and returns after publishing SHUTDOWN
// when a signal arrives.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, refresh func(), heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log *zap.SugaredLogger) {
	lastBeat := now()

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Infow("shutting down", "signal", reason)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    reason,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnw("publish shutdown event", "err", err)
			}
			return

		case t := <-tick:
			if tracker == nil {
				continue
			}
			if refresh != nil {
				refresh()
			}
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if heartbeat <= 0 || t.Sub(lastBeat) < heartbeat {
				continue
			}
			lastBeat = t
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.Infow("heartbeat", "uptime", snap.Uptime().Truncate(time.Second), "runs", snap.Runs, "phase", snap.Phase)
			hb := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hb); err != nil {
				log.Warnw("heartbeat publish", "err", err)
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
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
