// Package smarthome wires the simulation core into one application: the
// store and its persistence, the event loop, the device registry and every
// service hanging off it.
package smarthome

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/core/analytics"
	"github.com/frostdev-ops/pma-homesim/internal/core/automation"
	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/eventloop"
	"github.com/frostdev-ops/pma-homesim/internal/core/metrics"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/internal/core/preferences"
	"github.com/frostdev-ops/pma-homesim/internal/core/rooms"
	"github.com/frostdev-ops/pma-homesim/internal/core/scenes"
	"github.com/frostdev-ops/pma-homesim/internal/core/simulation"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
)

const loopCapacity = 1024

// App owns every simulation component. All state changes go through Loop;
// callers outside the loop use Loop.Do.
type App struct {
	Config *config.Config

	Store       *store.Store
	Loop        *eventloop.Loop
	Scheduler   *automation.Scheduler
	Persistence *store.PersistenceAdapter

	Devices       *devices.Registry
	Rooms         *rooms.RoomService
	Notifications *notifications.Center
	Analytics     *analytics.Tracker
	Settings      *preferences.Manager
	Engine        *automation.Engine
	Rules         *automation.Manager
	Scenes        *scenes.Runner
	Clock         *simulation.Clock
	Linkage       *simulation.Linkage

	Metrics *metrics.PrometheusCollector
	Health  *metrics.HealthChecker

	logger *logrus.Logger
	rng    *rand.Rand

	mu       sync.Mutex
	saveErr  error
	lastSave time.Time
	cancel   context.CancelFunc
	started  bool
}

// New builds the application around backend. Nothing runs until Start.
func New(cfg *config.Config, backend store.Backend, logger *logrus.Logger) *App {
	a := &App{
		Config: cfg,
		logger: logger,
		rng:    newRand(cfg.Simulation.Seed),
	}

	a.Store = store.New(logger)
	a.Loop = eventloop.New(loopCapacity, logger)
	a.Scheduler = automation.NewScheduler(nil, logger)
	a.Metrics = metrics.NewPrometheusCollector(&metrics.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
		Prefix:  metricsPrefix(cfg.Metrics.Prefix),
	})
	a.Health = metrics.NewHealthChecker(2 * time.Second)

	opts := store.AdapterOptions{
		Name:    cfg.Persistence.SnapshotName,
		Timeout: cfg.Persistence.Timeout,
		OnSave:  a.recordSave,
	}
	if cfg.Persistence.Compress {
		opts.Codec = &store.ZstdCodec{}
	}
	a.Persistence = store.NewPersistenceAdapter(backend, opts, logger)

	a.Settings = preferences.NewManager(a.Store, preferences.DefaultSettings(), logger)
	a.Devices = devices.NewRegistry(a.Store, logger)
	a.Rooms = rooms.NewRoomService(a.Store, a.Devices, logger)
	a.Notifications = notifications.NewCenter(a.Store, cfg.Notifications.Capacity, logger)
	a.Analytics = analytics.NewTracker(a.Store, a.Devices, logger)

	a.Engine = automation.NewEngine(a.Devices, a.Notifications, a.Loop, a.Scheduler, automation.EngineConfig{
		Tolerance:            cfg.Automation.Tolerance,
		MaxDepth:             cfg.Automation.MaxCascadeDepth,
		DefaultCheckInterval: cfg.Automation.DefaultCheckInterval,
	}, logger)
	a.Rules = automation.NewManager(a.Store, a.Engine, a.Devices, logger)
	a.Scenes = scenes.NewRunner(a.Store, a.Devices, a.Notifications, a.Loop, cfg.Scenes.SettleDelay, logger)

	a.Linkage = simulation.NewLinkage(a.Devices, a.Engine, a.Notifications, a.after, cfg.Simulation.LinkageDelay, logger)
	a.Clock = simulation.NewClock(a.Devices, a.Engine, a.Notifications, a.Analytics, a.Loop, a.Scheduler, clockConfig(cfg.Simulation), logger)
	a.Clock.SetRand(a.rng)

	a.wire()
	a.registerHealthChecks()
	return a
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func metricsPrefix(prefix string) string {
	if prefix == "" {
		return "homesim"
	}
	return prefix
}

func clockConfig(sim config.SimulationConfig) simulation.Config {
	c := simulation.DefaultConfig()
	if sim.TemperatureStep > 0 {
		c.TemperatureStep = sim.TemperatureStep
	}
	if sim.DeviceTick > 0 {
		c.DeviceTick = sim.DeviceTick
	}
	if sim.RuleSweep > 0 {
		c.RuleSweep = sim.RuleSweep
	}
	if sim.StatusSweep > 0 {
		c.StatusSweep = sim.StatusSweep
	}
	if sim.EnergySample > 0 {
		c.EnergySample = sim.EnergySample
	}
	if sim.EnergyAlert > 0 {
		c.EnergyAlert = sim.EnergyAlert
	}
	if sim.UsageLearning > 0 {
		c.UsageLearning = sim.UsageLearning
	}
	if sim.AmbientTemperature != 0 {
		c.AmbientTemperature = sim.AmbientTemperature
	}
	if sim.OfflineProbability > 0 {
		c.OfflineProbability = sim.OfflineProbability
	}
	return c
}

// after schedules fn on the loop once d has elapsed.
func (a *App) after(d time.Duration, fn func()) {
	a.Loop.After(d, fn)
}

func (a *App) wire() {
	// Rules see a change before the linkage simulation so a covering rule
	// wins the heater-off transition.
	a.Devices.OnChange(a.Engine.ProcessDeviceStateChange)
	a.Devices.OnChange(a.Linkage.HandleChange)
	a.Devices.OnDelete(a.Scenes.RemoveDevice)
	a.Devices.OnDelete(a.Rules.RemoveDevice)

	a.Devices.SetRecorder(a.Analytics)
	a.Devices.SetHomeResolver(a.Rooms.CurrentHomeID)
	a.Scenes.SetRecorder(a.Analytics)
	a.Scenes.SetHomeResolver(a.Rooms.CurrentHomeID)

	automationOn := a.Config.Automation.Enabled
	a.Engine.SetEnabledGate(func() bool {
		return automationOn && a.Settings.AutomationEnabled()
	})
	a.Notifications.SetDeliveryGate(a.Settings.NotificationsEnabled)

	energy := a.Config.Energy
	a.Analytics.SetPricing(func() analytics.Pricing {
		p := a.Settings.Get().Energy
		if p.CostPerKwh <= 0 {
			p.CostPerKwh = energy.CostPerKwh
		}
		if p.Currency == "" {
			p.Currency = energy.Currency
		}
		return analytics.Pricing{CostPerKwh: p.CostPerKwh, Currency: p.Currency}
	})

	a.Engine.OnExecuted(func(rule automation.Rule, result automation.ExecutionResult, d time.Duration) {
		a.Metrics.RecordAutomationExecution(rule.ID, result.Effect, d)
	})
	a.Scenes.OnRun(func(exec scenes.Execution) {
		a.Metrics.RecordSceneRun(exec.Applied, exec.Skipped, exec.FinishedAt.Sub(exec.StartedAt))
	})
	a.Notifications.AddSink(notifications.SinkFunc(func(n notifications.Notification) {
		a.Metrics.RecordNotification(string(n.Type))
	}))
	store.SubscribeAs(a.Store, devices.StoreKey, func(list []devices.Device) {
		a.Metrics.RecordDeviceCounts(countDevices(list))
	})
	a.Metrics.RegisterGaugeFunc("event_loop_dropped_tasks", "Tasks dropped because the event loop queue was full", func() float64 {
		return float64(a.Loop.Dropped())
	})
}

func countDevices(list []devices.Device) (total, online, on map[string]int) {
	total = make(map[string]int)
	online = make(map[string]int)
	on = make(map[string]int)
	for _, d := range list {
		t := string(d.Type)
		total[t]++
		if d.IsOnline {
			online[t]++
		}
		if d.IsOn {
			on[t]++
		}
	}
	return total, online, on
}

func (a *App) recordSave(err error, took time.Duration) {
	a.mu.Lock()
	a.saveErr = err
	a.lastSave = time.Now()
	a.mu.Unlock()
	a.Metrics.RecordSnapshotSave(err, took)
}

func (a *App) registerHealthChecks() {
	a.Health.RegisterCheck("event_loop", func(ctx context.Context) metrics.HealthStatus {
		if err := a.Loop.Do(ctx, func() error { return nil }); err != nil {
			return metrics.NewHealthStatus(metrics.StatusUnhealthy, "Event loop not responding").
				WithDetail("error", err.Error())
		}
		return metrics.NewHealthStatus(metrics.StatusHealthy, "Event loop running").
			WithDetail("dropped_tasks", a.Loop.Dropped())
	})

	a.Health.RegisterCheck("persistence", func(context.Context) metrics.HealthStatus {
		a.mu.Lock()
		err, last := a.saveErr, a.lastSave
		a.mu.Unlock()

		if err != nil {
			return metrics.NewHealthStatus(metrics.StatusDegraded, "Last snapshot save failed").
				WithDetails(map[string]interface{}{"error": err.Error(), "last_attempt": last})
		}
		status := metrics.NewHealthStatus(metrics.StatusHealthy, "Snapshots saving")
		if !last.IsZero() {
			status = status.WithDetail("last_save", last)
		}
		return status
	})

	a.Health.RegisterCheck("scheduler", func(context.Context) metrics.HealthStatus {
		if !a.Scheduler.IsRunning() {
			return metrics.NewHealthStatus(metrics.StatusDegraded, "Scheduler stopped")
		}
		return metrics.NewHealthStatus(metrics.StatusHealthy, "Scheduler running").
			WithDetail("jobs", len(a.Scheduler.Jobs()))
	})
}

// Start restores the last snapshot, re-registers the persisted rules and
// starts the loop, the scheduler and the simulation clock.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("smarthome: already started")
	}
	a.started = true
	a.mu.Unlock()

	if a.Persistence.Restore(ctx, a.Store) {
		a.logger.Info("Restored state snapshot")
	}
	a.Store.SetPersister(a.Persistence)

	restored := a.Rules.RestoreAll()
	a.logger.WithField("rules", restored).Info("Automation rules registered")

	if restored == 0 && a.Config.Automation.RulesFile != "" {
		if err := a.importRulesFile(a.Config.Automation.RulesFile); err != nil {
			a.logger.WithError(err).Warn("Failed to import rules file")
		}
	}

	if a.Config.Seed.SampleData && len(a.Devices.List()) == 0 {
		if err := a.SeedSampleData(); err != nil {
			return fmt.Errorf("failed to seed sample data: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	go a.Loop.Run(loopCtx)

	if err := a.Scheduler.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	a.Scenes.SetScheduler(a.Scheduler)

	if a.Config.Simulation.Enabled {
		if err := a.Clock.Start(); err != nil {
			return fmt.Errorf("failed to start simulation clock: %w", err)
		}
	}

	a.logger.WithField("devices", len(a.Devices.List())).Info("Smart home simulation started")
	return nil
}

func (a *App) importRulesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "yml" {
		format = "yaml"
	}
	rules, err := a.Rules.Import(data, format)
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{"path": path, "rules": len(rules)}).Info("Imported automation rules")
	return nil
}

// Stop halts the periodic work, writes a final snapshot from the loop and
// stops the loop.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}

	a.Clock.Stop()
	if a.Scheduler.IsRunning() {
		if err := a.Scheduler.Stop(); err != nil {
			a.logger.WithError(err).Warn("Failed to stop scheduler")
		}
	}

	err := a.Loop.Do(ctx, func() error {
		a.Persistence.SaveSnapshot(a.Store)
		return nil
	})
	cancel()

	select {
	case <-a.Loop.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	a.logger.Info("Smart home simulation stopped")
	return err
}

// AddDevice creates a device and, when withAutomation is set, its preset
// rules, in one loop task.
func (a *App) AddDevice(ctx context.Context, d devices.Device, withAutomation bool) (devices.Device, []automation.Rule, error) {
	var (
		added devices.Device
		rules []automation.Rule
	)
	err := a.Loop.Do(ctx, func() error {
		var err error
		added, err = a.Devices.Add(d)
		if err != nil {
			return err
		}
		if withAutomation {
			rules, err = a.Rules.SetupDeviceAutomation(added)
		}
		return err
	})
	a.Metrics.RecordDeviceOperation(string(d.Type), "create", err == nil)
	return added, rules, err
}
