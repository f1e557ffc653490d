// Package simulation runs the physical model of the simulated home: heater
// temperatures, timers, energy use, connectivity and usage learning.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/analytics"
	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/eventloop"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// Thermal rates in °C per minute.
const (
	waterHeaterHeatRate = 2.0
	towelDryerHeatRate  = 1.5
	coolingRate         = 0.5
	roomHeatRate        = 2.4
	roomCoolRate        = 1.2
)

const (
	// onlineAfterChange is the chance a device that changed status comes
	// back online.
	onlineAfterChange = 0.9
	// firmwareUpdateChance is the per-device chance of an update notice on
	// each energy check.
	firmwareUpdateChance = 0.01
	// energyAlertFactor is how far above the daily average today must be
	// before the high consumption alert fires.
	energyAlertFactor = 1.3
)

// Config holds the periods of every clock task.
type Config struct {
	TemperatureStep    time.Duration
	DeviceTick         time.Duration
	RuleSweep          time.Duration
	StatusSweep        time.Duration
	EnergySample       time.Duration
	EnergyAlert        time.Duration
	UsageLearning      time.Duration
	AmbientTemperature float64
	OfflineProbability float64
}

func DefaultConfig() Config {
	return Config{
		TemperatureStep:    5 * time.Second,
		DeviceTick:         time.Second,
		RuleSweep:          10 * time.Second,
		StatusSweep:        30 * time.Second,
		EnergySample:       time.Hour,
		EnergyAlert:        5 * time.Minute,
		UsageLearning:      time.Hour,
		AmbientTemperature: devices.AmbientTemperature,
		OfflineProbability: 0.05,
	}
}

// DeviceStore is the registry surface the clock drives.
type DeviceStore interface {
	List() []devices.Device
	Update(id string, patch devices.Patch) (devices.Device, error)
}

// Automation is the rule engine surface the clock calls into.
type Automation interface {
	CheckAllRules()
	CompleteTowelDrying(deviceID string)
}

type Notifier interface {
	Add(n notifications.Notification) notifications.Notification
}

// Analytics records samples and answers the questions the periodic checks
// ask.
type Analytics interface {
	RecordEnergyBatch(readings map[string]float64)
	RecordHourlySample(at time.Time, kwh float64)
	TotalToday() float64
	AverageDailyConsumption() float64
	UsagePattern(deviceID string) analytics.UsagePattern
}

// JobScheduler runs periodic jobs off the loop.
type JobScheduler interface {
	Every(id string, interval time.Duration, job func()) error
	Unschedule(id string)
}

// EnergyReading is one device's consumption in a sample.
type EnergyReading struct {
	DeviceID string
	Name     string
	Type     devices.DeviceType
	RoomID   string
	KWh      float64
}

// EnergySample is the hourly consumption snapshot handed to sinks.
type EnergySample struct {
	At       time.Time
	Readings []EnergyReading
	Total    float64
}

// EnergySink exports energy samples. Sinks run on the event loop and must
// not block.
type EnergySink interface {
	WriteEnergy(ctx context.Context, sample EnergySample) error
}

// Clock schedules the periodic simulation tasks. Every task runs as an event
// loop task; the exported step methods are the task bodies and are called
// directly by tests.
type Clock struct {
	devices   DeviceStore
	engine    Automation
	notifier  Notifier
	analytics Analytics
	executor  eventloop.Executor
	scheduler JobScheduler
	config    Config
	logger    *logrus.Logger

	mu            sync.Mutex
	rng           *rand.Rand
	sinks         []EnergySink
	now           func() time.Time
	jobs          []string
	lastAlertDay  string
	lastLearnedAt map[string]time.Time
	// timerElapsed holds the part of a minute each running timer has
	// accumulated since its last decrement.
	timerElapsed map[string]time.Duration
}

func NewClock(devs DeviceStore, engine Automation, notifier Notifier, tracker Analytics, executor eventloop.Executor, scheduler JobScheduler, config Config, logger *logrus.Logger) *Clock {
	defaults := DefaultConfig()
	if config.TemperatureStep <= 0 {
		config.TemperatureStep = defaults.TemperatureStep
	}
	if config.DeviceTick <= 0 {
		config.DeviceTick = defaults.DeviceTick
	}
	if config.AmbientTemperature == 0 {
		config.AmbientTemperature = defaults.AmbientTemperature
	}
	return &Clock{
		devices:       devs,
		engine:        engine,
		notifier:      notifier,
		analytics:     tracker,
		executor:      executor,
		scheduler:     scheduler,
		config:        config,
		logger:        logger,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		now:           time.Now,
		lastLearnedAt: make(map[string]time.Time),
		timerElapsed:  make(map[string]time.Duration),
	}
}

// SetRand replaces the random source used by status and energy sampling.
func (c *Clock) SetRand(rng *rand.Rand) {
	c.mu.Lock()
	c.rng = rng
	c.mu.Unlock()
}

func (c *Clock) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// AddSink registers an energy sample exporter.
func (c *Clock) AddSink(sink EnergySink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, sink)
	c.mu.Unlock()
}

func (c *Clock) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Clock) chance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

// Start schedules every task with a positive period.
func (c *Clock) Start() error {
	tasks := []struct {
		id       string
		interval time.Duration
		run      func()
	}{
		{"sim:temperature", c.config.TemperatureStep, c.StepTemperatures},
		{"sim:tick", c.config.DeviceTick, c.Tick},
		{"sim:rules", c.config.RuleSweep, c.SweepRules},
		{"sim:status", c.config.StatusSweep, c.SweepStatus},
		{"sim:energy_sample", c.config.EnergySample, c.SampleEnergy},
		{"sim:energy_alert", c.config.EnergyAlert, c.CheckEnergy},
		{"sim:learning", c.config.UsageLearning, c.LearnUsage},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, task := range tasks {
		if task.interval <= 0 {
			continue
		}
		run := task.run
		if err := c.scheduler.Every(task.id, task.interval, func() { c.executor.Post(run) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", task.id, err)
		}
		c.jobs = append(c.jobs, task.id)
	}
	c.logger.WithField("jobs", len(c.jobs)).Info("Simulation clock started")
	return nil
}

// Stop removes every scheduled task.
func (c *Clock) Stop() {
	c.mu.Lock()
	jobs := c.jobs
	c.jobs = nil
	c.mu.Unlock()

	for _, id := range jobs {
		c.scheduler.Unschedule(id)
	}
}

func (c *Clock) update(id string, patch devices.Patch) (devices.Device, bool) {
	d, err := c.devices.Update(id, patch)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			c.logger.WithError(err).WithField("device_id", id).Warn("Simulation update failed")
		}
		return devices.Device{}, false
	}
	return d, true
}

// StepTemperatures moves every heater one step along its thermal model.
func (c *Clock) StepTemperatures() {
	minutes := c.config.TemperatureStep.Minutes()
	ambient := c.config.AmbientTemperature

	for _, d := range c.devices.List() {
		if !d.IsHeater() {
			continue
		}

		temp := d.CurrentTemperature
		room := d.CurrentRoomTemperature
		if room == 0 {
			room = ambient
		}

		if d.IsOn && d.IsOnline {
			rate := towelDryerHeatRate
			if d.Type == devices.TypeWaterHeater {
				rate = waterHeaterHeatRate
			}
			if temp < d.TargetTemperature {
				temp = stepToward(temp, d.TargetTemperature, rate*minutes)
			}
			if d.Type == devices.TypeTowelDryer && d.Mode == devices.ModeRoomHeating {
				target := d.TargetRoomTemperature
				if target == 0 {
					target = devices.DefaultTargetRoomTemperature
				}
				if room < target {
					room = stepToward(room, target, roomHeatRate*minutes)
				}
			}
		} else {
			if temp > ambient {
				temp = stepToward(temp, ambient, coolingRate*minutes)
			}
			if d.Type == devices.TypeTowelDryer && room > ambient {
				room = stepToward(room, ambient, roomCoolRate*minutes)
			}
		}

		var patch devices.Patch
		if temp != d.CurrentTemperature {
			patch.CurrentTemperature = devices.Float(temp)
		}
		if d.Type == devices.TypeTowelDryer && room != d.CurrentRoomTemperature {
			patch.CurrentRoomTemperature = devices.Float(room)
		}
		if !patch.IsEmpty() {
			c.update(d.ID, patch)
		}
	}
}

// stepToward moves cur by delta toward goal without passing it. The result is
// rounded to one decimal and always moves at least 0.1 so that small rates
// do not stall on rounding.
func stepToward(cur, goal, delta float64) float64 {
	if cur == goal {
		return cur
	}
	dir := 1.0
	if goal < cur {
		dir = -1.0
	}
	next := devices.Round1(cur + dir*delta)
	if next == devices.Round1(cur) {
		next = devices.Round1(cur + dir*0.1)
	}
	if dir*(next-goal) > 0 {
		return goal
	}
	return next
}

// elapsedTimerMinutes adds one device tick to d's timer and returns the
// whole minutes that have now passed. remainingTime counts minutes.
func (c *Clock) elapsedTimerMinutes(d devices.Device) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.RemainingTime <= 0 {
		delete(c.timerElapsed, d.ID)
		return 0
	}
	elapsed := c.timerElapsed[d.ID] + c.config.DeviceTick
	minutes := int(elapsed / time.Minute)
	c.timerElapsed[d.ID] = elapsed - time.Duration(minutes)*time.Minute
	return minutes
}

// pruneTimers forgets the timer progress of devices that no longer exist.
func (c *Clock) pruneTimers(list []devices.Device) {
	present := make(map[string]bool, len(list))
	for _, d := range list {
		present[d.ID] = true
	}
	c.mu.Lock()
	for id := range c.timerElapsed {
		if !present[id] {
			delete(c.timerElapsed, id)
		}
	}
	c.mu.Unlock()
}

// Tick advances timers and energy counters by one device tick and completes
// towel drying for dryers that reached their target.
func (c *Clock) Tick() {
	seconds := c.config.DeviceTick.Seconds()
	var drying []string

	list := c.devices.List()
	c.pruneTimers(list)
	for _, d := range list {
		var patch devices.Patch
		if d.IsOn && d.IsOnline {
			patch.EnergyConsumption = devices.Float(d.EnergyConsumption + analytics.HourlyRate(d)*seconds/3600)
		}

		timerDone := false
		if minutes := c.elapsedTimerMinutes(d); minutes > 0 {
			remaining := d.RemainingTime - minutes
			if remaining <= 0 {
				remaining = 0
				patch.IsOn = devices.Bool(false)
				timerDone = true
			}
			patch.RemainingTime = devices.Int(remaining)
		}

		if !patch.IsEmpty() {
			updated, ok := c.update(d.ID, patch)
			if !ok {
				continue
			}
			d = updated
		}
		if timerDone {
			c.notifier.Add(notifications.Notification{
				Type:     notifications.LevelSuccess,
				Title:    "Timer complete",
				Message:  fmt.Sprintf("%s switched off on schedule", d.Name),
				Icon:     d.Icon,
				DeviceID: d.ID,
			})
		}

		if d.Type == devices.TypeTowelDryer && d.IsOn && d.Mode == devices.ModeTowelDry &&
			d.CurrentTemperature >= d.TargetTemperature {
			drying = append(drying, d.ID)
		}
	}

	for _, id := range drying {
		c.engine.CompleteTowelDrying(id)
	}
}

// SweepRules evaluates every temperature_reached rule.
func (c *Clock) SweepRules() {
	c.engine.CheckAllRules()
}

// SweepStatus randomly takes devices offline and back online.
func (c *Clock) SweepStatus() {
	for _, d := range c.devices.List() {
		if c.chance() >= c.config.OfflineProbability {
			continue
		}
		online := c.chance() < onlineAfterChange
		if online == d.IsOnline {
			continue
		}
		updated, ok := c.update(d.ID, devices.Patch{IsOnline: devices.Bool(online)})
		if !ok {
			continue
		}

		n := notifications.Notification{Icon: updated.Icon, DeviceID: updated.ID}
		if online {
			n.Type = notifications.LevelSuccess
			n.Title = fmt.Sprintf("%s reconnected", updated.Name)
			n.Message = "The device is back online"
		} else {
			n.Type = notifications.LevelWarning
			n.Title = fmt.Sprintf("%s lost connection", updated.Name)
			n.Message = "The device dropped off the network"
		}
		c.notifier.Add(n)
		c.logger.WithFields(logrus.Fields{"device_id": updated.ID, "online": online}).Debug("Device status changed")
	}
}

// SampleEnergy records one consumption sample for every running device and
// hands it to the sinks.
func (c *Clock) SampleEnergy() {
	now := c.clock()
	sample := EnergySample{At: now}
	readings := make(map[string]float64)

	for _, d := range c.devices.List() {
		if !d.IsOn || !d.IsOnline {
			continue
		}
		kwh := analytics.BaseConsumption(d.Type) * (0.8 + 0.4*c.chance())
		kwh = math.Round(kwh*1000) / 1000
		readings[d.ID] = kwh
		sample.Total += kwh
		sample.Readings = append(sample.Readings, EnergyReading{
			DeviceID: d.ID,
			Name:     d.Name,
			Type:     d.Type,
			RoomID:   d.RoomID,
			KWh:      kwh,
		})
	}

	c.analytics.RecordEnergyBatch(readings)
	c.analytics.RecordHourlySample(now, sample.Total)

	c.mu.Lock()
	sinks := c.sinks
	c.mu.Unlock()
	for _, sink := range sinks {
		if err := sink.WriteEnergy(context.Background(), sample); err != nil {
			c.logger.WithError(err).Warn("Energy sink write failed")
		}
	}
}

// CheckEnergy warns once a day when consumption runs well above average and
// occasionally announces firmware updates.
func (c *Clock) CheckEnergy() {
	now := c.clock()
	today := now.Format(analytics.DateLayout)
	total := c.analytics.TotalToday()
	avg := c.analytics.AverageDailyConsumption()

	c.mu.Lock()
	alerted := c.lastAlertDay == today
	c.mu.Unlock()

	if !alerted && avg > 0 && total > avg*energyAlertFactor {
		c.notifier.Add(notifications.Notification{
			Type:    notifications.LevelWarning,
			Title:   "High energy consumption",
			Message: fmt.Sprintf("Today is more than 30%% above average (%.1f kWh)", total),
			Icon:    "⚡",
		})
		c.mu.Lock()
		c.lastAlertDay = today
		c.mu.Unlock()
	}

	for _, d := range c.devices.List() {
		if c.chance() < firmwareUpdateChance {
			c.notifier.Add(notifications.Notification{
				Type:     notifications.LevelInfo,
				Title:    "Update available",
				Message:  fmt.Sprintf("New firmware for %s", d.Name),
				Icon:     d.Icon,
				DeviceID: d.ID,
			})
		}
	}
}

// LearnUsage analyzes heater usage and suggests optimizations when the
// pattern is confident enough. A device is advised at most once a day.
func (c *Clock) LearnUsage() {
	now := c.clock()
	for _, d := range c.devices.List() {
		if !d.IsHeater() {
			continue
		}
		c.mu.Lock()
		last, seen := c.lastLearnedAt[d.ID]
		c.mu.Unlock()
		if seen && now.Sub(last) < 24*time.Hour {
			continue
		}

		pattern := c.analytics.UsagePattern(d.ID)
		if pattern.Confidence <= analytics.PatternConfidenceThreshold {
			continue
		}
		suggestions := analytics.OptimizationSuggestions(d, pattern)
		for _, s := range suggestions {
			c.notifier.Add(notifications.Notification{
				Type:     notifications.LevelInfo,
				Title:    s.Title,
				Message:  s.Message,
				Icon:     "💡",
				DeviceID: d.ID,
			})
		}
		if len(suggestions) > 0 {
			c.mu.Lock()
			c.lastLearnedAt[d.ID] = now
			c.mu.Unlock()
		}
	}
}
