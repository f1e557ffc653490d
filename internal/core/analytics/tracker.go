package analytics

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
)

// Tracker writes History under StoreKey.
type Tracker struct {
	store   *store.Store
	logger  *logrus.Logger
	devices DeviceSource

	mu      sync.RWMutex
	pricing func() Pricing
	now     func() time.Time
}

func NewTracker(s *store.Store, source DeviceSource, logger *logrus.Logger) *Tracker {
	store.Define(s, StoreKey, func() History { return History{} })
	return &Tracker{
		store:   s,
		logger:  logger,
		devices: source,
		pricing: func() Pricing { return Pricing{CostPerKwh: 3000, Currency: "VND"} },
		now:     time.Now,
	}
}

// SetPricing sets the source of energy prices, usually the settings record.
func (t *Tracker) SetPricing(fn func() Pricing) {
	t.mu.Lock()
	t.pricing = fn
	t.mu.Unlock()
}

func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

func (t *Tracker) clock() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now()
}

// History returns the stored history. Callers must not modify it.
func (t *Tracker) History() History {
	return store.GetAs[History](t.store, StoreKey)
}

func (t *Tracker) mutateDay(at time.Time, fn func(day *Day)) {
	key := at.Format(DateLayout)
	store.MutateAs(t.store, StoreKey, func(h History) (History, bool) {
		next := make(History, len(h)+1)
		for k, v := range h {
			next[k] = v
		}
		day, ok := h[key]
		if ok {
			day = day.clone()
		} else {
			day = newDay()
		}
		fn(&day)
		next[key] = day
		return next, true
	})
}

// RecordDeviceAction appends an action entry for today.
func (t *Tracker) RecordDeviceAction(deviceID, action string, value interface{}) {
	now := t.clock()
	t.mutateDay(now, func(day *Day) {
		day.DeviceActions[deviceID] = append(day.DeviceActions[deviceID], ActionEntry{
			Action:    action,
			Value:     value,
			Timestamp: now,
		})
	})
}

// RecordEnergyConsumption adds kwh to the device's total for today.
func (t *Tracker) RecordEnergyConsumption(deviceID string, kwh float64) {
	t.mutateDay(t.clock(), func(day *Day) {
		day.EnergyConsumption[deviceID] += kwh
	})
}

// RecordEnergyBatch adds several device readings in one write.
func (t *Tracker) RecordEnergyBatch(readings map[string]float64) {
	if len(readings) == 0 {
		return
	}
	t.mutateDay(t.clock(), func(day *Day) {
		for id, kwh := range readings {
			day.EnergyConsumption[id] += kwh
		}
	})
}

// RecordHourlySample adds kwh to the hour bucket containing at.
func (t *Tracker) RecordHourlySample(at time.Time, kwh float64) {
	t.mutateDay(at, func(day *Day) {
		if len(day.Hourly) != 24 {
			day.Hourly = make([]float64, 24)
		}
		day.Hourly[at.Hour()] += kwh
	})
}

func (t *Tracker) RecordSceneRun(sceneID string) {
	t.mutateDay(t.clock(), func(day *Day) {
		day.SceneRuns[sceneID]++
	})
}

// Seed fills the last n days with synthetic consumption for devs.
func (t *Tracker) Seed(devs []devices.Device, days int, rng *rand.Rand) {
	today := t.clock()
	store.MutateAs(t.store, StoreKey, func(h History) (History, bool) {
		next := make(History, len(h)+days)
		for k, v := range h {
			next[k] = v
		}
		for i := days - 1; i >= 0; i-- {
			key := today.AddDate(0, 0, -i).Format(DateLayout)
			day := newDay()
			for _, d := range devs {
				variation := rng.Float64()*0.5 + 0.75
				day.EnergyConsumption[d.ID] = round2(BaseConsumption(d.Type) * variation)
			}
			next[key] = day
		}
		return next, true
	})
	t.logger.WithField("days", days).Info("Seeded analytics history")
}

// SortedDays returns the history's day keys in chronological order.
func SortedDays(h History) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
