// Package automation evaluates declarative device rules: state-change
// triggers, periodic temperature checks and the thermostat logic behind them.
package automation

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/eventloop"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// DeviceStore is the slice of the device registry the engine needs.
type DeviceStore interface {
	Get(id string) (devices.Device, error)
	List() []devices.Device
	Update(id string, patch devices.Patch) (devices.Device, error)
}

// Notifier posts notifications on behalf of rules.
type Notifier interface {
	Add(n notifications.Notification) notifications.Notification
	Smart(kind notifications.SmartKind, d devices.Device) notifications.Notification
}

// Auto action markers written to Device.LastAutoAction.
const (
	AutoTurnOnHeating  = "auto_turn_on_heating"
	AutoTurnOffHeating = "auto_turn_off_heating"
	AutoDryComplete    = "auto_turn_off_dry_complete"
	AutoEcoModeNight   = "auto_eco_mode_night"
	AutoMorningBoost   = "auto_morning_boost"
)

// EngineConfig contains engine configuration
type EngineConfig struct {
	// Tolerance is the thermostat half band in °C.
	Tolerance float64 `json:"tolerance"`
	// MaxDepth bounds nested rule executions within one cascade.
	MaxDepth int `json:"max_depth"`
	// DefaultCheckInterval applies to temperature_check rules without one.
	DefaultCheckInterval time.Duration `json:"default_check_interval"`
}

// DefaultEngineConfig returns the stock thermostat and cascade settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Tolerance:            1.0,
		MaxDepth:             8,
		DefaultCheckInterval: DefaultCheckInterval,
	}
}

// RuleStats tracks how often a rule ran.
type RuleStats struct {
	RunCount   int64      `json:"runCount"`
	LastRun    *time.Time `json:"lastRun,omitempty"`
	LastEffect bool       `json:"lastEffect"`
}

// ExecutionResult describes one rule run.
type ExecutionResult struct {
	RuleID   string `json:"ruleId"`
	Executed bool   `json:"executed"`
	Effect   bool   `json:"effect"`
	Notified bool   `json:"notified"`
	Applied  int    `json:"applied"`
	Skipped  int    `json:"skipped"`
}

// ExecutionHook observes finished rule runs.
type ExecutionHook func(rule Rule, result ExecutionResult, duration time.Duration)

// Engine holds the registered rules and evaluates them. Every entry point is
// expected to run on the event loop; the mutex only guards the maps.
type Engine struct {
	devices   DeviceStore
	notifier  Notifier
	executor  eventloop.Executor
	scheduler *Scheduler
	config    EngineConfig
	logger    *logrus.Logger

	mu       sync.RWMutex
	rules    map[string]Rule
	order    []string
	stats    map[string]*RuleStats
	inFlight map[string]bool
	depth    int

	enabled func() bool
	hooks   []ExecutionHook
	now     func() time.Time
}

// NewEngine creates a rule engine. scheduler may be nil, in which case
// temperature_check rules only run through ProcessTemperatureCheck.
func NewEngine(devs DeviceStore, notifier Notifier, executor eventloop.Executor, scheduler *Scheduler, config EngineConfig, logger *logrus.Logger) *Engine {
	defaults := DefaultEngineConfig()
	if config.Tolerance <= 0 {
		config.Tolerance = defaults.Tolerance
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = defaults.MaxDepth
	}
	if config.DefaultCheckInterval <= 0 {
		config.DefaultCheckInterval = defaults.DefaultCheckInterval
	}

	return &Engine{
		devices:   devs,
		notifier:  notifier,
		executor:  executor,
		scheduler: scheduler,
		config:    config,
		logger:    logger,
		rules:     make(map[string]Rule),
		stats:     make(map[string]*RuleStats),
		inFlight:  make(map[string]bool),
		now:       time.Now,
	}
}

// SetEnabledGate installs the global automation switch.
func (e *Engine) SetEnabledGate(enabled func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// OnExecuted registers a hook called after every rule run.
func (e *Engine) OnExecuted(hook ExecutionHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, hook)
}

// SetClock overrides the wall clock used for stats and time-of-day logic.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *Engine) clock() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now()
}

// Enabled reports whether rules may run.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	gate := e.enabled
	e.mu.RUnlock()
	return gate == nil || gate()
}

func checkJobID(ruleID string) string {
	return "rule:" + ruleID
}

// RegisterRule validates and caches the rule, replacing a previous rule with
// the same id. temperature_check rules also get a periodic job.
func (e *Engine) RegisterRule(rule Rule) error {
	if err := rule.Validate().Err(); err != nil {
		return err
	}
	rule = rule.Clone()

	e.mu.Lock()
	if _, exists := e.rules[rule.ID]; !exists {
		e.order = append(e.order, rule.ID)
		e.stats[rule.ID] = &RuleStats{}
	}
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	if e.scheduler != nil {
		if rule.Trigger.Type == TriggerTemperatureCheck {
			if err := e.schedule(rule); err != nil {
				return err
			}
		} else {
			e.scheduler.Unschedule(checkJobID(rule.ID))
		}
	}

	e.logger.WithFields(logrus.Fields{
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"trigger":   rule.Trigger.Type,
		"device_id": rule.Trigger.DeviceID,
	}).Debug("Automation rule registered")
	return nil
}

func (e *Engine) schedule(rule Rule) error {
	id := rule.ID
	interval := rule.Trigger.Interval(e.config.DefaultCheckInterval)
	return e.scheduler.Every(checkJobID(id), interval, func() {
		e.executor.Post(func() {
			current, ok := e.Rule(id)
			if !ok {
				return
			}
			e.ProcessTemperatureCheck(current)
		})
	})
}

// UnregisterRule drops the rule and its periodic job. Jobs already queued on
// the loop find the rule gone and do nothing.
func (e *Engine) UnregisterRule(id string) {
	e.mu.Lock()
	_, exists := e.rules[id]
	if exists {
		delete(e.rules, id)
		delete(e.stats, id)
		for i, ruleID := range e.order {
			if ruleID == id {
				e.order = append(e.order[:i:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	if e.scheduler != nil {
		e.scheduler.Unschedule(checkJobID(id))
	}
	if exists {
		e.logger.WithField("rule_id", id).Debug("Automation rule unregistered")
	}
}

// Rule returns a registered rule.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return Rule{}, false
	}
	return r.Clone(), true
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id].Clone())
	}
	return out
}

// Stats returns the run statistics of a rule.
func (e *Engine) Stats(id string) (RuleStats, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.stats[id]
	if !ok {
		return RuleStats{}, false
	}
	c := *s
	if s.LastRun != nil {
		t := *s.LastRun
		c.LastRun = &t
	}
	return c, true
}

func (e *Engine) matching(trigger TriggerType, deviceID string) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Rule
	for _, id := range e.order {
		r := e.rules[id]
		if r.Trigger.Type != trigger {
			continue
		}
		if deviceID != "" && r.Trigger.DeviceID != deviceID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// HasStateChangeRule reports whether an active rule already reacts to
// deviceID's property becoming value. A paused engine covers nothing.
func (e *Engine) HasStateChangeRule(deviceID, property string, value interface{}) bool {
	if !e.Enabled() {
		return false
	}
	for _, r := range e.matching(TriggerStateChange, deviceID) {
		if r.IsActive && r.Trigger.Property == property && devices.ValuesEqual(r.Trigger.Value, value) {
			return true
		}
	}
	return false
}

// HasActiveRule reports whether an active rule of the given trigger type
// watches deviceID.
func (e *Engine) HasActiveRule(trigger TriggerType, deviceID string) bool {
	for _, r := range e.matching(trigger, deviceID) {
		if r.IsActive {
			return true
		}
	}
	return false
}

// ProcessDeviceStateChange runs the state-change rules of deviceID whose
// trigger value the patch has just transitioned to.
func (e *Engine) ProcessDeviceStateChange(deviceID string, old devices.Device, patch devices.Patch) {
	if !e.Enabled() {
		return
	}

	for _, rule := range e.matching(TriggerStateChange, deviceID) {
		if !rule.IsActive {
			continue
		}
		next, ok := patch.Value(rule.Trigger.Property)
		if !ok || !devices.ValuesEqual(next, rule.Trigger.Value) {
			continue
		}
		prev, _ := devices.Lookup(old, rule.Trigger.Property)
		if devices.ValuesEqual(prev, rule.Trigger.Value) {
			continue
		}
		if !e.CheckConditions(rule.Conditions) {
			continue
		}
		e.ExecuteRule(rule)
	}
}

// ProcessTemperatureCheck evaluates a temperature_reached or
// temperature_check rule against the live device.
func (e *Engine) ProcessTemperatureCheck(rule Rule) {
	if !rule.IsActive || !e.Enabled() {
		return
	}
	d, err := e.devices.Get(rule.Trigger.DeviceID)
	if err != nil {
		return
	}
	if !e.CheckConditions(rule.Conditions) {
		return
	}

	switch rule.Trigger.Type {
	case TriggerTemperatureReached:
		if d.CurrentTemperature >= d.TargetTemperature {
			e.ExecuteRule(rule)
		}
	case TriggerTemperatureCheck:
		e.ExecuteRule(rule)
	}
}

// CheckAllRules sweeps every temperature_reached rule.
func (e *Engine) CheckAllRules() {
	for _, rule := range e.matching(TriggerTemperatureReached, "") {
		e.ProcessTemperatureCheck(rule)
	}
}

// CheckConditions is the conjunction of conds over live device values. A
// missing device fails its condition.
func (e *Engine) CheckConditions(conds []Condition) bool {
	for _, c := range conds {
		d, err := e.devices.Get(c.DeviceID)
		if err != nil {
			return false
		}
		actual, ok := devices.Lookup(d, c.Property)
		if !ok || !evaluate(c.Operator, actual, c.Value) {
			return false
		}
	}
	return true
}

func evaluate(op Operator, actual, expected interface{}) bool {
	switch op {
	case OpNotEquals:
		return !devices.ValuesEqual(actual, expected)
	case OpGreaterThan:
		cmp, ok := devices.CompareValues(actual, expected)
		return ok && cmp > 0
	case OpLessThan:
		cmp, ok := devices.CompareValues(actual, expected)
		return ok && cmp < 0
	default:
		return devices.ValuesEqual(actual, expected)
	}
}

func (e *Engine) enter(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[id] || e.depth >= e.config.MaxDepth {
		return false
	}
	e.inFlight[id] = true
	e.depth++
	return true
}

func (e *Engine) leave(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
	e.depth--
}

// ExecuteRule runs the rule's actions in order. A rule already running
// further up the call stack, or a cascade deeper than MaxDepth, is skipped.
func (e *Engine) ExecuteRule(rule Rule) ExecutionResult {
	result := ExecutionResult{RuleID: rule.ID}
	log := e.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "rule_name": rule.Name})

	if !e.enter(rule.ID) {
		log.Debug("Automation cascade suppressed")
		return result
	}
	start := time.Now()
	defer e.leave(rule.ID)

	result.Executed = true
	for _, action := range rule.Actions {
		out, err := e.executeAction(action)
		if err != nil {
			result.Skipped++
			log.WithError(err).WithField("action", action.Type).Warn("Automation action skipped")
			continue
		}
		result.Applied++
		result.Effect = result.Effect || out.effect
		result.Notified = result.Notified || out.notified
	}

	// Every executed rule reports itself, except a periodic
	// temperature_check that left its device untouched.
	if result.Effect || rule.Trigger.Type != TriggerTemperatureCheck {
		e.notifier.Add(notifications.Notification{
			Type:    notifications.LevelInfo,
			Title:   "Automation executed",
			Message: rule.Name + " ran automatically",
			Icon:    "🤖",
		})
	}

	e.recordRun(rule, result, time.Since(start))
	log.WithFields(logrus.Fields{
		"effect":  result.Effect,
		"applied": result.Applied,
		"skipped": result.Skipped,
	}).Info("Automation rule executed")
	return result
}

func (e *Engine) recordRun(rule Rule, result ExecutionResult, duration time.Duration) {
	now := e.clock()

	e.mu.Lock()
	if s, ok := e.stats[rule.ID]; ok {
		s.RunCount++
		s.LastRun = &now
		s.LastEffect = result.Effect
	}
	hooks := e.hooks
	e.mu.Unlock()

	for _, hook := range hooks {
		hook(rule, result, duration)
	}
}

type outcome struct {
	effect   bool
	notified bool
}

func (e *Engine) executeAction(action Action) (outcome, error) {
	switch action.Type {
	case ActionDeviceControl:
		return e.deviceControl(action)
	case ActionNotification:
		icon := action.Icon
		if icon == "" {
			icon = "🔔"
		}
		e.notifier.Add(notifications.Notification{
			Type:     notifications.LevelInfo,
			Title:    action.Title,
			Message:  action.Message,
			Icon:     icon,
			DeviceID: action.DeviceID,
		})
		return outcome{effect: true, notified: true}, nil
	case ActionTemperatureControl:
		d, err := e.devices.Get(action.DeviceID)
		if err != nil {
			return outcome{}, err
		}
		if action.Logic == LogicAdvancedControl {
			return e.advancedControl(d)
		}
		return e.maintainTemperature(d)
	default:
		return outcome{}, apperrors.Invalid("action", "unsupported action type %q", action.Type)
	}
}

// deviceControl sets one property. Writing the value the device already
// holds is a no-op so that re-running a rule does not retrigger cascades.
func (e *Engine) deviceControl(action Action) (outcome, error) {
	d, err := e.devices.Get(action.DeviceID)
	if err != nil {
		return outcome{}, err
	}
	if current, ok := devices.Lookup(d, action.Property); ok && devices.ValuesEqual(current, action.Value) {
		return outcome{}, nil
	}

	var patch devices.Patch
	if err := patch.Set(action.Property, action.Value); err != nil {
		return outcome{}, err
	}
	if _, err := e.devices.Update(d.ID, patch); err != nil {
		return outcome{}, err
	}
	return outcome{effect: true}, nil
}

// CompleteTowelDrying handles a towel dryer that reached its target in
// towel_dry mode. Active temperature_reached rules for the device take
// precedence; otherwise the dryer switches itself off and reports it.
func (e *Engine) CompleteTowelDrying(deviceID string) {
	if e.Enabled() && e.HasActiveRule(TriggerTemperatureReached, deviceID) {
		for _, rule := range e.matching(TriggerTemperatureReached, deviceID) {
			e.ProcessTemperatureCheck(rule)
		}
		return
	}

	d, err := e.devices.Get(deviceID)
	if err != nil {
		return
	}
	if !d.IsOn || d.Mode != devices.ModeTowelDry || d.CurrentTemperature < d.TargetTemperature {
		return
	}
	updated, err := e.devices.Update(deviceID, devices.Patch{
		IsOn:           devices.Bool(false),
		LastAutoAction: devices.String(AutoDryComplete),
	})
	if err != nil {
		e.logger.WithError(err).WithField("device_id", deviceID).Warn("Failed to finish towel drying")
		return
	}
	e.notifier.Smart(notifications.SmartTemperatureReached, updated)
	e.logger.WithField("device_id", deviceID).Info("Towel drying complete")
}
