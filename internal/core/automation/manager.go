package automation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// StoreKey is the store key holding the persisted rule list.
const StoreKey = "automationRules"

// RulePatch updates the editable rule fields.
type RulePatch struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Trigger     *Trigger     `json:"trigger,omitempty"`
	Conditions  *[]Condition `json:"conditions,omitempty"`
	Actions     *[]Action    `json:"actions,omitempty"`
	IsActive    *bool        `json:"isActive,omitempty"`
}

// Manager keeps the persisted rule list and the engine cache in step.
type Manager struct {
	store   *store.Store
	engine  *Engine
	devices DeviceStore
	parser  *RuleParser
	logger  *logrus.Logger

	mu  sync.RWMutex
	now func() time.Time
}

// NewManager registers the rule list default with s.
func NewManager(s *store.Store, engine *Engine, devs DeviceStore, logger *logrus.Logger) *Manager {
	store.Define(s, StoreKey, func() []Rule { return []Rule{} })
	return &Manager{
		store:   s,
		engine:  engine,
		devices: devs,
		parser:  NewRuleParser(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) clock() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now()
}

// List returns the persisted rules.
func (m *Manager) List() []Rule {
	rules := store.GetAs[[]Rule](m.store, StoreKey)
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = r.Clone()
	}
	return out
}

func (m *Manager) Get(id string) (Rule, error) {
	for _, r := range store.GetAs[[]Rule](m.store, StoreKey) {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return Rule{}, apperrors.NotFound("rule", id)
}

// Add validates, registers and persists a rule.
func (m *Manager) Add(rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Conditions == nil {
		rule.Conditions = []Condition{}
	}
	rule.CreatedAt = m.clock()
	rule.UpdatedAt = nil

	if _, err := m.Get(rule.ID); err == nil {
		return Rule{}, apperrors.Invalid("rule", "duplicate id %q", rule.ID)
	}
	if err := m.engine.RegisterRule(rule); err != nil {
		return Rule{}, err
	}

	store.MutateAs(m.store, StoreKey, func(rules []Rule) ([]Rule, bool) {
		next := make([]Rule, 0, len(rules)+1)
		next = append(next, rules...)
		return append(next, rule.Clone()), true
	})

	m.logger.WithFields(logrus.Fields{
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"trigger":   rule.Trigger.Type,
	}).Info("Automation rule created")
	return rule, nil
}

// Update applies patch, re-validates and re-registers the rule.
func (m *Manager) Update(id string, patch RulePatch) (Rule, error) {
	current, err := m.Get(id)
	if err != nil {
		return Rule{}, err
	}

	next := current.Clone()
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Trigger != nil {
		next.Trigger = *patch.Trigger
	}
	if patch.Conditions != nil {
		next.Conditions = append([]Condition{}, (*patch.Conditions)...)
	}
	if patch.Actions != nil {
		next.Actions = append([]Action(nil), (*patch.Actions)...)
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	now := m.clock()
	next.UpdatedAt = &now

	if err := m.engine.RegisterRule(next); err != nil {
		return Rule{}, err
	}
	m.replace(next)

	m.logger.WithField("rule_id", id).Info("Automation rule updated")
	return next, nil
}

// SetActive enables or disables a rule.
func (m *Manager) SetActive(id string, active bool) (Rule, error) {
	return m.Update(id, RulePatch{IsActive: &active})
}

// Delete removes the rule from the store and the engine.
func (m *Manager) Delete(id string) error {
	found := false
	store.MutateAs(m.store, StoreKey, func(rules []Rule) ([]Rule, bool) {
		next := make([]Rule, 0, len(rules))
		for _, r := range rules {
			if r.ID == id {
				found = true
				continue
			}
			next = append(next, r)
		}
		return next, found
	})
	if !found {
		return apperrors.NotFound("rule", id)
	}

	m.engine.UnregisterRule(id)
	m.logger.WithField("rule_id", id).Info("Automation rule deleted")
	return nil
}

func (m *Manager) replace(rule Rule) {
	store.MutateAs(m.store, StoreKey, func(rules []Rule) ([]Rule, bool) {
		for i := range rules {
			if rules[i].ID != rule.ID {
				continue
			}
			next := make([]Rule, len(rules))
			copy(next, rules)
			next[i] = rule.Clone()
			return next, true
		}
		return nil, false
	})
}

// RestoreAll registers every persisted rule with the engine, typically after
// a snapshot restore. Invalid rules are logged and left inactive.
func (m *Manager) RestoreAll() int {
	registered := 0
	for _, r := range m.List() {
		if err := m.engine.RegisterRule(r); err != nil {
			m.logger.WithError(err).WithField("rule_id", r.ID).Warn("Skipping invalid persisted rule")
			continue
		}
		registered++
	}
	m.logger.WithField("rules", registered).Info("Automation rules restored")
	return registered
}

// RemoveDevice drops every rule triggered by deviceID and strips the device
// from the conditions and actions of the others. Rules left without actions
// are dropped as well.
func (m *Manager) RemoveDevice(deviceID string) {
	var dropped []string
	var changed []Rule
	store.MutateAs(m.store, StoreKey, func(rules []Rule) ([]Rule, bool) {
		dropped, changed = nil, nil
		next := make([]Rule, 0, len(rules))
		for _, r := range rules {
			if !r.References(deviceID) {
				next = append(next, r)
				continue
			}
			if r.Trigger.DeviceID == deviceID {
				dropped = append(dropped, r.ID)
				continue
			}

			c := r.Clone()
			c.Conditions = []Condition{}
			for _, cond := range r.Conditions {
				if cond.DeviceID != deviceID {
					c.Conditions = append(c.Conditions, cond)
				}
			}
			c.Actions = nil
			for _, a := range r.Actions {
				if a.DeviceID != deviceID {
					c.Actions = append(c.Actions, a)
				}
			}
			if len(c.Actions) == 0 {
				dropped = append(dropped, r.ID)
				continue
			}
			changed = append(changed, c)
			next = append(next, c)
		}
		return next, len(dropped) > 0 || len(changed) > 0
	})

	for _, id := range dropped {
		m.engine.UnregisterRule(id)
	}
	for _, r := range changed {
		if err := m.engine.RegisterRule(r); err != nil {
			m.logger.WithError(err).WithField("rule_id", r.ID).Warn("Failed to re-register rule")
		}
	}
	if len(dropped) > 0 || len(changed) > 0 {
		m.logger.WithFields(logrus.Fields{
			"device_id": deviceID,
			"dropped":   len(dropped),
			"updated":   len(changed),
		}).Info("Removed device from automation rules")
	}
}

// Import parses a YAML or JSON document and adds every rule in it. Nothing is
// added when any rule fails validation.
func (m *Manager) Import(data []byte, format string) ([]Rule, error) {
	rules, err := m.parser.Parse(data, format)
	if err != nil {
		return nil, apperrors.Invalid("rule", "%v", err)
	}
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.NewString()
		}
		if err := rules[i].Validate().Err(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	added := make([]Rule, 0, len(rules))
	for _, r := range rules {
		rule, err := m.Add(r)
		if err != nil {
			return added, err
		}
		added = append(added, rule)
	}
	return added, nil
}

// Export serializes the persisted rules as YAML.
func (m *Manager) Export() ([]byte, error) {
	return m.parser.SerializeToYAML(m.List())
}
