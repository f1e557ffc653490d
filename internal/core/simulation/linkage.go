package simulation

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/automation"
	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// DefaultLinkageDelay models the time a linked device needs to react.
const DefaultLinkageDelay = 2 * time.Second

// lastAutoAction markers written by the linkage model.
const (
	AutoLinkedTowelDry = "auto_linked_towel_dry"
	AutoLinkedHeaterOn = "linked_heater_on"
)

// LinkedDeviceStore is the registry surface the linkage model needs.
type LinkedDeviceStore interface {
	Get(id string) (devices.Device, error)
	Update(id string, patch devices.Patch) (devices.Device, error)
	LinkedDevices(id string) ([]devices.Device, error)
}

// RuleCoverage reports whether a user rule already handles a transition.
type RuleCoverage interface {
	HasStateChangeRule(deviceID, property string, value interface{}) bool
}

// Delayer runs fn on the event loop once d has elapsed.
type Delayer func(d time.Duration, fn func())

// Linkage simulates cross-device reactions between a water heater and the
// towel dryers linked to it. Register HandleChange as a registry change hook
// after the automation engine.
type Linkage struct {
	devices  LinkedDeviceStore
	rules    RuleCoverage
	notifier Notifier
	after    Delayer
	delay    time.Duration
	logger   *logrus.Logger
}

func NewLinkage(devs LinkedDeviceStore, rules RuleCoverage, notifier Notifier, after Delayer, delay time.Duration, logger *logrus.Logger) *Linkage {
	if delay < 0 {
		delay = DefaultLinkageDelay
	}
	return &Linkage{
		devices:  devs,
		rules:    rules,
		notifier: notifier,
		after:    after,
		delay:    delay,
		logger:   logger,
	}
}

// HandleChange reacts to power transitions of water heaters.
func (l *Linkage) HandleChange(id string, old devices.Device, patch devices.Patch) {
	if patch.IsOn == nil || *patch.IsOn == old.IsOn || old.Type != devices.TypeWaterHeater {
		return
	}

	linked, err := l.devices.LinkedDevices(id)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			l.logger.WithError(err).WithField("device_id", id).Warn("Failed to read linked devices")
		}
		return
	}

	if *patch.IsOn {
		l.markHeaterOn(id, linked)
		return
	}

	if l.rules != nil && l.rules.HasStateChangeRule(id, "isOn", false) {
		l.logger.WithField("device_id", id).Debug("Heater handover covered by a rule")
		return
	}
	for _, d := range linked {
		if d.Type == devices.TypeTowelDryer && d.SmartAutomation {
			dryerID := d.ID
			l.after(l.delay, func() { l.startTowelDrying(id, dryerID) })
			return
		}
	}
}

func (l *Linkage) markHeaterOn(heaterID string, linked []devices.Device) {
	for _, d := range linked {
		if d.Type != devices.TypeTowelDryer {
			continue
		}
		_, err := l.devices.Update(d.ID, devices.Patch{LastAutoAction: devices.String(AutoLinkedHeaterOn)})
		if err != nil && !apperrors.IsNotFound(err) {
			l.logger.WithError(err).WithField("device_id", d.ID).Warn("Failed to mark linked dryer")
		}
	}
	l.logger.WithField("device_id", heaterID).Debug("Water heater on, linked dryers marked")
}

func (l *Linkage) startTowelDrying(heaterID, dryerID string) {
	dryer, err := l.devices.Get(dryerID)
	if err != nil {
		l.logger.WithField("device_id", dryerID).Debug("Linked dryer gone before handover")
		return
	}
	if !dryer.SmartAutomation || !dryer.IsLinkedTo(heaterID) {
		return
	}

	updated, err := l.devices.Update(dryerID, devices.Patch{
		IsOn:              devices.Bool(true),
		Mode:              devices.String(devices.ModeTowelDry),
		TargetTemperature: devices.Float(automation.TowelDryTargetTemperature),
		LastAutoAction:    devices.String(AutoLinkedTowelDry),
	})
	if err != nil {
		l.logger.WithError(err).WithField("device_id", dryerID).Warn("Failed to start towel drying")
		return
	}

	l.notifier.Add(notifications.Notification{
		Type:     notifications.LevelInfo,
		Title:    "Towel dryer switched on automatically",
		Message:  fmt.Sprintf("%s started towel drying", updated.Name),
		Icon:     "🧺",
		DeviceID: dryerID,
	})
	l.logger.WithFields(logrus.Fields{
		"heater_id": heaterID,
		"dryer_id":  dryerID,
	}).Info("Linked towel dryer started")
}
