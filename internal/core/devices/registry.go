package devices

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/store"
)

// StoreKey is the store key holding the device list.
const StoreKey = "devices"

// ChangeHook observes a committed device update. old is the device before the
// patch was applied.
type ChangeHook func(id string, old Device, patch Patch)

// DeleteHook observes a device removal.
type DeleteHook func(id string)

// ActionRecorder receives user-facing device actions for analytics.
type ActionRecorder interface {
	RecordDeviceAction(deviceID, action string, value interface{})
}

// Registry owns the device list stored under StoreKey. Updates are
// copy-on-write so snapshots handed to readers never change underneath them.
type Registry struct {
	store  *store.Store
	logger *logrus.Logger

	mu          sync.RWMutex
	changeHooks []ChangeHook
	deleteHooks []DeleteHook
	recorder    ActionRecorder
	homeID      func() string
	now         func() time.Time
}

// NewRegistry binds a registry to s and registers the device key default.
func NewRegistry(s *store.Store, logger *logrus.Logger) *Registry {
	store.Define(s, StoreKey, func() []Device { return []Device{} })
	return &Registry{
		store:  s,
		logger: logger,
		homeID: func() string { return "" },
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OnChange appends a hook run after every committed update, in registration
// order.
func (r *Registry) OnChange(hook ChangeHook) {
	r.mu.Lock()
	r.changeHooks = append(r.changeHooks, hook)
	r.mu.Unlock()
}

// OnDelete appends a hook run after every removal.
func (r *Registry) OnDelete(hook DeleteHook) {
	r.mu.Lock()
	r.deleteHooks = append(r.deleteHooks, hook)
	r.mu.Unlock()
}

func (r *Registry) SetRecorder(rec ActionRecorder) {
	r.mu.Lock()
	r.recorder = rec
	r.mu.Unlock()
}

// SetHomeResolver sets the function used to stamp new devices with a home.
func (r *Registry) SetHomeResolver(fn func() string) {
	r.mu.Lock()
	r.homeID = fn
	r.mu.Unlock()
}

// SetClock overrides the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *Registry) clock() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}

func (r *Registry) snapshot() []Device {
	return store.GetAs[[]Device](r.store, StoreKey)
}

// Add registers a new device. Missing ids are generated and the device is
// stamped with the current home.
func (r *Registry) Add(d Device) (Device, error) {
	if strings.TrimSpace(d.Name) == "" {
		return Device{}, invalid("name is required")
	}
	if d.Type == "" {
		return Device{}, invalid("type is required")
	}

	r.mu.RLock()
	home := r.homeID
	r.mu.RUnlock()

	now := r.clock()
	d = d.clone()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.HomeID == "" {
		d.HomeID = home()
	}
	d.CreatedAt = now
	d.LastUpdated = now
	d.IsOnline = true
	d.IsFavorite = false

	var err error
	store.MutateAs(r.store, StoreKey, func(list []Device) ([]Device, bool) {
		for _, existing := range list {
			if existing.ID == d.ID {
				err = invalid("duplicate id %q", d.ID)
				return nil, false
			}
		}
		next := make([]Device, 0, len(list)+1)
		next = append(next, list...)
		return append(next, d), true
	})
	if err != nil {
		return Device{}, err
	}

	r.logger.WithFields(logrus.Fields{"device_id": d.ID, "type": d.Type}).Debug("Device added")
	return d.clone(), nil
}

// Get returns a copy of the device with id.
func (r *Registry) Get(id string) (Device, error) {
	for _, d := range r.snapshot() {
		if d.ID == id {
			return d.clone(), nil
		}
	}
	return Device{}, notFound(id)
}

// List returns copies of all devices in insertion order.
func (r *Registry) List() []Device {
	return r.filter(func(Device) bool { return true })
}

func (r *Registry) ByRoom(roomID string) []Device {
	return r.filter(func(d Device) bool { return d.RoomID == roomID })
}

func (r *Registry) ByType(t DeviceType) []Device {
	return r.filter(func(d Device) bool { return d.Type == t })
}

func (r *Registry) Favorites() []Device {
	return r.filter(func(d Device) bool { return d.IsFavorite })
}

func (r *Registry) filter(keep func(Device) bool) []Device {
	list := r.snapshot()
	out := make([]Device, 0, len(list))
	for _, d := range list {
		if keep(d) {
			out = append(out, d.clone())
		}
	}
	return out
}

// LinkedDevices resolves the device's links, skipping ids that no longer
// exist.
func (r *Registry) LinkedDevices(id string) ([]Device, error) {
	d, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(d.LinkedDevices))
	for _, linked := range d.LinkedDevices {
		if ld, err := r.Get(linked); err == nil {
			out = append(out, ld)
		}
	}
	return out, nil
}

// Update applies patch to the device, refreshes LastUpdated and then runs the
// change hooks with the pre-update device.
func (r *Registry) Update(id string, patch Patch) (Device, error) {
	now := r.clock()

	var old, updated Device
	found := false
	store.MutateAs(r.store, StoreKey, func(list []Device) ([]Device, bool) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			found = true
			old = list[i].clone()
			updated = list[i].clone()
			patch.Apply(&updated)
			updated.LastUpdated = now

			next := make([]Device, len(list))
			copy(next, list)
			next[i] = updated
			return next, true
		}
		return nil, false
	})
	if !found {
		return Device{}, notFound(id)
	}

	r.runChangeHooks(id, old, patch)
	return updated.clone(), nil
}

func (r *Registry) runChangeHooks(id string, old Device, patch Patch) {
	r.mu.RLock()
	hooks := r.changeHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(id, old, patch)
	}
}

// Toggle flips the power state, stamps LastAction and records the action.
func (r *Registry) Toggle(id string) (Device, error) {
	current, err := r.Get(id)
	if err != nil {
		return Device{}, err
	}

	now := r.clock()
	updated, err := r.Update(id, Patch{IsOn: Bool(!current.IsOn), LastAction: &now})
	if err != nil {
		return Device{}, err
	}

	action := "off"
	if updated.IsOn {
		action = "on"
	}
	r.mu.RLock()
	rec := r.recorder
	r.mu.RUnlock()
	if rec != nil {
		rec.RecordDeviceAction(id, action, nil)
	}
	return updated, nil
}

// Delete removes the device and drops it from every other device's links.
func (r *Registry) Delete(id string) error {
	removed := r.deleteWhere(func(d Device) bool { return d.ID == id })
	if len(removed) == 0 {
		return notFound(id)
	}
	return nil
}

// DeleteByRoom removes every device in roomID and returns their ids.
func (r *Registry) DeleteByRoom(roomID string) []string {
	return r.deleteWhere(func(d Device) bool { return d.RoomID == roomID })
}

func (r *Registry) deleteWhere(match func(Device) bool) []string {
	var removed []string
	store.MutateAs(r.store, StoreKey, func(list []Device) ([]Device, bool) {
		gone := make(map[string]bool)
		for _, d := range list {
			if match(d) {
				gone[d.ID] = true
				removed = append(removed, d.ID)
			}
		}
		if len(gone) == 0 {
			return nil, false
		}

		next := make([]Device, 0, len(list)-len(gone))
		for _, d := range list {
			if gone[d.ID] {
				continue
			}
			if hasAny(d.LinkedDevices, gone) {
				d = d.clone()
				d.LinkedDevices = without(d.LinkedDevices, gone)
			}
			next = append(next, d)
		}
		return next, true
	})

	if len(removed) == 0 {
		return nil
	}

	r.mu.RLock()
	hooks := r.deleteHooks
	r.mu.RUnlock()
	for _, id := range removed {
		for _, hook := range hooks {
			hook(id)
		}
	}
	r.logger.WithField("device_ids", removed).Debug("Devices removed")
	return removed
}

// Link connects two devices in both directions.
func (r *Registry) Link(a, b string) error {
	return r.relink(a, b, true)
}

// Unlink removes the connection between two devices in both directions.
func (r *Registry) Unlink(a, b string) error {
	return r.relink(a, b, false)
}

func (r *Registry) relink(a, b string, link bool) error {
	if a == b {
		return invalid("%s: %v", a, ErrSelfLink)
	}

	now := r.clock()
	var err error
	var olds [2]Device
	var patches [2]Patch
	store.MutateAs(r.store, StoreKey, func(list []Device) ([]Device, bool) {
		ia, ib := -1, -1
		for i, d := range list {
			switch d.ID {
			case a:
				ia = i
			case b:
				ib = i
			}
		}
		if ia < 0 {
			err = notFound(a)
			return nil, false
		}
		if ib < 0 {
			err = notFound(b)
			return nil, false
		}

		next := make([]Device, len(list))
		copy(next, list)
		for n, pair := range [2][2]int{{ia, ib}, {ib, ia}} {
			self, other := next[pair[0]].clone(), next[pair[1]].ID
			olds[n] = next[pair[0]].clone()
			if link {
				if !self.IsLinkedTo(other) {
					self.LinkedDevices = append(self.LinkedDevices, other)
				}
			} else {
				self.LinkedDevices = without(self.LinkedDevices, map[string]bool{other: true})
			}
			self.LastUpdated = now
			patches[n] = Patch{LinkedDevices: Strings(cloneStrings(self.LinkedDevices))}
			next[pair[0]] = self
		}
		return next, true
	})
	if err != nil {
		return err
	}

	r.runChangeHooks(a, olds[0], patches[0])
	r.runChangeHooks(b, olds[1], patches[1])
	return nil
}

func hasAny(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}

func without(ids []string, drop map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
