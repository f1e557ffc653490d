package scenes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/eventloop"
	"github.com/frostdev-ops/pma-homesim/internal/core/notifications"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// DefaultSettleDelay is the pause before each scene step.
const DefaultSettleDelay = 200 * time.Millisecond

// DeviceStore is the part of the device registry scenes drive.
type DeviceStore interface {
	Get(id string) (devices.Device, error)
	Update(id string, patch devices.Patch) (devices.Device, error)
}

// Notifier receives the scene completion notice.
type Notifier interface {
	Add(n notifications.Notification) notifications.Notification
}

// Recorder receives analytics entries for scene runs.
type Recorder interface {
	RecordDeviceAction(deviceID, action string, value interface{})
	RecordSceneRun(sceneID string)
}

// Scheduler runs time-triggered scenes.
type Scheduler interface {
	ScheduleSpec(id, spec string, job func()) error
	Unschedule(id string)
}

// RunHook observes finished runs.
type RunHook func(exec Execution)

// Runner owns the scene list and executes scenes. Run must not be called from
// inside an event loop task: it waits between steps and submits each step to
// the loop separately.
type Runner struct {
	store    *store.Store
	devices  DeviceStore
	notifier Notifier
	executor eventloop.Executor
	logger   *logrus.Logger

	mu        sync.RWMutex
	settle    time.Duration
	recorder  Recorder
	scheduler Scheduler
	homeID    func() string
	hooks     []RunHook
	now       func() time.Time
}

// NewRunner registers the scene list default with s.
func NewRunner(s *store.Store, devs DeviceStore, notifier Notifier, executor eventloop.Executor, settle time.Duration, logger *logrus.Logger) *Runner {
	store.Define(s, StoreKey, func() []Scene { return []Scene{} })
	if settle < 0 {
		settle = DefaultSettleDelay
	}
	return &Runner{
		store:    s,
		devices:  devs,
		notifier: notifier,
		executor: executor,
		logger:   logger,
		settle:   settle,
		homeID:   func() string { return "" },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Runner) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// SetHomeResolver supplies the home new scenes belong to.
func (r *Runner) SetHomeResolver(fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.homeID = fn
}

func (r *Runner) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// OnRun registers a hook called after every completed run.
func (r *Runner) OnRun(hook RunHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *Runner) clock() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.now()
}

// List returns every scene.
func (r *Runner) List() []Scene {
	list := store.GetAs[[]Scene](r.store, StoreKey)
	out := make([]Scene, len(list))
	for i, s := range list {
		out[i] = s.clone()
	}
	return out
}

func (r *Runner) Get(id string) (Scene, error) {
	for _, s := range store.GetAs[[]Scene](r.store, StoreKey) {
		if s.ID == id {
			return s.clone(), nil
		}
	}
	return Scene{}, apperrors.NotFound("scene", id)
}

// Add creates a scene in the current home.
func (r *Runner) Add(in Input) (Scene, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Scene{}, apperrors.Invalid("scene", "name is required")
	}
	if in.Trigger.Type == "" {
		in.Trigger.Type = TriggerManual
	}
	if in.Trigger.Type == TriggerTime {
		if _, err := in.Trigger.cronSpec(); err != nil {
			return Scene{}, err
		}
	}

	r.mu.RLock()
	home := r.homeID
	r.mu.RUnlock()

	scene := Scene{
		ID:          uuid.NewString(),
		HomeID:      home(),
		Name:        in.Name,
		Icon:        in.Icon,
		Description: in.Description,
		Trigger:     in.Trigger,
		Actions:     append([]Action{}, in.Actions...),
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   r.clock(),
	}

	store.MutateAs(r.store, StoreKey, func(list []Scene) ([]Scene, bool) {
		next := make([]Scene, 0, len(list)+1)
		next = append(next, list...)
		return append(next, scene.clone()), true
	})
	r.syncSchedule(scene)

	r.logger.WithFields(logrus.Fields{"scene_id": scene.ID, "name": scene.Name}).Info("Scene created")
	return scene, nil
}

// Update applies patch to the scene.
func (r *Runner) Update(id string, patch Patch) (Scene, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return Scene{}, apperrors.Invalid("scene", "name is required")
	}
	if patch.Trigger != nil && patch.Trigger.Type == TriggerTime {
		if _, err := patch.Trigger.cronSpec(); err != nil {
			return Scene{}, err
		}
	}

	now := r.clock()
	updated, err := r.mutate(id, func(s *Scene) {
		if patch.Name != nil {
			s.Name = *patch.Name
		}
		if patch.Icon != nil {
			s.Icon = *patch.Icon
		}
		if patch.Description != nil {
			s.Description = *patch.Description
		}
		if patch.Trigger != nil {
			s.Trigger = *patch.Trigger
		}
		if patch.Actions != nil {
			s.Actions = append([]Action{}, (*patch.Actions)...)
		}
		if patch.IsActive != nil {
			s.IsActive = *patch.IsActive
		}
		s.UpdatedAt = &now
	})
	if err != nil {
		return Scene{}, err
	}
	r.syncSchedule(updated)
	return updated, nil
}

// Delete removes the scene.
func (r *Runner) Delete(id string) error {
	found := false
	store.MutateAs(r.store, StoreKey, func(list []Scene) ([]Scene, bool) {
		next := make([]Scene, 0, len(list))
		for _, s := range list {
			if s.ID == id {
				found = true
				continue
			}
			next = append(next, s)
		}
		return next, found
	})
	if !found {
		return apperrors.NotFound("scene", id)
	}

	r.mu.RLock()
	sched := r.scheduler
	r.mu.RUnlock()
	if sched != nil {
		sched.Unschedule(jobID(id))
	}
	r.logger.WithField("scene_id", id).Info("Scene deleted")
	return nil
}

// RemoveDevice strips every action that targets deviceID. Registered as a
// device delete hook.
func (r *Runner) RemoveDevice(deviceID string) {
	store.MutateAs(r.store, StoreKey, func(list []Scene) ([]Scene, bool) {
		changed := false
		next := make([]Scene, len(list))
		for i, s := range list {
			next[i] = s
			kept := make([]Action, 0, len(s.Actions))
			for _, a := range s.Actions {
				if a.DeviceID != deviceID {
					kept = append(kept, a)
				}
			}
			if len(kept) != len(s.Actions) {
				next[i].Actions = kept
				changed = true
			}
		}
		return next, changed
	})
}

func (r *Runner) mutate(id string, fn func(s *Scene)) (Scene, error) {
	var result Scene
	found := false
	store.MutateAs(r.store, StoreKey, func(list []Scene) ([]Scene, bool) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			found = true
			s := list[i].clone()
			fn(&s)
			next := make([]Scene, len(list))
			copy(next, list)
			next[i] = s
			result = s.clone()
			return next, true
		}
		return nil, false
	})
	if !found {
		return Scene{}, apperrors.NotFound("scene", id)
	}
	return result, nil
}

// Run executes the scene's actions sequentially, waiting the settle delay
// before each one. Missing devices and unknown step types are skipped. An
// inactive scene does nothing.
func (r *Runner) Run(ctx context.Context, id string) (*Execution, error) {
	exec := &Execution{SceneID: id, StartedAt: r.clock()}

	var scene Scene
	if err := r.executor.Do(ctx, func() error {
		var err error
		scene, err = r.Get(id)
		return err
	}); err != nil {
		return exec, err
	}
	if !scene.IsActive {
		exec.FinishedAt = r.clock()
		return exec, nil
	}

	log := r.logger.WithFields(logrus.Fields{"scene_id": scene.ID, "scene": scene.Name})
	r.mu.RLock()
	settle := r.settle
	r.mu.RUnlock()

	for i, action := range scene.Actions {
		if err := wait(ctx, settle); err != nil {
			return exec, err
		}
		err := r.executor.Do(ctx, func() error {
			return r.apply(action)
		})
		switch {
		case err == nil:
			exec.Applied++
		case apperrors.IsNotFound(err) || apperrors.IsInvalid(err):
			exec.Skipped++
			log.WithError(err).WithField("step", i).Debug("Scene step skipped")
		default:
			return exec, err
		}
	}

	err := r.executor.Do(ctx, func() error {
		now := r.clock()
		if _, err := r.mutate(id, func(s *Scene) { s.LastRun = &now }); err != nil {
			return err
		}
		icon := scene.Icon
		if icon == "" {
			icon = "🏠"
		}
		r.notifier.Add(notifications.Notification{
			Type:    notifications.LevelSuccess,
			Title:   "Scene complete",
			Message: "Scene \"" + scene.Name + "\" ran successfully",
			Icon:    icon,
		})
		if rec := r.currentRecorder(); rec != nil {
			rec.RecordSceneRun(id)
		}
		return nil
	})
	if err != nil && !apperrors.IsNotFound(err) {
		return exec, err
	}

	exec.Ran = true
	exec.FinishedAt = r.clock()
	log.WithFields(logrus.Fields{"applied": exec.Applied, "skipped": exec.Skipped}).Info("Scene executed")

	r.mu.RLock()
	hooks := r.hooks
	r.mu.RUnlock()
	for _, hook := range hooks {
		hook(*exec)
	}
	return exec, nil
}

func (r *Runner) currentRecorder() Recorder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recorder
}

func (r *Runner) apply(action Action) error {
	d, err := r.devices.Get(action.DeviceID)
	if err != nil {
		return err
	}
	patch, known, err := patchFor(action, r.clock())
	if !known {
		return apperrors.Invalid("scene", "unknown action type %q", action.Type)
	}
	if err != nil {
		return err
	}
	if _, err := r.devices.Update(d.ID, patch); err != nil {
		return err
	}
	if rec := r.currentRecorder(); rec != nil {
		rec.RecordDeviceAction(d.ID, string(action.Type), action.Value)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jobID(sceneID string) string {
	return "scene:" + sceneID
}

// SetScheduler enables time triggers and schedules every existing timed
// scene.
func (r *Runner) SetScheduler(s Scheduler) {
	r.mu.Lock()
	r.scheduler = s
	r.mu.Unlock()

	for _, scene := range r.List() {
		r.syncSchedule(scene)
	}
}

func (r *Runner) syncSchedule(scene Scene) {
	r.mu.RLock()
	sched := r.scheduler
	r.mu.RUnlock()
	if sched == nil {
		return
	}

	id := scene.ID
	if scene.Trigger.Type != TriggerTime || !scene.IsActive {
		sched.Unschedule(jobID(id))
		return
	}
	spec, err := scene.Trigger.cronSpec()
	if err != nil {
		r.logger.WithError(err).WithField("scene_id", id).Warn("Ignoring scene time trigger")
		return
	}
	err = sched.ScheduleSpec(jobID(id), spec, func() {
		if _, err := r.Run(context.Background(), id); err != nil && !apperrors.IsNotFound(err) {
			r.logger.WithError(err).WithField("scene_id", id).Warn("Scheduled scene failed")
		}
	})
	if err != nil {
		r.logger.WithError(err).WithField("scene_id", id).Warn("Failed to schedule scene")
	}
}
