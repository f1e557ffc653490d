package automation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduledJob is one recurring job owned by the scheduler.
type ScheduledJob struct {
	ID       string       `json:"id"`
	Spec     string       `json:"spec"`
	EntryID  cron.EntryID `json:"-"`
	NextRun  time.Time    `json:"nextRun"`
	LastRun  *time.Time   `json:"lastRun,omitempty"`
	RunCount int64        `json:"runCount"`
}

// Scheduler runs named recurring jobs on a shared cron instance. The rule
// engine and the simulation clock both register their periodic work here.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]*ScheduledJob
	timezone *time.Location
	logger   *logrus.Logger
	mu       sync.RWMutex
	running  bool
}

// SchedulerConfig contains scheduler configuration
type SchedulerConfig struct {
	Timezone string `json:"timezone"`
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config *SchedulerConfig, logger *logrus.Logger) *Scheduler {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		tz, err := time.LoadLocation(config.Timezone)
		if err != nil {
			logger.WithError(err).Warnf("Invalid timezone %s, using UTC", config.Timezone)
		} else {
			timezone = tz
		}
	}

	cronLogger := cron.PrintfLogger(logger)
	cronInstance := cron.New(
		cron.WithLocation(timezone),
		cron.WithSeconds(),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)

	return &Scheduler{
		cron:     cronInstance,
		jobs:     make(map[string]*ScheduledJob),
		timezone: timezone,
		logger:   logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs, up to 30 seconds.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info("All scheduled jobs completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timeout waiting for scheduled jobs to complete")
	}

	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Every runs job each interval under id, replacing any previous job with the
// same id.
func (s *Scheduler) Every(id string, interval time.Duration, job func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	return s.ScheduleSpec(id, "@every "+interval.String(), job)
}

// ScheduleSpec registers job under id with a six-field cron expression or a
// descriptor such as "@hourly".
func (s *Scheduler) ScheduleSpec(id, spec string, job func()) error {
	if id == "" {
		return fmt.Errorf("job id is required")
	}
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[id]; ok {
		s.cron.Remove(existing.EntryID)
		delete(s.jobs, id)
	}

	scheduled := &ScheduledJob{ID: id, Spec: spec}
	entryID, err := s.cron.AddFunc(spec, func() {
		s.recordRun(id)
		job()
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %v", id, err)
	}

	scheduled.EntryID = entryID
	scheduled.NextRun = s.cron.Entry(entryID).Next
	s.jobs[id] = scheduled

	s.logger.WithFields(logrus.Fields{
		"job_id":   id,
		"spec":     spec,
		"next_run": scheduled.NextRun,
	}).Debug("Scheduled job")
	return nil
}

// Unschedule removes the job. It is a no-op for unknown ids.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduled, ok := s.jobs[id]
	if !ok {
		return
	}
	s.cron.Remove(scheduled.EntryID)
	delete(s.jobs, id)
	s.logger.WithField("job_id", id).Debug("Unscheduled job")
}

// Has reports whether a job with id is registered.
func (s *Scheduler) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

func (s *Scheduler) recordRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduled, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	scheduled.LastRun = &now
	scheduled.RunCount++
	scheduled.NextRun = s.cron.Entry(scheduled.EntryID).Next
}

// Jobs returns a copy of every scheduled job, sorted by id.
func (s *Scheduler) Jobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		c := *j
		if j.LastRun != nil {
			t := *j.LastRun
			c.LastRun = &t
		}
		jobs = append(jobs, c)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

// GetStatistics returns scheduler statistics
func (s *Scheduler) GetStatistics() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totalRuns int64
	for _, j := range s.jobs {
		totalRuns += j.RunCount
	}

	return map[string]interface{}{
		"running":        s.running,
		"scheduled_jobs": len(s.jobs),
		"cron_entries":   len(s.cron.Entries()),
		"total_runs":     totalRuns,
		"timezone":       s.timezone.String(),
	}
}
