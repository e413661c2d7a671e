package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/pipeline"
	"github.com/rozsasarpi/gridcast/internal/timeutil"
)

const (
	// triggerHour is the wall-clock hour the daily forecast job fires at,
	// in Loc (defaults to 07:00 America/Chicago).
	triggerHour = 7
	// misfireGrace is how late, past the trigger instant, the process may
	// start and still run today's job once instead of waiting for
	// tomorrow.
	misfireGrace = 60 * time.Second
	jobTypeForecast = "forecast"
)

// Scheduler is a thin robfig/cron/v3 wrapper (grounded on the teacher's
// trader-go/internal/scheduler.Scheduler) combined with a job Registry
// and execution Monitor (grounded on internal/queue.Scheduler's
// mutex/WaitGroup/ticker discipline): the 07:00 America/Chicago trigger
// with misfire grace and coalescing, the thread-safe job registry, the
// execution-timeout monitor, and the manual run_now path.
type Scheduler struct {
	Executor *pipeline.Executor
	Loc      *time.Location
	Registry *Registry
	Monitor  *Monitor
	Log      zerolog.Logger
	Now      func() time.Time

	JobTimeout   time.Duration
	TriggerHour  int
	MisfireGrace time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	stopped bool
	entryID cron.EntryID
	running sync.WaitGroup
}

// New wires a Scheduler against an Executor and an IANA location.
func New(executor *pipeline.Executor, loc *time.Location, log zerolog.Logger) *Scheduler {
	reg := NewRegistry()
	return &Scheduler{
		Executor:     executor,
		Loc:          loc,
		Registry:     reg,
		Monitor:      NewMonitor(reg, log),
		Log:          log.With().Str("component", "scheduler").Logger(),
		Now:          func() time.Time { return timeutil.NowIn(loc) },
		JobTimeout:   defaultJobTimeout,
		TriggerHour:  triggerHour,
		MisfireGrace: misfireGrace,
	}
}

// Start begins the daily cron trigger. It returns false without error if
// the scheduler is already running, matching the idempotent
// "initialize -> start -> (schedule jobs)* -> stop(reason)" lifecycle.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	if s.started && !s.stopped {
		s.mu.Unlock()
		s.Log.Warn().Msg("scheduler already started, ignoring")
		return false
	}

	s.cron = cron.New(cron.WithLocation(s.Loc))
	spec := fmt.Sprintf("0 %d * * *", s.TriggerHour)
	id, err := s.cron.AddFunc(spec, s.fireScheduled)
	if err != nil {
		s.mu.Unlock()
		s.Log.Error().Err(err).Msg("failed to register daily trigger")
		return false
	}
	s.entryID = id
	s.cron.Start()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.catchUpMissedTrigger()

	s.Log.Info().Int("trigger_hour", s.TriggerHour).Str("location", s.Loc.String()).Msg("scheduler started")
	return true
}

// catchUpMissedTrigger implements misfire-grace handling: if the process
// starts within misfireGrace after today's trigger instant
// (e.g. it was down across the instant and restarted promptly), it runs
// today's job once rather than waiting for tomorrow's cron entry.
// coalesce=true falls out of this scheme for free — there is at most one
// "missed instant" candidate (today's), never a backlog to collapse.
func (s *Scheduler) catchUpMissedTrigger() {
	now := s.Now().In(s.Loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), s.TriggerHour, 0, 0, 0, s.Loc)
	if now.Before(today) || now.After(today.Add(s.MisfireGrace)) {
		return
	}
	s.Log.Info().Time("trigger_instant", today).Msg("restarted within misfire grace, running today's job now")
	go s.fireScheduled()
}

func (s *Scheduler) fireScheduled() {
	s.runCycle(s.Now())
}

// RunNow creates and synchronously executes a forecast job outside the
// cron schedule.
func (s *Scheduler) RunNow() (*Job, error) {
	return s.runCycle(s.Now())
}

func (s *Scheduler) runCycle(scheduleTime time.Time) (*Job, error) {
	s.running.Add(1)
	defer s.running.Done()

	targetDate := scheduleTime.In(s.Loc)
	windowStart := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), s.TriggerHour, 0, 0, 0, s.Loc)

	job := NewJob(jobTypeForecast, scheduleTime, map[string]interface{}{"target_date": windowStart.Format("2006-01-02")})
	s.Registry.Register(job)

	if err := s.Registry.UpdateStatus(job.ID, StatusRunning, nil); err != nil {
		s.Log.Error().Err(err).Msg("failed to mark job running")
		return job, err
	}
	s.Monitor.Watch(job.ID, s.JobTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.JobTimeout)
	defer cancel()

	results, err := s.Executor.RunCycle(ctx, windowStart, windowStart)
	s.Monitor.Unwatch(job.ID)

	if current, ok := s.Registry.Get(job.ID); ok && current.Status == StatusTimeout {
		return job, fmt.Errorf("scheduler: job %s timed out", job.ID)
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			details := map[string]interface{}{"elapsed_seconds": time.Since(scheduleTime).Seconds(), "configured_timeout_seconds": s.JobTimeout.Seconds()}
			_ = s.Registry.UpdateStatus(job.ID, StatusTimeout, details)
			s.Log.Warn().Str("job_id", job.ID).Msg("forecast cycle exceeded job timeout")
			return job, fmt.Errorf("scheduler: job %s timed out", job.ID)
		}
		_ = s.Registry.UpdateStatus(job.ID, StatusFailed, map[string]interface{}{"error": err.Error()})
		s.Log.Error().Err(err).Str("job_id", job.ID).Msg("forecast cycle failed")
		return job, err
	}

	details := map[string]interface{}{"results": resultsSummary(results)}
	if err := s.Registry.UpdateStatus(job.ID, StatusCompleted, details); err != nil {
		s.Log.Error().Err(err).Msg("failed to mark job completed")
	}
	s.Log.Info().Str("job_id", job.ID).Int("products", len(results)).Msg("forecast cycle completed")
	return job, nil
}

func resultsSummary(results []pipeline.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = fmt.Sprintf("%s:%s", r.Product, r.FinalState)
	}
	return out
}

// Stop halts the cron trigger and waits for any in-flight job to finish.
// It returns false without error if the scheduler is already stopped.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return false
	}
	c := s.cron
	s.stopped = true
	s.started = false
	s.mu.Unlock()

	stopCtx := c.Stop()
	<-stopCtx.Done()

	s.running.Wait()
	s.Monitor.Stop()

	s.Log.Info().Msg("scheduler stopped")
	return true
}
