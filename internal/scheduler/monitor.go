package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultJobTimeout is the execution-timeout budget applied to a job
// unless the caller overrides it.
const defaultJobTimeout = 3600 * time.Second

// sweepInterval is how often the monitor goroutine checks for jobs that
// have overrun their timeout.
const sweepInterval = 10 * time.Second

type monitoredJob struct {
	startTime time.Time
	timeout   time.Duration
}

// Monitor watches running jobs for timeout. Its background goroutine
// starts lazily on the first Watch
// call and stops itself once the monitored set empties, mirroring the
// teacher's internal/queue.Scheduler ticker-goroutine/mutex idiom.
type Monitor struct {
	registry      *Registry
	log           zerolog.Logger
	SweepInterval time.Duration // defaults to sweepInterval; overridable in tests

	mu      sync.Mutex
	jobs    map[string]monitoredJob
	running bool
	stop    chan struct{}
	stopped chan struct{}
	once    *sync.Once
}

// NewMonitor wires a Monitor against the job Registry it reports timeouts
// into.
func NewMonitor(registry *Registry, log zerolog.Logger) *Monitor {
	return &Monitor{
		registry:      registry,
		log:           log.With().Str("component", "execution_monitor").Logger(),
		jobs:          map[string]monitoredJob{},
		SweepInterval: sweepInterval,
	}
}

// Watch registers jobID for timeout monitoring with the given budget,
// starting the sweep goroutine if it is not already running.
func (m *Monitor) Watch(jobID string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	m.mu.Lock()
	m.jobs[jobID] = monitoredJob{startTime: time.Now(), timeout: timeout}
	needsStart := !m.running
	if needsStart {
		m.running = true
		m.stop = make(chan struct{})
		m.stopped = make(chan struct{})
		m.once = &sync.Once{}
	}
	stop, once := m.stop, m.once
	m.mu.Unlock()

	if needsStart {
		go m.sweepLoop(stop, once)
	}
}

// Unwatch removes jobID from monitoring, e.g. once it completes or fails
// on its own before timing out.
func (m *Monitor) Unwatch(jobID string) {
	m.mu.Lock()
	delete(m.jobs, jobID)
	m.mu.Unlock()
}

// sweepLoop owns stopped: it is the only goroutine that ever closes it,
// exactly once, immediately before returning — regardless of whether the
// loop exits because Stop signaled on stop or because the monitored set
// emptied on its own. stop itself may be closed by either this goroutine
// or Stop, guarded by once so a double-close can never panic.
func (m *Monitor) sweepLoop(stop chan struct{}, once *sync.Once) {
	interval := m.SweepInterval
	if interval <= 0 {
		interval = sweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	finish := func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		once.Do(func() { close(stop) })
		close(m.stopped)
	}

	for {
		select {
		case <-stop:
			finish()
			return
		case now := <-ticker.C:
			if m.sweepOnce(now) {
				finish()
				return
			}
		}
	}
}

// sweepOnce checks every monitored job against now, timing out any that
// have overrun, and reports whether the monitored set is now empty (in
// which case the caller should stop the sweep goroutine).
func (m *Monitor) sweepOnce(now time.Time) bool {
	m.mu.Lock()
	timedOut := map[string]time.Duration{}
	for id, j := range m.jobs {
		if now.Sub(j.startTime) > j.timeout {
			timedOut[id] = j.timeout
		}
	}
	for id := range timedOut {
		delete(m.jobs, id)
	}
	empty := len(m.jobs) == 0
	m.mu.Unlock()

	for id, timeout := range timedOut {
		m.reportTimeout(id, now, timeout)
	}
	return empty
}

func (m *Monitor) reportTimeout(jobID string, now time.Time, timeout time.Duration) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		return
	}
	elapsed := now.Sub(job.ScheduleTime).Seconds()
	details := map[string]interface{}{"elapsed_seconds": elapsed, "configured_timeout_seconds": timeout.Seconds()}
	if err := m.registry.UpdateStatus(jobID, StatusTimeout, details); err != nil {
		m.log.Error().Err(err).Str("job_id", jobID).Msg("failed to record timeout status")
		return
	}
	m.log.Warn().Str("job_id", jobID).Float64("elapsed_seconds", elapsed).Msg("job exceeded timeout")
}

// Stop halts the sweep goroutine, if running, and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stop, stopped, once := m.stop, m.stopped, m.once
	m.mu.Unlock()

	once.Do(func() { close(stop) })
	<-stopped
}
