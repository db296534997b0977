package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"dashshot/internal/models"
	"dashshot/internal/worker"
	"dashshot/pkg/chrome"

	"github.com/rs/zerolog/log"
)

// ErrNotStarted is returned by Wait when Start was never called.
var ErrNotStarted = errors.New("orchestrator not started")

// ThrottleStore is the admission state the orchestrator reads and writes.
type ThrottleStore interface {
	LastAccepted(ctx context.Context, dashboardID string) (*time.Time, error)
	MarkAccepted(ctx context.Context, dashboardID string, at time.Time) error
	MarkSuccess(ctx context.Context, dashboardID string, at time.Time) error
}

type OrchestratorOptions struct {
	// Ceiling runs from the worker's pid report to the forced kill.
	Ceiling time.Duration
	// StartupCeiling bounds a worker that never reports a pid.
	StartupCeiling time.Duration
	// KillPID terminates the worker's browser process.
	KillPID func(pid int) error
	// OnSuccess is called after a capture's success has been recorded.
	OnSuccess func(task *models.Task)
	Now       func() time.Time
}

type TaskInfo struct {
	ID          string    `json:"id"`
	DashboardID string    `json:"dashboard_id"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	PID         int       `json:"pid,omitempty"`
}

type QueueSnapshot struct {
	Running *TaskInfo  `json:"running"`
	Queued  []TaskInfo `json:"queued"`
}

// Orchestrator admits capture tasks and runs them one at a time, each in
// its own worker process.
type Orchestrator struct {
	spawner worker.Spawner
	store   ThrottleStore
	opts    OrchestratorOptions

	// admit serializes Submit from the interval check to the enqueue.
	admit sync.Mutex

	mu      sync.Mutex
	queue   []*models.Task
	queued  map[string]bool
	running *TaskInfo
	wake    chan struct{}
	done    chan struct{}
	started bool
}

func NewOrchestrator(spawner worker.Spawner, store ThrottleStore, opts OrchestratorOptions) *Orchestrator {
	if opts.Ceiling <= 0 {
		opts.Ceiling = 2 * time.Minute
	}
	if opts.StartupCeiling <= 0 {
		opts.StartupCeiling = 2 * time.Minute
	}
	if opts.KillPID == nil {
		opts.KillPID = chrome.Kill
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		spawner: spawner,
		store:   store,
		opts:    opts,
		queued:  map[string]bool{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Submit admits task unless the dashboard was accepted less than interval
// ago or already has a task waiting. An admitted task's acceptance time is
// persisted before it is queued.
func (o *Orchestrator) Submit(ctx context.Context, task *models.Task, interval time.Duration) (bool, error) {
	logger := log.With().Str("dashboardId", task.DashboardID).Str("taskId", task.ID).Logger()

	o.admit.Lock()
	defer o.admit.Unlock()
	now := o.opts.Now()

	last, err := o.store.LastAccepted(ctx, task.DashboardID)
	if err != nil {
		return false, err
	}
	if last != nil && now.Sub(*last) <= interval {
		logger.Debug().Dur("elapsed", now.Sub(*last)).Dur("interval", interval).Msg("⏳ Not enough time elapsed, skipping")
		return false, nil
	}

	o.mu.Lock()
	queued := o.queued[task.DashboardID]
	o.mu.Unlock()
	if queued {
		logger.Debug().Msg("Dashboard is already queued, skipping")
		return false, nil
	}

	if err := o.store.MarkAccepted(ctx, task.DashboardID, now); err != nil {
		logger.Error().Err(err).Msg("Failed to persist accepted request")
		return false, err
	}

	o.mu.Lock()
	o.queue = append(o.queue, task)
	o.queued[task.DashboardID] = true
	length := len(o.queue)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	logger.Info().Int("queueLength", length).Msg("📋 Capture planned")
	return true, nil
}

// Start drains the queue until ctx ends. The task running when ctx ends is
// killed.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	go func() {
		defer close(o.done)
		for {
			task := o.next()
			if task == nil {
				select {
				case <-o.wake:
					continue
				case <-ctx.Done():
					return
				}
			}
			o.execute(ctx, task)
			if ctx.Err() != nil {
				return
			}
		}
	}()
	log.Info().Msg("Orchestrator started")
}

// Wait blocks until the loop started by Start has exited.
func (o *Orchestrator) Wait() error {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	<-o.done
	return nil
}

func (o *Orchestrator) Snapshot() QueueSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := QueueSnapshot{Queued: make([]TaskInfo, 0, len(o.queue))}
	if o.running != nil {
		r := *o.running
		snap.Running = &r
	}
	for _, t := range o.queue {
		snap.Queued = append(snap.Queued, taskInfo(t))
	}
	return snap
}

func taskInfo(t *models.Task) TaskInfo {
	return TaskInfo{ID: t.ID, DashboardID: t.DashboardID, Width: t.Width, Height: t.Height, CreatedAt: t.CreatedAt}
}

func (o *Orchestrator) next() *models.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	task := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	delete(o.queued, task.DashboardID)

	info := taskInfo(task)
	info.StartedAt = o.opts.Now()
	o.running = &info
	return task
}

func (o *Orchestrator) setPID(pid int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running != nil {
		o.running.PID = pid
	}
}

// execute runs one task to completion, timeout or worker exit.
func (o *Orchestrator) execute(ctx context.Context, task *models.Task) {
	logger := log.With().Str("dashboardId", task.DashboardID).Str("taskId", task.ID).Logger()
	start := time.Now()
	defer func() {
		o.mu.Lock()
		o.running = nil
		o.mu.Unlock()
	}()

	logger.Info().Msg("🎬 Requesting screenshot")
	h, err := o.spawner.Spawn(ctx, task)
	if err != nil {
		logger.Error().Err(err).Msg("❌ Failed to spawn worker")
		return
	}

	pid := 0
	ceiling := time.NewTimer(o.opts.StartupCeiling)
	defer ceiling.Stop()

	terminate := func() {
		if err := h.Kill(); err != nil {
			logger.Debug().Err(err).Msg("Worker already gone")
		}
		o.killPID(pid)
		// drain until the reader closes so nothing is left behind
		for range h.Messages() {
		}
	}

	messages := h.Messages()
	for {
		select {
		case m, ok := <-messages:
			if !ok {
				logger.Warn().Int("pid", pid).Msg("⚠️ Worker exited without a screenshot")
				o.killPID(pid)
				return
			}
			if m.PID != 0 && pid == 0 {
				pid = m.PID
				o.setPID(pid)
				logger.Info().Int("pid", pid).Msg("🌐 Browser pid reported")
				ceiling.Reset(o.opts.Ceiling)
			}
			if m.IsDone {
				// a failed write leaves last-success unchanged
				if err := o.store.MarkSuccess(context.WithoutCancel(ctx), task.DashboardID, o.opts.Now()); err != nil {
					logger.Error().Err(err).Msg("Failed to persist success")
				}
				logger.Info().Dur("elapsed", time.Since(start)).Msg("✅ Screenshot is made")
				terminate()
				if o.opts.OnSuccess != nil {
					o.opts.OnSuccess(task)
				}
				return
			}
		case <-ceiling.C:
			logger.Warn().Int("pid", pid).Dur("elapsed", time.Since(start)).Msg("⏰ Worker ceiling reached, killing")
			terminate()
			return
		case <-ctx.Done():
			logger.Warn().Msg("🛑 Shutting down, killing worker")
			terminate()
			return
		}
	}
}

func (o *Orchestrator) killPID(pid int) {
	if pid == 0 {
		return
	}
	if err := o.opts.KillPID(pid); err != nil {
		log.Debug().Err(err).Int("pid", pid).Msg("Browser already gone")
	}
}

// Busy reports whether a task for the dashboard is queued or running.
func (o *Orchestrator) Busy(dashboardID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queued[dashboardID] || (o.running != nil && o.running.DashboardID == dashboardID)
}
