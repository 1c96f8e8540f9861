package internal

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultChangeThrottle   = 16 * time.Millisecond
	DefaultAutosaveDebounce = 200 * time.Millisecond
)

// Settings tunes the timings units apply to state changes.
type Settings struct {
	// minimum spacing between change notifications of a component
	ChangeThrottle time.Duration

	// quiet period before an automatic save
	AutosaveDebounce time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		ChangeThrottle:   DefaultChangeThrottle,
		AutosaveDebounce: DefaultAutosaveDebounce,
	}
}

// Runtime bundles the collaborators shared by every unit: the lifecycle
// graph, timers, logging and metrics.
type Runtime struct {
	Graph     *Graph
	Scheduler Scheduler
	Logger    *zap.Logger
	Metrics   *Metrics
	Settings  Settings
}

func NewRuntime(sched Scheduler, log *zap.Logger, metrics *Metrics, settings Settings) *Runtime {
	if sched == nil {
		sched = NewScheduler()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Runtime{
		Graph:     NewGraph(metrics),
		Scheduler: sched,
		Logger:    log,
		Metrics:   metrics,
		Settings:  settings,
	}
}

func (r *Runtime) containerConfig(queue *Queue, activity *atomic.Uint64) containerConfig {
	return containerConfig{
		graph:    r.Graph,
		sched:    r.Scheduler,
		log:      r.Logger,
		metrics:  r.Metrics,
		queue:    queue,
		activity: activity,
	}
}
