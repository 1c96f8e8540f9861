package dispatch

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AnatoleLucet/dispatch/config"
	"github.com/AnatoleLucet/dispatch/internal"
	"github.com/AnatoleLucet/dispatch/internal/logging"
)

func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

type (
	NodeID       = internal.NodeID
	NodeInfo     = internal.NodeInfo
	Category     = internal.Category
	Graph        = internal.Graph
	Subscription = internal.Subscription
	Canceler     = internal.Canceler
	Scheduler    = internal.Scheduler
	Timer        = internal.Timer
	Queue        = internal.Queue
	Lifecycle    = internal.Lifecycle
	Persistence  = internal.Persistence
	Director     = internal.Director

	// Empty is the payload consumers receive when a producer completed
	// without one.
	Empty = internal.Empty

	// ManualScheduler only moves its clock when told to, for deterministic
	// timing.
	ManualScheduler = internal.ManualScheduler
)

const (
	CategoryRoot       = internal.CategoryRoot
	CategoryUnit       = internal.CategoryUnit
	CategoryService    = internal.CategoryService
	CategoryRelay      = internal.CategoryRelay
	CategoryEvent      = internal.CategoryEvent
	CategorySignal     = internal.CategorySignal
	CategoryListeners  = internal.CategoryListeners
	CategoryNavigation = internal.CategoryNavigation
	CategoryCustom     = internal.CategoryCustom
)

const (
	LifecycleNone        = internal.LifecycleNone
	LifecycleAttached    = internal.LifecycleAttached
	LifecycleDetached    = internal.LifecycleDetached
	LifecycleAppeared    = internal.LifecycleAppeared
	LifecycleDisappeared = internal.LifecycleDisappeared
	LifecycleUnlinked    = internal.LifecycleUnlinked
)

// NewManualScheduler creates a scheduler frozen at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return internal.NewManualScheduler(start)
}

// NewQueue creates a serial queue events can be pinned to with OnQueue.
func NewQueue(label string) *Queue {
	return internal.NewQueue(label)
}

// Runtime owns a lifecycle graph and the timers, logger and metrics shared by
// the units built on it.
type Runtime struct {
	rt  *internal.Runtime
	cfg *config.Config
}

type runtimeOptions struct {
	config     *config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer
	scheduler  Scheduler
}

type RuntimeOption func(*runtimeOptions)

// WithConfig sets the configuration. Without it config.Default is used.
func WithConfig(cfg *config.Config) RuntimeOption {
	return func(o *runtimeOptions) { o.config = cfg }
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(logger *zap.Logger) RuntimeOption {
	return func(o *runtimeOptions) { o.logger = logger }
}

// WithRegisterer records engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) RuntimeOption {
	return func(o *runtimeOptions) { o.registerer = reg }
}

// WithScheduler replaces the wall clock used by debounce, throttle and timed
// events.
func WithScheduler(s Scheduler) RuntimeOption {
	return func(o *runtimeOptions) { o.scheduler = s }
}

func NewRuntime(opts ...RuntimeOption) *Runtime {
	o := runtimeOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if cfg == nil {
		cfg = config.Default()
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Enabled:     cfg.Log.Enabled,
			Level:       cfg.Log.Level,
			Development: cfg.Log.Development,
		})
		if err != nil {
			logger = zap.NewNop()
		}
	}

	var metrics *internal.Metrics
	if o.registerer != nil {
		metrics = internal.NewMetrics(o.registerer)
	}

	settings := internal.DefaultSettings()
	if cfg.Dispatch.ChangeThrottle > 0 {
		settings.ChangeThrottle = cfg.Dispatch.ChangeThrottle
	}
	if cfg.Dispatch.AutosaveDebounce >= 0 {
		settings.AutosaveDebounce = cfg.Dispatch.AutosaveDebounce
	}

	return &Runtime{
		rt:  internal.NewRuntime(o.scheduler, logger, metrics, settings),
		cfg: cfg,
	}
}

var (
	defaultOnce    sync.Once
	defaultRuntime *Runtime
)

// Default is the process-wide runtime, configured from the environment.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRuntime = NewRuntime(WithConfig(config.LoadOrDefault()))
	})

	return defaultRuntime
}

func runtimeOr(r *Runtime) *Runtime {
	if r == nil {
		return Default()
	}
	return r
}

// Graph is the lifecycle graph every unit, event and observation of the
// runtime is registered in.
func (r *Runtime) Graph() *Graph {
	return r.rt.Graph
}

func (r *Runtime) Logger() *zap.Logger {
	return r.rt.Logger
}

func (r *Runtime) Scheduler() Scheduler {
	return r.rt.Scheduler
}

func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Scope runs fn with id as the current scope of the calling goroutine, so
// the signals it observes are owned by id.
func (r *Runtime) Scope(id NodeID, fn func()) {
	r.rt.Graph.Run(id, fn)
}

// AddNode adds a node under the current scope.
func (r *Runtime) AddNode(label string, category Category) NodeID {
	return r.rt.Graph.AddChild(label, category)
}
