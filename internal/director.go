package internal

// Director is what a reducer container commits through: it owns the state,
// routes completion notifications and decides whether the container may
// still run.
type Director interface {
	State() any
	SetState(state any)
	Notify(kind string, payload any)
	PersistStateChanges()
	Available() bool
}

// Lifecycle is the attachment state of a unit.
type Lifecycle int32

const (
	LifecycleNone Lifecycle = iota
	LifecycleAttached
	LifecycleDetached
	LifecycleAppeared
	LifecycleDisappeared
	LifecycleUnlinked
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleAttached:
		return "attached"
	case LifecycleDetached:
		return "detached"
	case LifecycleAppeared:
		return "appeared"
	case LifecycleDisappeared:
		return "disappeared"
	case LifecycleUnlinked:
		return "unlinked"
	default:
		return "none"
	}
}

// Available reports whether reducers may run in this state.
func (l Lifecycle) Available() bool {
	return l == LifecycleAttached || l == LifecycleAppeared
}
