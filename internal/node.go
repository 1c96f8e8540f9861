package internal

import (
	"fmt"
	"slices"
)

// NodeID is a generational handle into the lifecycle graph. A handle whose
// node was removed never resolves again, even once its slot is reused.
type NodeID struct {
	slot uint32
	gen  uint32
}

func (id NodeID) IsZero() bool {
	return id.gen == 0
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d.%d", id.slot, id.gen)
}

// Category tags what a node stands for.
type Category int

const (
	CategoryRoot Category = iota
	CategoryUnit
	CategoryService
	CategoryRelay
	CategoryEvent
	CategorySignal
	CategoryListeners
	CategoryNavigation
	CategoryCustom
)

func (c Category) String() string {
	switch c {
	case CategoryRoot:
		return "root"
	case CategoryUnit:
		return "unit"
	case CategoryService:
		return "service"
	case CategoryRelay:
		return "relay"
	case CategoryEvent:
		return "event"
	case CategorySignal:
		return "signal"
	case CategoryListeners:
		return "listeners"
	case CategoryNavigation:
		return "navigation"
	default:
		return "custom"
	}
}

// Canceler is an observer handle owned by a node.
type Canceler interface {
	Cancel()
}

// CancelFunc adapts a plain function to Canceler.
type CancelFunc func()

func (f CancelFunc) Cancel() { f() }

// NodeInfo is a point-in-time copy of a node.
type NodeInfo struct {
	ID       NodeID
	Label    string
	Category Category
	Parent   NodeID
	Children int
	Handles  int
}

type node struct {
	id       NodeID
	label    string
	category Category

	// weak: a stale parent handle means the node is orphaned
	parent NodeID

	children []NodeID
	handles  []Canceler
}

func (n *node) addChild(id NodeID) {
	if slices.Contains(n.children, id) {
		return
	}
	n.children = append(n.children, id)
}

func (n *node) removeChild(id NodeID) {
	if i := slices.Index(n.children, id); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}

func (n *node) info() NodeInfo {
	return NodeInfo{
		ID:       n.id,
		Label:    n.label,
		Category: n.category,
		Parent:   n.parent,
		Children: len(n.children),
		Handles:  len(n.handles),
	}
}
