package internal

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type graphSlot struct {
	gen  uint32
	node *node
}

// Graph is the lifecycle graph: an arena of nodes addressed by generational
// handles, rooted at a single node that lives as long as the graph.
type Graph struct {
	mu    sync.RWMutex
	slots []graphSlot
	free  []uint32
	live  int
	root  NodeID

	// goroutine id -> *scopeStack
	scopes sync.Map

	metrics *Metrics
}

func NewGraph(metrics *Metrics) *Graph {
	g := &Graph{
		slots:   make([]graphSlot, 0, 64),
		metrics: metrics,
	}

	g.mu.Lock()
	g.root = g.alloc(&node{label: "root", category: CategoryRoot})
	g.mu.Unlock()

	return g
}

func (g *Graph) Root() NodeID {
	return g.root
}

// AddChild adds a node under the current scope of the calling goroutine.
func (g *Graph) AddChild(label string, category Category) NodeID {
	return g.AddChildTo(g.CurrentID(), label, category)
}

// AddChildTo adds a node under parent. A stale parent attaches the node to
// the root instead.
func (g *Graph) AddChildTo(parent NodeID, label string, category Category) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.get(parent)
	if p == nil {
		p = g.get(g.root)
	}

	id := g.alloc(&node{label: label, category: category, parent: p.id})
	p.addChild(id)
	return id
}

// Own hands an observer handle to the node. It reports false when the node
// no longer exists, in which case the handle is left to the caller.
func (g *Graph) Own(id NodeID, c Canceler) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.get(id)
	if n == nil {
		return false
	}

	n.handles = append(n.handles, c)
	return true
}

func (g *Graph) Lookup(id NodeID) (NodeInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := g.get(id)
	if n == nil {
		return NodeInfo{}, false
	}
	return n.info(), true
}

func (g *Graph) Contains(id NodeID) bool {
	_, ok := g.Lookup(id)
	return ok
}

func (g *Graph) Children(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := g.get(id)
	if n == nil {
		return nil
	}

	out := make([]NodeID, 0, len(n.children))
	for _, child := range n.children {
		if g.get(child) != nil {
			out = append(out, child)
		}
	}
	return out
}

// Remove cancels the node's observer handles, detaches it from its parent and
// frees it. With includeChildren the whole subtree goes too; otherwise the
// children are left orphaned until Sweep. Removed ids come back self first.
// The root cannot be removed.
func (g *Graph) Remove(id NodeID, includeChildren bool) []NodeID {
	if id == g.root {
		return nil
	}

	g.mu.Lock()
	n := g.get(id)
	if n == nil {
		g.mu.Unlock()
		return nil
	}

	if p := g.get(n.parent); p != nil {
		p.removeChild(id)
	}

	var removed []NodeID
	var handles []Canceler

	var walk func(n *node)
	walk = func(n *node) {
		removed = append(removed, n.id)
		handles = append(handles, n.handles...)
		g.release(n.id)

		if !includeChildren {
			return
		}

		for _, child := range n.children {
			if c := g.get(child); c != nil && c.parent == n.id {
				walk(c)
			}
		}
	}
	walk(n)

	live := g.live
	g.mu.Unlock()

	g.metrics.setNodes(live)

	// handles may call back into the graph
	for _, h := range handles {
		h.Cancel()
	}

	return removed
}

// Release removes the node and its whole subtree.
func (g *Graph) Release(id NodeID) {
	g.Remove(id, true)
}

// Capture snapshots every live node in slot order.
func (g *Graph) Capture() []NodeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]NodeInfo, 0, g.live)
	for _, s := range g.slots {
		if s.node != nil {
			out = append(out, s.node.info())
		}
	}
	return out
}

// Diff compares a previous Capture with the graph as it is now. It returns
// the nodes alive now that were not captured, followed by the captured nodes
// that are gone.
func (g *Graph) Diff(captured []NodeInfo) []NodeInfo {
	current := g.Capture()

	before := make(map[NodeID]struct{}, len(captured))
	for _, info := range captured {
		before[info.ID] = struct{}{}
	}

	now := make(map[NodeID]struct{}, len(current))
	var out []NodeInfo
	for _, info := range current {
		now[info.ID] = struct{}{}
		if _, ok := before[info.ID]; !ok {
			out = append(out, info)
		}
	}

	for _, info := range captured {
		if _, ok := now[info.ID]; !ok {
			out = append(out, info)
		}
	}

	return out
}

// Sweep drops stale child handles and reattaches orphaned nodes to the root.
// It returns the number of nodes reattached.
func (g *Graph) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, s := range g.slots {
		if s.node == nil {
			continue
		}

		n := s.node
		kept := n.children[:0]
		for _, child := range n.children {
			if c := g.get(child); c != nil && c.parent == n.id {
				kept = append(kept, child)
			}
		}
		n.children = kept
	}

	root := g.get(g.root)
	reattached := 0
	for _, s := range g.slots {
		if s.node == nil || s.node.id == g.root {
			continue
		}

		if g.get(s.node.parent) == nil {
			s.node.parent = g.root
			root.addChild(s.node.id)
			reattached++
		}
	}

	return reattached
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.live
}

// Dump writes the graph as an indented tree.
func (g *Graph) Dump(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var b strings.Builder

	var walk func(id NodeID, depth int)
	walk = func(id NodeID, depth int) {
		n := g.get(id)
		if n == nil {
			return
		}

		fmt.Fprintf(&b, "%s%s [%s] %s", strings.Repeat("  ", depth), n.label, n.category, n.id)
		if len(n.handles) > 0 {
			fmt.Fprintf(&b, " handles=%d", len(n.handles))
		}
		b.WriteByte('\n')

		for _, child := range n.children {
			if c := g.get(child); c != nil && c.parent == id {
				walk(child, depth+1)
			}
		}
	}
	walk(g.root, 0)

	_, err := io.WriteString(w, b.String())
	return err
}

// get resolves a handle. Caller holds g.mu.
func (g *Graph) get(id NodeID) *node {
	if id.gen == 0 || int(id.slot) >= len(g.slots) {
		return nil
	}

	s := g.slots[id.slot]
	if s.gen != id.gen {
		return nil
	}
	return s.node
}

// alloc stores n in a free slot and assigns its id. Caller holds g.mu.
func (g *Graph) alloc(n *node) NodeID {
	var id NodeID

	if last := len(g.free) - 1; last >= 0 {
		slot := g.free[last]
		g.free = g.free[:last]
		id = NodeID{slot: slot, gen: g.slots[slot].gen}
	} else {
		g.slots = append(g.slots, graphSlot{gen: 1})
		id = NodeID{slot: uint32(len(g.slots) - 1), gen: 1}
	}

	n.id = id
	g.slots[id.slot].node = n
	g.live++
	g.metrics.setNodes(g.live)
	return id
}

// release frees the node's slot. Caller holds g.mu.
func (g *Graph) release(id NodeID) {
	s := &g.slots[id.slot]
	s.node = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	g.free = append(g.free, id.slot)
	g.live--
}
