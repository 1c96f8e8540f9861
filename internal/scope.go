package internal

// scopeStack is the per-goroutine stack of active scopes. The graph root is
// implicit at the bottom.
type scopeStack struct {
	ids []NodeID
}

func (g *Graph) stack(create bool) (*scopeStack, int64) {
	gid := getGID()

	if s, ok := g.scopes.Load(gid); ok {
		return s.(*scopeStack), gid
	}

	if !create {
		return nil, gid
	}

	s := &scopeStack{}
	g.scopes.Store(gid, s)
	return s, gid
}

// Push makes id the current scope of the calling goroutine.
func (g *Graph) Push(id NodeID) {
	s, _ := g.stack(true)
	s.ids = append(s.ids, id)
}

// Pop restores the previous scope. The root scope is never popped.
func (g *Graph) Pop() {
	s, gid := g.stack(false)
	if s == nil || len(s.ids) == 0 {
		return
	}

	if s.ids[len(s.ids)-1] == g.root {
		return
	}

	g.truncate(s, gid, len(s.ids)-1)
}

// Run calls fn with id as the current scope, restoring the previous scope
// afterwards even if fn panics.
func (g *Graph) Run(id NodeID, fn func()) {
	s, gid := g.stack(true)
	depth := len(s.ids)
	s.ids = append(s.ids, id)
	defer g.truncate(s, gid, depth)

	fn()
}

// CurrentID returns the calling goroutine's current scope, or the root.
func (g *Graph) CurrentID() NodeID {
	s, _ := g.stack(false)
	if s == nil || len(s.ids) == 0 {
		return g.root
	}
	return s.ids[len(s.ids)-1]
}

// Current resolves the current scope. A scope whose node was removed is not
// found.
func (g *Graph) Current() (NodeInfo, bool) {
	return g.Lookup(g.CurrentID())
}

// Depth is the number of scopes pushed by the calling goroutine.
func (g *Graph) Depth() int {
	s, _ := g.stack(false)
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (g *Graph) truncate(s *scopeStack, gid int64, depth int) {
	clear(s.ids[depth:])
	s.ids = s.ids[:depth]

	if depth == 0 {
		g.scopes.Delete(gid)
	}
}
