package lock

import "sort"

// hasCycle rebuilds the wait-for graph from m.edges and runs a
// deterministic (sorted-order) DFS over it, returning the id of the
// highest-numbered (youngest) transaction on the first cycle found.
// Grounded on lock_manager.cpp's HasCycle/Dfs: the sorted adjacency
// lists and "target_cycle_txn_ is the max vertex seen on the closing
// path" victim rule are carried over directly. Unlike the original,
// which clears its visited-state map before every fresh root (an
// inefficiency, not a correctness requirement — a vertex fully explored
// with no cycle can never gain one by being revisited), this version
// marks a vertex done once explored and never revisits it.
func (m *Manager) hasCycle() (victim uint64, found bool) {
	adj := make(map[uint64][]uint64)
	seen := make(map[uint64]struct{})
	for e := range m.edges {
		adj[e.from] = append(adj[e.from], e.to)
		seen[e.from] = struct{}{}
		seen[e.to] = struct{}{}
	}
	vertices := make([]uint64, 0, len(seen))
	for v := range seen {
		vertices = append(vertices, v)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i] < vertices[j] })
	for _, neighbors := range adj {
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
	}

	d := &dfsWalk{adj: adj, state: make(map[uint64]int)}
	for _, v := range vertices {
		if d.state[v] == 0 {
			d.run(v)
		}
		if d.victim != 0 {
			return d.victim, true
		}
	}
	return 0, false
}

// dfsWalk holds one hasCycle sweep's DFS bookkeeping.
type dfsWalk struct {
	adj        map[uint64][]uint64
	state      map[uint64]int // 0 unvisited, 1 visiting (on the stack), 2 done
	cycleStart uint64
	victim     uint64
}

// run explores v, returning true while the call stack is still inside
// the cycle it just closed (so ancestors up to cycleStart keep
// propagating the news), false once past it or if v has no cycle.
func (d *dfsWalk) run(v uint64) bool {
	d.state[v] = 1
	for _, next := range d.adj[v] {
		if d.state[next] == 1 {
			d.cycleStart = next
			d.victim = max(d.victim, v)
			d.state[v] = 2
			return true
		}
		if d.state[next] == 0 && d.run(next) {
			d.victim = max(d.victim, v)
			d.state[v] = 2
			return v != d.cycleStart
		}
	}
	d.state[v] = 2
	return false
}

// EdgeList returns a snapshot of the current wait-for graph, useful for
// tests and diagnostics.
func (m *Manager) EdgeList() [][2]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]uint64, 0, len(m.edges))
	for e := range m.edges {
		out = append(out, [2]uint64{e.from, e.to})
	}
	return out
}
