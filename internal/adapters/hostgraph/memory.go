// Package hostgraph provides an in-process host build graph.
// It stands in for a native build system when oxbridge runs on its own.
package hostgraph

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.HostGraph = (*Memory)(nil)

// Node is a node declared in the in-process graph.
type Node struct {
	Handle domain.NodeHandle
	ID     string
	Inputs []string
	// Stale is set by MarkStale and cleared when the node is declared again.
	Stale bool
}

// Memory implements ports.HostGraph in memory.
type Memory struct {
	mu        sync.Mutex
	nodes     map[domain.NodeHandle]*Node
	byID      map[string]domain.NodeHandle
	next      uint64
	cancelled atomic.Bool
}

// NewMemory creates an empty graph.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[domain.NodeHandle]*Node),
		byID:  make(map[string]domain.NodeHandle),
	}
}

// DeclareNode registers a node. Declaring an id again returns the existing handle and
// replaces its inputs.
func (m *Memory) DeclareNode(id string, inputs []string) (domain.NodeHandle, error) {
	if id == "" {
		return "", zerr.New("node id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.byID[id]; ok {
		node := m.nodes[handle]
		node.Inputs = slices.Clone(inputs)
		node.Stale = false
		return handle, nil
	}

	m.next++
	handle := domain.NodeHandle("n" + strconv.FormatUint(m.next, 10))
	m.nodes[handle] = &Node{Handle: handle, ID: id, Inputs: slices.Clone(inputs)}
	m.byID[id] = handle
	return handle, nil
}

// MarkStale flags a node for rebuilding. Unknown handles are ignored.
func (m *Memory) MarkStale(handle domain.NodeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.nodes[handle]; ok {
		node.Stale = true
	}
}

// IsCancelled reports whether Cancel has been called since the last Resume.
func (m *Memory) IsCancelled() bool {
	return m.cancelled.Load()
}

// Cancel asks in-flight builds to stop.
func (m *Memory) Cancel() {
	m.cancelled.Store(true)
}

// Resume clears a previous Cancel.
func (m *Memory) Resume() {
	m.cancelled.Store(false)
}

// Nodes returns a copy of every declared node, ordered by id.
func (m *Memory) Nodes() []Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		cp := *node
		cp.Inputs = slices.Clone(node.Inputs)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Node) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Dependents returns the ids of nodes that list path among their inputs.
func (m *Memory) Dependents(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, node := range m.nodes {
		if slices.Contains(node.Inputs, path) {
			out = append(out, node.ID)
		}
	}
	slices.Sort(out)
	return out
}
