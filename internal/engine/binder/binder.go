// Package binder registers resolved artifacts as nodes of the host build graph and tracks their state.
package binder

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// Decision is the outcome of checking a unit against a cache key.
type Decision int

const (
	// DecisionBuild means the driver must run.
	DecisionBuild Decision = iota
	// DecisionFresh means the unit's nodes are up to date for the key.
	DecisionFresh
	// DecisionFailed means the last run for the key failed; its error is returned again.
	DecisionFailed
)

type unit struct {
	state    domain.NodeState
	cacheKey string
	err      error
	keys     []domain.ArtifactKey
}

// Binder owns the graph nodes of every imported unit.
type Binder struct {
	host ports.HostGraph

	mu     sync.Mutex
	nextID uint64
	units  map[domain.UnitID]*unit
	nodes  map[domain.ArtifactKey]*domain.GraphNode
}

// New creates a Binder that declares nodes in host.
func New(host ports.HostGraph) *Binder {
	return &Binder{
		host:  host,
		units: make(map[domain.UnitID]*unit),
		nodes: make(map[domain.ArtifactKey]*domain.GraphNode),
	}
}

// Check decides whether the unit must be built for cacheKey.
// When the key differs from the one the unit was last settled with, its nodes become stale
// and the host is told so.
func (b *Binder) Check(id domain.UnitID, cacheKey string) (Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.unit(id)
	if u.cacheKey == cacheKey {
		switch u.state {
		case domain.NodeFresh:
			return DecisionFresh, nil
		case domain.NodeFailed:
			return DecisionFailed, u.err
		}
		return DecisionBuild, nil
	}

	b.invalidate(u)
	return DecisionBuild, nil
}

// Begin marks the unit as building for cacheKey.
func (b *Binder) Begin(id domain.UnitID, cacheKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.unit(id)
	if !domain.CanTransition(u.state, domain.NodeBuilding) {
		b.invalidate(u)
	}
	u.state = domain.NodeBuilding
	u.cacheKey = cacheKey
	u.err = nil
	for _, key := range u.keys {
		b.nodes[key].State = domain.NodeBuilding
	}
}

// Bind settles the unit as fresh with the given artifacts.
// Every artifact is declared to the host with the current inputs. Nodes that already exist keep
// their ID; nodes whose artifact was not produced this time are removed.
func (b *Binder) Bind(
	id domain.UnitID,
	cacheKey string,
	inputs []string,
	artifacts []domain.ResolvedArtifact,
) ([]domain.GraphNode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.unit(id)

	keys := make([]domain.ArtifactKey, 0, len(artifacts))
	for _, art := range artifacts {
		key := domain.ArtifactKey{
			Package: art.Package,
			Kind:    art.Kind,
			Name:    art.Name,
			Triple:  art.Triple,
			Host:    id.Host,
		}

		handle, err := b.host.DeclareNode(key.String(), inputs)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to declare node"), "node", key.String())
		}

		node, ok := b.nodes[key]
		if !ok {
			b.nextID++
			node = &domain.GraphNode{ID: b.nextID, Key: key}
			b.nodes[key] = node
		}

		node.Handle = handle
		node.Artifact = art
		node.Inputs = slices.Clone(inputs)
		node.CacheKey = cacheKey
		node.State = domain.NodeFresh
		node.Err = nil
		keys = append(keys, key)
	}

	for _, old := range u.keys {
		if !slices.Contains(keys, old) {
			delete(b.nodes, old)
		}
	}

	u.keys = keys
	u.state = domain.NodeFresh
	u.cacheKey = cacheKey
	u.err = nil

	return b.snapshot(keys), nil
}

// Fail settles the unit as failed for cacheKey. Existing nodes carry the error; no nodes are created.
func (b *Binder) Fail(id domain.UnitID, cacheKey string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.unit(id)
	u.state = domain.NodeFailed
	u.cacheKey = cacheKey
	u.err = err
	for _, key := range u.keys {
		node := b.nodes[key]
		node.State = domain.NodeFailed
		node.Err = err
	}
}

// Reset returns a building unit to stale, for example after cancellation.
// The next Check for any key decides to build.
func (b *Binder) Reset(id domain.UnitID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.unit(id)
	u.state = domain.NodeStale
	u.cacheKey = ""
	u.err = nil
	for _, key := range u.keys {
		b.nodes[key].State = domain.NodeStale
	}
}

// State returns the unit's state and the cache key it was last checked or settled with.
func (b *Binder) State(id domain.UnitID) (domain.NodeState, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u, ok := b.units[id]; ok {
		return u.state, u.cacheKey
	}
	return domain.NodeStale, ""
}

// UnitNodes returns the nodes the unit last settled with.
func (b *Binder) UnitNodes(id domain.UnitID) []domain.GraphNode {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.units[id]
	if !ok {
		return nil
	}
	return b.snapshot(u.keys)
}

// Node returns the unique node for an artifact of kind built from pkg for triple.
// A host-tool build and a target build for the host triple make the lookup ambiguous;
// NodeFor tells them apart.
func (b *Binder) Node(pkg string, kind domain.ArtifactKind, triple string) (domain.GraphNode, error) {
	return b.find(pkg, kind, triple, func(domain.ArtifactKey) bool { return true })
}

// NodeFor returns the unique node for an artifact of kind built from pkg for triple,
// either as a host tool or as a target build.
func (b *Binder) NodeFor(pkg string, kind domain.ArtifactKind, triple string, host bool) (domain.GraphNode, error) {
	return b.find(pkg, kind, triple, func(key domain.ArtifactKey) bool { return key.Host == host })
}

func (b *Binder) find(
	pkg string,
	kind domain.ArtifactKind,
	triple string,
	match func(domain.ArtifactKey) bool,
) (domain.GraphNode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found []domain.ArtifactKey
	for key := range b.nodes {
		if key.Package == pkg && key.Kind == kind && key.Triple == triple && match(key) {
			found = append(found, key)
		}
	}

	switch len(found) {
	case 0:
		return domain.GraphNode{}, &domain.ArtifactError{
			Kind: domain.ErrNodeNotFound, Package: pkg, ArtifactKind: kind, Triple: triple,
		}
	case 1:
		return b.snapshot(found)[0], nil
	default:
		candidates := make([]string, 0, len(found))
		for _, key := range found {
			candidates = append(candidates, key.String())
		}
		slices.Sort(candidates)
		return domain.GraphNode{}, &domain.ArtifactError{
			Kind: domain.ErrArtifactAmbiguous, Package: pkg, ArtifactKind: kind, Triple: triple, Candidates: candidates,
		}
	}
}

// NodeByKey returns the node with the given key.
func (b *Binder) NodeByKey(key domain.ArtifactKey) (domain.GraphNode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.nodes[key]; !ok {
		return domain.GraphNode{}, false
	}
	return b.snapshot([]domain.ArtifactKey{key})[0], true
}

// Nodes returns every node of pkg ordered by key. An empty pkg returns all nodes.
func (b *Binder) Nodes(pkg string) []domain.GraphNode {
	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []domain.ArtifactKey
	for key := range b.nodes {
		if pkg == "" || key.Package == pkg {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, c domain.ArtifactKey) int {
		return strings.Compare(a.String(), c.String())
	})
	return b.snapshot(keys)
}

// Remove drops a node. The unit it belonged to must be rebuilt to get it back.
func (b *Binder) Remove(key domain.ArtifactKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.nodes[key]; !ok {
		return false
	}
	delete(b.nodes, key)
	for _, u := range b.units {
		if i := slices.Index(u.keys, key); i >= 0 {
			u.keys = slices.Delete(u.keys, i, i+1)
			u.cacheKey = ""
			if u.state == domain.NodeFresh || u.state == domain.NodeFailed {
				u.state = domain.NodeStale
			}
		}
	}
	return true
}

// Affected returns the units whose inputs include one of paths or whose package directory contains one.
func (b *Binder) Affected(paths []string) []domain.UnitID {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.UnitID
	for id, u := range b.units {
		if b.touches(id, u, paths) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, c domain.UnitID) int {
		return strings.Compare(a.String(), c.String())
	})
	return out
}

func (b *Binder) touches(id domain.UnitID, u *unit, paths []string) bool {
	dir := filepath.Dir(id.ManifestPath)
	for _, p := range paths {
		if rel, err := filepath.Rel(dir, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
		for _, key := range u.keys {
			if slices.Contains(b.nodes[key].Inputs, p) {
				return true
			}
		}
	}
	return false
}

// unit must be called with mu held.
func (b *Binder) unit(id domain.UnitID) *unit {
	u, ok := b.units[id]
	if !ok {
		u = &unit{state: domain.NodeStale}
		b.units[id] = u
	}
	return u
}

// invalidate moves a settled unit and its nodes to stale and tells the host.
// Stale and building units are left alone. mu must be held.
func (b *Binder) invalidate(u *unit) {
	if u.state != domain.NodeFresh && u.state != domain.NodeFailed {
		return
	}
	u.state = domain.NodeStale
	u.cacheKey = ""
	u.err = nil
	for _, key := range u.keys {
		node := b.nodes[key]
		node.State = domain.NodeStale
		b.host.MarkStale(node.Handle)
	}
}

// snapshot copies nodes so callers never share state with the binder. mu must be held.
func (b *Binder) snapshot(keys []domain.ArtifactKey) []domain.GraphNode {
	out := make([]domain.GraphNode, 0, len(keys))
	for _, key := range keys {
		node := *b.nodes[key]
		node.Inputs = slices.Clone(node.Inputs)
		out = append(out, node)
	}
	return out
}
