package domain

import "time"

// NodeState is the lifecycle state of a graph node.
type NodeState string

const (
	// NodeStale means the node's inputs or configuration changed since it was last built.
	NodeStale NodeState = "stale"
	// NodeBuilding means a driver run for the node is in flight.
	NodeBuilding NodeState = "building"
	// NodeFresh means the node's artifact is up to date.
	NodeFresh NodeState = "fresh"
	// NodeFailed means the last run for the current inputs failed.
	NodeFailed NodeState = "failed"
)

// CanTransition reports whether a node may move from one state to another.
// A stale node may become fresh directly when a persisted build record is reused.
func CanTransition(from, to NodeState) bool {
	switch from {
	case NodeStale:
		return to == NodeBuilding || to == NodeFresh
	case NodeBuilding:
		return to == NodeFresh || to == NodeFailed || to == NodeStale
	case NodeFresh, NodeFailed:
		return to == NodeStale
	default:
		return false
	}
}

// NodeHandle is the host graph's reference to a declared node.
type NodeHandle string

// GraphNode is a snapshot of one imported artifact in the host graph.
type GraphNode struct {
	// ID stays the same for the lifetime of the node, across rebuilds.
	ID       uint64
	Key      ArtifactKey
	Handle   NodeHandle
	Artifact ResolvedArtifact
	// Inputs are the files whose change makes the node stale.
	Inputs   []string
	CacheKey string
	State    NodeState
	Err      error
}

// BuildRecord is the persisted outcome of a successful driver run.
type BuildRecord struct {
	CacheKey  string             `json:"cacheKey,omitzero"`
	Package   string             `json:"package,omitzero"`
	Manifest  string             `json:"manifest,omitzero"`
	Triple    string             `json:"triple,omitzero"`
	Host      bool               `json:"host,omitzero"`
	Artifacts []ResolvedArtifact `json:"artifacts"`
	Timestamp time.Time          `json:"timestamp,omitzero"`
}
