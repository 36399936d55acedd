package deps

// Cycle is one elementary import cycle in canonical order: the path starts
// at the lexicographically smallest participating module.
type Cycle struct {
	// Modules lists the cycle path without repeating the closing module.
	Modules []string `json:"modules"`
	// ViaReexport is true when at least one participating edge re-exports
	// the imported name. Informational only; detection is identical.
	ViaReexport bool `json:"via_reexport,omitempty"`
}

// Cluster is a strongly connected component too large to enumerate.
type Cluster struct {
	Modules []string `json:"modules"`
}

// Analysis is the dependency analyzer's structured result.
type Analysis struct {
	// SelfLoops lists modules that import themselves, reported distinctly
	// from multi-module cycles.
	SelfLoops []string  `json:"self_loops,omitempty"`
	Cycles    []Cycle   `json:"cycles,omitempty"`
	Clusters  []Cluster `json:"clusters,omitempty"`
}
