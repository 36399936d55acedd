package clones

// CloneKind distinguishes how a group of units was matched.
type CloneKind string

const (
	// KindExact covers Type-1 and Type-2 clones: identical normalized
	// token streams, so only identifier names, literal values and
	// formatting differ.
	KindExact CloneKind = "exact"
	// KindStructural covers Type-4 candidates: the same operation
	// categories expressed through different control constructs, for
	// example an iterative and a recursive rendition of one computation.
	KindStructural CloneKind = "structural"
)

// Member is one unit participating in a clone group.
type Member struct {
	Unit      string `json:"unit"`
	Module    string `json:"module"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Group is one set of mutually similar units.
type Group struct {
	Kind    CloneKind `json:"kind"`
	Members []Member  `json:"members"`
}

// unionFind is a plain disjoint-set over fingerprint indices.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
