package cohesion

// ClassResult is the cohesion measurement of one class.
type ClassResult struct {
	Module     string `json:"module"`
	File       string `json:"file"`
	Class      string `json:"class"`
	Methods    int    `json:"methods"`
	Components int    `json:"components"`
}

// unionFind is a plain disjoint-set over method indices.
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

func (u *unionFind) components() int {
	roots := make(map[int]bool)
	for i := range u.parent {
		roots[u.find(i)] = true
	}
	return len(roots)
}
