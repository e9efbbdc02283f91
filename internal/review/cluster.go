package review

import (
	"cmp"
	"fmt"
	"slices"
)

// edge is a candidate link between two findings, by canonical index.
type edge struct {
	a, b      int
	score     float64
	uncertain int // number of uncertain endpoints
}

// CanonicalOrder sorts findings by (SourceID, Position). Source ids are unique
// per run, so the order does not depend on dispatch or completion order.
func CanonicalOrder(findings []Finding) []Finding {
	sorted := slices.Clone(findings)
	slices.SortStableFunc(sorted, func(x, y Finding) int {
		return cmp.Or(
			cmp.Compare(x.SourceID, y.SourceID),
			cmp.Compare(x.Position, y.Position),
		)
	})
	return sorted
}

// BuildClusters partitions findings into clusters. Pairs scoring above the
// threshold become candidate edges. Edges between certain findings merge
// first, then stronger scores; an edge is dropped when it would put two
// findings of one source in the same cluster, so a source keeps its most
// confident finding in a contested cluster. The result is deterministic for
// a given finding set.
func BuildClusters(findings []Finding, cfg MatchConfig) []Cluster {
	items := CanonicalOrder(findings)
	if len(items) == 0 {
		return nil
	}

	var edges []edge
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[i].SourceID == items[j].SourceID {
				continue
			}
			s := cfg.Score(items[i], items[j])
			if s <= cfg.Threshold {
				continue
			}
			e := edge{a: i, b: j, score: s}
			for _, k := range []int{i, j} {
				if !items[k].Certain() {
					e.uncertain++
				}
			}
			edges = append(edges, e)
		}
	}
	slices.SortStableFunc(edges, func(x, y edge) int {
		return cmp.Or(
			cmp.Compare(x.uncertain, y.uncertain),
			cmp.Compare(y.score, x.score),
			cmp.Compare(x.a, y.a),
			cmp.Compare(x.b, y.b),
		)
	})

	uf := newUnionFind(items)
	for _, e := range edges {
		uf.union(e.a, e.b)
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range items {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	clusters := make([]Cluster, 0, len(roots))
	for n, r := range roots {
		members := make([]Finding, 0, len(groups[r]))
		for _, idx := range groups[r] {
			members = append(members, items[idx])
		}
		clusters = append(clusters, Cluster{
			ID:             fmt.Sprintf("C%03d", n+1),
			Members:        members,
			Representative: selectRepresentative(members),
		})
	}
	return clusters
}

// selectRepresentative prefers defects over no-issue assertions, then
// certain members, then the widest location, then canonical order.
func selectRepresentative(members []Finding) int {
	best := 0
	for i := 1; i < len(members); i++ {
		if outranks(members[i], members[best]) {
			best = i
		}
	}
	return best
}

func outranks(m, b Finding) bool {
	if md, bd := m.Kind == KindDefect, b.Kind == KindDefect; md != bd {
		return md
	}
	if m.Certain() != b.Certain() {
		return m.Certain()
	}
	return m.Location.Width() > b.Location.Width()
}

// unionFind tracks components along with the sources each contains.
type unionFind struct {
	parent  []int
	sources []map[string]bool
}

func newUnionFind(items []Finding) *unionFind {
	uf := &unionFind{
		parent:  make([]int, len(items)),
		sources: make([]map[string]bool, len(items)),
	}
	for i, f := range items {
		uf.parent[i] = i
		uf.sources[i] = map[string]bool{f.SourceID: true}
	}
	return uf
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union merges the components of a and b unless they share a source. The
// smaller root index always becomes the parent so roots stay canonical.
func (u *unionFind) union(a, b int) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	for s := range u.sources[rb] {
		if u.sources[ra][s] {
			return false
		}
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	for s := range u.sources[rb] {
		u.sources[ra][s] = true
	}
	u.sources[rb] = nil
	return true
}
