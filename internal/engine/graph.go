package engine

import (
	"sort"

	"coordline/internal/domain"
)

// graph holds dependency edges. The engine lock guards it.
type graph struct {
	edges     []domain.Edge
	seen      map[domain.Edge]int
	blocks    map[string]map[string]struct{}
	blockedBy map[string]map[string]struct{}
}

func newGraph() *graph {
	return &graph{
		seen:      make(map[domain.Edge]int),
		blocks:    make(map[string]map[string]struct{}),
		blockedBy: make(map[string]map[string]struct{}),
	}
}

func edgeKey(from, to string, rel domain.Relationship) domain.Edge {
	return domain.Edge{From: from, To: to, Relationship: rel}
}

// find returns the stored edge for (from, to, rel), if any.
func (g *graph) find(from, to string, rel domain.Relationship) (domain.Edge, bool) {
	i, ok := g.seen[edgeKey(from, to, rel)]
	if !ok {
		return domain.Edge{}, false
	}
	return g.edges[i], true
}

func (g *graph) add(e domain.Edge) {
	key := edgeKey(e.From, e.To, e.Relationship)
	if _, ok := g.seen[key]; ok {
		return
	}
	g.seen[key] = len(g.edges)
	g.edges = append(g.edges, e)
	if e.Relationship == domain.RelBlocks {
		link(g.blocks, e.From, e.To)
		link(g.blockedBy, e.To, e.From)
	}
}

// reaches walks blocks edges depth-first from start looking for target.
func (g *graph) reaches(start, target string) bool {
	visited := map[string]bool{}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for next := range g.blocks[cur] {
			stack = append(stack, next)
		}
	}
	return false
}

// wouldCycle reports whether a blocks edge from -> to closes a loop.
func (g *graph) wouldCycle(from, to string) bool {
	return from == to || g.reaches(to, from)
}

func (g *graph) blockers(id string) []string {
	return sortedKeys(g.blockedBy[id])
}

func (g *graph) dependents(id string) []string {
	return sortedKeys(g.blocks[id])
}

func (g *graph) all() []domain.Edge {
	return append([]domain.Edge(nil), g.edges...)
}

func (g *graph) touching(id string) []domain.Edge {
	var out []domain.Edge
	for _, e := range g.edges {
		if e.From == id || e.To == id {
			out = append(out, e)
		}
	}
	return out
}

func link(m map[string]map[string]struct{}, a, b string) {
	set, ok := m[a]
	if !ok {
		set = make(map[string]struct{})
		m[a] = set
	}
	set[b] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
