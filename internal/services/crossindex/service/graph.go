package service

import (
	"context"
	"sort"

	"backcheck/internal/core/subject"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/crossindex/domain"
)

// Query walks the edge set breadth-first from subjectID and reports
// every node reached within maxDegree hops. Each node is reported once,
// at its shortest distance, with the strongest edge that reached it
// there. Traversal follows only the given types when any are passed
func (s *Svc) Query(ctx context.Context, subjectID string, maxDegree int, types ...domain.ConnectionType) ([]domain.Connection, error) {
	if s.repo == nil {
		return nil, perr.Unavailablef("crossindex storage not configured")
	}
	start := subject.Canon(subjectID)
	if start == "" {
		return nil, perr.InvalidArgf("subject id required")
	}
	allow, err := typeFilter(types)
	if err != nil {
		return nil, err
	}
	if maxDegree <= 0 || maxDegree > s.cfg.MaxDegree {
		maxDegree = s.cfg.MaxDegree
	}
	s.metrics.RecordQuery("query")

	conns := map[string]domain.Connection{}
	visited := map[string]bool{start: true}
	frontier := []string{start}

	for degree := 1; degree <= maxDegree && len(frontier) > 0; degree++ {
		edges, err := s.repo.Neighbors(ctx, frontier)
		if err != nil {
			return nil, err
		}

		inFrontier := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}

		var next []string
		for _, e := range edges {
			if allow != nil && !allow[e.Type] {
				continue
			}
			ends := [2]string{e.SubjectA, e.SubjectB}
			for i, from := range ends {
				peer := ends[1-i]
				if !inFrontier[from] || visited[peer] {
					continue
				}
				c := domain.Connection{
					SubjectID: peer,
					Type:      e.Type,
					Strength:  e.Strength,
					Degree:    degree,
					Evidence:  e.Evidence,
				}
				if from != start {
					c.Via = from
				}
				prev, ok := conns[peer]
				if !ok {
					conns[peer] = c
					next = append(next, peer)
				} else if e.Strength.Rank() > prev.Strength.Rank() {
					conns[peer] = c
				}
			}
		}
		// mark after the round so same-degree edges can still compete
		for _, id := range next {
			visited[id] = true
		}
		frontier = next
	}

	out := make([]domain.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Degree != out[j].Degree {
			return out[i].Degree < out[j].Degree
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out, nil
}

// NetworkGraph returns the bounded neighborhood around center: every
// node within maxDepth hops and every edge discovered expanding to it
func (s *Svc) NetworkGraph(ctx context.Context, center string, maxDepth int) (domain.Graph, error) {
	if s.repo == nil {
		return domain.Graph{}, perr.Unavailablef("crossindex storage not configured")
	}
	start := subject.Canon(center)
	if start == "" {
		return domain.Graph{}, perr.InvalidArgf("center subject required")
	}
	if maxDepth <= 0 || maxDepth > s.cfg.MaxDepth {
		maxDepth = s.cfg.MaxDepth
	}
	s.metrics.RecordQuery("network_graph")

	g := domain.Graph{
		Center: start,
		Nodes:  []domain.Node{{ID: start, Degree: 0}},
	}
	visited := map[string]bool{start: true}
	seenEdge := map[string]bool{}
	frontier := []string{start}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, err := s.repo.Neighbors(ctx, frontier)
		if err != nil {
			return domain.Graph{}, err
		}
		var next []string
		for _, e := range edges {
			k := e.SubjectA + "\x1f" + e.SubjectB + "\x1f" + string(e.Type)
			if seenEdge[k] {
				continue
			}
			seenEdge[k] = true
			g.Edges = append(g.Edges, e)
			for _, id := range [2]string{e.SubjectA, e.SubjectB} {
				if visited[id] {
					continue
				}
				visited[id] = true
				g.Nodes = append(g.Nodes, domain.Node{ID: id, Degree: depth})
				next = append(next, id)
			}
		}
		frontier = next
	}

	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].Degree != g.Nodes[j].Degree {
			return g.Nodes[i].Degree < g.Nodes[j].Degree
		}
		return g.Nodes[i].ID < g.Nodes[j].ID
	})
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.SubjectA != b.SubjectA {
			return a.SubjectA < b.SubjectA
		}
		if a.SubjectB != b.SubjectB {
			return a.SubjectB < b.SubjectB
		}
		return a.Type < b.Type
	})
	return g, nil
}

func typeFilter(types []domain.ConnectionType) (map[domain.ConnectionType]bool, error) {
	if len(types) == 0 {
		return nil, nil
	}
	allow := make(map[domain.ConnectionType]bool, len(types))
	for _, t := range types {
		if !t.Known() {
			return nil, perr.InvalidArgf("unknown connection type %q", t)
		}
		allow[t] = true
	}
	return allow, nil
}
