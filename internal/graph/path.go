package graph

import "sort"

// Hop is one element of a path. The first hop is the source and has no route.
type Hop struct {
	LocationID int64  `json:"location_id"`
	RouteID    *int64 `json:"route_id,omitempty"`
	StopOrder  *int   `json:"stop_order,omitempty"`
	FromStopID *int64 `json:"from_stop_id,omitempty"`
	ToStopID   *int64 `json:"to_stop_id,omitempty"`
}

// Path is an ordered hop list from source to destination inclusive.
type Path struct {
	From int64 `json:"from_location_id"`
	To   int64 `json:"to_location_id"`
	Hops []Hop `json:"hops"`
}

// HopCount is always len(Hops)-1.
func (p Path) HopCount() int {
	if len(p.Hops) == 0 {
		return 0
	}
	return len(p.Hops) - 1
}

// Locations returns the location ids along the path.
func (p Path) Locations() []int64 {
	out := make([]int64, len(p.Hops))
	for i, hop := range p.Hops {
		out[i] = hop.LocationID
	}
	return out
}

// RouteIDs returns the distinct routes used, in order of first use.
func (p Path) RouteIDs() []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, hop := range p.Hops {
		if hop.RouteID == nil || seen[*hop.RouteID] {
			continue
		}
		seen[*hop.RouteID] = true
		out = append(out, *hop.RouteID)
	}
	return out
}

// Trivial is the zero-hop path of a location to itself.
func Trivial(loc int64) Path {
	return Path{From: loc, To: loc, Hops: []Hop{{LocationID: loc}}}
}

// ShortestFrom runs a layered breadth-first search from src and returns the
// shortest path to every other reachable location, ordered by destination.
// Within a layer, a newly discovered location takes the incoming edge that
// sorts lowest by edgeLess, which makes the result independent of frontier
// order. Each location is visited once, so cycles and self-loops terminate.
func (g *Graph) ShortestFrom(src int64) []Path {
	if len(g.adj[src]) == 0 {
		return nil
	}
	visited := map[int64]bool{src: true}
	parent := map[int64]Edge{}
	var order []int64

	frontier := []int64{src}
	for len(frontier) > 0 {
		best := map[int64]Edge{}
		for _, loc := range frontier {
			for _, edge := range g.adj[loc] {
				if visited[edge.To] {
					continue
				}
				if cur, ok := best[edge.To]; !ok || edgeLess(edge, cur) {
					best[edge.To] = edge
				}
			}
		}
		next := make([]int64, 0, len(best))
		for loc, edge := range best {
			visited[loc] = true
			parent[loc] = edge
			next = append(next, loc)
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		order = append(order, next...)
		frontier = next
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	paths := make([]Path, 0, len(order))
	for _, dst := range order {
		paths = append(paths, reconstruct(src, dst, parent))
	}
	return paths
}

// Shortest returns the shortest path between two locations computed directly
// on the graph, without any cache.
func (g *Graph) Shortest(from, to int64) (Path, bool) {
	if from == to {
		return Trivial(from), true
	}
	for _, p := range g.ShortestFrom(from) {
		if p.To == to {
			return p, true
		}
	}
	return Path{}, false
}

// AllShortest computes paths for every source, ordered by (from, to).
func (g *Graph) AllShortest() []Path {
	var out []Path
	for _, src := range g.Sources() {
		out = append(out, g.ShortestFrom(src)...)
	}
	return out
}

func reconstruct(src, dst int64, parent map[int64]Edge) Path {
	var reversed []Hop
	for loc := dst; loc != src; {
		edge := parent[loc]
		routeID := edge.RouteID
		stopOrder := edge.StopOrder
		toStop := edge.ToStopID
		reversed = append(reversed, Hop{
			LocationID: loc,
			RouteID:    &routeID,
			StopOrder:  &stopOrder,
			FromStopID: edge.FromStopID,
			ToStopID:   &toStop,
		})
		loc = edge.From
	}
	hops := make([]Hop, 0, len(reversed)+1)
	hops = append(hops, Hop{LocationID: src})
	for i := len(reversed) - 1; i >= 0; i-- {
		hops = append(hops, reversed[i])
	}
	return Path{From: src, To: dst, Hops: hops}
}
