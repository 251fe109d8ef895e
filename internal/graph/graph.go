// Package graph holds the in-memory route graph: a directed multigraph with
// one edge per consecutive pair of locations on each active route. Everything
// here is pure; loading topology and persisting paths live in routegraph.
package graph

import "sort"

// StopNode is one route stop as read from storage.
type StopNode struct {
	StopID     int64
	LocationID int64
	StopOrder  int
}

// RouteTopology is an active route with its stops in any order.
type RouteTopology struct {
	RouteID         int64
	StartLocationID int64
	Stops           []StopNode
}

// Edge is one hop along a route. StopOrder and ToStopID describe the stop the
// edge arrives at; FromStopID is nil when the edge leaves the route's start
// location.
type Edge struct {
	From       int64  `json:"from_location_id"`
	To         int64  `json:"to_location_id"`
	RouteID    int64  `json:"route_id"`
	StopOrder  int    `json:"stop_order"`
	FromStopID *int64 `json:"from_stop_id,omitempty"`
	ToStopID   int64  `json:"to_stop_id"`
}

// Adjacency maps a location to its outgoing edges ordered by route then stop.
type Adjacency map[int64][]Edge

// Graph is immutable once built.
type Graph struct {
	adj        Adjacency
	nodes      map[int64]struct{}
	routeCount int
	edgeCount  int
}

// Build derives the graph from route topology. Input order does not matter:
// routes are walked by id and stops by stop_order, so the same topology always
// yields the same adjacency.
func Build(routes []RouteTopology) *Graph {
	sorted := make([]RouteTopology, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RouteID < sorted[j].RouteID })

	g := &Graph{
		adj:   make(Adjacency),
		nodes: make(map[int64]struct{}),
	}
	for _, route := range sorted {
		g.routeCount++
		g.nodes[route.StartLocationID] = struct{}{}

		stops := make([]StopNode, len(route.Stops))
		copy(stops, route.Stops)
		sort.SliceStable(stops, func(i, j int) bool { return stops[i].StopOrder < stops[j].StopOrder })

		from := route.StartLocationID
		var fromStop *int64
		for _, stop := range stops {
			g.nodes[stop.LocationID] = struct{}{}
			edge := Edge{
				From:       from,
				To:         stop.LocationID,
				RouteID:    route.RouteID,
				StopOrder:  stop.StopOrder,
				FromStopID: fromStop,
				ToStopID:   stop.StopID,
			}
			g.adj[from] = append(g.adj[from], edge)
			g.edgeCount++

			stopID := stop.StopID
			fromStop = &stopID
			from = stop.LocationID
		}
	}
	for loc := range g.adj {
		edges := g.adj[loc]
		sort.SliceStable(edges, func(i, j int) bool { return edgeLess(edges[i], edges[j]) })
	}
	return g
}

// Adjacency returns a copy of the outgoing edge lists.
func (g *Graph) Adjacency() Adjacency {
	out := make(Adjacency, len(g.adj))
	for loc, edges := range g.adj {
		out[loc] = append([]Edge(nil), edges...)
	}
	return out
}

// Outgoing returns the edges leaving loc.
func (g *Graph) Outgoing(loc int64) []Edge {
	return append([]Edge(nil), g.adj[loc]...)
}

// Sources returns every location with at least one outgoing edge, ascending.
func (g *Graph) Sources() []int64 {
	out := make([]int64, 0, len(g.adj))
	for loc, edges := range g.adj {
		if len(edges) > 0 {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Nodes returns every location seen in the topology, including isolated ones.
func (g *Graph) Nodes() []int64 {
	out := make([]int64, 0, len(g.nodes))
	for loc := range g.nodes {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *Graph) RouteCount() int { return g.routeCount }

func (g *Graph) EdgeCount() int { return g.edgeCount }

// edgeLess orders parallel candidates: lower route id, then lower stop order,
// then lower origin location and origin stop so ties never depend on map
// iteration.
func edgeLess(a, b Edge) bool {
	if a.RouteID != b.RouteID {
		return a.RouteID < b.RouteID
	}
	if a.StopOrder != b.StopOrder {
		return a.StopOrder < b.StopOrder
	}
	if a.From != b.From {
		return a.From < b.From
	}
	if fa, fb := stopIDOrZero(a.FromStopID), stopIDOrZero(b.FromStopID); fa != fb {
		return fa < fb
	}
	return a.ToStopID < b.ToStopID
}

func stopIDOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
