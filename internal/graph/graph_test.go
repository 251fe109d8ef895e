package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	locA int64 = 1
	locB int64 = 2
	locC int64 = 3
	locD int64 = 4
	locE int64 = 5
)

func route(id, start int64, stops ...StopNode) RouteTopology {
	return RouteTopology{RouteID: id, StartLocationID: start, Stops: stops}
}

func stop(id, loc int64, order int) StopNode {
	return StopNode{StopID: id, LocationID: loc, StopOrder: order}
}

func locations(p Path) []int64 { return p.Locations() }

func TestBuildOrdersEdgesIndependentOfInput(t *testing.T) {
	r1 := route(1, locA, stop(11, locB, 10), stop(12, locC, 20))
	r2 := route(2, locA, stop(22, locC, 5), stop(21, locB, 1))

	g1 := Build([]RouteTopology{r1, r2})
	g2 := Build([]RouteTopology{r2, r1})

	assert.Equal(t, g1.Adjacency(), g2.Adjacency())
	assert.Equal(t, 2, g1.RouteCount())
	assert.Equal(t, 4, g1.EdgeCount())

	out := g1.Outgoing(locA)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].RouteID)
	assert.Nil(t, out[0].FromStopID)
	assert.Equal(t, int64(2), out[1].RouteID)
	assert.Equal(t, locB, out[1].To, "route 2 stops are walked by stop_order, not input order")

	fromB := g1.Outgoing(locB)
	require.Len(t, fromB, 2)
	require.NotNil(t, fromB[0].FromStopID)
	assert.Equal(t, int64(11), *fromB[0].FromStopID)
}

func TestDirectEdgeIsOneHop(t *testing.T) {
	g := Build([]RouteTopology{route(1, locA, stop(11, locB, 1))})

	p, ok := g.Shortest(locA, locB)
	require.True(t, ok)
	assert.Equal(t, []int64{locA, locB}, locations(p))
	assert.Equal(t, 1, p.HopCount())
	assert.Nil(t, p.Hops[0].RouteID)
	require.NotNil(t, p.Hops[1].RouteID)
	assert.Equal(t, int64(1), *p.Hops[1].RouteID)
	assert.Equal(t, int64(11), *p.Hops[1].ToStopID)
}

func TestMultiHopAcrossRoutes(t *testing.T) {
	g := Build([]RouteTopology{
		route(1, locA, stop(11, locB, 1)),
		route(2, locB, stop(21, locC, 1)),
	})

	p, ok := g.Shortest(locA, locC)
	require.True(t, ok)
	assert.Equal(t, []int64{locA, locB, locC}, locations(p))
	assert.Equal(t, 2, p.HopCount())
	assert.Equal(t, []int64{1, 2}, p.RouteIDs())

	legs := p.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, Leg{RouteID: 1, FromLocationID: locA, ToLocationID: locB, DropoffStopID: 11, HopCount: 1}, legs[0])
	assert.Equal(t, int64(2), legs[1].RouteID)
	assert.Nil(t, legs[1].PickupStopID, "route 2 starts at B so pickup is its start location")
	assert.Equal(t, int64(21), legs[1].DropoffStopID)
}

func TestUnreachableDestination(t *testing.T) {
	g := Build([]RouteTopology{
		route(1, locA, stop(11, locB, 1)),
		route(2, locC, stop(21, locD, 1)),
	})

	_, ok := g.Shortest(locA, locB)
	assert.True(t, ok)
	_, ok = g.Shortest(locA, locC)
	assert.False(t, ok)
	_, ok = g.Shortest(locB, locA)
	assert.False(t, ok, "edges are directed")
}

func TestTrivialPath(t *testing.T) {
	g := Build(nil)
	p, ok := g.Shortest(locE, locE)
	require.True(t, ok)
	assert.Equal(t, []int64{locE}, locations(p))
	assert.Equal(t, 0, p.HopCount())
	assert.Empty(t, p.Legs())
}

func TestTieBreakPrefersLowerRouteThenStopOrder(t *testing.T) {
	g := Build([]RouteTopology{
		route(5, locA, stop(51, locB, 1)),
		route(3, locA, stop(31, locB, 7)),
		route(3, locA, stop(32, locB, 2)),
	})
	p, ok := g.Shortest(locA, locB)
	require.True(t, ok)
	assert.Equal(t, int64(3), *p.Hops[1].RouteID)
	assert.Equal(t, 2, *p.Hops[1].StopOrder)

	// Two equal-length paths to D: A->B->D on route 7 and A->C->D on route 2.
	g = Build([]RouteTopology{
		route(7, locA, stop(71, locB, 1), stop(72, locD, 2)),
		route(2, locA, stop(21, locC, 1), stop(22, locD, 2)),
	})
	p, ok = g.Shortest(locA, locD)
	require.True(t, ok)
	assert.Equal(t, []int64{locA, locC, locD}, locations(p))
	assert.Equal(t, 2, p.HopCount())
}

func TestShorterPathWinsOverLowerRoute(t *testing.T) {
	g := Build([]RouteTopology{
		route(1, locA, stop(11, locB, 1), stop(12, locC, 2), stop(13, locD, 3)),
		route(9, locA, stop(91, locD, 1)),
	})
	p, ok := g.Shortest(locA, locD)
	require.True(t, ok)
	assert.Equal(t, 1, p.HopCount())
	assert.Equal(t, int64(9), *p.Hops[1].RouteID)
}

func TestCyclesAndSelfLoopsTerminate(t *testing.T) {
	g := Build([]RouteTopology{
		route(1, locA, stop(11, locA, 1), stop(12, locB, 2), stop(13, locA, 3), stop(14, locB, 4)),
		route(2, locB, stop(21, locC, 1), stop(22, locA, 2)),
	})

	p, ok := g.Shortest(locA, locB)
	require.True(t, ok)
	assert.Equal(t, 1, p.HopCount(), "self-loop never shortens or lengthens a path")
	assert.Equal(t, int64(11), *p.Hops[1].FromStopID)

	p, ok = g.Shortest(locA, locC)
	require.True(t, ok)
	assert.Equal(t, []int64{locA, locB, locC}, locations(p))

	all := g.AllShortest()
	for _, path := range all {
		assert.NotEqual(t, path.From, path.To, "no self pairs are produced")
		assert.Equal(t, len(path.Hops)-1, path.HopCount())
	}
}

func TestIsolatedSinkHasNoOutgoingPaths(t *testing.T) {
	g := Build([]RouteTopology{
		route(1, locA, stop(11, locB, 1)),
		route(2, locC),
	})
	assert.Equal(t, []int64{locA}, g.Sources())
	assert.Equal(t, []int64{locA, locB, locC}, g.Nodes())
	assert.Nil(t, g.ShortestFrom(locB))
	assert.Nil(t, g.ShortestFrom(locC))
}

func TestAllShortestIsDeterministic(t *testing.T) {
	topology := []RouteTopology{
		route(4, locD, stop(41, locA, 1), stop(42, locE, 2)),
		route(1, locA, stop(11, locB, 1), stop(12, locC, 2)),
		route(2, locB, stop(21, locD, 1)),
		route(3, locC, stop(31, locD, 1), stop(32, locB, 2)),
	}
	reversed := make([]RouteTopology, len(topology))
	for i := range topology {
		reversed[len(topology)-1-i] = topology[i]
	}

	first := Build(topology).AllShortest()
	second := Build(reversed).AllShortest()
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		assert.True(t, prev.From < cur.From || (prev.From == cur.From && prev.To < cur.To), "paths ordered by (from, to)")
	}
}

func TestLegsMergeConsecutiveHopsOnSameRoute(t *testing.T) {
	g := Build([]RouteTopology{
		route(1, locA, stop(11, locB, 1), stop(12, locC, 2)),
		route(2, locC, stop(21, locD, 1), stop(22, locE, 2)),
	})
	p, ok := g.Shortest(locA, locE)
	require.True(t, ok)
	assert.Equal(t, 4, p.HopCount())

	legs := p.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, Leg{RouteID: 1, FromLocationID: locA, ToLocationID: locC, DropoffStopID: 12, HopCount: 2}, legs[0])
	assert.Equal(t, Leg{RouteID: 2, FromLocationID: locC, ToLocationID: locE, DropoffStopID: 22, HopCount: 2}, legs[1])
}
