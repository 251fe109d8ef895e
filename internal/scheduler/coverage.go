package scheduler

import (
	"sort"
	"time"

	"github.com/angelmondragon/partsrunner-backend/internal/graph"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
)

// coverage is where a route picks up and drops off. A nil pickup stop means
// the route start location.
type coverage struct {
	PickupStopID  *int64
	DropoffStopID int64
}

// findCoverage returns the earliest pickup at origin that has a later stop at
// destination on the route. Stops must be ordered by stop_order.
func findCoverage(route models.Route, origin, destination int64) (coverage, bool) {
	if route.StartLocationID == origin {
		for _, stop := range route.Stops {
			if stop.LocationID == destination {
				return coverage{DropoffStopID: stop.ID}, true
			}
		}
	}
	for i, pickup := range route.Stops {
		if pickup.LocationID != origin {
			continue
		}
		for _, drop := range route.Stops[i+1:] {
			if drop.LocationID == destination {
				id := pickup.ID
				return coverage{PickupStopID: &id, DropoffStopID: drop.ID}, true
			}
		}
	}
	return coverage{}, false
}

// dayPlan is the open runs of one date with their routes preloaded.
type dayPlan struct {
	runs   []models.RunInstance
	routes map[int64]models.Route
	loc    *time.Location
}

// candidate pairs a run with the stops it would serve.
type candidate struct {
	run models.RunInstance
	cov coverage
}

// coveringRuns lists runs that visit origin before destination. Runs on
// routes the path already uses come first, then by departure and id.
func (p dayPlan) coveringRuns(req models.PartsRequest, path graph.Path) []candidate {
	onPath := map[int64]bool{}
	for _, id := range path.RouteIDs() {
		onPath[id] = true
	}
	var out []candidate
	for _, run := range p.runs {
		route, ok := p.routes[run.RouteID]
		if !ok {
			continue
		}
		if !p.startsAfterNotBefore(run, req.NotBeforeDatetime) {
			continue
		}
		cov, ok := findCoverage(route, req.OriginLocationID, req.ReceivingLocationID)
		if !ok {
			continue
		}
		out = append(out, candidate{run: run, cov: cov})
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := onPath[out[i].run.RouteID], onPath[out[j].run.RouteID]
		if pi != pj {
			return pi
		}
		return runLess(out[i].run, out[j].run)
	})
	return out
}

// legRuns lists runs on the leg's route departing no earlier than after.
func (p dayPlan) legRuns(leg graph.Leg, after *models.RunInstance, notBefore *time.Time) []candidate {
	var out []candidate
	for _, run := range p.runs {
		if run.RouteID != leg.RouteID {
			continue
		}
		if after != nil && run.ScheduledTime.Before(after.ScheduledTime) {
			continue
		}
		if !p.startsAfterNotBefore(run, notBefore) {
			continue
		}
		out = append(out, candidate{
			run: run,
			cov: coverage{PickupStopID: leg.PickupStopID, DropoffStopID: leg.DropoffStopID},
		})
	}
	return out
}

func (p dayPlan) startsAfterNotBefore(run models.RunInstance, notBefore *time.Time) bool {
	if notBefore == nil {
		return true
	}
	return !run.StartsAt(p.loc).Before(*notBefore)
}

func runLess(a, b models.RunInstance) bool {
	if a.ScheduledTime != b.ScheduledTime {
		return a.ScheduledTime.Before(b.ScheduledTime)
	}
	return a.ID < b.ID
}
