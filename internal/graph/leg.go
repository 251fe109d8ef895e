package graph

// Leg is a maximal run of consecutive hops ridden on one route without leaving
// it. A request that needs more than one leg has to change runs.
type Leg struct {
	RouteID        int64  `json:"route_id"`
	FromLocationID int64  `json:"from_location_id"`
	ToLocationID   int64  `json:"to_location_id"`
	PickupStopID   *int64 `json:"pickup_stop_id,omitempty"`
	DropoffStopID  int64  `json:"dropoff_stop_id"`
	HopCount       int    `json:"hop_count"`
}

// Legs splits the path into per-route legs. A trivial path has none.
func (p Path) Legs() []Leg {
	var legs []Leg
	for i := 1; i < len(p.Hops); i++ {
		hop := p.Hops[i]
		if hop.RouteID == nil || hop.ToStopID == nil {
			continue
		}
		if n := len(legs); n > 0 {
			last := &legs[n-1]
			if last.RouteID == *hop.RouteID && hop.FromStopID != nil && *hop.FromStopID == last.DropoffStopID {
				last.ToLocationID = hop.LocationID
				last.DropoffStopID = *hop.ToStopID
				last.HopCount++
				continue
			}
		}
		legs = append(legs, Leg{
			RouteID:        *hop.RouteID,
			FromLocationID: p.Hops[i-1].LocationID,
			ToLocationID:   hop.LocationID,
			PickupStopID:   hop.FromStopID,
			DropoffStopID:  *hop.ToStopID,
			HopCount:       1,
		})
	}
	return legs
}
