package controllers

import (
	"net/http"
	"strconv"

	"github.com/angelmondragon/partsrunner-backend/api/middleware"
	"github.com/angelmondragon/partsrunner-backend/api/responses"
	"github.com/angelmondragon/partsrunner-backend/api/validators"
	"github.com/angelmondragon/partsrunner-backend/internal/graph"
	"github.com/angelmondragon/partsrunner-backend/internal/routegraph"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

type graphSnapshot struct {
	RouteCount int             `json:"route_count"`
	EdgeCount  int             `json:"edge_count"`
	Locations  []int64         `json:"locations"`
	Sources    []int64         `json:"sources"`
	Adjacency  graph.Adjacency `json:"adjacency"`
}

type pathResponse struct {
	From     int64       `json:"from_location_id"`
	To       int64       `json:"to_location_id"`
	Found    bool        `json:"found"`
	HopCount int         `json:"hop_count,omitempty"`
	Hops     []graph.Hop `json:"hops,omitempty"`
}

// GraphSnapshot builds the graph from live topology. It never touches the
// cache and is meant for diagnostics.
func GraphSnapshot(svc routegraph.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route graph service unavailable"))
			return
		}
		g, err := svc.BuildGraph(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, graphSnapshot{
			RouteCount: g.RouteCount(),
			EdgeCount:  g.EdgeCount(),
			Locations:  g.Nodes(),
			Sources:    g.Sources(),
			Adjacency:  g.Adjacency(),
		})
	}
}

func GraphStatus(svc routegraph.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route graph service unavailable"))
			return
		}
		status, err := svc.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// GraphRebuild rebuilds the path cache synchronously, or with ?async=true
// enqueues the rebuild and answers 202.
func GraphRebuild(svc routegraph.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route graph service unavailable"))
			return
		}
		async, err := validators.ParseQueryBool(r, "async")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if async {
			requestedBy := "api"
			if userID := middleware.UserIDFromContext(r.Context()); userID != 0 {
				requestedBy = "user:" + strconv.FormatInt(userID, 10)
			}
			ticket, err := svc.RequestRebuild(r.Context(), requestedBy)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusAccepted, ticket)
			return
		}

		build, err := svc.RebuildCache(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, build)
	}
}

// GraphPath answers from the cache only. A missing path is a normal result.
func GraphPath(svc routegraph.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route graph service unavailable"))
			return
		}
		from, err := validators.ParseQueryID(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryID(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		path, found, err := svc.FindPath(r.Context(), from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := pathResponse{From: from, To: to, Found: found}
		if found && path != nil {
			resp.HopCount = path.HopCount()
			resp.Hops = path.Hops
		}
		responses.WriteSuccess(w, resp)
	}
}
