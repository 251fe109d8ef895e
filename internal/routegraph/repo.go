package routegraph

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/partsrunner-backend/internal/graph"
	"github.com/angelmondragon/partsrunner-backend/internal/repo"
	"github.com/angelmondragon/partsrunner-backend/pkg/db/models"
)

const defaultInsertBatch = 500

// Repository reads route topology and owns the route_graph_cache table.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.WithTx(tx)}
}

type topologyRow struct {
	RouteID         int64
	StartLocationID int64
	StopID          *int64
	LocationID      *int64
	StopOrder       *int
}

// LoadActiveTopology reads every active route and its stops in one query.
func (r *Repository) LoadActiveTopology(ctx context.Context) ([]graph.RouteTopology, error) {
	var rows []topologyRow
	err := r.base.DB(ctx).
		Table("routes AS r").
		Select("r.id AS route_id, r.start_location_id, s.id AS stop_id, s.location_id, s.stop_order").
		Joins("LEFT JOIN route_stops AS s ON s.route_id = r.id").
		Where("r.is_active = ?", true).
		Order("r.id ASC").
		Order("s.stop_order ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var out []graph.RouteTopology
	index := map[int64]int{}
	for _, row := range rows {
		i, ok := index[row.RouteID]
		if !ok {
			out = append(out, graph.RouteTopology{RouteID: row.RouteID, StartLocationID: row.StartLocationID})
			i = len(out) - 1
			index[row.RouteID] = i
		}
		if row.StopID == nil || row.LocationID == nil || row.StopOrder == nil {
			continue
		}
		out[i].Stops = append(out[i].Stops, graph.StopNode{
			StopID:     *row.StopID,
			LocationID: *row.LocationID,
			StopOrder:  *row.StopOrder,
		})
	}
	return out, nil
}

// FindCacheEntry returns nil when the pair has no cached path.
func (r *Repository) FindCacheEntry(ctx context.Context, from, to int64) (*models.RouteGraphCacheEntry, error) {
	return repo.FirstOrNil[models.RouteGraphCacheEntry](r.base.DB(ctx).
		Where("from_location_id = ? AND to_location_id = ?", from, to))
}

// ReplaceCache swaps the whole cache for entries and records the build. It
// must run inside a transaction so readers keep seeing the previous contents
// until commit.
func (r *Repository) ReplaceCache(ctx context.Context, entries []models.RouteGraphCacheEntry, build *models.RouteGraphBuild, batchSize int) error {
	db := r.base.DB(ctx)
	if batchSize <= 0 {
		batchSize = defaultInsertBatch
	}
	if err := db.Exec("DELETE FROM route_graph_cache").Error; err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := db.CreateInBatches(&entries, batchSize).Error; err != nil {
			return err
		}
	}
	return db.Create(build).Error
}

// ListCacheEntries returns the full cache ordered by pair.
func (r *Repository) ListCacheEntries(ctx context.Context) ([]models.RouteGraphCacheEntry, error) {
	var rows []models.RouteGraphCacheEntry
	err := r.base.DB(ctx).
		Order("from_location_id ASC").
		Order("to_location_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CountCacheEntries(ctx context.Context) (int64, error) {
	var count int64
	err := r.base.DB(ctx).Model(&models.RouteGraphCacheEntry{}).Count(&count).Error
	return count, err
}

// LatestBuild returns nil before the first rebuild.
func (r *Repository) LatestBuild(ctx context.Context) (*models.RouteGraphBuild, error) {
	return repo.FirstOrNil[models.RouteGraphBuild](r.base.DB(ctx).Order("id DESC"))
}

// PruneBuilds deletes rebuild history older than the newest keep builds.
func (r *Repository) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var floor []int64
	err := r.base.DB(ctx).Model(&models.RouteGraphBuild{}).
		Order("id DESC").
		Offset(keep - 1).
		Limit(1).
		Pluck("id", &floor).Error
	if err != nil || len(floor) == 0 {
		return 0, err
	}
	res := r.base.DB(ctx).Where("id < ?", floor[0]).Delete(&models.RouteGraphBuild{})
	return res.RowsAffected, res.Error
}
