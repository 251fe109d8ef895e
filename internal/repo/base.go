// Package repo holds the connection handling shared by the dispatch
// repositories.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base wraps the connection a repository writes through, either the pool or
// an open transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx rebinds to tx; a nil tx keeps the current connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Guarded applies updates to model rows matching where and reports whether
// any row changed. The where clause carries the expected current state, so a
// false result means another writer got there first.
func (b Base) Guarded(ctx context.Context, model any, updates map[string]any, where string, args ...any) (bool, error) {
	result := b.DB(ctx).Model(model).Where(where, args...).Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// InsertIfAbsent inserts value unless a row already holds the same values in
// the unique columns. It reports whether the insert happened.
func (b Base) InsertIfAbsent(ctx context.Context, value any, columns ...string) (bool, error) {
	conflict := clause.OnConflict{DoNothing: true}
	for _, name := range columns {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: name})
	}
	result := b.DB(ctx).Clauses(conflict).Create(value)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID loads one row. gorm.ErrRecordNotFound is returned as is.
func FindByID[T any](ctx context.Context, b Base, id int64) (*T, error) {
	var row T
	if err := b.DB(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// FirstOrNil runs query and returns nil, nil when nothing matches.
func FirstOrNil[T any](query *gorm.DB) (*T, error) {
	var row T
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
