package repositories

import (
	"context"

	"github.com/anonto42/pingup/backend/internal/models"
	"gorm.io/gorm"
)

// ReconcileRepository repairs derived state from the edge tables
type ReconcileRepository interface {
	RemoveDanglingEdges(ctx context.Context) (map[string]int64, error)
	RepairCounters(ctx context.Context) (map[string]int64, error)
}

// PostgresReconcileRepository implements ReconcileRepository for PostgreSQL
type PostgresReconcileRepository struct {
	db *gorm.DB
}

// NewPostgresReconcileRepository creates a new PostgresReconcileRepository
func NewPostgresReconcileRepository(db *gorm.DB) *PostgresReconcileRepository {
	return &PostgresReconcileRepository{db: db}
}

// RemoveDanglingEdges deletes relationship rows that point at users that no
// longer exist. It returns the deleted row count per table.
func (r *PostgresReconcileRepository) RemoveDanglingEdges(ctx context.Context) (map[string]int64, error) {
	db := r.db.WithContext(ctx)
	existing := db.Model(&models.User{}).Select("id")
	removed := map[string]int64{}

	res := db.Where("follower_id NOT IN (?) OR following_id NOT IN (?)", existing, existing).Delete(&models.Follow{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed["follows"] = res.RowsAffected

	res = db.Where("user_a NOT IN (?) OR user_b NOT IN (?)", existing, existing).Delete(&models.Connection{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed["connections"] = res.RowsAffected

	res = db.Where("from_user_id NOT IN (?) OR to_user_id NOT IN (?)", existing, existing).Delete(&models.ConnectionRequest{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed["connection_requests"] = res.RowsAffected
	return removed, nil
}

// counterQueries recompute each denormalized counter from its edge table
var counterQueries = map[string]string{
	"followers_count":   "SELECT COUNT(*) FROM follows WHERE follows.following_id = users.id",
	"following_count":   "SELECT COUNT(*) FROM follows WHERE follows.follower_id = users.id",
	"connections_count": "SELECT COUNT(*) FROM connections WHERE connections.user_a = users.id OR connections.user_b = users.id",
}

// RepairCounters rewrites every counter that disagrees with its edge table. It
// returns the number of users fixed per counter.
func (r *PostgresReconcileRepository) RepairCounters(ctx context.Context) (map[string]int64, error) {
	fixed := map[string]int64{}
	for column, count := range counterQueries {
		res := r.db.WithContext(ctx).Exec(
			"UPDATE users SET " + column + " = (" + count + ") WHERE " + column + " <> (" + count + ")",
		)
		if res.Error != nil {
			return fixed, res.Error
		}
		fixed[column] = res.RowsAffected
	}
	return fixed, nil
}
