package repositories

import (
	"context"
	"time"

	"github.com/anonto42/pingup/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository defines the interface for connection data operations
type ConnectionRepository interface {
	CreatePendingRequest(ctx context.Context, req *models.ConnectionRequest, maxPerWindow int64, windowStart time.Time) error
	AcceptRequest(ctx context.Context, requesterID, accepterID string) (*models.ConnectionRequest, error)
	GetRequestByPair(ctx context.Context, x, y string) (*models.ConnectionRequest, error)
	GetPendingRequest(ctx context.Context, fromUserID, toUserID string) (*models.ConnectionRequest, error)
	GetConnections(ctx context.Context, userID string) ([]models.User, error)
	GetPendingRequesters(ctx context.Context, userID string) ([]models.User, error)
	AreConnected(ctx context.Context, x, y string) (bool, error)
}

// PostgresConnectionRepository implements ConnectionRepository for PostgreSQL
type PostgresConnectionRepository struct {
	db *gorm.DB
}

// NewPostgresConnectionRepository creates a new PostgresConnectionRepository
func NewPostgresConnectionRepository(db *gorm.DB) *PostgresConnectionRepository {
	return &PostgresConnectionRepository{db: db}
}

// CreatePendingRequest stores req as pending unless the sender has created
// maxPerWindow requests since windowStart (ErrRateLimited) or the pair already
// has a request in either direction (ErrRequestPending / ErrAlreadyConnected).
// The sender row is locked so concurrent requests from one user count correctly.
func (r *PostgresConnectionRepository) CreatePendingRequest(ctx context.Context, req *models.ConnectionRequest, maxPerWindow int64, windowStart time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sender models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&sender, "id = ?", req.FromUserID).Error; err != nil {
			return translate(err)
		}

		var recent int64
		if err := tx.Model(&models.ConnectionRequest{}).
			Where("from_user_id = ? AND created_at >= ?", req.FromUserID, windowStart).
			Count(&recent).Error; err != nil {
			return err
		}
		if recent >= maxPerWindow {
			return ErrRateLimited
		}

		req.PairKey = models.PairKey(req.FromUserID, req.ToUserID)
		req.Status = models.ConnectionStatusPending
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(req)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var existing models.ConnectionRequest
		if err := tx.Where("pair_key = ?", req.PairKey).First(&existing).Error; err != nil {
			return translate(err)
		}
		if existing.Status == models.ConnectionStatusAccepted {
			return ErrAlreadyConnected
		}
		return ErrRequestPending
	})
}

// AcceptRequest flips the pending request from requesterID to accepterID and
// inserts the canonical connection row in the same transaction, so both sides
// see the connection together. ErrNotFound when no such pending request exists.
func (r *PostgresConnectionRepository) AcceptRequest(ctx context.Context, requesterID, accepterID string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("from_user_id = ? AND to_user_id = ? AND status = ?", requesterID, accepterID, models.ConnectionStatusPending).
			First(&req).Error; err != nil {
			return translate(err)
		}

		req.Status = models.ConnectionStatusAccepted
		if err := tx.Model(&req).Update("status", req.Status).Error; err != nil {
			return err
		}

		conn := models.NewConnection(requesterID, accepterID)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conn)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.User{}).Where("id IN ?", []string{requesterID, accepterID}).
			UpdateColumn("connections_count", gorm.Expr("connections_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequestByPair returns the request between x and y regardless of direction
func (r *PostgresConnectionRepository) GetRequestByPair(ctx context.Context, x, y string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	if err := r.db.WithContext(ctx).Where("pair_key = ?", models.PairKey(x, y)).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (r *PostgresConnectionRepository) GetPendingRequest(ctx context.Context, fromUserID, toUserID string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	if err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", fromUserID, toUserID, models.ConnectionStatusPending).
		First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// GetConnections resolves both halves of the canonical pair rows
func (r *PostgresConnectionRepository) GetConnections(ctx context.Context, userID string) ([]models.User, error) {
	users := []models.User{}
	db := r.db.WithContext(ctx)
	err := db.Where("id IN (?) OR id IN (?)",
		db.Model(&models.Connection{}).Select("user_b").Where("user_a = ?", userID),
		db.Model(&models.Connection{}).Select("user_a").Where("user_b = ?", userID),
	).Find(&users).Error
	return users, err
}

// GetPendingRequesters returns the users with a pending request addressed to userID
func (r *PostgresConnectionRepository) GetPendingRequesters(ctx context.Context, userID string) ([]models.User, error) {
	users := []models.User{}
	db := r.db.WithContext(ctx)
	err := db.Where("id IN (?)",
		db.Model(&models.ConnectionRequest{}).Select("from_user_id").
			Where("to_user_id = ? AND status = ?", userID, models.ConnectionStatusPending),
	).Find(&users).Error
	return users, err
}

func (r *PostgresConnectionRepository) AreConnected(ctx context.Context, x, y string) (bool, error) {
	a, b := models.CanonicalPair(x, y)
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("user_a = ? AND user_b = ?", a, b).Count(&count).Error
	return count > 0, err
}
