package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/pingup/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	UsernameTaken(ctx context.Context, username, exceptID string) (bool, error)
	UpdateProfile(ctx context.Context, id string, fields map[string]any) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]models.User, error)
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

// PostgresUserRepository implements UserRepository on gorm
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUsersByIDs returns the users that exist among ids, in no particular order
func (r *PostgresUserRepository) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *PostgresUserRepository) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&count).Error
	return count > 0, err
}

// UpdateProfile applies column updates to a single user and returns the fresh row
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, fields map[string]any) (*models.User, error) {
	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return r.GetUserByID(ctx, id)
}

// DeleteUser removes the user and every relationship row pointing at them,
// adjusting the counters of each peer, in one transaction.
func (r *PostgresUserRepository) DeleteUser(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		var followingIDs, followerIDs []string
		if err := tx.Model(&models.Follow{}).Where("follower_id = ?", id).Pluck("following_id", &followingIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Follow{}).Where("following_id = ?", id).Pluck("follower_id", &followerIDs).Error; err != nil {
			return err
		}
		if len(followingIDs) > 0 {
			if err := tx.Model(&models.User{}).Where("id IN ?", followingIDs).
				UpdateColumn("followers_count", gorm.Expr("followers_count - 1")).Error; err != nil {
				return err
			}
		}
		if len(followerIDs) > 0 {
			if err := tx.Model(&models.User{}).Where("id IN ?", followerIDs).
				UpdateColumn("following_count", gorm.Expr("following_count - 1")).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("follower_id = ? OR following_id = ?", id, id).Delete(&models.Follow{}).Error; err != nil {
			return err
		}

		var connections []models.Connection
		if err := tx.Where("user_a = ? OR user_b = ?", id, id).Find(&connections).Error; err != nil {
			return err
		}
		peers := make([]string, 0, len(connections))
		for _, c := range connections {
			if c.UserA == id {
				peers = append(peers, c.UserB)
			} else {
				peers = append(peers, c.UserA)
			}
		}
		if len(peers) > 0 {
			if err := tx.Model(&models.User{}).Where("id IN ?", peers).
				UpdateColumn("connections_count", gorm.Expr("connections_count - 1")).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_a = ? OR user_b = ?", id, id).Delete(&models.Connection{}).Error; err != nil {
			return err
		}
		if err := tx.Where("from_user_id = ? OR to_user_id = ?", id, id).Delete(&models.ConnectionRequest{}).Error; err != nil {
			return err
		}

		return tx.Delete(&user).Error
	})
}

// likeEscaper makes user input match literally inside a LIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchUsers matches username, email, full name or location, case-insensitively
func (r *PostgresUserRepository) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]models.User, error) {
	users := []models.User{}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where(`LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR `+
			`LOWER(full_name) LIKE ? ESCAPE '\' OR LOWER(location) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern, pattern).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// TouchLastActive records at as the user's last activity
func (r *PostgresUserRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_active_at", at)
	if res.Error != nil {
		return fmt.Errorf("touch last active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
