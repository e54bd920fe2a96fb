package repositories

import (
	"context"

	"github.com/anonto42/pingup/backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for direct message operations
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	GetInPair(ctx context.Context, id uint, pairKey string) (*models.Message, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]models.Message, error)
	ListConversation(ctx context.Context, pairKey string, sinceID uint) ([]models.Message, error)
	Delete(ctx context.Context, id uint) error
	UnreadCounts(ctx context.Context, viewerID string) ([]models.UnreadCount, error)
	MarkSeen(ctx context.Context, viewerID, peerID string) (int64, error)
	LatestPerPeer(ctx context.Context, userID string, limit int) ([]models.Message, error)
}

// PostgresMessageRepository implements MessageRepository for PostgreSQL
type PostgresMessageRepository struct {
	db *gorm.DB
}

// NewPostgresMessageRepository creates a new PostgresMessageRepository
func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	msg.PairKey = models.PairKey(msg.FromUserID, msg.ToUserID)
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// GetInPair returns message id only if it belongs to the conversation pairKey
func (r *PostgresMessageRepository) GetInPair(ctx context.Context, id uint, pairKey string) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).Where("id = ? AND pair_key = ?", id, pairKey).First(&msg).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// GetByIDs returns the messages that still exist among ids, keyed by id
func (r *PostgresMessageRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]models.Message, error) {
	out := make(map[uint]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var msgs []models.Message
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out, nil
}

// ListConversation returns the pair's messages oldest first. Order and the
// sinceID cursor both follow the id sequence, never created_at.
func (r *PostgresMessageRepository) ListConversation(ctx context.Context, pairKey string, sinceID uint) ([]models.Message, error) {
	msgs := []models.Message{}
	q := r.db.WithContext(ctx).Where("pair_key = ?", pairKey)
	if sinceID > 0 {
		q = q.Where("id > ?", sinceID)
	}
	err := q.Order("id ASC").Find(&msgs).Error
	return msgs, err
}

func (r *PostgresMessageRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadCounts groups the viewer's unseen inbound messages by sender. Peers with
// nothing unseen do not appear.
func (r *PostgresMessageRepository) UnreadCounts(ctx context.Context, viewerID string) ([]models.UnreadCount, error) {
	counts := []models.UnreadCount{}
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("from_user_id AS peer_id, COUNT(*) AS count").
		Where("to_user_id = ? AND seen = ?", viewerID, false).
		Group("from_user_id").
		Order("from_user_id").
		Scan(&counts).Error
	return counts, err
}

// MarkSeen flags every unseen message from peerID to viewerID as seen
func (r *PostgresMessageRepository) MarkSeen(ctx context.Context, viewerID, peerID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("to_user_id = ? AND from_user_id = ? AND seen = ?", viewerID, peerID, false).
		Update("seen", true)
	return res.RowsAffected, res.Error
}

// LatestPerPeer returns the newest message of each conversation userID takes
// part in, newest conversation first
func (r *PostgresMessageRepository) LatestPerPeer(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	db := r.db.WithContext(ctx)
	latest := db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Group("pair_key")
	err := db.Where("id IN (?)", latest).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
