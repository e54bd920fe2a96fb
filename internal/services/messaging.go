package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anonto42/pingup/backend/internal/cache"
	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/storage"
	"github.com/anonto42/pingup/backend/pkg/logger"
	"go.uber.org/zap"
)

// RecentMessagesLimit caps the recent conversations list
const RecentMessagesLimit = 50

// Upload is an image attached to a request
type Upload struct {
	Data     []byte
	Filename string
}

// SendInput is everything a send may carry
type SendInput struct {
	ToUserID string
	Text     string
	Image    *Upload
	ReplyTo  *uint
}

// MessagingService owns direct messages and their read state
type MessagingService struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	unread   cache.UnreadCache
	media    storage.MediaUploader
	logger   *zap.Logger
	now      func() time.Time
}

// NewMessagingService creates a MessagingService
func NewMessagingService(
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	unread cache.UnreadCache,
	media storage.MediaUploader,
	logger *zap.Logger,
) *MessagingService {
	return &MessagingService{
		messages: messages,
		users:    users,
		unread:   unread,
		media:    media,
		logger:   logger.Named("messaging"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send stores a message from the caller. A reply must point at a message of
// the same conversation.
func (s *MessagingService) Send(ctx context.Context, auth models.AuthContext, in SendInput) (*models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if in.ToUserID == "" {
		return nil, apperrors.InvalidArgument("Recipient is required")
	}
	if in.ToUserID == auth.UserID {
		return nil, apperrors.InvalidArgument("You cannot message yourself")
	}
	if text == "" && (in.Image == nil || len(in.Image.Data) == 0) {
		return nil, apperrors.InvalidArgument("Message must have text or an image")
	}
	if _, err := s.users.GetUserByID(ctx, in.ToUserID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, apperrors.NotFound("User")
		}
		return nil, apperrors.Unavailable("storage", err)
	}

	pairKey := models.PairKey(auth.UserID, in.ToUserID)
	var replyTarget *models.Message
	if in.ReplyTo != nil {
		target, err := s.messages.GetInPair(ctx, *in.ReplyTo, pairKey)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil, apperrors.NotFound("Original message")
			}
			return nil, apperrors.Unavailable("storage", err)
		}
		replyTarget = target
	}

	msg := &models.Message{
		FromUserID: auth.UserID,
		ToUserID:   in.ToUserID,
		Text:       text,
		MediaType:  models.MediaTypeText,
		ReplyToID:  in.ReplyTo,
	}
	if in.Image != nil && len(in.Image.Data) > 0 {
		url, err := s.media.UploadImage(ctx, in.Image.Data, auth.UserID, storage.KindMessage, in.Image.Filename)
		if err != nil {
			return nil, uploadError(err)
		}
		msg.MediaType = models.MediaTypeImage
		msg.MediaURL = url
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	metrics.MessagesSent.WithLabelValues(msg.MediaType).Inc()
	s.invalidate(ctx, in.ToUserID)

	if replyTarget != nil {
		msg.ReplyTo = replyTarget.Preview()
	}
	return msg, nil
}

// ListConversation returns the conversation with peerID oldest first, with
// reply targets resolved. It never changes seen flags. With sinceID set only
// newer messages are returned.
func (s *MessagingService) ListConversation(ctx context.Context, auth models.AuthContext, peerID string, sinceID uint) ([]models.Message, error) {
	if peerID == "" {
		return nil, apperrors.InvalidArgument("User id is required")
	}

	msgs, err := s.messages.ListConversation(ctx, models.PairKey(auth.UserID, peerID), sinceID)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	if err := s.resolveReplies(ctx, msgs); err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	return msgs, nil
}

// resolveReplies fills ReplyTo, marking targets that were deleted as unavailable
func (s *MessagingService) resolveReplies(ctx context.Context, msgs []models.Message) error {
	var ids []uint
	for i := range msgs {
		if msgs[i].ReplyToID != nil {
			ids = append(ids, *msgs[i].ReplyToID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	targets, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		if msgs[i].ReplyToID == nil {
			continue
		}
		id := *msgs[i].ReplyToID
		if target, ok := targets[id]; ok && target.PairKey == msgs[i].PairKey {
			msgs[i].ReplyTo = target.Preview()
		} else {
			msgs[i].ReplyTo = models.UnavailablePreview(id)
		}
	}
	return nil
}

// DeleteMessage removes one of the caller's own messages. Replies to it are
// left in place and render the original as unavailable.
func (s *MessagingService) DeleteMessage(ctx context.Context, auth models.AuthContext, messageID uint) error {
	if messageID == 0 {
		return apperrors.InvalidArgument("Message id is required")
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return apperrors.NotFound("Message")
		}
		return apperrors.Unavailable("storage", err)
	}
	if msg.FromUserID != auth.UserID {
		return apperrors.Forbidden("You can only delete your own messages")
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		if repositories.IsNotFound(err) {
			return apperrors.NotFound("Message")
		}
		return apperrors.Unavailable("storage", err)
	}
	if !msg.Seen {
		s.invalidate(ctx, msg.ToUserID)
	}
	return nil
}

// UnreadCounts returns one entry per peer with unseen messages for the caller.
// Peers with nothing unseen are omitted.
func (s *MessagingService) UnreadCounts(ctx context.Context, auth models.AuthContext) ([]models.UnreadCount, error) {
	counts, hit, err := s.unread.Get(ctx, auth.UserID)
	if err != nil {
		s.logger.Warn("Unread cache read failed", logger.WithUserID(auth.UserID), zap.Error(err))
	}
	if hit {
		metrics.UnreadCache.WithLabelValues("hit").Inc()
		return counts, nil
	}
	metrics.UnreadCache.WithLabelValues("miss").Inc()

	counts, err = s.messages.UnreadCounts(ctx, auth.UserID)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	if err := s.unread.Set(ctx, auth.UserID, counts); err != nil {
		s.logger.Warn("Unread cache write failed", logger.WithUserID(auth.UserID), zap.Error(err))
	}
	return counts, nil
}

// MarkSeen is the read receipt: every unseen message from peerID to the caller
// becomes seen. It returns how many changed.
func (s *MessagingService) MarkSeen(ctx context.Context, auth models.AuthContext, peerID string) (int64, error) {
	if peerID == "" {
		return 0, apperrors.InvalidArgument("User id is required")
	}
	updated, err := s.messages.MarkSeen(ctx, auth.UserID, peerID)
	if err != nil {
		return 0, apperrors.Unavailable("storage", err)
	}
	s.invalidate(ctx, auth.UserID)
	return updated, nil
}

// RecentMessages returns the latest message with each peer, newest first
func (s *MessagingService) RecentMessages(ctx context.Context, auth models.AuthContext) ([]models.RecentMessage, error) {
	latest, err := s.messages.LatestPerPeer(ctx, auth.UserID, RecentMessagesLimit)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	if len(latest) == 0 {
		return []models.RecentMessage{}, nil
	}

	peerIDs := make([]string, 0, len(latest))
	for _, m := range latest {
		peerIDs = append(peerIDs, peerOf(m, auth.UserID))
	}
	peers, err := s.users.GetUsersByIDs(ctx, peerIDs)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	byID := make(map[string]*models.User, len(peers))
	for i := range peers {
		byID[peers[i].ID] = &peers[i]
	}

	counts, err := s.UnreadCounts(ctx, auth)
	if err != nil {
		return nil, err
	}
	unread := make(map[string]int64, len(counts))
	for _, c := range counts {
		unread[c.PeerID] = c.Count
	}

	now := s.now()
	out := make([]models.RecentMessage, 0, len(latest))
	for _, m := range latest {
		peerID := peerOf(m, auth.UserID)
		summary := models.UserSummary{ID: peerID}
		if u, ok := byID[peerID]; ok {
			summary = u.ToSummary(now)
		}
		out = append(out, models.RecentMessage{Peer: summary, Message: m, UnreadCount: unread[peerID]})
	}
	return out, nil
}

func (s *MessagingService) invalidate(ctx context.Context, viewerID string) {
	if err := s.unread.Invalidate(ctx, viewerID); err != nil {
		s.logger.Warn("Unread cache invalidation failed", logger.WithUserID(viewerID), zap.Error(err))
	}
}

// uploadError maps a media upload failure to the error the client sees
func uploadError(err error) error {
	switch {
	case errors.Is(err, storage.ErrUnsupportedMedia):
		return apperrors.InvalidArgument("Only image uploads are supported")
	case errors.Is(err, storage.ErrNotConfigured):
		return apperrors.Unavailable("media storage", err)
	default:
		return apperrors.Unavailable("media upload", err)
	}
}

func peerOf(m models.Message, viewerID string) string {
	if m.FromUserID == viewerID {
		return m.ToUserID
	}
	return m.FromUserID
}
