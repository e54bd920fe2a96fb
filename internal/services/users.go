package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/anonto42/pingup/backend/internal/cache"
	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/storage"
	"github.com/anonto42/pingup/backend/pkg/logger"
	"go.uber.org/zap"
)

// DiscoverLimit caps user discovery results
const DiscoverLimit = 50

// ProfileUpdate is an UpdateUserRequest plus optional new images
type ProfileUpdate struct {
	models.UpdateUserRequest
	Profile *Upload
	Cover   *Upload
}

// UserService manages accounts and profiles
type UserService struct {
	users         repositories.UserRepository
	notifications repositories.NotificationRepository
	unread        cache.UnreadCache
	media         storage.MediaUploader
	logger        *zap.Logger
	now           func() time.Time
}

// NewUserService creates a UserService
func NewUserService(
	users repositories.UserRepository,
	notifications repositories.NotificationRepository,
	unread cache.UnreadCache,
	media storage.MediaUploader,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:         users,
		notifications: notifications,
		unread:        unread,
		media:         media,
		logger:        logger.Named("users"),
		now:           time.Now,
	}
}

func (s *UserService) lookup(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, apperrors.NotFound("User")
		}
		return nil, apperrors.Unavailable("storage", err)
	}
	return user, nil
}

// Me returns the caller's own profile
func (s *UserService) Me(ctx context.Context, auth models.AuthContext) (*models.UserProfile, error) {
	user, err := s.lookup(ctx, auth.UserID)
	if err != nil {
		return nil, err
	}
	profile := user.ToProfile(s.now())
	return &profile, nil
}

// Profile returns another user's profile
func (s *UserService) Profile(ctx context.Context, profileID string) (*models.UserProfile, error) {
	if profileID == "" {
		return nil, apperrors.InvalidArgument("Profile id is required")
	}
	user, err := s.users.GetUserByID(ctx, profileID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, apperrors.NotFound("Profile")
		}
		return nil, apperrors.Unavailable("storage", err)
	}
	profile := user.ToProfile(s.now())
	return &profile, nil
}

// UpdateProfile applies the non-empty fields of upd. A username that belongs to
// someone else is ignored and the current one kept; the other fields still apply.
func (s *UserService) UpdateProfile(ctx context.Context, auth models.AuthContext, upd ProfileUpdate) (*models.User, error) {
	current, err := s.lookup(ctx, auth.UserID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if username := strings.TrimSpace(upd.Username); username != "" && username != current.Username {
		taken, err := s.users.UsernameTaken(ctx, username, auth.UserID)
		if err != nil {
			return nil, apperrors.Unavailable("storage", err)
		}
		if taken {
			s.logger.Debug("Requested username is taken, keeping current",
				logger.WithUserID(auth.UserID), zap.String("username", username))
		} else {
			fields["username"] = username
		}
	}
	if v := strings.TrimSpace(upd.FullName); v != "" {
		fields["full_name"] = v
	}
	if v := strings.TrimSpace(upd.Bio); v != "" {
		fields["bio"] = v
	}
	if v := strings.TrimSpace(upd.Location); v != "" {
		fields["location"] = v
	}

	if upd.Profile != nil && len(upd.Profile.Data) > 0 {
		url, err := s.media.UploadImage(ctx, upd.Profile.Data, auth.UserID, storage.KindProfile, upd.Profile.Filename)
		if err != nil {
			return nil, uploadError(err)
		}
		fields["profile_picture"] = url
	}
	if upd.Cover != nil && len(upd.Cover.Data) > 0 {
		url, err := s.media.UploadImage(ctx, upd.Cover.Data, auth.UserID, storage.KindCover, upd.Cover.Filename)
		if err != nil {
			return nil, uploadError(err)
		}
		fields["cover_photo"] = url
	}

	user, err := s.users.UpdateProfile(ctx, auth.UserID, fields)
	if errors.Is(err, repositories.ErrUsernameTaken) {
		// someone claimed the name between the check and the write
		s.logger.Debug("Requested username was claimed concurrently, keeping current",
			logger.WithUserID(auth.UserID), zap.Any("username", fields["username"]))
		delete(fields, "username")
		user, err = s.users.UpdateProfile(ctx, auth.UserID, fields)
	}
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	return user, nil
}

// Discover finds other users by username, email, name or location
func (s *UserService) Discover(ctx context.Context, auth models.AuthContext, input string) ([]models.UserSummary, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return []models.UserSummary{}, nil
	}
	users, err := s.users.SearchUsers(ctx, input, auth.UserID, DiscoverLimit)
	if err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	return models.Summaries(users, s.now()), nil
}

// DeleteAccount removes the caller and every relationship that points at them
func (s *UserService) DeleteAccount(ctx context.Context, auth models.AuthContext) error {
	if err := s.users.DeleteUser(ctx, auth.UserID); err != nil {
		if repositories.IsNotFound(err) {
			return apperrors.NotFound("User")
		}
		return apperrors.Unavailable("storage", err)
	}
	if err := s.notifications.DeleteForUser(ctx, auth.UserID); err != nil {
		s.logger.Warn("Failed to delete notifications of removed user", logger.WithUserID(auth.UserID), zap.Error(err))
	}
	if err := s.unread.Invalidate(ctx, auth.UserID); err != nil {
		s.logger.Warn("Unread cache invalidation failed", logger.WithUserID(auth.UserID), zap.Error(err))
	}
	return nil
}

// SyncIdentity creates the user on first sign-in, or refreshes the fields the
// identity provider owns on later sign-ins. The username is never changed here.
func (s *UserService) SyncIdentity(ctx context.Context, id models.IdentityProfile) (*models.User, error) {
	if id.UID == "" {
		return nil, apperrors.Unauthenticated("")
	}

	existing, err := s.users.GetUserByID(ctx, id.UID)
	if err == nil {
		fields := map[string]any{}
		if id.Email != "" && id.Email != existing.Email {
			fields["email"] = id.Email
		}
		if id.FullName != "" && id.FullName != existing.FullName {
			fields["full_name"] = id.FullName
		}
		if id.ProfilePicture != "" && id.ProfilePicture != existing.ProfilePicture {
			fields["profile_picture"] = id.ProfilePicture
		}
		user, err := s.users.UpdateProfile(ctx, id.UID, fields)
		if err != nil {
			return nil, apperrors.Unavailable("storage", err)
		}
		return user, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, apperrors.Unavailable("storage", err)
	}

	username, err := s.freeUsername(ctx, id)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:             id.UID,
		Email:          id.Email,
		FullName:       id.FullName,
		Username:       username,
		Bio:            models.DefaultBio,
		ProfilePicture: id.ProfilePicture,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, apperrors.Unavailable("storage", err)
	}
	s.logger.Info("User created on first sign-in", logger.WithUserID(user.ID), zap.String("username", username))
	return user, nil
}

// freeUsername derives a username from the email local part, appending a
// random number while it collides
func (s *UserService) freeUsername(ctx context.Context, id models.IdentityProfile) (string, error) {
	base := usernameBase(id.Email)
	candidate := base
	for range 10 {
		taken, err := s.users.UsernameTaken(ctx, candidate, id.UID)
		if err != nil {
			return "", apperrors.Unavailable("storage", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, rand.IntN(10000))
	}
	return "", apperrors.Conflict("Could not allocate a username")
}

func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
