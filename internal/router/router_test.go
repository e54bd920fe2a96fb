package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/pingup/backend/internal/cache"
	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/scheduler"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/anonto42/pingup/backend/internal/testutil"
	"github.com/anonto42/pingup/backend/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "router-test-secret"

type fakeVerifier struct{}

func (fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if !strings.HasPrefix(idToken, "good-") {
		return nil, errors.New("bad token")
	}
	uid := strings.TrimPrefix(idToken, "good-")
	return &auth.Token{UID: uid, Claims: map[string]interface{}{
		"email": uid + "@example.com",
		"name":  "User " + uid,
	}}, nil
}

type response struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type APISuite struct {
	suite.Suite
	e        *echo.Echo
	db       *gorm.DB
	notes    *testutil.MemoryNotifications
	uploader *testutil.FakeUploader
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func newServices(db *gorm.DB, notes *testutil.MemoryNotifications, uploader *testutil.FakeUploader) Services {
	log := zap.NewNop()
	users := repositories.NewPostgresUserRepository(db)
	notifier := services.NewNotifier(notes, users, log)
	unread := cache.NoopUnreadCache{}
	return Services{
		Users: services.NewUserService(users, notes, unread, uploader, log),
		Graph: services.NewGraphService(users,
			repositories.NewPostgresFollowRepository(db),
			repositories.NewPostgresConnectionRepository(db),
			notifier, scheduler.Noop{}, log),
		Messaging: services.NewMessagingService(repositories.NewPostgresMessageRepository(db), users, unread, uploader, log),
		Notifier:  notifier,
		Presence:  services.NewPresence(users, log),
		Verifier:  fakeVerifier{},
	}
}

func (s *APISuite) SetupTest() {
	s.db = testutil.NewDB(s.T())
	s.notes = &testutil.MemoryNotifications{}
	s.uploader = &testutil.FakeUploader{}

	cfg := &config.Config{AuthMode: config.AuthModeJWT, JWTSecret: testSecret}
	e, err := New(cfg, newServices(s.db, s.notes, s.uploader), zap.NewNop())
	s.Require().NoError(err)
	s.e = e
}

func (s *APISuite) token(u *models.User) string {
	tok, err := middleware.IssueToken(testSecret, u, time.Now())
	s.Require().NoError(err)
	return tok
}

// do sends a JSON body (or none) as u, or anonymously when u is nil
func (s *APISuite) do(method, path string, body any, u *models.User) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return s.send(req, u)
}

func (s *APISuite) send(req *http.Request, u *models.User) *httptest.ResponseRecorder {
	if u != nil {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token(u))
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *APISuite) multipart(path string, fields map[string]string, fileField, filename string, data []byte, u *models.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		s.Require().NoError(w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		s.Require().NoError(err)
		_, err = fw.Write(data)
		s.Require().NoError(err)
	}
	s.Require().NoError(w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return s.send(req, u)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *APISuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "healthy")
}

func (s *APISuite) TestAPIRequiresAuthentication() {
	rec := s.do(http.MethodGet, "/api/user/data", nil, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	res := decode[response](s.T(), rec)
	s.False(res.Success)
	s.Equal("UNAUTHENTICATED", res.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/user/data", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec = s.send(req, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APISuite) TestUnknownRouteRendersStructuredError() {
	u := testutil.CreateUser(s.T(), s.db)
	rec := s.do(http.MethodGet, "/api/nothing-here", nil, u)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("NOT_FOUND", decode[response](s.T(), rec).Code)
}

func (s *APISuite) TestFollowAndConnections() {
	users := testutil.CreateUsers(s.T(), s.db, 2)
	a, b := users[0], users[1]

	rec := s.do(http.MethodPost, "/api/user/follow", echo.Map{"id": b.ID}, a)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(response{Success: true, Message: "Now you are following this user"}, decode[response](s.T(), rec))

	rec = s.do(http.MethodPost, "/api/user/follow", echo.Map{"id": b.ID}, a)
	s.Equal("You are already following this user", decode[response](s.T(), rec).Message)

	rec = s.do(http.MethodPost, "/api/user/follow", echo.Map{}, a)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("INVALID_ARGUMENT", decode[response](s.T(), rec).Code)

	rec = s.do(http.MethodPost, "/api/user/follow", echo.Map{"id": a.ID}, a)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/user/connections", nil, b)
	s.Equal(http.StatusOK, rec.Code)
	conns := decode[struct {
		Success            bool                 `json:"success"`
		Followers          []models.UserSummary `json:"followers"`
		Following          []models.UserSummary `json:"following"`
		Connections        []models.UserSummary `json:"connections"`
		PendingConnections []models.UserSummary `json:"pendingConnections"`
	}](s.T(), rec)
	s.True(conns.Success)
	s.Require().Len(conns.Followers, 1)
	s.Equal(a.ID, conns.Followers[0].ID)
	s.Empty(conns.Following)
	s.NotNil(conns.Connections)

	rec = s.do(http.MethodPost, "/api/user/unfollow", echo.Map{"id": b.ID}, a)
	s.Equal(response{Success: true, Message: "You are no longer following this user"}, decode[response](s.T(), rec))
	rec = s.do(http.MethodPost, "/api/user/unfollow", echo.Map{"id": b.ID}, a)
	s.True(decode[response](s.T(), rec).Success, "unfollow is idempotent")
}

func (s *APISuite) TestConnectionHandshake() {
	users := testutil.CreateUsers(s.T(), s.db, 2)
	a, b := users[0], users[1]

	rec := s.do(http.MethodPost, "/api/user/connect", echo.Map{"id": b.ID}, a)
	s.Equal("Connection request sent successfully", decode[response](s.T(), rec).Message)
	rec = s.do(http.MethodPost, "/api/user/connect", echo.Map{"id": b.ID}, a)
	s.Equal("Connection request pending", decode[response](s.T(), rec).Message)

	rec = s.do(http.MethodPost, "/api/user/accept", echo.Map{"id": a.ID}, b)
	s.Equal(response{Success: true, Message: "Connection accepted successfully"}, decode[response](s.T(), rec))

	rec = s.do(http.MethodPost, "/api/user/accept", echo.Map{"id": a.ID}, b)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(response{Success: false, Message: "Connection request not found"}, decode[response](s.T(), rec))

	rec = s.do(http.MethodPost, "/api/user/connect", echo.Map{"id": a.ID}, b)
	s.Equal("You are already connected with this user", decode[response](s.T(), rec).Message)

	s.EqualValues(1, testutil.Reload(s.T(), s.db, a.ID).ConnectionsCount)
	s.EqualValues(1, testutil.Reload(s.T(), s.db, b.ID).ConnectionsCount)
}

func (s *APISuite) TestConnectionRequestsAreRateLimited() {
	users := testutil.CreateUsers(s.T(), s.db, services.ConnectionRequestLimit+2)
	sender, targets := users[0], users[1:]

	for _, target := range targets[:services.ConnectionRequestLimit] {
		rec := s.do(http.MethodPost, "/api/user/connect", echo.Map{"id": target.ID}, sender)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(http.MethodPost, "/api/user/connect", echo.Map{"id": targets[len(targets)-1].ID}, sender)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	res := decode[response](s.T(), rec)
	s.False(res.Success)
	s.Equal("RATE_LIMITED", res.Code)
}

type messageResponse struct {
	Success bool           `json:"success"`
	Message models.Message `json:"message"`
}

type conversationResponse struct {
	Success  bool             `json:"success"`
	Messages []models.Message `json:"messages"`
}

func (s *APISuite) TestMessaging() {
	users := testutil.CreateUsers(s.T(), s.db, 3)
	a, b, stranger := users[0], users[1], users[2]

	rec := s.do(http.MethodPost, "/api/message/send", echo.Map{"to_user_id": b.ID, "text": "hello"}, a)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	first := decode[messageResponse](s.T(), rec).Message
	s.Equal(models.MediaTypeText, first.MediaType)

	rec = s.multipart("/api/message/send", map[string]string{
		"to_user_id": a.ID,
		"replyTo":    fmt.Sprint(first.ID),
	}, "image", "pic.png", []byte("\x89PNG\r\n\x1a\n"), b)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[messageResponse](s.T(), rec).Message
	s.Equal(models.MediaTypeImage, reply.MediaType)
	s.Equal("https://cdn.example.com/messages/"+b.ID+"/pic.png", reply.MediaURL)
	s.Require().NotNil(reply.ReplyTo)
	s.Equal(first.ID, reply.ReplyTo.ID)

	rec = s.do(http.MethodPost, "/api/message/send", echo.Map{"to_user_id": b.ID}, a)
	s.Equal(http.StatusBadRequest, rec.Code, "no text and no image")

	rec = s.do(http.MethodGet, "/api/messages/unread-counts", nil, b)
	counts := decode[struct {
		Items []models.UnreadCount `json:"items"`
	}](s.T(), rec)
	s.Equal([]models.UnreadCount{{PeerID: a.ID, Count: 1}}, counts.Items)

	rec = s.do(http.MethodGet, "/api/message/conversation/"+b.ID, nil, a)
	conv := decode[conversationResponse](s.T(), rec)
	s.Require().Len(conv.Messages, 2)
	s.Equal(first.ID, conv.Messages[0].ID)
	s.False(conv.Messages[0].Seen, "listing never marks seen")

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/message/conversation/%s?since=%d", b.ID, first.ID), nil, a)
	conv = decode[conversationResponse](s.T(), rec)
	s.Require().Len(conv.Messages, 1)
	s.Equal(reply.ID, conv.Messages[0].ID)

	rec = s.do(http.MethodGet, "/api/message/conversation/"+b.ID+"?since=abc", nil, a)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/message/seen", echo.Map{"id": a.ID}, b)
	s.Equal(`{"success":true,"updated":1}`, strings.TrimSpace(rec.Body.String()))
	rec = s.do(http.MethodGet, "/api/messages/unread-counts", nil, b)
	s.Equal(`{"items":[],"success":true}`, strings.TrimSpace(rec.Body.String()))

	rec = s.do(http.MethodPost, "/api/message/delete", echo.Map{"id": first.ID}, stranger)
	s.Equal(http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/api/message/delete", echo.Map{"id": first.ID}, a)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/message/delete", echo.Map{"id": first.ID}, a)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/message/conversation/"+a.ID, nil, b)
	conv = decode[conversationResponse](s.T(), rec)
	s.Require().Len(conv.Messages, 1)
	s.Require().NotNil(conv.Messages[0].ReplyTo)
	s.True(conv.Messages[0].ReplyTo.Unavailable)

	rec = s.do(http.MethodGet, "/api/user/recent-messages", nil, a)
	recent := decode[struct {
		Messages []models.RecentMessage `json:"messages"`
	}](s.T(), rec)
	s.Require().Len(recent.Messages, 1)
	s.Equal(b.ID, recent.Messages[0].Peer.ID)
	s.EqualValues(1, recent.Messages[0].UnreadCount)
}

func (s *APISuite) TestSendImageFailsWhenUploadFails() {
	users := testutil.CreateUsers(s.T(), s.db, 2)
	s.uploader.Err = errors.New("s3 down")

	rec := s.multipart("/api/message/send", map[string]string{"to_user_id": users[1].ID},
		"image", "pic.png", []byte("img"), users[0])
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	res := decode[response](s.T(), rec)
	s.Equal("UNAVAILABLE", res.Code)
	s.NotContains(res.Message, "s3 down")
}

func (s *APISuite) TestNotifications() {
	users := testutil.CreateUsers(s.T(), s.db, 3)
	a, b, stranger := users[0], users[1], users[2]

	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/user/follow", echo.Map{"id": b.ID}, a).Code)

	rec := s.do(http.MethodGet, "/api/notifications", nil, b)
	list := decode[struct {
		Notifications []models.Notification `json:"notifications"`
	}](s.T(), rec)
	s.Require().Len(list.Notifications, 1)
	n := list.Notifications[0]
	s.Equal(models.NotificationFollow, n.Type)
	s.Equal(a.Username, n.Actor.Username)

	rec = s.do(http.MethodGet, "/api/notifications/grouped?tz=Asia/Dhaka", nil, b)
	s.Require().Equal(http.StatusOK, rec.Code)
	grouped := decode[struct {
		Notifications models.GroupedNotifications `json:"notifications"`
		UnreadCount   int64                       `json:"unreadCount"`
	}](s.T(), rec)
	s.Len(grouped.Notifications.Today, 1)
	s.EqualValues(1, grouped.UnreadCount)

	rec = s.do(http.MethodGet, "/api/notifications/grouped?tz=Mars/Olympus", nil, b)
	s.Equal(http.StatusBadRequest, rec.Code)

	path := "/api/notifications/" + n.ID.Hex() + "/read"
	rec = s.do(http.MethodPost, path, nil, stranger)
	s.Equal(`{"success":true}`, strings.TrimSpace(rec.Body.String()), "foreign ids look the same as own ones")
	rec = s.do(http.MethodGet, "/api/notifications/unread-count", nil, b)
	s.Equal(`{"count":1,"success":true}`, strings.TrimSpace(rec.Body.String()))

	s.Equal(http.StatusOK, s.do(http.MethodPost, path, nil, b).Code)
	rec = s.do(http.MethodGet, "/api/notifications/unread-count", nil, b)
	s.Equal(`{"count":0,"success":true}`, strings.TrimSpace(rec.Body.String()))

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/notifications/read-all", nil, b).Code)
}

func (s *APISuite) TestProfileLifecycle() {
	users := testutil.CreateUsers(s.T(), s.db, 2)
	me, other := users[0], users[1]

	rec := s.do(http.MethodGet, "/api/user/data", nil, me)
	s.Require().Equal(http.StatusOK, rec.Code)
	data := decode[struct {
		User models.UserProfile `json:"user"`
	}](s.T(), rec)
	s.Equal(me.ID, data.User.ID)

	rec = s.multipart("/api/user/update", map[string]string{
		"username": other.Username,
		"bio":      "updated bio",
	}, "profile", "face.jpg", []byte("jpeg"), me)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[struct {
		User    models.User `json:"user"`
		Message string      `json:"message"`
	}](s.T(), rec)
	s.Equal(me.Username, updated.User.Username, "taken username is ignored")
	s.Equal("updated bio", updated.User.Bio)
	s.Equal("https://cdn.example.com/profiles/"+me.ID+"/face.jpg", updated.User.ProfilePicture)

	rec = s.do(http.MethodPost, "/api/user/update", echo.Map{"full_name": "Plain JSON"}, me)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/user/discover", echo.Map{"input": other.Username}, me)
	found := decode[struct {
		Users []models.UserSummary `json:"users"`
	}](s.T(), rec)
	s.Require().Len(found.Users, 1)
	s.Equal(other.ID, found.Users[0].ID)

	rec = s.do(http.MethodPost, "/api/user/profile", echo.Map{"profileId": other.ID}, me)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/api/user/profile", echo.Map{"profileId": "ghost"}, me)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(response{Code: "NOT_FOUND", Message: "Profile not found"}, decode[response](s.T(), rec))

	rec = s.do(http.MethodDelete, "/api/user", nil, me)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/user/data", nil, me)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APISuite) TestFirebaseLogin() {
	rec := s.do(http.MethodPost, "/api/auth/firebase-login", echo.Map{"idToken": "good-uid42"}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	login := decode[struct {
		Success bool        `json:"success"`
		Token   string      `json:"token"`
		User    models.User `json:"user"`
	}](s.T(), rec)
	s.True(login.Success)
	s.Equal("uid42", login.User.ID)
	s.Equal("uid42", login.User.Username)

	req := httptest.NewRequest(http.MethodGet, "/api/user/data", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+login.Token)
	rec = s.send(req, nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/firebase-login", echo.Map{"idToken": "forged"}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	rec = s.do(http.MethodPost, "/api/auth/firebase-login", echo.Map{}, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func TestFirebaseAuthMode(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newServices(db, &testutil.MemoryNotifications{}, &testutil.FakeUploader{})
	u := testutil.CreateUser(t, db)

	e, err := New(&config.Config{AuthMode: config.AuthModeFirebase, JWTSecret: testSecret}, svc, zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/user/data", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good-"+u.ID)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	svc.Verifier = nil
	_, err = New(&config.Config{AuthMode: config.AuthModeFirebase, JWTSecret: testSecret}, svc, zap.NewNop())
	assert.Error(t, err)
}
