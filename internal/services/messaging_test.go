package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anonto42/pingup/backend/internal/cache"
	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, e *env, from, to *models.User, text string) *models.Message {
	t.Helper()
	msg, err := e.messaging.Send(context.Background(), as(from), SendInput{ToUserID: to.ID, Text: text})
	require.NoError(t, err)
	return msg
}

func texts(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestSendValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]

	tests := []struct {
		name string
		in   SendInput
		code apperrors.ErrorCode
	}{
		{"no recipient", SendInput{Text: "hi"}, apperrors.ErrInvalidArgument},
		{"empty body", SendInput{ToUserID: b.ID, Text: "   "}, apperrors.ErrInvalidArgument},
		{"to self", SendInput{ToUserID: a.ID, Text: "hi"}, apperrors.ErrInvalidArgument},
		{"unknown recipient", SendInput{ToUserID: "ghost", Text: "hi"}, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.messaging.Send(ctx, as(a), tt.in)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestConversationOrderIsStableWithinTheSameInstant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]

	send(t, e, a, b, "m1")
	m2 := send(t, e, b, a, "m2")
	send(t, e, a, b, "m3")

	for range 3 {
		msgs, err := e.messaging.ListConversation(ctx, as(b), a.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2", "m3"}, texts(msgs))
	}

	msgs, err := e.messaging.ListConversation(ctx, as(a), b.ID, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, texts(msgs))
}

func TestConversationOrderIgnoresServerClock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]

	m1 := send(t, e, a, b, "m1")
	e.clock.Advance(-time.Millisecond)
	m2 := send(t, e, b, a, "m2")
	e.clock.Advance(-time.Hour)
	m3 := send(t, e, a, b, "m3")
	require.Less(t, m1.ID, m2.ID)

	msgs, err := e.messaging.ListConversation(ctx, as(a), b.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, texts(msgs))

	since, err := e.messaging.ListConversation(ctx, as(b), a.ID, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, texts(since), "the cursor agrees with the full listing")

	recent, err := e.messaging.RecentMessages(ctx, as(a))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, m3.ID, recent[0].Message.ID)
}

func TestListConversationDoesNotMarkSeen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]
	send(t, e, a, b, "hello")

	_, err := e.messaging.ListConversation(ctx, as(b), a.ID, 0)
	require.NoError(t, err)

	counts, err := e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{PeerID: a.ID, Count: 1}}, counts)
}

func TestReplies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 3)
	a, b, c := users[0], users[1], users[2]

	original := send(t, e, a, b, "original")
	elsewhere := send(t, e, a, c, "elsewhere")

	reply, err := e.messaging.Send(ctx, as(b), SendInput{ToUserID: a.ID, Text: "reply", ReplyTo: &original.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "original", reply.ReplyTo.Text)
	assert.False(t, reply.ReplyTo.Unavailable)

	t.Run("cross conversation target is rejected", func(t *testing.T) {
		_, err := e.messaging.Send(ctx, as(b), SendInput{ToUserID: a.ID, Text: "x", ReplyTo: &elsewhere.ID})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	})

	t.Run("missing target is rejected", func(t *testing.T) {
		missing := uint(9999)
		_, err := e.messaging.Send(ctx, as(b), SendInput{ToUserID: a.ID, Text: "x", ReplyTo: &missing})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	})

	t.Run("deleted target renders as unavailable", func(t *testing.T) {
		require.NoError(t, e.messaging.DeleteMessage(ctx, as(a), original.ID))

		msgs, err := e.messaging.ListConversation(ctx, as(a), b.ID, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "reply", msgs[0].Text)
		require.NotNil(t, msgs[0].ReplyTo)
		assert.True(t, msgs[0].ReplyTo.Unavailable)
		assert.Equal(t, models.ReplyUnavailableText, msgs[0].ReplyTo.Text)
		assert.Equal(t, original.ID, msgs[0].ReplyTo.ID)
	})
}

func TestDeleteMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]
	msg := send(t, e, a, b, "secret")

	err := e.messaging.DeleteMessage(ctx, as(b), msg.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	require.NoError(t, e.messaging.DeleteMessage(ctx, as(a), msg.ID))

	err = e.messaging.DeleteMessage(ctx, as(a), msg.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestImageMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]

	msg, err := e.messaging.Send(ctx, as(a), SendInput{
		ToUserID: b.ID,
		Image:    &Upload{Data: []byte("png"), Filename: "cat.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypeImage, msg.MediaType)
	assert.Equal(t, "https://cdn.example.com/messages/"+a.ID+"/cat.png", msg.MediaURL)
	assert.Empty(t, msg.Text)

	e.uploader.Err = errBoom
	_, err = e.messaging.Send(ctx, as(a), SendInput{
		ToUserID: b.ID,
		Image:    &Upload{Data: []byte("png"), Filename: "cat.png"},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnavailable))
	apiErr, _ := apperrors.As(err)
	assert.NotContains(t, apiErr.Message, "boom")
}

func TestUnreadCountsScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]

	for range 3 {
		send(t, e, a, b, "ping")
	}
	counts, err := e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{PeerID: a.ID, Count: 3}}, counts)

	updated, err := e.messaging.MarkSeen(ctx, as(b), a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated)

	counts, err = e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Empty(t, counts, "peers with nothing unseen are omitted")
}

func TestUnreadCacheIsInvalidatedByMutations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	e := newEnvWithCache(t, cache.NewRedisUnreadCache(client, 15*time.Second))
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 2)
	a, b := users[0], users[1]

	// prime the cache with an empty result
	counts, err := e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.True(t, mr.Exists("unread:"+b.ID))

	msg := send(t, e, a, b, "fresh")
	counts, err = e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{PeerID: a.ID, Count: 1}}, counts, "send must invalidate the recipient's cache")

	require.NoError(t, e.messaging.DeleteMessage(ctx, as(a), msg.ID))
	counts, err = e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Empty(t, counts, "delete of an unseen message must invalidate")

	send(t, e, a, b, "again")
	_, err = e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	_, err = e.messaging.MarkSeen(ctx, as(b), a.ID)
	require.NoError(t, err)
	counts, err = e.messaging.UnreadCounts(ctx, as(b))
	require.NoError(t, err)
	assert.Empty(t, counts, "mark seen must invalidate")
}

func TestRecentMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := testutil.CreateUsers(t, e.db, 3)
	me, b, c := users[0], users[1], users[2]

	send(t, e, me, b, "to b")
	e.clock.Advance(time.Minute)
	send(t, e, c, me, "from c")
	e.clock.Advance(time.Minute)
	send(t, e, b, me, "from b")

	recent, err := e.messaging.RecentMessages(ctx, as(me))
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, b.ID, recent[0].Peer.ID)
	assert.Equal(t, b.Username, recent[0].Peer.Username)
	assert.Equal(t, "from b", recent[0].Message.Text)
	assert.EqualValues(t, 1, recent[0].UnreadCount)

	assert.Equal(t, c.ID, recent[1].Peer.ID)
	assert.EqualValues(t, 1, recent[1].UnreadCount)

	empty, err := e.messaging.RecentMessages(ctx, models.AuthContext{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
