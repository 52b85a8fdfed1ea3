package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/accounts"
	"microblog/apperror"
	"microblog/content"
	"microblog/models"
	"microblog/social"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	l := zap.NewNop()
	return New(
		accounts.NewStore(db, accounts.SHA1Hasher{}, l),
		social.NewGraph(db, l),
		content.NewStore(db, l),
		l,
	)
}

func mustRegister(t *testing.T, s *Service, username string) *models.User {
	t.Helper()
	user, err := s.Register(context.Background(), models.Form{"username": username, "password": username + "-pw"})
	require.NoError(t, err)
	return user
}

func TestScenario_AliceAndBob(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	mustRegister(t, s, "alice")
	mustRegister(t, s, "bob")

	alice, err := s.Login(ctx, models.Form{"username": "alice", "password": "alice-pw"})
	require.NoError(t, err)
	bob, err := s.Login(ctx, models.Form{"username": "bob", "password": "bob-pw"})
	require.NoError(t, err)

	blog, err := s.CreateBlog(ctx, alice, models.Form{"title": "Hello", "content": "first post"})
	require.NoError(t, err)

	comment, err := s.AddComment(ctx, bob, blog.ID, models.Form{"content": "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "bob", comment.SenderName)

	reply, err := s.AddReply(ctx, alice, comment.ID, models.Form{"content": "thanks"})
	require.NoError(t, err)
	assert.Equal(t, blog.ID, reply.BlogID)

	thread, err := s.ViewBlog(ctx, bob, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, thread.Blog.ComCount)
	assert.Len(t, thread.Comments, 1)
	assert.Len(t, thread.Replies, 1)

	view, err := s.ViewReplies(ctx, alice, comment.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Author)
	assert.Equal(t, bob.ID, view.Author.ID)
	assert.Len(t, view.Replies, 1)

	followed, err := s.Follow(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, followed.FanCount)

	timeline, err := s.Timeline(ctx, bob, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, timeline.User.ID)
	assert.Equal(t, 1, timeline.User.FanCount)
	require.Len(t, timeline.Blogs, 1)
	assert.Equal(t, "Hello", timeline.Blogs[0].Title)
	assert.Equal(t, []int{alice.ID}, timeline.FollowingIDs)

	fans, err := s.Followers(ctx, alice, alice.ID)
	require.NoError(t, err)
	require.Len(t, fans.Users, 1)
	assert.Equal(t, "bob", fans.Users[0].Username)

	following, err := s.Following(ctx, alice, bob.ID)
	require.NoError(t, err)
	require.Len(t, following.Users, 1)
	assert.Equal(t, "alice", following.Users[0].Username)

	unfollowed, err := s.Unfollow(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unfollowed.FanCount)

	_, err = s.Unfollow(ctx, bob, alice.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAnonymousIsRejected(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	alice := mustRegister(t, s, "alice")

	calls := map[string]func() error{
		"timeline": func() error { _, err := s.Timeline(ctx, nil, "alice"); return err },
		"users":    func() error { _, err := s.ListUsers(ctx, nil); return err },
		"blog":     func() error { _, err := s.CreateBlog(ctx, nil, models.Form{"title": "x"}); return err },
		"view":     func() error { _, err := s.ViewBlog(ctx, nil, 1); return err },
		"comment":  func() error { _, err := s.AddComment(ctx, nil, 1, nil); return err },
		"reply":    func() error { _, err := s.AddReply(ctx, nil, 1, nil); return err },
		"replies":  func() error { _, err := s.ViewReplies(ctx, nil, 1); return err },
		"follow":   func() error { _, err := s.Follow(ctx, nil, alice.ID); return err },
		"unfollow": func() error { _, err := s.Unfollow(ctx, nil, alice.ID); return err },
		"fans":     func() error { _, err := s.Followers(ctx, nil, alice.ID); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), apperror.ErrAuthRequired)
		})
	}
}

func TestAdminOperations(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	admin, err := s.Accounts.CreateAdmin(ctx, models.Form{"username": "root", "password": "rootpw"})
	require.NoError(t, err)
	alice := mustRegister(t, s, "alice")
	bob := mustRegister(t, s, "bob")

	_, err = s.UpdateUser(ctx, alice, bob.ID, models.Form{"username": "bobby", "password": "pw1"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.ErrorIs(t, s.DeleteUser(ctx, alice, bob.ID), apperror.ErrForbidden)
	assert.ErrorIs(t, s.DeleteUser(ctx, nil, bob.ID), apperror.ErrForbidden)

	ok, err := s.UpdateUser(ctx, admin, bob.ID, models.Form{"username": "bobby", "password": "pw1"})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.Login(ctx, models.Form{"username": "bobby", "password": "pw1"})
	assert.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, admin, bob.ID))
	_, err = s.GetUser(ctx, admin, bob.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, admin, bob.ID), apperror.ErrNotFound)
}

func TestViewReplies_AuthorGone(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	admin, err := s.Accounts.CreateAdmin(ctx, models.Form{"username": "root", "password": "rootpw"})
	require.NoError(t, err)
	alice := mustRegister(t, s, "alice")
	bob := mustRegister(t, s, "bob")

	blog, err := s.CreateBlog(ctx, alice, models.Form{"title": "Hello"})
	require.NoError(t, err)
	comment, err := s.AddComment(ctx, bob, blog.ID, models.Form{"content": "hi"})
	require.NoError(t, err)
	_, err = s.UpdateUser(ctx, admin, bob.ID, models.Form{"username": "robert", "password": "pw1"})
	require.NoError(t, err)

	view, err := s.ViewReplies(ctx, alice, comment.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Author)
	assert.Equal(t, "bob", view.Comment.SenderName)
}

func TestRepair(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	alice := mustRegister(t, s, "alice")
	bob := mustRegister(t, s, "bob")
	blog, err := s.CreateBlog(ctx, alice, models.Form{"title": "Hello"})
	require.NoError(t, err)
	_, err = s.AddComment(ctx, bob, blog.ID, models.Form{"content": "hi"})
	require.NoError(t, err)
	_, err = s.Follow(ctx, bob, alice.ID)
	require.NoError(t, err)

	require.NoError(t, s.Repair(ctx))

	stored, err := s.GetBlog(ctx, alice, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ComCount)
	users, err := s.ListUsers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestScenario_FirstComment(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, models.Form{"username": "alice", "password": "secret1"})
	require.NoError(t, err)
	bob := mustRegister(t, s, "bob")

	alice, err := s.Login(ctx, models.Form{"username": "alice", "password": "secret1"})
	require.NoError(t, err)
	blog, err := s.CreateBlog(ctx, alice, models.Form{"title": "hi", "content": "world"})
	require.NoError(t, err)
	comment, err := s.AddComment(ctx, bob, blog.ID, models.Form{"content": "nice"})
	require.NoError(t, err)

	stored, err := s.GetBlog(ctx, alice, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ComCount)
	assert.Equal(t, "bob", comment.SenderName)
}
