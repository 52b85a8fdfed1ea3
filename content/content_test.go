package content

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/apperror"
	"microblog/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupTestStore(t *testing.T) (*Store, *gorm.DB, models.User) {
	db := setupTestDB(t)
	s := NewStore(db, zap.NewNop())
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}

	author := models.User{Username: "alice", Password: "x", Role: models.RoleRegular}
	require.NoError(t, db.Create(&author).Error)
	return s, db, author
}

func createBlog(t *testing.T, s *Store, authorID int, title string) *models.Blog {
	t.Helper()
	blog, err := s.CreateBlog(context.Background(), authorID, models.Form{"title": title, "content": "body of " + title})
	require.NoError(t, err)
	return blog
}

func TestCreateBlog(t *testing.T) {
	s, _, author := setupTestStore(t)
	ctx := context.Background()

	blog := createBlog(t, s, author.ID, "Hello")
	assert.NotZero(t, blog.ID)
	assert.Equal(t, 0, blog.ComCount)
	assert.Len(t, blog.ReleaseTime, len(models.ReleaseTimeLayout))

	stored, err := s.GetBlog(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", stored.Title)
	assert.Equal(t, author.ID, stored.UserID)

	_, err = s.CreateBlog(ctx, 999, models.Form{"title": "orphan"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListBlogsByUser_NewestFirst(t *testing.T) {
	s, _, author := setupTestStore(t)
	createBlog(t, s, author.ID, "first")
	createBlog(t, s, author.ID, "second")

	blogs, err := s.ListBlogsByUser(context.Background(), author.ID)
	require.NoError(t, err)
	require.Len(t, blogs, 2)
	assert.Equal(t, "second", blogs[0].Title)
	assert.Equal(t, "first", blogs[1].Title)
}

func TestUpdateBlog_Restamps(t *testing.T) {
	s, _, author := setupTestStore(t)
	ctx := context.Background()
	old := createBlog(t, s, author.ID, "first")
	createBlog(t, s, author.ID, "second")

	ok, err := s.UpdateBlog(ctx, old.ID, models.Form{"title": "first, edited", "content": "new"})
	require.NoError(t, err)
	assert.True(t, ok)

	blogs, err := s.ListBlogsByUser(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, "first, edited", blogs[0].Title)
	assert.Equal(t, "new", blogs[0].Content)
	assert.True(t, blogs[0].CreatedTime.After(old.CreatedTime))

	_, err = s.UpdateBlog(ctx, 999, models.Form{"title": "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCommentsAndReplies(t *testing.T) {
	s, _, author := setupTestStore(t)
	ctx := context.Background()
	blog := createBlog(t, s, author.ID, "Hello")

	var comments []*models.Comment
	for _, text := range []string{"one", "two", "three"} {
		c, err := s.AddComment(ctx, blog.ID, "bob", models.Form{"content": text})
		require.NoError(t, err)
		assert.Equal(t, 0, c.ReplyID)
		comments = append(comments, c)
	}
	for i := 0; i < 2; i++ {
		r, err := s.AddReply(ctx, comments[0].ID, "alice", models.Form{"content": "thanks", "blog_id": "999"})
		require.NoError(t, err)
		assert.Equal(t, blog.ID, r.BlogID)
		assert.Equal(t, comments[0].ID, r.ReplyID)
	}

	stored, err := s.GetBlog(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ComCount)

	thread, err := s.ThreadedView(ctx, blog.ID)
	require.NoError(t, err)
	assert.Len(t, thread.Comments, 3)
	assert.Len(t, thread.Replies, 2)
	assert.Equal(t, "three", thread.Comments[0].Content)

	replies, err := s.RepliesOf(ctx, comments[0].ID)
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	none, err := s.RepliesOf(ctx, comments[1].ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestAddComment_Missing(t *testing.T) {
	s, db, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.AddComment(ctx, 999, "bob", models.Form{"content": "hi"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = s.AddReply(ctx, 999, "bob", models.Form{"content": "hi"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var count int64
	db.Model(&models.Comment{}).Count(&count)
	assert.Zero(t, count)
}

func TestThreadedView_Empty(t *testing.T) {
	s, _, author := setupTestStore(t)
	blog := createBlog(t, s, author.ID, "quiet")

	thread, err := s.ThreadedView(context.Background(), blog.ID)
	require.NoError(t, err)
	assert.NotNil(t, thread.Comments)
	assert.NotNil(t, thread.Replies)
	assert.Empty(t, thread.Comments)

	_, err = s.ThreadedView(context.Background(), 999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteBlog_RemovesComments(t *testing.T) {
	s, db, author := setupTestStore(t)
	ctx := context.Background()
	blog := createBlog(t, s, author.ID, "doomed")
	other := createBlog(t, s, author.ID, "kept")
	c, err := s.AddComment(ctx, blog.ID, "bob", models.Form{"content": "hi"})
	require.NoError(t, err)
	_, err = s.AddReply(ctx, c.ID, "alice", models.Form{"content": "hey"})
	require.NoError(t, err)
	_, err = s.AddComment(ctx, other.ID, "bob", models.Form{"content": "also"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteBlog(ctx, blog.ID))

	_, err = s.GetBlog(ctx, blog.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	var count int64
	db.Model(&models.Comment{}).Count(&count)
	assert.Equal(t, int64(1), count)

	assert.ErrorIs(t, s.DeleteBlog(ctx, blog.ID), apperror.ErrNotFound)
}

func TestRecomputeComCount(t *testing.T) {
	s, db, author := setupTestStore(t)
	ctx := context.Background()
	blog := createBlog(t, s, author.ID, "drift")
	_, err := s.AddComment(ctx, blog.ID, "bob", models.Form{"content": "hi"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Blog{}).Where("id = ?", blog.ID).Update("com_count", 42).Error)

	fixed, err := s.RecomputeComCount(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed.ComCount)

	require.NoError(t, db.Model(&models.Blog{}).Where("id = ?", blog.ID).Update("com_count", 0).Error)
	require.NoError(t, s.RecomputeAll(ctx))
	stored, err := s.GetBlog(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ComCount)
}
