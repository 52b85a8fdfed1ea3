// Package content owns blogs and their comments, including replies, and keeps
// each blog's comment counter in line with its comment rows.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"microblog/apperror"
	"microblog/models"
)

type Store struct {
	db  *gorm.DB
	l   *zap.Logger
	now func() time.Time
}

func NewStore(db *gorm.DB, l *zap.Logger) *Store {
	return &Store{db: db, l: l, now: time.Now}
}

// Thread is a blog with its comments split into top-level comments and replies.
type Thread struct {
	Blog     *models.Blog     `json:"blog"`
	Comments []models.Comment `json:"comments"`
	Replies  []models.Comment `json:"replies"`
}

// Recount rewrites com_count of blogID from the comments table.
func Recount(tx *gorm.DB, blogID int) error {
	err := tx.Model(&models.Blog{}).Where("id = ?", blogID).
		Update("com_count", gorm.Expr("(SELECT COUNT(*) FROM comments WHERE comments.blog_id = ?)", blogID)).Error
	if err != nil {
		return fmt.Errorf("content: recounting blog %d: %w", blogID, err)
	}
	return nil
}

func (s *Store) CreateBlog(ctx context.Context, authorID int, form models.Form) (*models.Blog, error) {
	now := s.now()
	blog := &models.Blog{
		UserID:      authorID,
		Title:       form.Get("title"),
		Content:     form.Get("content"),
		ComCount:    0,
		CreatedTime: now,
		ReleaseTime: models.ReleaseTime(now),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", authorID).Count(&count).Error; err != nil {
			return fmt.Errorf("content: checking author %d: %w", authorID, err)
		}
		if count == 0 {
			return apperror.NotFound("user", authorID)
		}
		if err := tx.Create(blog).Error; err != nil {
			return fmt.Errorf("content: creating blog: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.l.Info("blog published", zap.Int("blog_id", blog.ID), zap.Int("user_id", authorID))
	return blog, nil
}

func (s *Store) GetBlog(ctx context.Context, blogID int) (*models.Blog, error) {
	var blog models.Blog
	if err := s.db.WithContext(ctx).First(&blog, blogID).Error; err != nil {
		return nil, notFound(err, "blog", blogID)
	}
	return &blog, nil
}

// UpdateBlog replaces title and content and stamps the blog as new.
func (s *Store) UpdateBlog(ctx context.Context, blogID int, form models.Form) (bool, error) {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blog models.Blog
		if err := tx.First(&blog, blogID).Error; err != nil {
			return notFound(err, "blog", blogID)
		}
		return tx.Model(&blog).Updates(map[string]interface{}{
			"title":        form.Get("title"),
			"content":      form.Get("content"),
			"created_time": now,
			"release_time": models.ReleaseTime(now),
		}).Error
	})
	if err != nil {
		return false, err
	}

	s.l.Info("blog updated", zap.Int("blog_id", blogID))
	return true, nil
}

// DeleteBlog removes the blog and every comment on it.
func (s *Store) DeleteBlog(ctx context.Context, blogID int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blog models.Blog
		if err := tx.First(&blog, blogID).Error; err != nil {
			return notFound(err, "blog", blogID)
		}
		if err := tx.Where("blog_id = ?", blogID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("content: deleting comments of blog %d: %w", blogID, err)
		}
		if err := tx.Delete(&blog).Error; err != nil {
			return fmt.Errorf("content: deleting blog %d: %w", blogID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.l.Info("blog deleted", zap.Int("blog_id", blogID))
	return nil
}

func (s *Store) ListBlogsByUser(ctx context.Context, userID int) ([]models.Blog, error) {
	var blogs []models.Blog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_time DESC, id DESC").
		Find(&blogs).Error
	if err != nil {
		return nil, fmt.Errorf("content: listing blogs of user %d: %w", userID, err)
	}
	return blogs, nil
}

func (s *Store) AddComment(ctx context.Context, blogID int, sender string, form models.Form) (*models.Comment, error) {
	comment := s.newComment(sender, form)
	comment.BlogID = blogID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blog models.Blog
		if err := tx.First(&blog, blogID).Error; err != nil {
			return notFound(err, "blog", blogID)
		}
		return insertComment(tx, comment)
	})
	if err != nil {
		return nil, err
	}

	s.l.Info("comment added", zap.Int("comment_id", comment.ID), zap.Int("blog_id", blogID))
	return comment, nil
}

// AddReply answers parentID. The reply belongs to the parent's blog whatever
// the form says.
func (s *Store) AddReply(ctx context.Context, parentID int, sender string, form models.Form) (*models.Comment, error) {
	comment := s.newComment(sender, form)
	comment.ReplyID = parentID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent models.Comment
		if err := tx.First(&parent, parentID).Error; err != nil {
			return notFound(err, "comment", parentID)
		}
		comment.BlogID = parent.BlogID
		return insertComment(tx, comment)
	})
	if err != nil {
		return nil, err
	}

	s.l.Info("reply added", zap.Int("comment_id", comment.ID), zap.Int("reply_id", parentID))
	return comment, nil
}

func (s *Store) newComment(sender string, form models.Form) *models.Comment {
	now := s.now()
	return &models.Comment{
		Content:     form.Get("content"),
		SenderName:  sender,
		CreatedTime: now,
		ReleaseTime: models.ReleaseTime(now),
	}
}

func insertComment(tx *gorm.DB, comment *models.Comment) error {
	if err := tx.Create(comment).Error; err != nil {
		return fmt.Errorf("content: creating comment on blog %d: %w", comment.BlogID, err)
	}
	return Recount(tx, comment.BlogID)
}

func (s *Store) GetComment(ctx context.Context, commentID int) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, commentID).Error; err != nil {
		return nil, notFound(err, "comment", commentID)
	}
	return &comment, nil
}

func (s *Store) ThreadedView(ctx context.Context, blogID int) (*Thread, error) {
	blog, err := s.GetBlog(ctx, blogID)
	if err != nil {
		return nil, err
	}

	var all []models.Comment
	err = s.db.WithContext(ctx).
		Where("blog_id = ?", blogID).
		Order("created_time DESC, id DESC").
		Find(&all).Error
	if err != nil {
		return nil, fmt.Errorf("content: listing comments of blog %d: %w", blogID, err)
	}

	thread := &Thread{
		Blog:     blog,
		Comments: []models.Comment{},
		Replies:  []models.Comment{},
	}
	for _, c := range all {
		if c.IsReply() {
			thread.Replies = append(thread.Replies, c)
		} else {
			thread.Comments = append(thread.Comments, c)
		}
	}
	return thread, nil
}

func (s *Store) RepliesOf(ctx context.Context, commentID int) ([]models.Comment, error) {
	replies := []models.Comment{}
	err := s.db.WithContext(ctx).
		Where("reply_id = ?", commentID).
		Order("created_time DESC, id DESC").
		Find(&replies).Error
	if err != nil {
		return nil, fmt.Errorf("content: listing replies of %d: %w", commentID, err)
	}
	return replies, nil
}

func (s *Store) RecomputeComCount(ctx context.Context, blogID int) (*models.Blog, error) {
	var blog models.Blog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&blog, blogID).Error; err != nil {
			return notFound(err, "blog", blogID)
		}
		if err := Recount(tx, blogID); err != nil {
			return err
		}
		return tx.First(&blog, blogID).Error
	})
	if err != nil {
		return nil, err
	}
	return &blog, nil
}

// RecomputeAll repairs the comment counter of every blog.
func (s *Store) RecomputeAll(ctx context.Context) error {
	var ids []int
	if err := s.db.WithContext(ctx).Model(&models.Blog{}).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("content: listing blogs: %w", err)
	}
	for _, id := range ids {
		if err := Recount(s.db.WithContext(ctx), id); err != nil {
			return err
		}
	}
	s.l.Info("recomputed comment counters", zap.Int("blogs", len(ids)))
	return nil
}

func notFound(err error, resource string, id int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("content: loading %s %d: %w", resource, id, err)
}
