// Package service is the operation contract the presentation layer calls.
// Every method receives the already-resolved current user, checks the access
// policy, then dispatches to the stores.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"microblog/accounts"
	"microblog/apperror"
	"microblog/content"
	"microblog/models"
	"microblog/policy"
	"microblog/social"
)

type Service struct {
	Accounts *accounts.Store
	Graph    *social.Graph
	Content  *content.Store
	l        *zap.Logger
}

func New(a *accounts.Store, g *social.Graph, c *content.Store, l *zap.Logger) *Service {
	return &Service{Accounts: a, Graph: g, Content: c, l: l}
}

// Timeline is a user's home page: their blogs, newest first, and the ids the
// viewer already follows.
type Timeline struct {
	User         *models.User  `json:"user"`
	Blogs        []models.Blog `json:"blogs"`
	FollowingIDs []int         `json:"following_ids"`
}

// ReplyView is a comment with its author and the replies it received.
type ReplyView struct {
	Comment *models.Comment  `json:"comment"`
	Author  *models.User     `json:"author,omitempty"`
	Replies []models.Comment `json:"replies"`
}

// Relations is the follow or fan list of a user.
type Relations struct {
	User  *models.User  `json:"user"`
	Users []models.User `json:"users"`
}

func (s *Service) Register(ctx context.Context, form models.Form) (*models.User, error) {
	return s.Accounts.Register(ctx, form)
}

func (s *Service) Login(ctx context.Context, form models.Form) (*models.User, error) {
	return s.Accounts.Authenticate(ctx, form.Get("username"), form.Get("password"))
}

func (s *Service) CheckUsername(ctx context.Context, candidate string) (accounts.Availability, error) {
	return s.Accounts.CheckUsername(ctx, candidate)
}

func (s *Service) CheckPassword(candidate string) accounts.Availability {
	return s.Accounts.CheckPassword(candidate)
}

func (s *Service) Timeline(ctx context.Context, current *models.User, username string) (*Timeline, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	user, err := s.Accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user, err = s.Graph.RecomputeCounts(ctx, user.ID); err != nil {
		return nil, err
	}
	blogs, err := s.Content.ListBlogsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	following, err := s.Graph.FollowingIDs(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	return &Timeline{User: user, Blogs: blogs, FollowingIDs: following}, nil
}

func (s *Service) ListUsers(ctx context.Context, current *models.User) ([]models.User, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	return s.Accounts.List(ctx)
}

func (s *Service) GetUser(ctx context.Context, current *models.User, userID int) (*models.User, error) {
	if err := policy.RequireAdmin(current); err != nil {
		return nil, err
	}
	return s.Accounts.Get(ctx, userID)
}

func (s *Service) UpdateUser(ctx context.Context, current *models.User, userID int, form models.Form) (bool, error) {
	if err := policy.RequireAdmin(current); err != nil {
		return false, err
	}
	return s.Accounts.UpdateCredentials(ctx, userID, form)
}

func (s *Service) DeleteUser(ctx context.Context, current *models.User, userID int) error {
	if err := policy.RequireAdmin(current); err != nil {
		return err
	}
	return s.Accounts.Delete(ctx, userID)
}

func (s *Service) CreateBlog(ctx context.Context, current *models.User, form models.Form) (*models.Blog, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	return s.Content.CreateBlog(ctx, current.ID, form)
}

func (s *Service) GetBlog(ctx context.Context, current *models.User, blogID int) (*models.Blog, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	return s.Content.GetBlog(ctx, blogID)
}

func (s *Service) UpdateBlog(ctx context.Context, current *models.User, blogID int, form models.Form) (bool, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return false, err
	}
	return s.Content.UpdateBlog(ctx, blogID, form)
}

func (s *Service) DeleteBlog(ctx context.Context, current *models.User, blogID int) error {
	if err := policy.RequireAuthenticated(current); err != nil {
		return err
	}
	return s.Content.DeleteBlog(ctx, blogID)
}

func (s *Service) ViewBlog(ctx context.Context, current *models.User, blogID int) (*content.Thread, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	return s.Content.ThreadedView(ctx, blogID)
}

func (s *Service) AddComment(ctx context.Context, current *models.User, blogID int, form models.Form) (*models.Comment, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	return s.Content.AddComment(ctx, blogID, current.Username, form)
}

func (s *Service) AddReply(ctx context.Context, current *models.User, commentID int, form models.Form) (*models.Comment, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	return s.Content.AddReply(ctx, commentID, current.Username, form)
}

func (s *Service) ViewReplies(ctx context.Context, current *models.User, commentID int) (*ReplyView, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	comment, err := s.Content.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	replies, err := s.Content.RepliesOf(ctx, commentID)
	if err != nil {
		return nil, err
	}

	// sender_name is a copy; the author may since have been renamed or deleted.
	author, err := s.Accounts.GetByUsername(ctx, comment.SenderName)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return &ReplyView{Comment: comment, Author: author, Replies: replies}, nil
}

func (s *Service) Follow(ctx context.Context, current *models.User, userID int) (*models.User, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	if err := s.Graph.Follow(ctx, current.ID, userID); err != nil {
		return nil, err
	}
	return s.Accounts.Get(ctx, userID)
}

func (s *Service) Unfollow(ctx context.Context, current *models.User, userID int) (*models.User, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	if err := s.Graph.Unfollow(ctx, current.ID, userID); err != nil {
		return nil, err
	}
	return s.Accounts.Get(ctx, userID)
}

func (s *Service) Following(ctx context.Context, current *models.User, userID int) (*Relations, error) {
	return s.relations(ctx, current, userID, s.Graph.ListFollowing)
}

func (s *Service) Followers(ctx context.Context, current *models.User, userID int) (*Relations, error) {
	return s.relations(ctx, current, userID, s.Graph.ListFollowers)
}

func (s *Service) relations(ctx context.Context, current *models.User, userID int,
	list func(context.Context, int) ([]models.User, error)) (*Relations, error) {
	if err := policy.RequireAuthenticated(current); err != nil {
		return nil, err
	}
	user, err := s.Accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := list(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Relations{User: user, Users: users}, nil
}

// Repair recomputes every derived counter.
func (s *Service) Repair(ctx context.Context) error {
	if err := s.Graph.RecomputeAll(ctx); err != nil {
		return err
	}
	return s.Content.RecomputeAll(ctx)
}
