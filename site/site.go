// Package site serves the social pages: timelines, the user list and the
// follow graph.
package site

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"microblog/common"
	"microblog/models"
	"microblog/service"
	"microblog/session"
)

type SiteModule struct {
	svc *service.Service
	l   *zap.Logger
}

func NewSiteModule(svc *service.Service, l *zap.Logger) *SiteModule {
	return &SiteModule{svc: svc, l: l}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.index)
	router.GET("/timeline/:username", s.timeline)
	router.GET("/users", s.listUsers)
	router.POST("/follow/:id", s.follow)
	router.POST("/unfollow/:id", s.unfollow)
	router.GET("/follow/list/:id", s.followList)
	router.GET("/fan/list/:id", s.fanList)
}

// index points the client at its timeline, or at the login page.
func (s *SiteModule) index(c *gin.Context) {
	if user := session.CurrentUser(c); user != nil {
		common.OK(c, nil, "/timeline/"+user.Username)
		return
	}
	common.OK(c, nil, "/login")
}

func (s *SiteModule) timeline(c *gin.Context) {
	timeline, err := s.svc.Timeline(c.Request.Context(), session.CurrentUser(c), c.Param("username"))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, timeline, "")
}

func (s *SiteModule) listUsers(c *gin.Context) {
	users, err := s.svc.ListUsers(c.Request.Context(), session.CurrentUser(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, users, "")
}

func (s *SiteModule) follow(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	user, err := s.svc.Follow(c.Request.Context(), session.CurrentUser(c), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, user, "")
}

func (s *SiteModule) unfollow(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	user, err := s.svc.Unfollow(c.Request.Context(), session.CurrentUser(c), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, user, "")
}

func (s *SiteModule) followList(c *gin.Context) {
	s.relations(c, s.svc.Following)
}

func (s *SiteModule) fanList(c *gin.Context) {
	s.relations(c, s.svc.Followers)
}

type relationsFunc func(context.Context, *models.User, int) (*service.Relations, error)

func (s *SiteModule) relations(c *gin.Context, list relationsFunc) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	rel, err := list(c.Request.Context(), session.CurrentUser(c), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, rel, "")
}
