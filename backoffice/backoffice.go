// Package backoffice serves maintenance endpoints for administrators.
package backoffice

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"microblog/cache"
	"microblog/common"
	"microblog/policy"
	"microblog/service"
	"microblog/session"
)

// Purger drops expired sessions. Session stores that expire entries on their
// own do not implement it.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

type BackofficeModule struct {
	svc    *service.Service
	cache  *cache.Cache
	purger Purger
	l      *zap.Logger
}

// NewBackofficeModule builds the module. purger may be nil.
func NewBackofficeModule(svc *service.Service, c *cache.Cache, purger Purger, l *zap.Logger) *BackofficeModule {
	return &BackofficeModule{svc: svc, cache: c, purger: purger, l: l}
}

func (b *BackofficeModule) RegisterRoutes(router *gin.Engine) {
	backofficeGroup := router.Group("/backoffice")
	backofficeGroup.Use(b.requireBackofficeAuth)
	{
		backofficeGroup.POST("/repair", b.repair)
		backofficeGroup.POST("/clear-cache", b.clearCache)
		backofficeGroup.POST("/clear-cache/:blogID", b.clearBlogCache)
		backofficeGroup.POST("/purge-sessions", b.purgeSessions)
	}
}

func (b *BackofficeModule) requireBackofficeAuth(c *gin.Context) {
	if err := policy.RequireAdmin(session.CurrentUser(c)); err != nil {
		common.Fail(c, err)
		c.Abort()
		return
	}
	c.Next()
}

// repair recomputes every follow, fan and comment counter from the rows.
func (b *BackofficeModule) repair(c *gin.Context) {
	if err := b.svc.Repair(c.Request.Context()); err != nil {
		common.Fail(c, err)
		return
	}
	b.clearAll()
	common.OK(c, nil, "")
}

func (b *BackofficeModule) clearCache(c *gin.Context) {
	if err := b.cache.ClearAll(); err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, nil, "")
}

func (b *BackofficeModule) clearBlogCache(c *gin.Context) {
	blogID, err := common.ParamID(c, "blogID")
	if err != nil {
		common.Fail(c, err)
		return
	}
	if err := b.cache.Clear(cache.BlogKey(blogID)); err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, nil, "")
}

func (b *BackofficeModule) purgeSessions(c *gin.Context) {
	if b.purger == nil {
		common.OK(c, gin.H{"purged": 0}, "")
		return
	}
	purged, err := b.purger.Purge(c.Request.Context())
	if err != nil {
		common.Fail(c, err)
		return
	}
	b.l.Info("purged sessions", zap.Int64("count", purged))
	common.OK(c, gin.H{"purged": purged}, "")
}

func (b *BackofficeModule) clearAll() {
	if err := b.cache.ClearAll(); err != nil {
		b.l.Warn("clearing cache", zap.Error(err))
	}
}
