// Package blog serves blogs, their comment threads and replies.
package blog

import (
	"bytes"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"microblog/cache"
	"microblog/common"
	"microblog/content"
	"microblog/policy"
	"microblog/service"
	"microblog/session"
)

type BlogModule struct {
	svc   *service.Service
	cache *cache.Cache
	l     *zap.Logger
}

// markdown renderer configured with Goldmark and useful extensions. Raw HTML
// in posts is escaped.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks (GFM set)
		extension.Linkify, // linkify raw URLs
	),
)

// threadView is a blog thread with the blog body rendered to HTML.
type threadView struct {
	*content.Thread
	ContentHTML string `json:"content_html"`
}

func NewBlogModule(svc *service.Service, c *cache.Cache, l *zap.Logger) *BlogModule {
	return &BlogModule{svc: svc, cache: c, l: l}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.POST("/blog/add", b.addBlog)
	router.GET("/blog/:id", b.requireLogin, b.cache.Middleware(blogKey, b.l), b.viewBlog)
	router.POST("/blog/update/:id", b.updateBlog)
	router.POST("/blog/delete/:id", b.deleteBlog)

	router.POST("/comment/add/:blogID", b.addComment)
	router.GET("/reply/:commentID", b.viewReplies)
	router.POST("/reply/add/:commentID", b.addReply)
}

// requireLogin keeps anonymous requests away from cached threads.
func (b *BlogModule) requireLogin(c *gin.Context) {
	if err := policy.RequireAuthenticated(session.CurrentUser(c)); err != nil {
		common.Fail(c, err)
		c.Abort()
		return
	}
	c.Next()
}

func blogKey(c *gin.Context) string {
	id, err := common.ParamID(c, "id")
	if err != nil {
		return ""
	}
	return cache.BlogKey(id)
}

func (b *BlogModule) invalidate(blogID int) {
	if err := b.cache.Clear(cache.BlogKey(blogID)); err != nil {
		b.l.Warn("clearing cache", zap.Int("blog_id", blogID), zap.Error(err))
	}
}

func (b *BlogModule) addBlog(c *gin.Context) {
	current := session.CurrentUser(c)
	blog, err := b.svc.CreateBlog(c.Request.Context(), current, common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, blog, "/timeline/"+current.Username)
}

func (b *BlogModule) viewBlog(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	thread, err := b.svc.ViewBlog(c.Request.Context(), session.CurrentUser(c), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, threadView{Thread: thread, ContentHTML: renderMarkdown(thread.Blog.Content)}, "")
}

func (b *BlogModule) updateBlog(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	updated, err := b.svc.UpdateBlog(c.Request.Context(), session.CurrentUser(c), id, common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	b.invalidate(id)
	common.OK(c, gin.H{"updated": updated}, "/blog/"+c.Param("id"))
}

func (b *BlogModule) deleteBlog(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	current := session.CurrentUser(c)
	if err := b.svc.DeleteBlog(c.Request.Context(), current, id); err != nil {
		common.Fail(c, err)
		return
	}
	b.invalidate(id)
	common.OK(c, nil, "/timeline/"+current.Username)
}

func (b *BlogModule) addComment(c *gin.Context) {
	blogID, err := common.ParamID(c, "blogID")
	if err != nil {
		common.Fail(c, err)
		return
	}
	comment, err := b.svc.AddComment(c.Request.Context(), session.CurrentUser(c), blogID, common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	b.invalidate(blogID)
	common.OK(c, comment, "/blog/"+c.Param("blogID"))
}

func (b *BlogModule) viewReplies(c *gin.Context) {
	commentID, err := common.ParamID(c, "commentID")
	if err != nil {
		common.Fail(c, err)
		return
	}
	view, err := b.svc.ViewReplies(c.Request.Context(), session.CurrentUser(c), commentID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, view, "")
}

func (b *BlogModule) addReply(c *gin.Context) {
	commentID, err := common.ParamID(c, "commentID")
	if err != nil {
		common.Fail(c, err)
		return
	}
	reply, err := b.svc.AddReply(c.Request.Context(), session.CurrentUser(c), commentID, common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	b.invalidate(reply.BlogID)
	common.OK(c, reply, "/reply/"+c.Param("commentID"))
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return buf.String()
}
