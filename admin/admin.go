// Package admin serves account endpoints: registration, login, field checks,
// bearer tokens and the administrator's user management.
package admin

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"microblog/cache"
	"microblog/common"
	"microblog/policy"
	"microblog/service"
	"microblog/session"
)

type AdminModule struct {
	svc      *service.Service
	sessions *session.Manager
	signer   *session.Signer
	cache    *cache.Cache
	l        *zap.Logger
}

func NewAdminModule(svc *service.Service, sessions *session.Manager, signer *session.Signer, c *cache.Cache, l *zap.Logger) *AdminModule {
	return &AdminModule{
		svc:      svc,
		sessions: sessions,
		signer:   signer,
		cache:    c,
		l:        l,
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	router.POST("/register", a.register)
	router.POST("/login", a.login)
	router.GET("/logout", a.logout)
	router.GET("/check/username", a.checkUsername)
	router.GET("/check/password", a.checkPassword)
	router.POST("/token", a.token)

	adminGroup := router.Group("/user")
	adminGroup.Use(a.requireAdmin)
	{
		adminGroup.GET("/:id", a.getUser)
		adminGroup.POST("/update/:id", a.updateUser)
		adminGroup.POST("/delete/:id", a.deleteUser)
	}
}

func (a *AdminModule) requireAdmin(c *gin.Context) {
	if err := policy.RequireAdmin(session.CurrentUser(c)); err != nil {
		common.Fail(c, err)
		c.Abort()
		return
	}
	c.Next()
}

func (a *AdminModule) register(c *gin.Context) {
	user, err := a.svc.Register(c.Request.Context(), common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, user, "/login")
}

func (a *AdminModule) login(c *gin.Context) {
	user, err := a.svc.Login(c.Request.Context(), common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	if _, err := session.Login(c, a.sessions, user.ID); err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, user, "/timeline/"+user.Username)
}

func (a *AdminModule) logout(c *gin.Context) {
	if err := session.Logout(c, a.sessions); err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, nil, "/login")
}

func (a *AdminModule) checkUsername(c *gin.Context) {
	availability, err := a.svc.CheckUsername(c.Request.Context(), c.Query("username"))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, availability, "")
}

func (a *AdminModule) checkPassword(c *gin.Context) {
	common.OK(c, a.svc.CheckPassword(c.Query("password")), "")
}

// token wraps the caller's current session in a bearer token.
func (a *AdminModule) token(c *gin.Context) {
	if err := policy.RequireAuthenticated(session.CurrentUser(c)); err != nil {
		common.Fail(c, err)
		return
	}
	bearer, err := a.signer.Sign(session.Token(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, gin.H{"token": bearer, "token_type": "Bearer"}, "")
}

func (a *AdminModule) getUser(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	user, err := a.svc.GetUser(c.Request.Context(), session.CurrentUser(c), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, user, "")
}

func (a *AdminModule) updateUser(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	updated, err := a.svc.UpdateUser(c.Request.Context(), session.CurrentUser(c), id, common.FormFrom(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.OK(c, gin.H{"updated": updated}, "/users")
}

func (a *AdminModule) deleteUser(c *gin.Context) {
	id, err := common.ParamID(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}
	if err := a.svc.DeleteUser(c.Request.Context(), session.CurrentUser(c), id); err != nil {
		common.Fail(c, err)
		return
	}
	// the user's blogs went with them
	if err := a.cache.ClearAll(); err != nil {
		a.l.Warn("clearing cache", zap.Error(err))
	}
	common.OK(c, nil, "/users")
}
