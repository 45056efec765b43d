package routers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/GlobalChat/internal/handlers"
	"github.com/Gopher0727/GlobalChat/middleware/jwt"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, tm *jwt.TokenManager, log *logger.Logger,
	proxyHandler *handlers.ProxyHandler,
	globalChatHandler *handlers.GlobalChatHandler,
) {
	r.Use(TraceMiddleware(log))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	api := r.Group("/api/v1")
	api.POST("/auth/refresh", tm.RefreshHandler)

	authed := api.Group("")
	authed.Use(tm.AuthMiddleware())
	RegisterProxyRoutes(authed, proxyHandler)
	RegisterGlobalChatRoutes(authed, globalChatHandler)
}

// TraceMiddleware 为每个请求生成 trace id 并记录访问日志
func TraceMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))
		c.Header("X-Trace-ID", traceID)

		start := time.Now()
		c.Next()
		log.DebugContext(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// RegisterProxyRoutes 代理成员与自动代理设置
func RegisterProxyRoutes(rg *gin.RouterGroup, h *handlers.ProxyHandler) {
	members := rg.Group("/members")
	{
		members.POST("", h.CreateMember)
		members.GET("", h.ListMembers)
		members.GET("/:member_id", h.GetMember)
		members.PATCH("/:member_id", h.EditMember)
		members.DELETE("/:member_id", h.DeleteMember)
		members.POST("/:member_id/tags", h.AddTag)
		members.DELETE("/:member_id/tags/:index", h.RemoveTag)
	}

	settings := rg.Group("/settings")
	{
		settings.GET("", h.GetSettings)
		settings.PATCH("", h.UpdateSettings)
		settings.PUT("/autoproxy", h.SetAutoproxy)
	}
	rg.POST("/switch", h.Switch)
}

// RegisterGlobalChatRoutes 跨服务器频道管理、链接与审核
func RegisterGlobalChatRoutes(rg *gin.RouterGroup, h *handlers.GlobalChatHandler) {
	channels := rg.Group("/channels")
	{
		channels.POST("", h.CreateChannel)
		channels.GET("", h.ListChannels)
		channels.GET("/:channel_id", h.GetChannel)
		channels.PATCH("/:channel_id", h.UpdateChannel)

		channels.POST("/:channel_id/links", h.Link)
		channels.DELETE("/:channel_id/links/:guild_id", h.Unlink)

		channels.POST("/:channel_id/moderation", h.Moderate)
		channels.POST("/:channel_id/roles", h.SetRole)
		channels.GET("/:channel_id/guilds/:guild_id", h.GuildStatus)
	}
}
