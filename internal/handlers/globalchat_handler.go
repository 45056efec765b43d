package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GlobalChat/internal/services"
)

type GlobalChatHandler struct {
	GlobalChatService *services.GlobalChatService
}

func NewGlobalChatHandler(globalChatService *services.GlobalChatService) *GlobalChatHandler {
	return &GlobalChatHandler{GlobalChatService: globalChatService}
}

// CreateChannel POST /channels
func (h *GlobalChatHandler) CreateChannel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	v, err := h.GlobalChatService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// ListChannels GET /channels?name=  按名称查找，未提供名称时列出公开频道
func (h *GlobalChatHandler) ListChannels(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		v, err := h.GlobalChatService.GetByName(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"channels": []*services.ChannelView{v}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": h.GlobalChatService.ListPublic()})
}

func (h *GlobalChatHandler) GetChannel(c *gin.Context) {
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	v, err := h.GlobalChatService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// UpdateChannel PATCH /channels/:channel_id
func (h *GlobalChatHandler) UpdateChannel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	var req services.UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	v, err := h.GlobalChatService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Link POST /channels/:channel_id/links
func (h *GlobalChatHandler) Link(c *gin.Context) {
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	var req services.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	v, err := h.GlobalChatService.Link(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Unlink DELETE /channels/:channel_id/links/:guild_id
func (h *GlobalChatHandler) Unlink(c *gin.Context) {
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	v, err := h.GlobalChatService.Unlink(c.Request.Context(), id, &services.UnlinkRequest{GuildID: c.Param("guild_id")})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Moderate POST /channels/:channel_id/moderation
func (h *GlobalChatHandler) Moderate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	var req services.ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	v, err := h.GlobalChatService.Moderate(c.Request.Context(), userID, id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// SetRole POST /channels/:channel_id/roles
func (h *GlobalChatHandler) SetRole(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	var req services.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	v, err := h.GlobalChatService.SetRole(c.Request.Context(), userID, id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// GuildStatus GET /channels/:channel_id/guilds/:guild_id
func (h *GlobalChatHandler) GuildStatus(c *gin.Context) {
	id, ok := paramID(c, "channel_id")
	if !ok {
		return
	}
	st, err := h.GlobalChatService.Status(c.Request.Context(), id, c.Param("guild_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
