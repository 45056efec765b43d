package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GlobalChat/internal/services"
)

type ProxyHandler struct {
	ProxyService *services.ProxyService
}

func NewProxyHandler(proxyService *services.ProxyService) *ProxyHandler {
	return &ProxyHandler{ProxyService: proxyService}
}

// CreateMember POST /members
func (h *ProxyHandler) CreateMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	m, err := h.ProxyService.CreateMember(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMembers GET /members?guild_id=
func (h *ProxyHandler) ListMembers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.ProxyService.ListMembers(c.Request.Context(), userID, c.Query("guild_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": list})
}

func (h *ProxyHandler) GetMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "member_id")
	if !ok {
		return
	}
	m, err := h.ProxyService.GetMember(c.Request.Context(), userID, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// EditMember PATCH /members/:member_id
func (h *ProxyHandler) EditMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "member_id")
	if !ok {
		return
	}
	var req services.EditMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	m, err := h.ProxyService.EditMember(c.Request.Context(), userID, id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ProxyHandler) DeleteMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "member_id")
	if !ok {
		return
	}
	if err := h.ProxyService.DeleteMember(c.Request.Context(), userID, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddTag POST /members/:member_id/tags
func (h *ProxyHandler) AddTag(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "member_id")
	if !ok {
		return
	}
	var req services.TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	m, index, err := h.ProxyService.AddTag(c.Request.Context(), userID, id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": m, "index": index})
}

// RemoveTag DELETE /members/:member_id/tags/:index
func (h *ProxyHandler) RemoveTag(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "member_id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "invalid index")
		return
	}
	m, err := h.ProxyService.RemoveTag(c.Request.Context(), userID, id, index)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetSettings GET /settings?guild_id=
func (h *ProxyHandler) GetSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	s, err := h.ProxyService.GetSettings(c.Request.Context(), userID, c.Query("guild_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings PATCH /settings
func (h *ProxyHandler) UpdateSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	s, err := h.ProxyService.UpdateSettings(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// SetAutoproxy PUT /settings/autoproxy
func (h *ProxyHandler) SetAutoproxy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AutoproxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	s, err := h.ProxyService.SetAutoproxy(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Switch POST /switch
func (h *ProxyHandler) Switch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}
	s, err := h.ProxyService.Switch(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
