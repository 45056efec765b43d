package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/GlobalChat/internal/errs"
	"github.com/Gopher0727/GlobalChat/middleware/jwt"
)

// fail 按错误类型写出状态码与面向用户的提示
func fail(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	c.JSON(errs.HTTPStatus(kind), gin.H{
		"error": errs.Message(err),
		"kind":  kind.String(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": errs.KindInvalidArgument.String()})
}

// currentUser 从 Context 获取当前登录用户 ID
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(jwt.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未授权访问"})
		return "", false
	}
	return userID, true
}

// paramID 解析 URL 中的雪花 ID
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
