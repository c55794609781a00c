package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ratemall/internal/auth"
	"ratemall/internal/store"
)

// requireUser 支持两种凭证：Authorization Bearer 令牌（SDK/脚本），
// 或 cookie 会话 + Ratemall-User 头（浏览器；自定义头用于抵御 CSRF）。
func requireUser(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "store 未初始化"})
			c.Abort()
			return
		}

		if token, ok := bearerToken(c); ok {
			sa, err := opts.Store.GetSessionAuthByRawToken(c.Request.Context(), token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "令牌无效或已过期"})
				c.Abort()
				return
			}
			setPrincipal(c, auth.Principal{
				ActorType: auth.ActorTypeBearer,
				UserID:    sa.UserID,
				SessionID: &sa.SessionID,
				Role:      sa.Role,
				Plan:      sa.Plan,
			})
			c.Next()
			return
		}

		userID, ok := sessionUserID(c)
		if !ok {
			clearSession(c)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			c.Abort()
			return
		}

		headerID, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader("Ratemall-User")), 10, 64)
		if err != nil || headerID <= 0 || headerID != userID {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无权进行此操作，Ratemall-User 无效"})
			c.Abort()
			return
		}

		u, err := opts.Store.GetUserByID(c.Request.Context(), userID)
		if err != nil || u.ID <= 0 || u.Status != store.UserStatusActive {
			clearSession(c)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			c.Abort()
			return
		}

		setPrincipal(c, auth.Principal{
			ActorType: auth.ActorTypeSession,
			UserID:    u.ID,
			Role:      strings.TrimSpace(u.Role),
			Plan:      u.Plan,
		})
		c.Next()
	}
}

func requireAdmin(opts Options) gin.HandlerFunc {
	userMW := requireUser(opts)
	return func(c *gin.Context) {
		userMW(c)
		if c.IsAborted() {
			return
		}
		if role, _ := userRoleFromContext(c); role != store.UserRoleAdmin {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
			c.Abort()
			return
		}
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

func setPrincipal(c *gin.Context, p auth.Principal) {
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
	c.Set("rm_user_id", p.UserID)
	c.Set("rm_user_role", p.Role)
	c.Set("rm_user_plan", p.Plan)
}

func userIDFromContext(c *gin.Context) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.Get("rm_user_id")
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, x > 0
	case int:
		return int64(x), x > 0
	default:
		return 0, false
	}
}

func userRoleFromContext(c *gin.Context) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.Get("rm_user_role")
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func userPlanFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	v, ok := c.Get("rm_user_plan")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func isAdmin(c *gin.Context) bool {
	role, _ := userRoleFromContext(c)
	return role == store.UserRoleAdmin
}
