package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"ratemall/internal/auth"
	"ratemall/internal/store"
)

const sessionTTL = 30 * 24 * time.Hour

type signupRequest struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func setAuthAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/auth/signup", authSignupHandler(opts))
	r.POST("/auth/login", authLoginHandler(opts))
	r.GET("/auth/logout", authLogoutHandler(opts))
}

func authSignupHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "store 未初始化"})
			return
		}

		var req signupRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}

		email := strings.TrimSpace(strings.ToLower(req.Email))
		if email == "" || !strings.Contains(email, "@") {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "邮箱格式不正确"})
			return
		}
		username, err := store.NormalizeUsername(req.Username)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
			return
		}
		passwordHash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
			return
		}

		total, err := opts.Store.CountUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "注册失败，请稍后再试"})
			return
		}
		// 第一个注册的账号成为管理员并直接激活，之后的注册需要管理员审核。
		firstUser := total == 0
		if !firstUser && !opts.AllowOpenRegistration {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "当前环境未开放注册"})
			return
		}

		var referredBy *int64
		if code := strings.TrimSpace(req.ReferralCode); code != "" {
			ref, err := opts.Store.GetUserByReferralCode(c.Request.Context(), code)
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "邀请码无效"})
				return
			}
			referredBy = &ref.ID
		}

		role := store.UserRoleUser
		status := store.UserStatusPending
		if firstUser {
			role = store.UserRoleAdmin
			status = store.UserStatusActive
		}

		userID, err := opts.Store.CreateUser(c.Request.Context(), email, username, passwordHash, role, status, referredBy)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "邮箱或账号名已被占用"})
			return
		}

		msg := "注册成功，请等待管理员审核"
		if firstUser {
			msg = "注册成功"
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": msg,
			"data": gin.H{
				"id":       userID,
				"email":    email,
				"username": username,
				"status":   status,
			},
		})
	}
}

func authLoginHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "store 未初始化"})
			return
		}

		var req loginRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		login := strings.TrimSpace(req.Login)
		if login == "" {
			login = strings.TrimSpace(req.Username)
		}
		if login == "" {
			login = strings.TrimSpace(req.Email)
		}
		if login == "" || req.Password == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}

		// email: 统一按小写匹配；username: 大小写敏感匹配。
		u, err := opts.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(login))
		if err != nil && errors.Is(err, sql.ErrNoRows) {
			u, err = opts.Store.GetUserByUsername(c.Request.Context(), login)
		}
		if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "邮箱/账号名或密码错误"})
			return
		}
		if u.Status == store.UserStatusPending {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "账号待审核，请联系管理员"})
			return
		}
		if u.Status != store.UserStatusActive {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "账号已被禁用"})
			return
		}

		token, err := auth.NewSessionToken()
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "登录失败，请重试"})
			return
		}
		if _, err := opts.Store.CreateSession(c.Request.Context(), u.ID, token, time.Now().Add(sessionTTL)); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "登录失败，请重试"})
			return
		}

		sess := sessions.Default(c)
		sess.Set("id", u.ID)
		sess.Set("username", u.Username)
		sess.Set("role", u.Role)
		if err := sess.Save(); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无法保存会话信息，请重试"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data": gin.H{
				"id":            u.ID,
				"email":         u.Email,
				"username":      u.Username,
				"role":          u.Role,
				"plan":          u.Plan,
				"status":        u.Status,
				"referral_code": u.ReferralCode,
				"token":         token,
			},
		})
	}
}

// authLogoutHandler 服务端真正删除会话记录，而不是只清浏览器 cookie。
func authLogoutHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store != nil {
			if token, ok := bearerToken(c); ok {
				_ = opts.Store.DeleteSessionByRaw(c.Request.Context(), token)
			}
		}
		clearSession(c)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已退出登录"})
	}
}
