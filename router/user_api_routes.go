package router

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ratemall/internal/auth"
	"ratemall/internal/quota"
	"ratemall/internal/store"
)

func setUserAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/user", requireUser(opts), userSelfHandler(opts))
	r.GET("/user/luckydraw", requireUser(opts), userLuckyDrawHandler(opts))
	r.PATCH("/user/:id", requireUser(opts), userUpdateHandler(opts))

	r.GET("/user/all", requireAdmin(opts), adminListUsersHandler(opts))
	r.PATCH("/user/:id/approve", requireAdmin(opts), adminApproveUserHandler(opts))
	r.DELETE("/user/:id", requireAdmin(opts), adminDeleteUserHandler(opts))
}

func userView(u store.User) gin.H {
	return gin.H{
		"id":            u.ID,
		"email":         u.Email,
		"username":      u.Username,
		"role":          u.Role,
		"plan":          u.Plan,
		"status":        u.Status,
		"referral_code": u.ReferralCode,
		"created_at":    u.CreatedAt,
	}
}

func userSelfHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未登录"})
			return
		}
		u, err := opts.Store.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询用户失败"})
			return
		}
		balance, err := opts.Store.GetUserBalance(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询余额失败"})
			return
		}
		ratedToday, err := opts.Store.CountRatingsToday(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询评分记录失败"})
			return
		}
		plan := quota.Lookup(u.Plan)

		view := userView(u)
		view["balance"] = balance.StringFixed(store.AmountScale)
		view["daily_quota"] = plan.DailyQuota
		view["ratings_today"] = ratedToday
		view["remaining"] = quota.Remaining(u.Plan, ratedToday)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": view})
	}
}

type userUpdateRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Plan     *string `json:"plan"`
	Status   *int    `json:"status"`
}

// userUpdateHandler 本人可改账号名与密码；套餐与状态只有管理员能动。
func userUpdateHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		actorID, _ := userIDFromContext(c)
		admin := isAdmin(c)
		if targetID != actorID && !admin {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
			return
		}

		var req userUpdateRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}

		ctx := c.Request.Context()
		if req.Username != nil {
			if err := opts.Store.UpdateUserUsername(ctx, targetID, *req.Username); err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "账号名更新失败，可能已被占用"})
				return
			}
		}
		if req.Password != nil {
			if targetID != actorID && !admin {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
				return
			}
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
				return
			}
			if err := opts.Store.UpdateUserPasswordHash(ctx, targetID, hash); err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "密码更新失败"})
				return
			}
		}
		if req.Plan != nil {
			if !admin {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
				return
			}
			if !quota.IsValid(strings.TrimSpace(*req.Plan)) {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "未知套餐"})
				return
			}
			if err := opts.Store.UpdateUserPlan(ctx, targetID, *req.Plan); err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "套餐更新失败"})
				return
			}
		}
		if req.Status != nil {
			if !admin {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
				return
			}
			if err := opts.Store.UpdateUserStatus(ctx, targetID, *req.Status); err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "状态更新失败"})
				return
			}
		}

		u, err := opts.Store.GetUserByID(ctx, targetID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询用户失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": userView(u)})
	}
}

// userLuckyDrawHandler 返回当前待结清的幸运单；没有时 active=false。
func userLuckyDrawHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)
		order, err := opts.Store.GetActiveLuckyOrderByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{"active": false}})
			return
		}
		data := gin.H{
			"active":     true,
			"order_id":   order.ID,
			"product_id": order.ProductID,
			"amount":     order.Amount.StringFixed(store.AmountScale),
			"multiplier": order.Multiplier.String(),
			"created_at": order.CreatedAt,
		}
		if p, err := opts.Store.GetProductByID(c.Request.Context(), order.ProductID); err == nil {
			data["product_name"] = p.Name
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": data})
	}
}

func adminListUsersHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var statusPtr *int
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			v := queryInt(c, "status", -1)
			if v >= 0 {
				statusPtr = &v
			}
		}
		users, err := opts.Store.ListUsers(c.Request.Context(), statusPtr, queryInt(c, "limit", 200))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询用户列表失败"})
			return
		}
		items := make([]gin.H, 0, len(users))
		for _, u := range users {
			items = append(items, userView(u))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

func adminApproveUserHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if err := opts.Store.ApproveUser(c.Request.Context(), targetID); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "审核失败，用户不存在或已激活"})
			return
		}
		u, err := opts.Store.GetUserByID(c.Request.Context(), targetID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询用户失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已通过审核", "data": userView(u)})
	}
}

func adminDeleteUserHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		actorID, _ := userIDFromContext(c)
		if targetID == actorID {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "不能删除当前登录的管理员"})
			return
		}
		if err := opts.Store.DeleteUser(c.Request.Context(), targetID); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "删除用户失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已删除"})
	}
}
