package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ratemall/internal/metrics"
	"ratemall/internal/quota"
	"ratemall/internal/store"
)

func setRatingAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/ratings", requireUser(opts), submitRatingHandler(opts))
	r.GET("/ratings/user/:id", requireUser(opts), listUserRatingsHandler(opts))
}

type submitRatingRequest struct {
	ProductID int64   `json:"product_id"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment"`
}

// submitRatingHandler 评分即收益；响应携带服务端权威的 remaining，
// 客户端应以此为准校正本地额度计数。
func submitRatingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)

		var req submitRatingRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if req.ProductID <= 0 || req.Rating < 1 || req.Rating > 5 {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if req.Comment != nil {
			v := strings.TrimSpace(*req.Comment)
			if v == "" {
				req.Comment = nil
			} else {
				req.Comment = &v
			}
		}

		plan := quota.Lookup(userPlanFromContext(c))
		res, err := opts.Store.SubmitRating(c.Request.Context(), store.SubmitRatingParams{
			UserID:     userID,
			ProductID:  req.ProductID,
			Rating:     req.Rating,
			Comment:    req.Comment,
			DailyQuota: plan.DailyQuota,
			Multiplier: plan.Multiplier,
		})
		switch {
		case err == nil:
		case errors.Is(err, store.ErrAlreadyRated):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrAlreadyRated.Error()})
			return
		case errors.Is(err, store.ErrQuotaExhausted):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrQuotaExhausted.Error()})
			return
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "产品不存在或已下架"})
			return
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "评分失败，请稍后再试"})
			return
		}

		metrics.RatingsSubmittedTotal.Inc()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data": gin.H{
				"rating_id":     res.RatingID,
				"earning":       res.Earning.StringFixed(store.AmountScale),
				"balance":       res.Balance.StringFixed(store.AmountScale),
				"ratings_today": res.RatingsToday,
				"remaining":     quota.Remaining(plan.Name, res.RatingsToday),
				"lucky_cleared": res.LuckyCleared,
			},
		})
	}
}

func listUserRatingsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		actorID, _ := userIDFromContext(c)
		if targetID != actorID && !isAdmin(c) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "权限不足"})
			return
		}

		ratings, err := opts.Store.ListRatingsByUser(c.Request.Context(), targetID, queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询评分记录失败"})
			return
		}
		items := make([]gin.H, 0, len(ratings))
		for _, r := range ratings {
			item := gin.H{
				"id":         r.ID,
				"product_id": r.ProductID,
				"rating":     r.Rating,
				"earning":    r.Earning.StringFixed(store.AmountScale),
				"created_at": r.CreatedAt,
			}
			if r.Comment != nil {
				item["comment"] = *r.Comment
			}
			items = append(items, item)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}
