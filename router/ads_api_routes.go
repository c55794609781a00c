package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ratemall/internal/store"
	"ratemall/internal/uploads"
)

func setAdAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/ads", requireUser(opts), listAdsHandler(opts))
	r.GET("/ads/:id", requireUser(opts), getAdHandler(opts))
	r.POST("/ads", requireUser(opts), createAdHandler(opts))
	r.DELETE("/ads/:id", requireUser(opts), deleteAdHandler(opts))

	r.GET("/ads/all", requireAdmin(opts), adminListAdsHandler(opts))
	r.PATCH("/ads/:id/status", requireAdmin(opts), adminModerateAdHandler(opts))
}

func adView(a store.Ad) gin.H {
	view := gin.H{
		"id":         a.ID,
		"user_id":    a.UserID,
		"title":      a.Title,
		"status":     a.Status,
		"views":      a.Views,
		"rating_avg": a.RatingAvg.String(),
		"created_at": a.CreatedAt,
	}
	if a.Description != nil {
		view["description"] = *a.Description
	}
	if a.ImagePath != nil {
		view["image_url"] = "/uploads/" + *a.ImagePath
	}
	return view
}

// listAdsHandler 普通用户只看已通过的广告，外加自己投的（任何状态）。
func listAdsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)
		if strings.TrimSpace(c.Query("mine")) == "1" {
			list, err := opts.Store.ListAdsByUser(c.Request.Context(), userID, queryInt(c, "limit", 100))
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询广告失败"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": adViews(list)})
			return
		}
		list, err := opts.Store.ListAdsByStatus(c.Request.Context(), store.AdStatusApproved, queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询广告失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": adViews(list)})
	}
}

func adViews(list []store.Ad) []gin.H {
	items := make([]gin.H, 0, len(list))
	for _, a := range list {
		items = append(items, adView(a))
	}
	return items
}

// getAdHandler 每次展示计一次浏览。
func getAdHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		adID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		a, err := opts.Store.GetAdByID(c.Request.Context(), adID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "广告不存在"})
			return
		}
		userID, _ := userIDFromContext(c)
		if a.Status != store.AdStatusApproved && a.UserID != userID && !isAdmin(c) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "广告不存在"})
			return
		}
		_ = opts.Store.IncrementAdViews(c.Request.Context(), adID)
		a.Views++
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": adView(a)})
	}
}

func createAdHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)

		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": parseUploadError(err)})
			return
		}
		title := strings.TrimSpace(c.Request.FormValue("title"))
		if title == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "广告标题不能为空"})
			return
		}
		var description *string
		if v := strings.TrimSpace(c.Request.FormValue("description")); v != "" {
			description = &v
		}

		var imagePath *string
		if files := c.Request.MultipartForm.File["image"]; len(files) > 0 && files[0] != nil {
			fh := files[0]
			src, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "读取图片失败"})
				return
			}
			res, saveErr := opts.Uploads.Save(uploads.KindAd, time.Now(), fh.Filename, src)
			_ = src.Close()
			if saveErr != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "保存图片失败"})
				return
			}
			imagePath = &res.RelPath
		}

		id, err := opts.Store.CreateAd(c.Request.Context(), userID, title, description, imagePath)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建广告失败"})
			return
		}
		a, err := opts.Store.GetAdByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询广告失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已提交，等待审核", "data": adView(a)})
	}
}

func deleteAdHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		adID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		userID, _ := userIDFromContext(c)
		if err := opts.Store.DeleteAdByOwner(c.Request.Context(), adID, userID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "广告不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已删除"})
	}
}

func adminListAdsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			list []store.Ad
			err  error
		)
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			list, err = opts.Store.ListAdsByStatus(c.Request.Context(), queryInt(c, "status", 0), queryInt(c, "limit", 100))
		} else {
			list, err = opts.Store.ListAds(c.Request.Context(), queryInt(c, "limit", 100))
		}
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询广告失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": adViews(list)})
	}
}

type moderateAdRequest struct {
	Action string `json:"action"`
}

func adminModerateAdHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		adID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		var req moderateAdRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		var approve bool
		switch strings.TrimSpace(req.Action) {
		case "approve":
			approve = true
		case "reject":
			approve = false
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "action 只能是 approve 或 reject"})
			return
		}

		if err := opts.Store.ModerateAd(c.Request.Context(), adID, approve); err != nil {
			if errors.Is(err, store.ErrOrderFinalized) {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "广告已审核，不可重复操作"})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "广告不存在"})
			return
		}
		a, err := opts.Store.GetAdByID(c.Request.Context(), adID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询广告失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": adView(a)})
	}
}
