package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ratemall/internal/store"
	"ratemall/internal/uploads"
)

func setProductAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/products/all", requireUser(opts), listProductsHandler(opts))
	r.POST("/products", requireAdmin(opts), adminCreateProductHandler(opts))
	r.PATCH("/products/:id", requireAdmin(opts), adminUpdateProductHandler(opts))
	r.DELETE("/products/:id", requireAdmin(opts), adminDeleteProductHandler(opts))
}

func productView(p store.Product) gin.H {
	view := gin.H{
		"id":                p.ID,
		"name":              p.Name,
		"income_per_rating": p.IncomePerRating.StringFixed(store.AmountScale),
		"plan":              p.Plan,
		"is_lucky":          p.IsLucky,
		"rating_avg":        p.RatingAvg.String(),
		"rated_count":       p.RatedCount,
		"status":            p.Status,
		"created_at":        p.CreatedAt,
	}
	if p.Description != nil {
		view["description"] = *p.Description
	}
	if p.ImagePath != nil {
		view["image_url"] = "/uploads/" + *p.ImagePath
	}
	return view
}

// listProductsHandler 两条独立分页轨道：type=normal|lucky，各自携带 page 游标。
// has_more 是显式标志，客户端不应以空页推断是否到底。
func listProductsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := store.ListProductsParams{
			Page:       queryInt(c, "page", 1),
			Limit:      queryInt(c, "limit", 20),
			OnlyOnSale: !isAdmin(c),
		}
		switch strings.TrimSpace(c.Query("type")) {
		case "lucky":
			v := true
			params.IsLucky = &v
		case "normal":
			v := false
			params.IsLucky = &v
		case "":
			// 不过滤。
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未知的产品类型"})
			return
		}

		items, hasMore, err := opts.Store.ListProducts(c.Request.Context(), params)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询产品列表失败"})
			return
		}
		views := make([]gin.H, 0, len(items))
		for _, p := range items {
			views = append(views, productView(p))
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "",
			"data":    gin.H{"items": views, "has_more": hasMore},
		})
	}
}

// parseProductForm 解析 multipart 表单里的产品字段；形参均为指针以支持 PATCH 局部更新。
func parseProductForm(c *gin.Context, opts Options) (store.UpdateProductParams, string) {
	var out store.UpdateProductParams

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		return out, parseUploadError(err)
	}
	form := c.Request.MultipartForm

	getField := func(name string) *string {
		vs, ok := form.Value[name]
		if !ok || len(vs) == 0 {
			return nil
		}
		v := strings.TrimSpace(vs[0])
		return &v
	}

	out.Name = getField("name")
	out.Description = getField("description")
	out.Plan = getField("plan")

	if raw := getField("income_per_rating"); raw != nil {
		d, err := decimal.NewFromString(*raw)
		if err != nil || d.IsNegative() {
			return out, "收益金额不正确"
		}
		out.IncomePerRating = &d
	}
	if raw := getField("is_lucky"); raw != nil {
		v := *raw == "1" || strings.EqualFold(*raw, "true")
		out.IsLucky = &v
	}
	if raw := getField("status"); raw != nil {
		st := store.ProductStatusOff
		if *raw == "1" {
			st = store.ProductStatusOn
		}
		out.Status = &st
	}

	files := form.File["image"]
	if len(files) > 0 && files[0] != nil {
		fh := files[0]
		src, err := fh.Open()
		if err != nil {
			return out, "读取图片失败"
		}
		defer func() { _ = src.Close() }()
		res, err := opts.Uploads.Save(uploads.KindProduct, time.Now(), fh.Filename, src)
		if err != nil {
			return out, "保存图片失败"
		}
		out.ImagePath = &res.RelPath
	}
	return out, ""
}

func adminCreateProductHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, errMsg := parseProductForm(c, opts)
		if errMsg != "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": errMsg})
			return
		}
		if form.Name == nil || *form.Name == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "产品名称不能为空"})
			return
		}
		if form.IncomePerRating == nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "收益金额不能为空"})
			return
		}

		params := store.CreateProductParams{
			Name:            *form.Name,
			Description:     form.Description,
			IncomePerRating: *form.IncomePerRating,
			ImagePath:       form.ImagePath,
			Status:          store.ProductStatusOn,
		}
		if form.Plan != nil {
			params.Plan = *form.Plan
		}
		if form.IsLucky != nil {
			params.IsLucky = *form.IsLucky
		}
		if form.Status != nil {
			params.Status = *form.Status
		}

		id, err := opts.Store.CreateProduct(c.Request.Context(), params)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建产品失败"})
			return
		}
		p, err := opts.Store.GetProductByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询产品失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": productView(p)})
	}
}

func adminUpdateProductHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		productID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		form, errMsg := parseProductForm(c, opts)
		if errMsg != "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": errMsg})
			return
		}
		if err := opts.Store.UpdateProduct(c.Request.Context(), productID, form); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "产品不存在"})
			return
		}
		p, err := opts.Store.GetProductByID(c.Request.Context(), productID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询产品失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": productView(p)})
	}
}

func adminDeleteProductHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		productID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if err := opts.Store.DeleteProduct(c.Request.Context(), productID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "产品不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已删除"})
	}
}
