package router

import (
	"path/filepath"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"ratemall/internal/uploads"
)

func SetRouter(r *gin.Engine, opts Options) {
	setSystemRoutes(r, opts)

	// 商品图/广告图/充值凭证直接按相对路径公开；工单附件不在此列，
	// 需要鉴权，经 /api/support/attachment/:id 下载。
	if opts.Uploads != nil {
		base := opts.Uploads.BaseDir()
		for _, kind := range []string{uploads.KindProof, uploads.KindProduct, uploads.KindAd} {
			r.Use(static.Serve("/uploads/"+kind, static.LocalFile(filepath.Join(base, kind), false)))
		}
	}

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	setAuthAPIRoutes(api, opts)
	setUserAPIRoutes(api, opts)
	setProductAPIRoutes(api, opts)
	setRatingAPIRoutes(api, opts)
	setFundPaymentAPIRoutes(api, opts)
	setPayoutAPIRoutes(api, opts)
	setSupportAPIRoutes(api, opts)
	setAdAPIRoutes(api, opts)
	setPaymentChannelAPIRoutes(api, opts)
}
