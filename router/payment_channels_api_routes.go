package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ratemall/internal/store"
)

func setPaymentChannelAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/payment-channels", requireAdmin(opts), adminListPaymentChannelsHandler(opts))
	r.POST("/payment-channels", requireAdmin(opts), adminCreatePaymentChannelHandler(opts))
	r.GET("/payment-channels/:channel_id", requireAdmin(opts), adminGetPaymentChannelHandler(opts))
	r.PUT("/payment-channels/:channel_id", requireAdmin(opts), adminUpdatePaymentChannelHandler(opts))
	r.DELETE("/payment-channels/:channel_id", requireAdmin(opts), adminDeletePaymentChannelHandler(opts))
}

// paymentChannelView 不回传密钥本身，只标记是否已配置。
func paymentChannelView(ch store.PaymentChannel, baseURL string) gin.H {
	view := gin.H{
		"id":                        ch.ID,
		"type":                      ch.Type,
		"name":                      ch.Name,
		"status":                    ch.Status,
		"stripe_secret_key_set":     ch.StripeSecretKey != nil,
		"stripe_webhook_secret_set": ch.StripeWebhookSecret != nil,
		"epay_key_set":              ch.EPayKey != nil,
		"created_at":                ch.CreatedAt,
	}
	if ch.StripeCurrency != nil {
		view["stripe_currency"] = *ch.StripeCurrency
	}
	if ch.EPayGateway != nil {
		view["epay_gateway"] = *ch.EPayGateway
	}
	if ch.EPayPartnerID != nil {
		view["epay_partner_id"] = *ch.EPayPartnerID
	}
	if baseURL != "" {
		id := strconv.FormatInt(ch.ID, 10)
		switch ch.Type {
		case store.PaymentChannelTypeStripe:
			view["webhook_url"] = baseURL + "/webhook/stripe/" + id
		case store.PaymentChannelTypeEPay:
			view["webhook_url"] = baseURL + "/webhook/epay/" + id
		}
	}
	return view
}

type paymentChannelRequest struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Status int    `json:"status"`

	StripeCurrency      *string `json:"stripe_currency,omitempty"`
	StripeSecretKey     *string `json:"stripe_secret_key,omitempty"`
	StripeWebhookSecret *string `json:"stripe_webhook_secret,omitempty"`

	EPayGateway   *string `json:"epay_gateway,omitempty"`
	EPayPartnerID *string `json:"epay_partner_id,omitempty"`
	EPayKey       *string `json:"epay_key,omitempty"`
}

func (r paymentChannelRequest) toParams() store.UpsertPaymentChannelParams {
	return store.UpsertPaymentChannelParams{
		Type:                strings.TrimSpace(r.Type),
		Name:                strings.TrimSpace(r.Name),
		Status:              r.Status,
		StripeCurrency:      r.StripeCurrency,
		StripeSecretKey:     r.StripeSecretKey,
		StripeWebhookSecret: r.StripeWebhookSecret,
		EPayGateway:         r.EPayGateway,
		EPayPartnerID:       r.EPayPartnerID,
		EPayKey:             r.EPayKey,
	}
}

func adminListPaymentChannelsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		channels, err := opts.Store.ListPaymentChannels(c.Request.Context(), false)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询支付渠道失败"})
			return
		}
		items := make([]gin.H, 0, len(channels))
		for _, ch := range channels {
			items = append(items, paymentChannelView(ch, opts.PublicBaseURL))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

func adminCreatePaymentChannelHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentChannelRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "渠道名称不能为空"})
			return
		}
		id, err := opts.Store.CreatePaymentChannel(c.Request.Context(), req.toParams())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
			return
		}
		ch, err := opts.Store.GetPaymentChannelByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询支付渠道失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": paymentChannelView(ch, opts.PublicBaseURL)})
	}
}

func adminGetPaymentChannelHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID, ok := pathID(c, "channel_id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "channel_id 不合法"})
			return
		}
		ch, err := opts.Store.GetPaymentChannelByID(c.Request.Context(), channelID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "支付渠道不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": paymentChannelView(ch, opts.PublicBaseURL)})
	}
}

func adminUpdatePaymentChannelHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID, ok := pathID(c, "channel_id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "channel_id 不合法"})
			return
		}
		var req paymentChannelRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if err := opts.Store.UpdatePaymentChannel(c.Request.Context(), channelID, req.toParams()); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "支付渠道不存在"})
			return
		}
		ch, err := opts.Store.GetPaymentChannelByID(c.Request.Context(), channelID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询支付渠道失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": paymentChannelView(ch, opts.PublicBaseURL)})
	}
}

func adminDeletePaymentChannelHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID, ok := pathID(c, "channel_id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "channel_id 不合法"})
			return
		}
		if err := opts.Store.DeletePaymentChannel(c.Request.Context(), channelID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "支付渠道不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已删除"})
	}
}
