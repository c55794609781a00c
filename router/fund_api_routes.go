package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Calcium-Ion/go-epay/epay"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	stripeCheckout "github.com/stripe/stripe-go/v81/checkout/session"

	"ratemall/internal/metrics"
	"ratemall/internal/store"
	"ratemall/internal/uploads"
)

func setFundPaymentAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/fund-payments/add", requireUser(opts), createFundPaymentHandler(opts))
	r.POST("/fund-payments/:id/pay", requireUser(opts), payFundPaymentHandler(opts))
	r.GET("/fund-payments/user/:id", requireUser(opts), listUserFundPaymentsHandler(opts))
	r.DELETE("/fund-payments/:id", requireUser(opts), deleteFundPaymentHandler(opts))

	r.GET("/fund-payments", requireAdmin(opts), adminListFundPaymentsHandler(opts))
	r.PATCH("/fund-payments/update/:id", requireAdmin(opts), adminDecideFundPaymentHandler(opts))
}

func fundPaymentView(fp store.FundPayment) gin.H {
	view := gin.H{
		"id":           fp.ID,
		"user_id":      fp.UserID,
		"amount":       fp.Amount.StringFixed(store.AmountScale),
		"method":       fp.Method,
		"status":       fp.Status,
		"requested_at": fp.RequestedAt,
	}
	if fp.ProofPath != nil {
		view["proof_url"] = "/uploads/" + *fp.ProofPath
	}
	if fp.PaidRef != nil {
		view["paid_ref"] = *fp.PaidRef
	}
	if fp.DecidedAt != nil {
		view["decided_at"] = *fp.DecidedAt
	}
	return view
}

var depositMethods = map[string]bool{
	"usdt_trc20": true,
	"bank":       true,
	"card":       true,
	"other":      true,
}

// 走支付渠道在线支付的充值方式；usdt/银行转账靠凭证人工审核。
var onlinePayableMethods = map[string]bool{
	"card":  true,
	"other": true,
}

// createFundPaymentHandler multipart：amount + method + 可选转账凭证图片。
func createFundPaymentHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)

		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": parseUploadError(err)})
			return
		}
		form := c.Request.MultipartForm

		amountRaw := strings.TrimSpace(c.Request.FormValue("amount"))
		amount, err := decimal.NewFromString(amountRaw)
		if err != nil || !amount.IsPositive() {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "充值金额不正确"})
			return
		}
		if amount.LessThan(opts.DepositMinAmount) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "充值金额低于最低限额 " + opts.DepositMinAmount.StringFixed(store.AmountScale)})
			return
		}
		method := strings.TrimSpace(c.Request.FormValue("method"))
		if !depositMethods[method] {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "不支持的充值方式"})
			return
		}

		var proofPath *string
		if files := form.File["proof"]; len(files) > 0 && files[0] != nil {
			fh := files[0]
			src, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "读取凭证失败"})
				return
			}
			res, saveErr := opts.Uploads.Save(uploads.KindProof, time.Now(), fh.Filename, src)
			_ = src.Close()
			if saveErr != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "保存凭证失败"})
				return
			}
			proofPath = &res.RelPath
		}

		id, err := opts.Store.CreateFundPayment(c.Request.Context(), userID, amount, method, proofPath)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建充值单失败"})
			return
		}
		fp, err := opts.Store.GetFundPaymentByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询充值单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已提交，等待审核", "data": fundPaymentView(fp)})
	}
}

type payFundPaymentRequest struct {
	PaymentChannelID int64   `json:"payment_channel_id"`
	EPayType         *string `json:"epay_type,omitempty"`
}

// amountMinorUnits 把两位小数的金额换算成网关最小货币单位（分）。
func amountMinorUnits(amount decimal.Decimal) (int64, bool) {
	scaled := amount.Truncate(store.AmountScale).Shift(store.AmountScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, false
	}
	n := scaled.IntPart()
	if n <= 0 || !decimal.NewFromInt(n).Equal(scaled) {
		return 0, false
	}
	return n, true
}

// payFundPaymentHandler 为待审核充值单发起在线支付，返回网关跳转地址。
// 支付完成后由对应渠道的 webhook 核对金额并自动通过该单。
func payFundPaymentHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		userID, _ := userIDFromContext(c)

		var req payFundPaymentRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if req.PaymentChannelID <= 0 {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "请先选择支付渠道"})
			return
		}

		fp, err := opts.Store.GetFundPaymentByID(c.Request.Context(), paymentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "充值单不存在"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询充值单失败"})
			return
		}
		if fp.UserID != userID {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "充值单不存在"})
			return
		}
		if fp.Status != store.FundPaymentStatusPending {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "充值单状态不可支付"})
			return
		}
		if !onlinePayableMethods[fp.Method] {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "该充值方式不支持在线支付"})
			return
		}

		ch, err := opts.Store.GetPaymentChannelByID(c.Request.Context(), req.PaymentChannelID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "支付渠道不存在"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询支付渠道失败"})
			return
		}
		if ch.Status != store.PaymentChannelStatusEnabled {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "支付渠道未启用"})
			return
		}

		ref := "deposit_" + strconv.FormatInt(fp.ID, 10)
		baseURL := requestBaseURL(opts, c)
		idStr := strconv.FormatInt(fp.ID, 10)
		money := fp.Amount.StringFixed(store.AmountScale)

		switch ch.Type {
		case store.PaymentChannelTypeStripe:
			if ch.StripeSecretKey == nil || strings.TrimSpace(*ch.StripeSecretKey) == "" {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "Stripe 渠道未配置或不可用"})
				return
			}
			unitAmount, ok := amountMinorUnits(fp.Amount)
			if !ok {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "充值金额不合法"})
				return
			}
			currency := "cny"
			if ch.StripeCurrency != nil && strings.TrimSpace(*ch.StripeCurrency) != "" {
				currency = strings.ToLower(strings.TrimSpace(*ch.StripeCurrency))
			}

			var customerEmail *string
			if u, err := opts.Store.GetUserByID(c.Request.Context(), fp.UserID); err == nil && u.Email != "" {
				customerEmail = &u.Email
			}

			stripe.Key = strings.TrimSpace(*ch.StripeSecretKey)
			params := &stripe.CheckoutSessionParams{
				SuccessURL:        stripe.String(baseURL + "/deposit/" + idStr + "/success"),
				CancelURL:         stripe.String(baseURL + "/deposit/" + idStr + "/cancel"),
				Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
				ClientReferenceID: stripe.String(ref),
				CustomerEmail:     customerEmail,
				ExpiresAt:         stripe.Int64(time.Now().Add(2 * time.Hour).Unix()),
				LineItems: []*stripe.CheckoutSessionLineItemParams{
					{
						PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
							Currency:   stripe.String(currency),
							UnitAmount: stripe.Int64(unitAmount),
							ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
								Name: stripe.String("余额充值"),
							},
						},
						Quantity: stripe.Int64(1),
					},
				},
			}
			sess, err := stripeCheckout.New(params)
			if err != nil || strings.TrimSpace(sess.URL) == "" {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建 Stripe 支付失败"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{"redirect_url": sess.URL}})
		case store.PaymentChannelTypeEPay:
			if ch.EPayGateway == nil || strings.TrimSpace(*ch.EPayGateway) == "" || ch.EPayPartnerID == nil || strings.TrimSpace(*ch.EPayPartnerID) == "" || ch.EPayKey == nil || strings.TrimSpace(*ch.EPayKey) == "" {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "EPay 渠道未配置或不可用"})
				return
			}
			epayType := "alipay"
			if req.EPayType != nil && strings.TrimSpace(*req.EPayType) != "" {
				epayType = strings.ToLower(strings.TrimSpace(*req.EPayType))
			}
			switch epayType {
			case "alipay", "wxpay", "qqpay":
			default:
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "EPay 支付类型不支持"})
				return
			}

			client, err := epay.NewClient(&epay.Config{
				PartnerID: strings.TrimSpace(*ch.EPayPartnerID),
				Key:       strings.TrimSpace(*ch.EPayKey),
			}, strings.TrimSpace(*ch.EPayGateway))
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "EPay 配置错误"})
				return
			}

			notifyURL, err := url.Parse(baseURL + "/webhook/epay/" + strconv.FormatInt(ch.ID, 10))
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "回调 URL 配置错误"})
				return
			}
			returnURL, err := url.Parse(baseURL + "/deposit/" + idStr)
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "回跳 URL 配置错误"})
				return
			}

			purchaseURL, params, err := client.Purchase(&epay.PurchaseArgs{
				Type:           epayType,
				ServiceTradeNo: ref,
				Name:           "余额充值",
				Money:          money,
				Device:         epay.PC,
				NotifyUrl:      notifyURL,
				ReturnUrl:      returnURL,
			})
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建 EPay 支付失败"})
				return
			}
			u, err := url.Parse(purchaseURL)
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建 EPay 支付失败"})
				return
			}
			q := u.Query()
			for k, v := range params {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": gin.H{"redirect_url": u.String()}})
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "支付渠道类型不支持"})
		}
	}
}

func listUserFundPaymentsHandler(opts Options) gin.HandlerFunc {
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

		list, err := opts.Store.ListFundPaymentsByUser(c.Request.Context(), targetID, queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询充值单失败"})
			return
		}
		items := make([]gin.H, 0, len(list))
		for _, fp := range list {
			items = append(items, fundPaymentView(fp))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

// deleteFundPaymentHandler 只允许本人撤回待审中的充值单；删除以服务端确认为准。
func deleteFundPaymentHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		userID, _ := userIDFromContext(c)
		if err := opts.Store.DeletePendingFundPaymentByOwner(c.Request.Context(), paymentID, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "充值单不存在或已处理"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "撤回充值单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已撤回"})
	}
}

func adminListFundPaymentsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			list []store.FundPayment
			err  error
		)
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			list, err = opts.Store.ListFundPaymentsByStatus(c.Request.Context(), queryInt(c, "status", 0), queryInt(c, "limit", 100))
		} else {
			list, err = opts.Store.ListFundPayments(c.Request.Context(), queryInt(c, "limit", 100))
		}
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询充值单失败"})
			return
		}
		items := make([]gin.H, 0, len(list))
		for _, fp := range list {
			items = append(items, fundPaymentView(fp))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

type decideFundPaymentRequest struct {
	Action  string  `json:"action"`
	PaidRef *string `json:"paid_ref"`
}

func adminDecideFundPaymentHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		var req decideFundPaymentRequest
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

		adminID, _ := userIDFromContext(c)
		err := opts.Store.DecideFundPayment(c.Request.Context(), store.DecideFundPaymentParams{
			PaymentID:            paymentID,
			Approve:              approve,
			DecidedBy:            &adminID,
			PaidRef:              req.PaidRef,
			ReferralBonusPercent: opts.ReferralBonusPercent,
		})
		switch {
		case err == nil:
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "充值单不存在"})
			return
		case errors.Is(err, store.ErrOrderFinalized):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrOrderFinalized.Error()})
			return
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "审批失败，请稍后再试"})
			return
		}

		if approve {
			metrics.DepositsApprovedTotal.Inc()
		}
		fp, err := opts.Store.GetFundPaymentByID(c.Request.Context(), paymentID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询充值单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": fundPaymentView(fp)})
	}
}
