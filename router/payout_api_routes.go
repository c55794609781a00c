package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"ratemall/internal/metrics"
	"ratemall/internal/quota"
	"ratemall/internal/store"
)

func setPayoutAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/payout/submit", requireUser(opts), submitPayoutHandler(opts))
	r.GET("/payout", requireUser(opts), listOwnPayoutsHandler(opts))

	r.GET("/payout/admin/all", requireAdmin(opts), adminListPayoutsHandler(opts))
	r.PATCH("/payout/admin/:id", requireAdmin(opts), adminProcessPayoutHandler(opts))
}

func payoutView(p store.PayoutRequest) gin.H {
	view := gin.H{
		"id":           p.ID,
		"user_id":      p.UserID,
		"amount":       p.Amount.StringFixed(store.AmountScale),
		"method":       p.Method,
		"detail":       json.RawMessage(p.Detail),
		"status":       p.Status,
		"requested_at": p.RequestedAt,
	}
	if p.ProcessedAt != nil {
		view["processed_at"] = *p.ProcessedAt
	}
	return view
}

type submitPayoutRequest struct {
	Amount string          `json:"amount"`
	Method string          `json:"method"`
	Detail json.RawMessage `json:"detail"`
}

var payoutMethods = map[string]bool{
	"usdt": true,
	"bank": true,
}

// submitPayoutHandler 提现前置条件：当日评分任务做完、余额足够、金额不低于下限。
func submitPayoutHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)

		var req submitPayoutRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil || !amount.IsPositive() {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "提现金额不正确"})
			return
		}
		if amount.LessThan(opts.PayoutMinAmount) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "提现金额低于最低限额 " + opts.PayoutMinAmount.StringFixed(store.AmountScale)})
			return
		}
		method := strings.TrimSpace(req.Method)
		if !payoutMethods[method] {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "不支持的提现方式"})
			return
		}
		detail := strings.TrimSpace(string(req.Detail))
		if detail == "" || !gjson.Valid(detail) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "收款信息格式不正确"})
			return
		}
		switch method {
		case "usdt":
			if gjson.Get(detail, "address").String() == "" {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "USDT 地址不能为空"})
				return
			}
		case "bank":
			if gjson.Get(detail, "account").String() == "" {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "银行账号不能为空"})
				return
			}
		}

		plan := quota.Lookup(userPlanFromContext(c))
		id, err := opts.Store.CreatePayoutRequest(c.Request.Context(), store.CreatePayoutParams{
			UserID:     userID,
			Amount:     amount,
			Method:     method,
			Detail:     detail,
			DailyQuota: plan.DailyQuota,
		})
		switch {
		case err == nil:
		case errors.Is(err, store.ErrPayoutBlocked):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrPayoutBlocked.Error()})
			return
		case errors.Is(err, store.ErrInsufficientBalance):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrInsufficientBalance.Error()})
			return
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "提现申请失败，请稍后再试"})
			return
		}

		p, err := opts.Store.GetPayoutRequestByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询提现单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已提交，等待处理", "data": payoutView(p)})
	}
}

func listOwnPayoutsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)
		list, err := opts.Store.ListPayoutRequestsByUser(c.Request.Context(), userID, queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询提现单失败"})
			return
		}
		items := make([]gin.H, 0, len(list))
		for _, p := range list {
			items = append(items, payoutView(p))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

func adminListPayoutsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			list []store.PayoutRequest
			err  error
		)
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			list, err = opts.Store.ListPayoutRequestsByStatus(c.Request.Context(), queryInt(c, "status", 0), queryInt(c, "limit", 100))
		} else {
			list, err = opts.Store.ListPayoutRequests(c.Request.Context(), queryInt(c, "limit", 100))
		}
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询提现单失败"})
			return
		}
		items := make([]gin.H, 0, len(list))
		for _, p := range list {
			items = append(items, payoutView(p))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

type processPayoutRequest struct {
	Action string `json:"action"`
}

func adminProcessPayoutHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		payoutID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		var req processPayoutRequest
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
		err := opts.Store.ProcessPayoutRequest(c.Request.Context(), payoutID, approve, &adminID)
		switch {
		case err == nil:
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "提现单不存在"})
			return
		case errors.Is(err, store.ErrOrderFinalized):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrOrderFinalized.Error()})
			return
		case errors.Is(err, store.ErrInsufficientBalance):
			c.JSON(http.StatusOK, gin.H{"success": false, "message": store.ErrInsufficientBalance.Error()})
			return
		default:
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "处理失败，请稍后再试"})
			return
		}

		if approve {
			metrics.PayoutsCompletedTotal.Inc()
		}
		p, err := opts.Store.GetPayoutRequestByID(c.Request.Context(), payoutID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询提现单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": payoutView(p)})
	}
}
