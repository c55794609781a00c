package server

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Calcium-Ion/go-epay/epay"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	stripeWebhook "github.com/stripe/stripe-go/v81/webhook"

	"ratemall/internal/metrics"
	"ratemall/internal/store"
)

const webhookMaxBodyBytes = 1 << 20

// parseDepositRef 解析网关回传的业务单号（形如 deposit_123）。
func parseDepositRef(ref string) (int64, bool) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "deposit_") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(ref, "deposit_"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "¥")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	if d.Exponent() < -store.AmountScale {
		return decimal.Zero, false
	}
	return d.Truncate(store.AmountScale), true
}

func parsePaymentChannelID(path string, prefix string) (int64, bool) {
	if !strings.HasPrefix(path, prefix) {
		return 0, false
	}
	idRaw := strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// approveDepositFromGateway 将网关确认到账的充值单置为通过。
// 金额必须与单据一致；终态单据视为重复通知，直接吞掉。
func (a *App) approveDepositFromGateway(r *http.Request, paymentID int64, paid decimal.Decimal, paidRef *string) (ok bool, fatal bool) {
	fp, err := a.store.GetFundPaymentByID(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false
		}
		return false, true
	}
	if !paid.Equal(fp.Amount.Truncate(store.AmountScale)) {
		return false, false
	}
	err = a.store.DecideFundPayment(r.Context(), store.DecideFundPaymentParams{
		PaymentID:            paymentID,
		Approve:              true,
		PaidRef:              paidRef,
		ReferralBonusPercent: a.cfg.Referral.BonusPercent,
	})
	if err != nil {
		if errors.Is(err, store.ErrOrderFinalized) || errors.Is(err, sql.ErrNoRows) {
			return false, false
		}
		return false, true
	}
	metrics.DepositsApprovedTotal.Inc()
	return true, false
}

func (a *App) handleStripeWebhookByPaymentChannel(w http.ResponseWriter, r *http.Request) {
	channelID, ok := parsePaymentChannelID(r.URL.Path, "/webhook/stripe/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	ch, err := a.store.GetPaymentChannelByID(r.Context(), channelID)
	if err != nil || ch.Status != store.PaymentChannelStatusEnabled || ch.Type != store.PaymentChannelTypeStripe {
		http.NotFound(w, r)
		return
	}
	if ch.StripeWebhookSecret == nil || strings.TrimSpace(*ch.StripeWebhookSecret) == "" {
		http.NotFound(w, r)
		return
	}

	currency := "cny"
	if ch.StripeCurrency != nil && strings.TrimSpace(*ch.StripeCurrency) != "" {
		currency = strings.ToLower(strings.TrimSpace(*ch.StripeCurrency))
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBodyBytes))
	if err != nil || len(payload) == 0 {
		http.Error(w, "请求体为空", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := stripeWebhook.ConstructEventWithOptions(payload, signature, strings.TrimSpace(*ch.StripeWebhookSecret), stripeWebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "验签失败", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		ref := strings.TrimSpace(event.GetObjectValue("client_reference_id"))
		status := strings.TrimSpace(event.GetObjectValue("status"))
		if status != "complete" {
			break
		}
		paymentID, ok := parseDepositRef(ref)
		if !ok {
			break
		}
		amountTotalRaw := strings.TrimSpace(event.GetObjectValue("amount_total"))
		amountTotal, err := strconv.ParseInt(amountTotalRaw, 10, 64)
		if err != nil || amountTotal <= 0 {
			break
		}
		eventCurrency := strings.ToLower(strings.TrimSpace(event.GetObjectValue("currency")))
		if eventCurrency != "" && eventCurrency != currency {
			break
		}

		paid := decimal.New(amountTotal, -store.AmountScale)

		paidRef := strings.TrimSpace(event.GetObjectValue("id")) // Checkout Session ID
		var paidRefPtr *string
		if paidRef != "" {
			paidRefPtr = &paidRef
		}

		if _, fatal := a.approveDepositFromGateway(r, paymentID, paid, paidRefPtr); fatal {
			http.Error(w, "处理失败", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (a *App) handleEPayNotifyByPaymentChannel(w http.ResponseWriter, r *http.Request) {
	channelID, ok := parsePaymentChannelID(r.URL.Path, "/webhook/epay/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	ch, err := a.store.GetPaymentChannelByID(r.Context(), channelID)
	if err != nil || ch.Status != store.PaymentChannelStatusEnabled || ch.Type != store.PaymentChannelTypeEPay {
		http.NotFound(w, r)
		return
	}
	if ch.EPayGateway == nil || strings.TrimSpace(*ch.EPayGateway) == "" || ch.EPayPartnerID == nil || strings.TrimSpace(*ch.EPayPartnerID) == "" || ch.EPayKey == nil || strings.TrimSpace(*ch.EPayKey) == "" {
		http.NotFound(w, r)
		return
	}

	client, err := epay.NewClient(&epay.Config{
		PartnerID: strings.TrimSpace(*ch.EPayPartnerID),
		Key:       strings.TrimSpace(*ch.EPayKey),
	}, strings.TrimSpace(*ch.EPayGateway))
	if err != nil {
		http.Error(w, "配置错误", http.StatusInternalServerError)
		return
	}

	params := make(map[string]string)
	q := r.URL.Query()
	for k := range q {
		params[k] = q.Get(k)
	}

	verifyInfo, err := client.Verify(params)
	if err != nil || !verifyInfo.VerifyStatus {
		_, _ = w.Write([]byte("fail"))
		return
	}
	_, _ = w.Write([]byte("success"))

	if verifyInfo.TradeStatus != epay.StatusTradeSuccess {
		return
	}

	paymentID, ok := parseDepositRef(verifyInfo.ServiceTradeNo)
	if !ok {
		return
	}

	paid, ok := parseAmount(verifyInfo.Money)
	if !ok || paid.LessThanOrEqual(decimal.Zero) {
		return
	}

	paidRef := strings.TrimSpace(verifyInfo.TradeNo)
	var paidRefPtr *string
	if paidRef != "" {
		paidRefPtr = &paidRef
	}

	_, _ = a.approveDepositFromGateway(r, paymentID, paid, paidRefPtr)
}
