package router

import (
	"net/http"

	"github.com/shopspring/decimal"

	"ratemall/internal/store"
	"ratemall/internal/uploads"
)

type Options struct {
	Store   *store.Store
	Uploads *uploads.Storage

	AllowOpenRegistration bool
	PublicBaseURL         string

	DepositMinAmount     decimal.Decimal
	ReferralBonusPercent decimal.Decimal
	PayoutMinAmount      decimal.Decimal

	// system
	Healthz http.HandlerFunc

	// payments/webhooks
	StripeWebhookByPaymentChannel http.HandlerFunc
	EPayNotifyByPaymentChannel    http.HandlerFunc
}
