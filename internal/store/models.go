// Package store 定义数据库层的核心数据结构，避免在 handler 中散落 SQL 字段细节。
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash []byte
	Role         string
	Plan         string
	Status       int
	ReferralCode string
	ReferredBy   *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserSession struct {
	ID          int64
	UserID      int64
	SessionHash []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

type Product struct {
	ID              int64
	Name            string
	Description     *string
	IncomePerRating decimal.Decimal
	Plan            string
	IsLucky         bool
	ImagePath       *string
	RatingAvg       decimal.Decimal
	RatedCount      int64
	Status          int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Rating struct {
	ID        int64
	ProductID int64
	UserID    int64
	Rating    int
	Comment   *string
	Earning   decimal.Decimal
	CreatedAt time.Time
}

type FundPayment struct {
	ID          int64
	UserID      int64
	Amount      decimal.Decimal
	Method      string
	ProofPath   *string
	Status      int
	PaidRef     *string
	RequestedAt time.Time
	DecidedAt   *time.Time
	DecidedBy   *int64
}

type PayoutRequest struct {
	ID          int64
	UserID      int64
	Amount      decimal.Decimal
	Method      string
	// Detail 按 method 存放收款信息：usdt 为地址，bank 为开户行/户名/卡号拼接后的 JSON。
	Detail      string
	Status      int
	RequestedAt time.Time
	ProcessedAt *time.Time
	ProcessedBy *int64
}

type Ticket struct {
	ID              int64
	UserID          int64
	Subject         string
	Status          int
	LastMessageAt   time.Time
	UserLastReadAt  *time.Time
	AdminLastReadAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TicketMessage struct {
	ID          int64
	TicketID    int64
	ActorType   string
	ActorUserID *int64
	Body        string
	CreatedAt   time.Time
}

type TicketAttachment struct {
	ID             int64
	TicketID       int64
	MessageID      int64
	UploaderUserID *int64
	OriginalName   string
	ContentType    *string
	SizeBytes      int64
	StorageRelPath string
	CreatedAt      time.Time
}

type Ad struct {
	ID          int64
	UserID      int64
	Title       string
	Description *string
	ImagePath   *string
	Status      int
	Views       int64
	RatingAvg   decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type LuckyOrder struct {
	ID         int64
	UserID     int64
	ProductID  int64
	Amount     decimal.Decimal
	Multiplier decimal.Decimal
	Status     int
	CreatedAt  time.Time
	ClearedAt  *time.Time
}

type PaymentChannel struct {
	ID     int64
	Type   string
	Name   string
	Status int

	StripeCurrency      *string
	StripeSecretKey     *string
	StripeWebhookSecret *string

	EPayGateway   *string
	EPayPartnerID *string
	EPayKey       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserBalance struct {
	UserID    int64
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
