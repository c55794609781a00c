package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	PaymentChannelTypeStripe = "stripe"
	PaymentChannelTypeEPay   = "epay"
)

const (
	PaymentChannelStatusDisabled = 0
	PaymentChannelStatusEnabled  = 1
)

const paymentChannelColumns = `id, type, name, status, stripe_currency, stripe_secret_key, stripe_webhook_secret, epay_gateway, epay_partner_id, epay_key, created_at, updated_at`

func scanPaymentChannel(row interface{ Scan(...any) error }) (PaymentChannel, error) {
	var ch PaymentChannel
	var stripeCurrency, stripeSecret, stripeWebhook, epayGateway, epayPartner, epayKey sql.NullString
	err := row.Scan(&ch.ID, &ch.Type, &ch.Name, &ch.Status,
		&stripeCurrency, &stripeSecret, &stripeWebhook,
		&epayGateway, &epayPartner, &epayKey,
		&ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return PaymentChannel{}, err
	}
	assign := func(dst **string, src sql.NullString) {
		if src.Valid && src.String != "" {
			v := src.String
			*dst = &v
		}
	}
	assign(&ch.StripeCurrency, stripeCurrency)
	assign(&ch.StripeSecretKey, stripeSecret)
	assign(&ch.StripeWebhookSecret, stripeWebhook)
	assign(&ch.EPayGateway, epayGateway)
	assign(&ch.EPayPartnerID, epayPartner)
	assign(&ch.EPayKey, epayKey)
	return ch, nil
}

type UpsertPaymentChannelParams struct {
	Type   string
	Name   string
	Status int

	StripeCurrency      *string
	StripeSecretKey     *string
	StripeWebhookSecret *string

	EPayGateway   *string
	EPayPartnerID *string
	EPayKey       *string
}

func (s *Store) CreatePaymentChannel(ctx context.Context, params UpsertPaymentChannelParams) (int64, error) {
	typ := strings.TrimSpace(params.Type)
	if typ != PaymentChannelTypeStripe && typ != PaymentChannelTypeEPay {
		return 0, errors.New("不支持的支付渠道类型")
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO payment_channels(type, name, status, stripe_currency, stripe_secret_key, stripe_webhook_secret, epay_gateway, epay_partner_id, epay_key, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`, typ, params.Name, params.Status,
		params.StripeCurrency, params.StripeSecretKey, params.StripeWebhookSecret,
		params.EPayGateway, params.EPayPartnerID, params.EPayKey)
	if err != nil {
		return 0, fmt.Errorf("创建支付渠道失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取支付渠道 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetPaymentChannelByID(ctx context.Context, channelID int64) (PaymentChannel, error) {
	ch, err := scanPaymentChannel(s.db.QueryRowContext(ctx, `SELECT `+paymentChannelColumns+` FROM payment_channels WHERE id=?`, channelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PaymentChannel{}, sql.ErrNoRows
		}
		return PaymentChannel{}, fmt.Errorf("查询支付渠道失败: %w", err)
	}
	return ch, nil
}

func (s *Store) ListPaymentChannels(ctx context.Context, enabledOnly bool) ([]PaymentChannel, error) {
	q := `SELECT ` + paymentChannelColumns + ` FROM payment_channels`
	args := []any{}
	if enabledOnly {
		q += ` WHERE status=?`
		args = append(args, PaymentChannelStatusEnabled)
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询支付渠道列表失败: %w", err)
	}
	defer rows.Close()

	var out []PaymentChannel
	for rows.Next() {
		ch, err := scanPaymentChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描支付渠道失败: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历支付渠道失败: %w", err)
	}
	return out, nil
}

func (s *Store) UpdatePaymentChannel(ctx context.Context, channelID int64, params UpsertPaymentChannelParams) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE payment_channels
SET name=?, status=?,
    stripe_currency=COALESCE(?, stripe_currency),
    stripe_secret_key=COALESCE(?, stripe_secret_key),
    stripe_webhook_secret=COALESCE(?, stripe_webhook_secret),
    epay_gateway=COALESCE(?, epay_gateway),
    epay_partner_id=COALESCE(?, epay_partner_id),
    epay_key=COALESCE(?, epay_key),
    updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, params.Name, params.Status,
		params.StripeCurrency, params.StripeSecretKey, params.StripeWebhookSecret,
		params.EPayGateway, params.EPayPartnerID, params.EPayKey,
		channelID)
	if err != nil {
		return fmt.Errorf("更新支付渠道失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeletePaymentChannel(ctx context.Context, channelID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payment_channels WHERE id=?`, channelID)
	if err != nil {
		return fmt.Errorf("删除支付渠道失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
