package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	FundPaymentStatusPending  = 0
	FundPaymentStatusApproved = 1
	FundPaymentStatusRejected = 2
)

const fundPaymentColumns = `id, user_id, amount, method, proof_path, status, paid_ref, requested_at, decided_at, decided_by`

func scanFundPayment(row interface{ Scan(...any) error }) (FundPayment, error) {
	var fp FundPayment
	var amount string
	var proofPath, paidRef sql.NullString
	var decidedAt sql.NullTime
	var decidedBy sql.NullInt64
	err := row.Scan(&fp.ID, &fp.UserID, &amount, &fp.Method, &proofPath, &fp.Status, &paidRef, &fp.RequestedAt, &decidedAt, &decidedBy)
	if err != nil {
		return FundPayment{}, err
	}
	if fp.Amount, err = decimal.NewFromString(amount); err != nil {
		return FundPayment{}, fmt.Errorf("解析充值金额失败: %w", err)
	}
	if proofPath.Valid && proofPath.String != "" {
		v := proofPath.String
		fp.ProofPath = &v
	}
	if paidRef.Valid && paidRef.String != "" {
		v := paidRef.String
		fp.PaidRef = &v
	}
	if decidedAt.Valid {
		v := decidedAt.Time
		fp.DecidedAt = &v
	}
	if decidedBy.Valid && decidedBy.Int64 > 0 {
		v := decidedBy.Int64
		fp.DecidedBy = &v
	}
	return fp, nil
}

func (s *Store) CreateFundPayment(ctx context.Context, userID int64, amount decimal.Decimal, method string, proofPath *string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO fund_payments(user_id, amount, method, proof_path, status, requested_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, userID, amount.Truncate(AmountScale).StringFixed(AmountScale), method, proofPath, FundPaymentStatusPending)
	if err != nil {
		return 0, fmt.Errorf("创建充值单失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取充值单 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetFundPaymentByID(ctx context.Context, id int64) (FundPayment, error) {
	fp, err := scanFundPayment(s.db.QueryRowContext(ctx, `SELECT `+fundPaymentColumns+` FROM fund_payments WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FundPayment{}, sql.ErrNoRows
		}
		return FundPayment{}, fmt.Errorf("查询充值单失败: %w", err)
	}
	return fp, nil
}

func (s *Store) ListFundPaymentsByUser(ctx context.Context, userID int64, limit int) ([]FundPayment, error) {
	return s.listFundPayments(ctx, `WHERE user_id=?`, []any{userID}, limit)
}

func (s *Store) ListFundPaymentsByStatus(ctx context.Context, status int, limit int) ([]FundPayment, error) {
	return s.listFundPayments(ctx, `WHERE status=?`, []any{status}, limit)
}

func (s *Store) ListFundPayments(ctx context.Context, limit int) ([]FundPayment, error) {
	return s.listFundPayments(ctx, ``, nil, limit)
}

func (s *Store) listFundPayments(ctx context.Context, where string, args []any, limit int) ([]FundPayment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + fundPaymentColumns + ` FROM fund_payments ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询充值单列表失败: %w", err)
	}
	defer rows.Close()

	var out []FundPayment
	for rows.Next() {
		fp, err := scanFundPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描充值单失败: %w", err)
		}
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历充值单失败: %w", err)
	}
	return out, nil
}

type DecideFundPaymentParams struct {
	PaymentID int64
	Approve   bool
	DecidedBy *int64
	PaidRef   *string

	// ReferralBonusPercent 为首充奖励比例（如 0.05）；零值表示不发放。
	ReferralBonusPercent decimal.Decimal
}

// DecideFundPayment 审批充值单；终态幂等（重复审批返回 ErrOrderFinalized），
// 通过时入账余额，若为被邀请用户的首笔通过充值则给邀请人发放奖励。
func (s *Store) DecideFundPayment(ctx context.Context, params DecideFundPaymentParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID int64
	var amountRaw string
	var status int
	err = tx.QueryRowContext(ctx, `
SELECT user_id, amount, status
FROM fund_payments
WHERE id=?`+forUpdateClause(s.dialect), params.PaymentID).Scan(&userID, &amountRaw, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("锁定充值单失败: %w", err)
	}
	if status != FundPaymentStatusPending {
		return ErrOrderFinalized
	}
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return fmt.Errorf("解析充值金额失败: %w", err)
	}

	nextStatus := FundPaymentStatusRejected
	if params.Approve {
		nextStatus = FundPaymentStatusApproved
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE fund_payments
SET status=?, paid_ref=COALESCE(?, paid_ref), decided_at=CURRENT_TIMESTAMP, decided_by=?
WHERE id=? AND status=?
`, nextStatus, params.PaidRef, params.DecidedBy, params.PaymentID, FundPaymentStatusPending); err != nil {
		return fmt.Errorf("更新充值单失败: %w", err)
	}

	if params.Approve {
		if _, err := AddUserBalance(ctx, tx, s.dialect, userID, amount); err != nil {
			return err
		}
		if err := s.creditReferralBonus(ctx, tx, userID, params.PaymentID, amount, params.ReferralBonusPercent); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// creditReferralBonus 仅在本单是该用户第一笔已通过充值时触发。
func (s *Store) creditReferralBonus(ctx context.Context, tx *sql.Tx, userID, paymentID int64, amount, percent decimal.Decimal) error {
	if !percent.IsPositive() {
		return nil
	}

	var referredBy sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT referred_by FROM users WHERE id=?`, userID).Scan(&referredBy)
	if err != nil {
		return fmt.Errorf("查询邀请关系失败: %w", err)
	}
	if !referredBy.Valid || referredBy.Int64 <= 0 {
		return nil
	}

	var earlier int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(1) FROM fund_payments
WHERE user_id=? AND status=? AND id<>?
`, userID, FundPaymentStatusApproved, paymentID).Scan(&earlier)
	if err != nil {
		return fmt.Errorf("统计历史充值失败: %w", err)
	}
	if earlier > 0 {
		return nil
	}

	bonus := amount.Mul(percent).Truncate(AmountScale)
	if !bonus.IsPositive() {
		return nil
	}
	if _, err := AddUserBalance(ctx, tx, s.dialect, referredBy.Int64, bonus); err != nil {
		return fmt.Errorf("发放邀请奖励失败: %w", err)
	}
	return nil
}

// DeletePendingFundPaymentByOwner 允许用户撤回自己仍在待审的充值单。
func (s *Store) DeletePendingFundPaymentByOwner(ctx context.Context, paymentID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM fund_payments
WHERE id=? AND user_id=? AND status=?
`, paymentID, userID, FundPaymentStatusPending)
	if err != nil {
		return fmt.Errorf("删除充值单失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
