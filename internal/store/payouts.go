package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	PayoutStatusPending   = 0
	PayoutStatusCompleted = 1
	PayoutStatusRejected  = 2
)

const payoutColumns = `id, user_id, amount, method, detail, status, requested_at, processed_at, processed_by`

func scanPayout(row interface{ Scan(...any) error }) (PayoutRequest, error) {
	var p PayoutRequest
	var amount string
	var processedAt sql.NullTime
	var processedBy sql.NullInt64
	err := row.Scan(&p.ID, &p.UserID, &amount, &p.Method, &p.Detail, &p.Status, &p.RequestedAt, &processedAt, &processedBy)
	if err != nil {
		return PayoutRequest{}, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return PayoutRequest{}, fmt.Errorf("解析提现金额失败: %w", err)
	}
	if processedAt.Valid {
		v := processedAt.Time
		p.ProcessedAt = &v
	}
	if processedBy.Valid && processedBy.Int64 > 0 {
		v := processedBy.Int64
		p.ProcessedBy = &v
	}
	return p, nil
}

type CreatePayoutParams struct {
	UserID int64
	Amount decimal.Decimal
	Method string
	Detail string

	// DailyQuota 用于校验“当日任务做完才可提现”。
	DailyQuota int
}

// CreatePayoutRequest 申请提现；当日评分额度未用完返回 ErrPayoutBlocked，
// 余额不足返回 ErrInsufficientBalance。实际扣款在审批通过时进行。
func (s *Store) CreatePayoutRequest(ctx context.Context, params CreatePayoutParams) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ratedToday int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(1) FROM ratings
WHERE user_id=? AND `+todayRatingClause(s.dialect), params.UserID).Scan(&ratedToday)
	if err != nil {
		return 0, fmt.Errorf("统计当日评分失败: %w", err)
	}
	if ratedToday < params.DailyQuota {
		return 0, ErrPayoutBlocked
	}

	var balanceRaw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT amount FROM user_balances WHERE user_id=?`+forUpdateClause(s.dialect), params.UserID).Scan(&balanceRaw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("查询用户余额失败: %w", err)
	}
	balance := decimal.Zero
	if balanceRaw.Valid {
		if balance, err = decimal.NewFromString(balanceRaw.String); err != nil {
			return 0, fmt.Errorf("解析用户余额失败: %w", err)
		}
	}
	amount := params.Amount.Truncate(AmountScale)
	if amount.GreaterThan(balance) {
		return 0, ErrInsufficientBalance
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO payout_requests(user_id, amount, method, detail, status, requested_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, params.UserID, amount.StringFixed(AmountScale), params.Method, params.Detail, PayoutStatusPending)
	if err != nil {
		return 0, fmt.Errorf("创建提现单失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取提现单 id 失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetPayoutRequestByID(ctx context.Context, id int64) (PayoutRequest, error) {
	p, err := scanPayout(s.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PayoutRequest{}, sql.ErrNoRows
		}
		return PayoutRequest{}, fmt.Errorf("查询提现单失败: %w", err)
	}
	return p, nil
}

func (s *Store) ListPayoutRequestsByUser(ctx context.Context, userID int64, limit int) ([]PayoutRequest, error) {
	return s.listPayouts(ctx, `WHERE user_id=?`, []any{userID}, limit)
}

func (s *Store) ListPayoutRequestsByStatus(ctx context.Context, status int, limit int) ([]PayoutRequest, error) {
	return s.listPayouts(ctx, `WHERE status=?`, []any{status}, limit)
}

func (s *Store) ListPayoutRequests(ctx context.Context, limit int) ([]PayoutRequest, error) {
	return s.listPayouts(ctx, ``, nil, limit)
}

func (s *Store) listPayouts(ctx context.Context, where string, args []any, limit int) ([]PayoutRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + payoutColumns + ` FROM payout_requests ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询提现单列表失败: %w", err)
	}
	defer rows.Close()

	var out []PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描提现单失败: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历提现单失败: %w", err)
	}
	return out, nil
}

// ProcessPayoutRequest 审批提现单；通过时在同一事务中扣减余额，终态幂等。
func (s *Store) ProcessPayoutRequest(ctx context.Context, payoutID int64, approve bool, processedBy *int64) error {
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
FROM payout_requests
WHERE id=?`+forUpdateClause(s.dialect), payoutID).Scan(&userID, &amountRaw, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("锁定提现单失败: %w", err)
	}
	if status != PayoutStatusPending {
		return ErrOrderFinalized
	}
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return fmt.Errorf("解析提现金额失败: %w", err)
	}

	nextStatus := PayoutStatusRejected
	if approve {
		nextStatus = PayoutStatusCompleted
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE payout_requests
SET status=?, processed_at=CURRENT_TIMESTAMP, processed_by=?
WHERE id=? AND status=?
`, nextStatus, processedBy, payoutID, PayoutStatusPending); err != nil {
		return fmt.Errorf("更新提现单失败: %w", err)
	}

	if approve {
		if _, err := AddUserBalance(ctx, tx, s.dialect, userID, amount.Neg()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}
