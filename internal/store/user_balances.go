package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

func (s *Store) GetUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM user_balances WHERE user_id=?`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("查询用户余额失败: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析用户余额失败: %w", err)
	}
	return amount, nil
}

// AddUserBalance 在已有事务中调整余额；delta 可为负，余额不足时返回 ErrInsufficientBalance。
func AddUserBalance(ctx context.Context, tx *sql.Tx, dialect Dialect, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	delta = delta.Truncate(AmountScale)

	_, err := tx.ExecContext(ctx, insertIgnoreVerb(dialect)+` INTO user_balances(user_id, amount, updated_at)
VALUES(?, ?, CURRENT_TIMESTAMP)`, userID, decimal.Zero.StringFixed(AmountScale))
	if err != nil {
		return decimal.Zero, fmt.Errorf("初始化用户余额失败: %w", err)
	}

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT amount FROM user_balances WHERE user_id=?`+forUpdateClause(dialect), userID).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("锁定用户余额失败: %w", err)
	}
	current, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析用户余额失败: %w", err)
	}

	next := current.Add(delta).Truncate(AmountScale)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
UPDATE user_balances
SET amount=?, updated_at=CURRENT_TIMESTAMP
WHERE user_id=?
`, next.StringFixed(AmountScale), userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("更新用户余额失败: %w", err)
	}
	return next, nil
}
