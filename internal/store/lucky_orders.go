package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	LuckyOrderStatusActive  = 0
	LuckyOrderStatusCleared = 1
)

const luckyOrderColumns = `id, user_id, product_id, amount, multiplier, status, created_at, cleared_at`

func scanLuckyOrder(row interface{ Scan(...any) error }) (LuckyOrder, error) {
	var o LuckyOrder
	var amount, mult string
	var clearedAt sql.NullTime
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &amount, &mult, &o.Status, &o.CreatedAt, &clearedAt)
	if err != nil {
		return LuckyOrder{}, err
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return LuckyOrder{}, fmt.Errorf("解析幸运单金额失败: %w", err)
	}
	if o.Multiplier, err = decimal.NewFromString(mult); err != nil {
		return LuckyOrder{}, fmt.Errorf("解析幸运单倍数失败: %w", err)
	}
	if clearedAt.Valid {
		v := clearedAt.Time
		o.ClearedAt = &v
	}
	return o, nil
}

// AssignLuckyOrder 给用户派发幸运单；同一用户同时只允许一张待结清的单。
func (s *Store) AssignLuckyOrder(ctx context.Context, userID, productID int64, amount, multiplier decimal.Decimal) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(1) FROM lucky_orders
WHERE user_id=? AND status=?`+forUpdateClause(s.dialect), userID, LuckyOrderStatusActive).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("查询幸运单失败: %w", err)
	}
	if existing > 0 {
		return 0, ErrOrderFinalized
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO lucky_orders(user_id, product_id, amount, multiplier, status, created_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, userID, productID, amount.Truncate(AmountScale).StringFixed(AmountScale), multiplier.Truncate(RateScale).StringFixed(RateScale), LuckyOrderStatusActive)
	if err != nil {
		return 0, fmt.Errorf("创建幸运单失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取幸运单 id 失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetActiveLuckyOrderByUser(ctx context.Context, userID int64) (LuckyOrder, error) {
	o, err := scanLuckyOrder(s.db.QueryRowContext(ctx, `
SELECT `+luckyOrderColumns+` FROM lucky_orders
WHERE user_id=? AND status=?
ORDER BY id DESC
LIMIT 1`, userID, LuckyOrderStatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LuckyOrder{}, sql.ErrNoRows
		}
		return LuckyOrder{}, fmt.Errorf("查询幸运单失败: %w", err)
	}
	return o, nil
}

func (s *Store) ListLuckyOrdersByUser(ctx context.Context, userID int64, limit int) ([]LuckyOrder, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+luckyOrderColumns+` FROM lucky_orders
WHERE user_id=?
ORDER BY id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询幸运单列表失败: %w", err)
	}
	defer rows.Close()

	var out []LuckyOrder
	for rows.Next() {
		o, err := scanLuckyOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描幸运单失败: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历幸运单失败: %w", err)
	}
	return out, nil
}
