package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// todayRatingClause 返回“按 UTC 自然日过滤评分”的条件；两种方言的 now 均为 UTC。
func todayRatingClause(dialect Dialect) string {
	if dialect == DialectMySQL {
		return "DATE(created_at) = UTC_DATE()"
	}
	return "DATE(created_at) = DATE('now')"
}

func (s *Store) CountRatingsToday(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM ratings
WHERE user_id=? AND `+todayRatingClause(s.dialect), userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计当日评分失败: %w", err)
	}
	return n, nil
}

type SubmitRatingParams struct {
	UserID    int64
	ProductID int64
	Rating    int
	Comment   *string

	// DailyQuota 与 Multiplier 由套餐决定，调用方负责查表。
	DailyQuota int
	Multiplier decimal.Decimal
}

type SubmitRatingResult struct {
	RatingID     int64
	Earning      decimal.Decimal
	Balance      decimal.Decimal
	RatingsToday int
	LuckyCleared bool
}

// SubmitRating 在单个事务内完成：限额校验、去重、收益入账、产品均分更新与幸运单结清。
func (s *Store) SubmitRating(ctx context.Context, params SubmitRatingParams) (SubmitRatingResult, error) {
	if params.Rating < 1 || params.Rating > 5 {
		return SubmitRatingResult{}, errors.New("评分需在 1-5 之间")
	}
	if params.DailyQuota <= 0 {
		return SubmitRatingResult{}, ErrQuotaExhausted
	}
	if params.Multiplier.IsZero() {
		params.Multiplier = DefaultCommissionMultiplier
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SubmitRatingResult{}, fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var income, avg string
	var ratedCount int64
	var productStatus int
	err = tx.QueryRowContext(ctx, `
SELECT income_per_rating, rating_avg, rated_count, status
FROM products
WHERE id=?`+forUpdateClause(s.dialect), params.ProductID).Scan(&income, &avg, &ratedCount, &productStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SubmitRatingResult{}, sql.ErrNoRows
		}
		return SubmitRatingResult{}, fmt.Errorf("锁定产品失败: %w", err)
	}
	if productStatus != ProductStatusOn {
		return SubmitRatingResult{}, sql.ErrNoRows
	}
	incomePerRating, err := decimal.NewFromString(income)
	if err != nil {
		return SubmitRatingResult{}, fmt.Errorf("解析产品收益失败: %w", err)
	}
	ratingAvg, err := decimal.NewFromString(avg)
	if err != nil {
		return SubmitRatingResult{}, fmt.Errorf("解析产品评分失败: %w", err)
	}

	var ratedToday int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(1) FROM ratings
WHERE user_id=? AND `+todayRatingClause(s.dialect), params.UserID).Scan(&ratedToday)
	if err != nil {
		return SubmitRatingResult{}, fmt.Errorf("统计当日评分失败: %w", err)
	}
	if ratedToday >= params.DailyQuota {
		return SubmitRatingResult{}, ErrQuotaExhausted
	}

	earning := incomePerRating.Mul(params.Multiplier).Truncate(AmountScale)

	// 若该产品是用户的待结清幸运单，评分即结清，收益按下单金额乘倍数发放。
	luckyCleared := false
	var luckyID int64
	var luckyAmountRaw, luckyMultRaw string
	err = tx.QueryRowContext(ctx, `
SELECT id, amount, multiplier
FROM lucky_orders
WHERE user_id=? AND product_id=? AND status=?`+forUpdateClause(s.dialect),
		params.UserID, params.ProductID, LuckyOrderStatusActive).Scan(&luckyID, &luckyAmountRaw, &luckyMultRaw)
	switch {
	case err == nil:
		luckyAmount, perr := decimal.NewFromString(luckyAmountRaw)
		if perr != nil {
			return SubmitRatingResult{}, fmt.Errorf("解析幸运单金额失败: %w", perr)
		}
		luckyMult, perr := decimal.NewFromString(luckyMultRaw)
		if perr != nil {
			return SubmitRatingResult{}, fmt.Errorf("解析幸运单倍数失败: %w", perr)
		}
		earning = earning.Add(luckyAmount.Mul(luckyMult)).Truncate(AmountScale)
		if _, err := tx.ExecContext(ctx, `
UPDATE lucky_orders
SET status=?, cleared_at=CURRENT_TIMESTAMP
WHERE id=? AND status=?
`, LuckyOrderStatusCleared, luckyID, LuckyOrderStatusActive); err != nil {
			return SubmitRatingResult{}, fmt.Errorf("结清幸运单失败: %w", err)
		}
		luckyCleared = true
	case errors.Is(err, sql.ErrNoRows):
		// 普通评分，无幸运单。
	default:
		return SubmitRatingResult{}, fmt.Errorf("查询幸运单失败: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO ratings(product_id, user_id, rating, comment, earning, created_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, params.ProductID, params.UserID, params.Rating, params.Comment, earning.StringFixed(AmountScale))
	if err != nil {
		if isUniqueViolation(err) {
			return SubmitRatingResult{}, ErrAlreadyRated
		}
		return SubmitRatingResult{}, fmt.Errorf("写入评分失败: %w", err)
	}
	ratingID, err := res.LastInsertId()
	if err != nil {
		return SubmitRatingResult{}, fmt.Errorf("获取评分 id 失败: %w", err)
	}

	balance, err := AddUserBalance(ctx, tx, s.dialect, params.UserID, earning)
	if err != nil {
		return SubmitRatingResult{}, err
	}

	newCount := ratedCount + 1
	newAvg := ratingAvg.Mul(decimal.NewFromInt(ratedCount)).
		Add(decimal.NewFromInt(int64(params.Rating))).
		Div(decimal.NewFromInt(newCount)).
		Truncate(RateScale)
	if _, err := tx.ExecContext(ctx, `
UPDATE products
SET rating_avg=?, rated_count=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, newAvg.StringFixed(RateScale), newCount, params.ProductID); err != nil {
		return SubmitRatingResult{}, fmt.Errorf("更新产品评分失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SubmitRatingResult{}, fmt.Errorf("提交事务失败: %w", err)
	}
	return SubmitRatingResult{
		RatingID:     ratingID,
		Earning:      earning,
		Balance:      balance,
		RatingsToday: ratedToday + 1,
		LuckyCleared: luckyCleared,
	}, nil
}

const ratingColumns = `id, product_id, user_id, rating, comment, earning, created_at`

func scanRating(row interface{ Scan(...any) error }) (Rating, error) {
	var r Rating
	var comment sql.NullString
	var earning string
	err := row.Scan(&r.ID, &r.ProductID, &r.UserID, &r.Rating, &comment, &earning, &r.CreatedAt)
	if err != nil {
		return Rating{}, err
	}
	if comment.Valid {
		v := comment.String
		r.Comment = &v
	}
	if r.Earning, err = decimal.NewFromString(earning); err != nil {
		return Rating{}, fmt.Errorf("解析评分收益失败: %w", err)
	}
	return r, nil
}

func (s *Store) ListRatingsByUser(ctx context.Context, userID int64, limit int) ([]Rating, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+ratingColumns+` FROM ratings
WHERE user_id=?
ORDER BY id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询评分记录失败: %w", err)
	}
	defer rows.Close()

	var out []Rating
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描评分失败: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历评分失败: %w", err)
	}
	return out, nil
}

func (s *Store) GetRatingByProductAndUser(ctx context.Context, productID, userID int64) (Rating, error) {
	r, err := scanRating(s.db.QueryRowContext(ctx, `
SELECT `+ratingColumns+` FROM ratings
WHERE product_id=? AND user_id=?`, productID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rating{}, sql.ErrNoRows
		}
		return Rating{}, fmt.Errorf("查询评分失败: %w", err)
	}
	return r, nil
}
