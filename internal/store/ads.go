package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	AdStatusPending  = 0
	AdStatusApproved = 1
	AdStatusRejected = 2
)

const adColumns = `id, user_id, title, description, image_path, status, views, rating_avg, created_at, updated_at`

func scanAd(row interface{ Scan(...any) error }) (Ad, error) {
	var a Ad
	var desc, imagePath sql.NullString
	var avg string
	err := row.Scan(&a.ID, &a.UserID, &a.Title, &desc, &imagePath, &a.Status, &a.Views, &avg, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Ad{}, err
	}
	if desc.Valid {
		v := desc.String
		a.Description = &v
	}
	if imagePath.Valid && imagePath.String != "" {
		v := imagePath.String
		a.ImagePath = &v
	}
	if a.RatingAvg, err = decimal.NewFromString(avg); err != nil {
		return Ad{}, fmt.Errorf("解析广告评分失败: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAd(ctx context.Context, userID int64, title string, description *string, imagePath *string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO ads(user_id, title, description, image_path, status, views, rating_avg, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`, userID, title, description, imagePath, AdStatusPending)
	if err != nil {
		return 0, fmt.Errorf("创建广告失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取广告 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetAdByID(ctx context.Context, adID int64) (Ad, error) {
	a, err := scanAd(s.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM ads WHERE id=?`, adID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ad{}, sql.ErrNoRows
		}
		return Ad{}, fmt.Errorf("查询广告失败: %w", err)
	}
	return a, nil
}

func (s *Store) ListAdsByUser(ctx context.Context, userID int64, limit int) ([]Ad, error) {
	return s.listAds(ctx, `WHERE user_id=?`, []any{userID}, limit)
}

func (s *Store) ListAdsByStatus(ctx context.Context, status int, limit int) ([]Ad, error) {
	return s.listAds(ctx, `WHERE status=?`, []any{status}, limit)
}

func (s *Store) ListAds(ctx context.Context, limit int) ([]Ad, error) {
	return s.listAds(ctx, ``, nil, limit)
}

func (s *Store) listAds(ctx context.Context, where string, args []any, limit int) ([]Ad, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + adColumns + ` FROM ads ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询广告列表失败: %w", err)
	}
	defer rows.Close()

	var out []Ad
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描广告失败: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历广告失败: %w", err)
	}
	return out, nil
}

// ModerateAd 将广告置为通过或驳回；待审之外的状态不再变更。
func (s *Store) ModerateAd(ctx context.Context, adID int64, approve bool) error {
	nextStatus := AdStatusRejected
	if approve {
		nextStatus = AdStatusApproved
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE ads
SET status=?, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND status=?
`, nextStatus, adID, AdStatusPending)
	if err != nil {
		return fmt.Errorf("审核广告失败: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, gerr := s.GetAdByID(ctx, adID); gerr != nil {
			return gerr
		}
		return ErrOrderFinalized
	}
	return nil
}

func (s *Store) IncrementAdViews(ctx context.Context, adID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE ads SET views=views+1 WHERE id=?`, adID)
	if err != nil {
		return fmt.Errorf("更新广告浏览数失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteAdByOwner(ctx context.Context, adID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ads WHERE id=? AND user_id=?`, adID, userID)
	if err != nil {
		return fmt.Errorf("删除广告失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
