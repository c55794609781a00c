package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ProductStatusOff = 0
	ProductStatusOn  = 1
)

const productColumns = `id, name, description, income_per_rating, plan, is_lucky, image_path, rating_avg, rated_count, status, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var desc, imagePath sql.NullString
	var income, avg string
	err := row.Scan(&p.ID, &p.Name, &desc, &income, &p.Plan, &p.IsLucky, &imagePath, &avg, &p.RatedCount, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if desc.Valid {
		v := desc.String
		p.Description = &v
	}
	if imagePath.Valid && imagePath.String != "" {
		v := imagePath.String
		p.ImagePath = &v
	}
	if p.IncomePerRating, err = decimal.NewFromString(income); err != nil {
		return Product{}, fmt.Errorf("解析产品收益失败: %w", err)
	}
	if p.RatingAvg, err = decimal.NewFromString(avg); err != nil {
		return Product{}, fmt.Errorf("解析产品评分失败: %w", err)
	}
	return p, nil
}

type CreateProductParams struct {
	Name            string
	Description     *string
	IncomePerRating decimal.Decimal
	Plan            string
	IsLucky         bool
	ImagePath       *string
	Status          int
}

func (s *Store) CreateProduct(ctx context.Context, params CreateProductParams) (int64, error) {
	if params.Plan == "" {
		params.Plan = DefaultPlan
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO products(name, description, income_per_rating, plan, is_lucky, image_path, rating_avg, rated_count, status, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, 0, 0, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`, params.Name, params.Description, params.IncomePerRating.Truncate(AmountScale).StringFixed(AmountScale), params.Plan, boolToInt(params.IsLucky), params.ImagePath, params.Status)
	if err != nil {
		return 0, fmt.Errorf("创建产品失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取产品 id 失败: %w", err)
	}
	return id, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (s *Store) GetProductByID(ctx context.Context, productID int64) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=?`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, sql.ErrNoRows
		}
		return Product{}, fmt.Errorf("查询产品失败: %w", err)
	}
	return p, nil
}

type ListProductsParams struct {
	Page       int
	Limit      int
	IsLucky    *bool
	Plan       string
	OnlyOnSale bool
}

// ListProducts 分页查询产品；返回 hasMore 以避免调用方靠“空页”猜测是否到底。
func (s *Store) ListProducts(ctx context.Context, params ListProductsParams) ([]Product, bool, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}

	q := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if params.OnlyOnSale {
		q += ` AND status=?`
		args = append(args, ProductStatusOn)
	}
	if params.IsLucky != nil {
		q += ` AND is_lucky=?`
		args = append(args, boolToInt(*params.IsLucky))
	}
	if params.Plan != "" {
		q += ` AND plan=?`
		args = append(args, params.Plan)
	}
	q += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	// 多取一行用于判断是否还有下一页。
	args = append(args, params.Limit+1, (params.Page-1)*params.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("查询产品列表失败: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, false, fmt.Errorf("扫描产品失败: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("遍历产品失败: %w", err)
	}
	hasMore := len(out) > params.Limit
	if hasMore {
		out = out[:params.Limit]
	}
	return out, hasMore, nil
}

type UpdateProductParams struct {
	Name            *string
	Description     *string
	IncomePerRating *decimal.Decimal
	Plan            *string
	IsLucky         *bool
	ImagePath       *string
	Status          *int
}

func (s *Store) UpdateProduct(ctx context.Context, productID int64, params UpdateProductParams) error {
	sets := []string{}
	args := []any{}
	if params.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, *params.Name)
	}
	if params.Description != nil {
		sets = append(sets, "description=?")
		args = append(args, *params.Description)
	}
	if params.IncomePerRating != nil {
		sets = append(sets, "income_per_rating=?")
		args = append(args, params.IncomePerRating.Truncate(AmountScale).StringFixed(AmountScale))
	}
	if params.Plan != nil {
		sets = append(sets, "plan=?")
		args = append(args, *params.Plan)
	}
	if params.IsLucky != nil {
		sets = append(sets, "is_lucky=?")
		args = append(args, boolToInt(*params.IsLucky))
	}
	if params.ImagePath != nil {
		sets = append(sets, "image_path=?")
		args = append(args, *params.ImagePath)
	}
	if params.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, *params.Status)
	}
	if len(sets) == 0 {
		return nil
	}
	q := "UPDATE products SET " + strings.Join(sets, ", ") + ", updated_at=CURRENT_TIMESTAMP WHERE id=?"
	args = append(args, productID)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("更新产品失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id=?`, productID)
	if err != nil {
		return fmt.Errorf("删除产品失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
