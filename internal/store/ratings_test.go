package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ratemall/internal/store"
)

func createProduct(t *testing.T, st *store.Store, name string, income string, lucky bool) int64 {
	t.Helper()
	id, err := st.CreateProduct(context.Background(), store.CreateProductParams{
		Name:            name,
		IncomePerRating: decimal.RequireFromString(income),
		IsLucky:         lucky,
		Status:          store.ProductStatusOn,
	})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", name, err)
	}
	return id
}

func TestSubmitRating_CreditsEarningAndUpdatesProduct(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "r1@example.com", "rater1")
	pid := createProduct(t, st, "产品A", "0.50", false)

	res, err := st.SubmitRating(ctx, store.SubmitRatingParams{
		UserID:     uid,
		ProductID:  pid,
		Rating:     4,
		DailyQuota: 5,
		Multiplier: decimal.RequireFromString("1.2"),
	})
	if err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}
	if want := decimal.RequireFromString("0.60"); !res.Earning.Equal(want) {
		t.Fatalf("earning = %s; want %s", res.Earning, want)
	}
	if !res.Balance.Equal(res.Earning) {
		t.Fatalf("balance = %s; want %s", res.Balance, res.Earning)
	}
	if res.RatingsToday != 1 {
		t.Fatalf("ratings today = %d; want 1", res.RatingsToday)
	}

	p, err := st.GetProductByID(ctx, pid)
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if p.RatedCount != 1 {
		t.Fatalf("rated count = %d; want 1", p.RatedCount)
	}
	if want := decimal.NewFromInt(4); !p.RatingAvg.Equal(want) {
		t.Fatalf("rating avg = %s; want %s", p.RatingAvg, want)
	}

	bal, err := st.GetUserBalance(ctx, uid)
	if err != nil {
		t.Fatalf("GetUserBalance: %v", err)
	}
	if !bal.Equal(res.Earning) {
		t.Fatalf("stored balance = %s; want %s", bal, res.Earning)
	}
}

func TestSubmitRating_DuplicateRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "r2@example.com", "rater2")
	pid := createProduct(t, st, "产品B", "0.30", false)

	params := store.SubmitRatingParams{UserID: uid, ProductID: pid, Rating: 5, DailyQuota: 5}
	if _, err := st.SubmitRating(ctx, params); err != nil {
		t.Fatalf("SubmitRating(first): %v", err)
	}
	_, err := st.SubmitRating(ctx, params)
	if !errors.Is(err, store.ErrAlreadyRated) {
		t.Fatalf("second SubmitRating err = %v; want ErrAlreadyRated", err)
	}
	if n, err := st.CountRatingsToday(ctx, uid); err != nil || n != 1 {
		t.Fatalf("CountRatingsToday = %d, %v; want 1, nil", n, err)
	}
}

func TestSubmitRating_QuotaExhausted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "r3@example.com", "rater3")
	p1 := createProduct(t, st, "产品C1", "0.10", false)
	p2 := createProduct(t, st, "产品C2", "0.10", false)

	if _, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: p1, Rating: 3, DailyQuota: 1}); err != nil {
		t.Fatalf("SubmitRating(first): %v", err)
	}
	_, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: p2, Rating: 3, DailyQuota: 1})
	if !errors.Is(err, store.ErrQuotaExhausted) {
		t.Fatalf("over-quota SubmitRating err = %v; want ErrQuotaExhausted", err)
	}
}

func TestSubmitRating_ClearsLuckyOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "r4@example.com", "rater4")
	pid := createProduct(t, st, "幸运产品", "1.00", true)

	orderID, err := st.AssignLuckyOrder(ctx, uid, pid, decimal.RequireFromString("100"), decimal.RequireFromString("1.05"))
	if err != nil {
		t.Fatalf("AssignLuckyOrder: %v", err)
	}
	// 同一用户已有待结清幸运单时不允许再派发。
	if _, err := st.AssignLuckyOrder(ctx, uid, pid, decimal.NewFromInt(10), decimal.NewFromInt(1)); !errors.Is(err, store.ErrOrderFinalized) {
		t.Fatalf("second AssignLuckyOrder err = %v; want ErrOrderFinalized", err)
	}

	res, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: pid, Rating: 5, DailyQuota: 5})
	if err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}
	if !res.LuckyCleared {
		t.Fatal("lucky order should be cleared by rating its product")
	}
	// 1.00(基础收益) + 100×1.05(幸运单本息)。
	if want := decimal.RequireFromString("106.00"); !res.Earning.Equal(want) {
		t.Fatalf("earning = %s; want %s", res.Earning, want)
	}

	if _, err := st.GetActiveLuckyOrderByUser(ctx, uid); err == nil {
		t.Fatal("active lucky order should no longer exist")
	}
	orders, err := st.ListLuckyOrdersByUser(ctx, uid, 10)
	if err != nil {
		t.Fatalf("ListLuckyOrdersByUser: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != orderID || orders[0].Status != store.LuckyOrderStatusCleared || orders[0].ClearedAt == nil {
		t.Fatalf("unexpected lucky orders: %+v", orders)
	}
}

func TestListProducts_Pagination(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createProduct(t, st, "分页产品", "0.10", false)
	}

	page1, hasMore, err := st.ListProducts(ctx, store.ListProductsParams{Page: 1, Limit: 2, OnlyOnSale: true})
	if err != nil {
		t.Fatalf("ListProducts(page1): %v", err)
	}
	if len(page1) != 2 || !hasMore {
		t.Fatalf("page1 len=%d hasMore=%v; want 2, true", len(page1), hasMore)
	}

	page3, hasMore, err := st.ListProducts(ctx, store.ListProductsParams{Page: 3, Limit: 2, OnlyOnSale: true})
	if err != nil {
		t.Fatalf("ListProducts(page3): %v", err)
	}
	if len(page3) != 1 || hasMore {
		t.Fatalf("page3 len=%d hasMore=%v; want 1, false", len(page3), hasMore)
	}
}
