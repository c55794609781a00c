package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ratemall/internal/store"
)

// fundUser 通过充值审批给用户入账，模拟真实资金来源。
func fundUser(t *testing.T, st *store.Store, userID int64, amount string) {
	t.Helper()
	ctx := context.Background()
	payID, err := st.CreateFundPayment(ctx, userID, decimal.RequireFromString(amount), "usdt_trc20", nil)
	if err != nil {
		t.Fatalf("CreateFundPayment: %v", err)
	}
	if err := st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: payID, Approve: true}); err != nil {
		t.Fatalf("DecideFundPayment: %v", err)
	}
}

func TestCreatePayoutRequest_BlockedUntilQuotaDone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "p1@example.com", "payout1")
	fundUser(t, st, uid, "100")

	_, err := st.CreatePayoutRequest(ctx, store.CreatePayoutParams{
		UserID: uid, Amount: decimal.NewFromInt(10), Method: "usdt", Detail: `{"address":"T..."}`, DailyQuota: 1,
	})
	if !errors.Is(err, store.ErrPayoutBlocked) {
		t.Fatalf("payout before quota err = %v; want ErrPayoutBlocked", err)
	}

	pid := createProduct(t, st, "提现产品", "0.10", false)
	if _, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: pid, Rating: 5, DailyQuota: 1}); err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}

	payoutID, err := st.CreatePayoutRequest(ctx, store.CreatePayoutParams{
		UserID: uid, Amount: decimal.NewFromInt(10), Method: "usdt", Detail: `{"address":"T..."}`, DailyQuota: 1,
	})
	if err != nil {
		t.Fatalf("CreatePayoutRequest: %v", err)
	}
	p, err := st.GetPayoutRequestByID(ctx, payoutID)
	if err != nil {
		t.Fatalf("GetPayoutRequestByID: %v", err)
	}
	if p.Status != store.PayoutStatusPending {
		t.Fatalf("status = %d; want pending", p.Status)
	}
}

func TestCreatePayoutRequest_InsufficientBalance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "p2@example.com", "payout2")
	pid := createProduct(t, st, "提现产品2", "0.10", false)
	if _, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: pid, Rating: 5, DailyQuota: 1}); err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}

	_, err := st.CreatePayoutRequest(ctx, store.CreatePayoutParams{
		UserID: uid, Amount: decimal.NewFromInt(999), Method: "usdt", Detail: `{}`, DailyQuota: 1,
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("oversized payout err = %v; want ErrInsufficientBalance", err)
	}
}

func TestProcessPayoutRequest_ApproveDebitsOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "p3@example.com", "payout3")
	admin := createActiveUser(t, st, "p4@example.com", "payout4")
	fundUser(t, st, uid, "100")
	pid := createProduct(t, st, "提现产品3", "0.10", false)
	if _, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: pid, Rating: 5, DailyQuota: 1}); err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}

	payoutID, err := st.CreatePayoutRequest(ctx, store.CreatePayoutParams{
		UserID: uid, Amount: decimal.NewFromInt(40), Method: "bank", Detail: `{"bank":"X"}`, DailyQuota: 1,
	})
	if err != nil {
		t.Fatalf("CreatePayoutRequest: %v", err)
	}

	if err := st.ProcessPayoutRequest(ctx, payoutID, true, &admin); err != nil {
		t.Fatalf("ProcessPayoutRequest: %v", err)
	}
	bal, err := st.GetUserBalance(ctx, uid)
	if err != nil {
		t.Fatalf("GetUserBalance: %v", err)
	}
	// 100 + 0.10(评分收益) - 40。
	if want := decimal.RequireFromString("60.10"); !bal.Equal(want) {
		t.Fatalf("balance = %s; want %s", bal, want)
	}

	err = st.ProcessPayoutRequest(ctx, payoutID, true, &admin)
	if !errors.Is(err, store.ErrOrderFinalized) {
		t.Fatalf("second process err = %v; want ErrOrderFinalized", err)
	}
	bal2, _ := st.GetUserBalance(ctx, uid)
	if !bal2.Equal(bal) {
		t.Fatalf("balance changed on repeated process: %s -> %s", bal, bal2)
	}
}

func TestProcessPayoutRequest_RejectKeepsBalance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "p5@example.com", "payout5")
	fundUser(t, st, uid, "50")
	pid := createProduct(t, st, "提现产品4", "0.10", false)
	if _, err := st.SubmitRating(ctx, store.SubmitRatingParams{UserID: uid, ProductID: pid, Rating: 5, DailyQuota: 1}); err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}

	payoutID, err := st.CreatePayoutRequest(ctx, store.CreatePayoutParams{
		UserID: uid, Amount: decimal.NewFromInt(50), Method: "usdt", Detail: `{}`, DailyQuota: 1,
	})
	if err != nil {
		t.Fatalf("CreatePayoutRequest: %v", err)
	}
	if err := st.ProcessPayoutRequest(ctx, payoutID, false, nil); err != nil {
		t.Fatalf("ProcessPayoutRequest(reject): %v", err)
	}
	bal, _ := st.GetUserBalance(ctx, uid)
	if want := decimal.RequireFromString("50.10"); !bal.Equal(want) {
		t.Fatalf("balance = %s; want %s", bal, want)
	}
	p, _ := st.GetPayoutRequestByID(ctx, payoutID)
	if p.Status != store.PayoutStatusRejected || p.ProcessedAt == nil {
		t.Fatalf("unexpected payout after reject: %+v", p)
	}
}
