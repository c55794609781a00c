package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ratemall/internal/store"
)

func TestDecideFundPayment_ApproveCreditsBalanceOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "d1@example.com", "dep1")
	admin := createActiveUser(t, st, "a1@example.com", "admin1")

	payID, err := st.CreateFundPayment(ctx, uid, decimal.RequireFromString("50.005"), "usdt_trc20", nil)
	if err != nil {
		t.Fatalf("CreateFundPayment: %v", err)
	}

	fp, err := st.GetFundPaymentByID(ctx, payID)
	if err != nil {
		t.Fatalf("GetFundPaymentByID: %v", err)
	}
	if fp.Status != store.FundPaymentStatusPending {
		t.Fatalf("status = %d; want pending", fp.Status)
	}
	if want := decimal.RequireFromString("50.00"); !fp.Amount.Equal(want) {
		t.Fatalf("amount = %s; want %s", fp.Amount, want)
	}

	if err := st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: payID, Approve: true, DecidedBy: &admin}); err != nil {
		t.Fatalf("DecideFundPayment: %v", err)
	}
	bal, err := st.GetUserBalance(ctx, uid)
	if err != nil {
		t.Fatalf("GetUserBalance: %v", err)
	}
	if want := decimal.RequireFromString("50.00"); !bal.Equal(want) {
		t.Fatalf("balance = %s; want %s", bal, want)
	}

	// 终态幂等：重复审批不再入账。
	err = st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: payID, Approve: true, DecidedBy: &admin})
	if !errors.Is(err, store.ErrOrderFinalized) {
		t.Fatalf("second decide err = %v; want ErrOrderFinalized", err)
	}
	bal2, _ := st.GetUserBalance(ctx, uid)
	if !bal2.Equal(bal) {
		t.Fatalf("balance changed on repeated decide: %s -> %s", bal, bal2)
	}
}

func TestDecideFundPayment_RejectLeavesBalanceZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "d2@example.com", "dep2")
	payID, err := st.CreateFundPayment(ctx, uid, decimal.NewFromInt(30), "card", nil)
	if err != nil {
		t.Fatalf("CreateFundPayment: %v", err)
	}
	if err := st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: payID, Approve: false}); err != nil {
		t.Fatalf("DecideFundPayment: %v", err)
	}
	bal, err := st.GetUserBalance(ctx, uid)
	if err != nil {
		t.Fatalf("GetUserBalance: %v", err)
	}
	if !bal.IsZero() {
		t.Fatalf("balance = %s; want 0", bal)
	}
	fp, _ := st.GetFundPaymentByID(ctx, payID)
	if fp.Status != store.FundPaymentStatusRejected {
		t.Fatalf("status = %d; want rejected", fp.Status)
	}
}

func TestDecideFundPayment_ReferralBonusOnFirstApprovedDeposit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	referrerID := createActiveUser(t, st, "ref@example.com", "referrer")
	invitedID, err := st.CreateUser(ctx, "inv@example.com", "invited", []byte("hash"), store.UserRoleUser, store.UserStatusActive, &referrerID)
	if err != nil {
		t.Fatalf("CreateUser(invited): %v", err)
	}

	percent := decimal.RequireFromString("0.05")

	first, err := st.CreateFundPayment(ctx, invitedID, decimal.NewFromInt(100), "usdt_trc20", nil)
	if err != nil {
		t.Fatalf("CreateFundPayment(first): %v", err)
	}
	if err := st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: first, Approve: true, ReferralBonusPercent: percent}); err != nil {
		t.Fatalf("DecideFundPayment(first): %v", err)
	}
	bonus, err := st.GetUserBalance(ctx, referrerID)
	if err != nil {
		t.Fatalf("GetUserBalance(referrer): %v", err)
	}
	if want := decimal.RequireFromString("5.00"); !bonus.Equal(want) {
		t.Fatalf("referrer bonus = %s; want %s", bonus, want)
	}

	// 第二笔充值不再触发首充奖励。
	second, err := st.CreateFundPayment(ctx, invitedID, decimal.NewFromInt(200), "usdt_trc20", nil)
	if err != nil {
		t.Fatalf("CreateFundPayment(second): %v", err)
	}
	if err := st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: second, Approve: true, ReferralBonusPercent: percent}); err != nil {
		t.Fatalf("DecideFundPayment(second): %v", err)
	}
	bonus2, _ := st.GetUserBalance(ctx, referrerID)
	if !bonus2.Equal(bonus) {
		t.Fatalf("referrer bonus changed on second deposit: %s -> %s", bonus, bonus2)
	}
}

func TestDeletePendingFundPaymentByOwner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "d3@example.com", "dep3")
	other := createActiveUser(t, st, "d4@example.com", "dep4")

	payID, err := st.CreateFundPayment(ctx, uid, decimal.NewFromInt(20), "usdt_trc20", nil)
	if err != nil {
		t.Fatalf("CreateFundPayment: %v", err)
	}

	// 其他用户不能撤回。
	if err := st.DeletePendingFundPaymentByOwner(ctx, payID, other); err == nil {
		t.Fatal("non-owner delete should fail")
	}
	if err := st.DeletePendingFundPaymentByOwner(ctx, payID, uid); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	// 已终态的充值单不能撤回。
	payID2, _ := st.CreateFundPayment(ctx, uid, decimal.NewFromInt(20), "usdt_trc20", nil)
	if err := st.DecideFundPayment(ctx, store.DecideFundPaymentParams{PaymentID: payID2, Approve: true}); err != nil {
		t.Fatalf("DecideFundPayment: %v", err)
	}
	if err := st.DeletePendingFundPaymentByOwner(ctx, payID2, uid); err == nil {
		t.Fatal("delete of approved payment should fail")
	}
}
