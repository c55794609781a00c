package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ratemall/internal/store"
)

func timeIn(t *testing.T, hours int) time.Time {
	t.Helper()
	return time.Now().Add(time.Duration(hours) * time.Hour)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ratemall.db") + "?_busy_timeout=1000"

	db, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.EnsureSQLiteSchema(db); err != nil {
		t.Fatalf("EnsureSQLiteSchema: %v", err)
	}

	st := store.New(db)
	st.SetDialect(store.DialectSQLite)
	return st
}

func createActiveUser(t *testing.T, st *store.Store, email, username string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := st.CreateUser(ctx, email, username, []byte("hash"), store.UserRoleUser, store.UserStatusActive, nil)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return id
}

func TestCreateUser_ReferralCodeAndLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id := createActiveUser(t, st, "u1@example.com", "u1abc")
	u, err := st.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.ReferralCode == "" {
		t.Fatal("referral code should be generated on signup")
	}
	if u.Plan != store.DefaultPlan {
		t.Fatalf("plan = %q; want %q", u.Plan, store.DefaultPlan)
	}

	byCode, err := st.GetUserByReferralCode(ctx, u.ReferralCode)
	if err != nil {
		t.Fatalf("GetUserByReferralCode: %v", err)
	}
	if byCode.ID != id {
		t.Fatalf("GetUserByReferralCode id = %d; want %d", byCode.ID, id)
	}
}

func TestApproveUser_OnlyPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateUser(ctx, "p@example.com", "pend1", []byte("hash"), store.UserRoleUser, store.UserStatusPending, nil)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := st.ApproveUser(ctx, id); err != nil {
		t.Fatalf("ApproveUser: %v", err)
	}
	u, err := st.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.Status != store.UserStatusActive {
		t.Fatalf("status = %d; want %d", u.Status, store.UserStatusActive)
	}
	// 已激活的用户再次审核应视为找不到待审记录。
	if err := st.ApproveUser(ctx, id); err == nil {
		t.Fatal("ApproveUser on active user should fail")
	}
}

func TestSessions_ExpiryAndLogout(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "s@example.com", "sess1")

	raw := "session-token-raw"
	if _, err := st.CreateSession(ctx, uid, raw, timeIn(t, 1)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	auth, err := st.GetSessionAuthByRawToken(ctx, raw)
	if err != nil {
		t.Fatalf("GetSessionAuthByRawToken: %v", err)
	}
	if auth.UserID != uid {
		t.Fatalf("auth.UserID = %d; want %d", auth.UserID, uid)
	}

	if err := st.DeleteSessionByRaw(ctx, raw); err != nil {
		t.Fatalf("DeleteSessionByRaw: %v", err)
	}
	if _, err := st.GetSessionAuthByRawToken(ctx, raw); err == nil {
		t.Fatal("session should be gone after logout")
	}

	expiredRaw := "expired-token"
	if _, err := st.CreateSession(ctx, uid, expiredRaw, timeIn(t, -1)); err != nil {
		t.Fatalf("CreateSession(expired): %v", err)
	}
	if _, err := st.GetSessionAuthByRawToken(ctx, expiredRaw); err == nil {
		t.Fatal("expired session should not authenticate")
	}
}

func TestNormalizeUsername(t *testing.T) {
	if _, err := store.NormalizeUsername("ab"); err == nil {
		t.Fatal("too-short username should be rejected")
	}
	if _, err := store.NormalizeUsername("bad name"); err == nil {
		t.Fatal("username with space should be rejected")
	}
	got, err := store.NormalizeUsername("  good_name1 ")
	if err != nil {
		t.Fatalf("NormalizeUsername: %v", err)
	}
	if got != "good_name1" {
		t.Fatalf("NormalizeUsername = %q", got)
	}
}
