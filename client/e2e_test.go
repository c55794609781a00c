package client_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ratemall/client"
	"ratemall/internal/config"
	"ratemall/internal/server"
	"ratemall/internal/store"
)

// 端到端场景：SDK 直接打一个完整拉起的后端，覆盖充值审批、重复评分、提现闸门。

func newLiveServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := store.OpenSQLite(filepath.Join(dir, "ratemall.db") + "?_busy_timeout=1000")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.EnsureSQLiteSchema(db); err != nil {
		t.Fatalf("EnsureSQLiteSchema: %v", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	cfg.Env = "dev"
	cfg.DB.Driver = "sqlite"
	cfg.Uploads.Dir = filepath.Join(dir, "uploads")
	cfg.Security.AllowOpenRegistration = true

	app, err := server.NewApp(server.AppOptions{Config: cfg, DB: db})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func newSDK(t *testing.T, baseURL string) *client.Client {
	t.Helper()
	c, err := client.New(baseURL)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

// bootstrapAdmin 注册首个账号（自动成为激活的管理员）并登录。
func bootstrapAdmin(t *testing.T, baseURL string) *client.Client {
	t.Helper()
	ctx := context.Background()
	admin := newSDK(t, baseURL)
	if _, err := admin.Signup(ctx, client.SignupParams{
		Email: "admin@example.com", Username: "admin", Password: "password123",
	}); err != nil {
		t.Fatalf("管理员注册失败: %v", err)
	}
	if _, err := admin.Login(ctx, "admin", "password123"); err != nil {
		t.Fatalf("管理员登录失败: %v", err)
	}
	return admin
}

// signupApprovedUser 注册普通用户、由管理员审核通过后登录。
func signupApprovedUser(t *testing.T, baseURL string, admin *client.Client, username, referralCode string) *client.Client {
	t.Helper()
	ctx := context.Background()
	user := newSDK(t, baseURL)
	if _, err := user.Signup(ctx, client.SignupParams{
		Email:        username + "@example.com",
		Username:     username,
		Password:     "password123",
		ReferralCode: referralCode,
	}); err != nil {
		t.Fatalf("用户注册失败: %v", err)
	}

	users, err := admin.Users().FetchAll(ctx, nil)
	if err != nil {
		t.Fatalf("拉取用户列表失败: %v", err)
	}
	var target int64
	for _, u := range users {
		if u.Username == username {
			target = u.ID
		}
	}
	if target == 0 {
		t.Fatalf("未找到新注册用户 %s", username)
	}
	if _, err := admin.ApproveUser(ctx, target); err != nil {
		t.Fatalf("审核用户失败: %v", err)
	}

	if _, err := user.Login(ctx, username, "password123"); err != nil {
		t.Fatalf("用户登录失败: %v", err)
	}
	return user
}

func createProduct(t *testing.T, admin *client.Client, name, income string) client.Product {
	t.Helper()
	p, err := admin.Products().CreateMultipart(context.Background(), map[string]string{
		"name":              name,
		"income_per_rating": income,
		"plan":              "basic",
	}, nil)
	if err != nil {
		t.Fatalf("创建产品失败: %v", err)
	}
	return p
}

func depositAndApprove(t *testing.T, admin, user *client.Client, amount string) client.FundPayment {
	t.Helper()
	ctx := context.Background()
	uid := user.CurrentSession().UserID

	fp, err := user.FundPaymentsOfUser(uid).CreateMultipart(ctx, map[string]string{
		"amount": amount,
		"method": "usdt_trc20",
	}, []client.FilePart{{Field: "proof", Filename: "proof.png", Content: []byte("fake-png")}})
	if err != nil {
		t.Fatalf("提交充值失败: %v", err)
	}
	if fp.Status != store.FundPaymentStatusPending {
		t.Fatalf("新充值单应为待审核: %+v", fp)
	}

	decided, err := admin.FundPayments().Update(ctx, fp.ID, map[string]string{"action": "approve"})
	if err != nil {
		t.Fatalf("审批充值失败: %v", err)
	}
	if decided.Status != store.FundPaymentStatusApproved {
		t.Fatalf("审批后应为已通过: %+v", decided)
	}
	return decided
}

func TestDepositApprovalFlow(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	user := signupApprovedUser(t, baseURL, admin, "alice", "")
	ctx := context.Background()

	depositAndApprove(t, admin, user, "100")

	// 用户侧重新拉取：同一单据已是通过态。
	list, err := user.FundPaymentsOfUser(user.CurrentSession().UserID).FetchAll(ctx, nil)
	if err != nil {
		t.Fatalf("拉取充值记录失败: %v", err)
	}
	if len(list) != 1 || list[0].Status != store.FundPaymentStatusApproved {
		t.Fatalf("用户应看到已通过的充值单: %+v", list)
	}

	s, err := user.RefreshSelf(ctx)
	if err != nil {
		t.Fatalf("RefreshSelf: %v", err)
	}
	if s.Balance != "100.00" {
		t.Fatalf("余额应为 100.00，得到 %s", s.Balance)
	}

	// 终态幂等：重复审批被拒绝，余额不再变。
	if _, err := admin.FundPayments().Update(ctx, list[0].ID, map[string]string{"action": "approve"}); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("重复审批应报业务错误，得到 %v", err)
	}
	if s, _ := user.RefreshSelf(ctx); s.Balance != "100.00" {
		t.Fatalf("重复审批不应重复入账: %s", s.Balance)
	}
}

func TestReferralBonusOnFirstApprovedDeposit(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	referrer := signupApprovedUser(t, baseURL, admin, "bob", "")
	code := referrer.CurrentSession().ReferralCode
	if code == "" {
		t.Fatalf("邀请码不应为空")
	}
	invited := signupApprovedUser(t, baseURL, admin, "carol", code)
	ctx := context.Background()

	depositAndApprove(t, admin, invited, "100")

	// 默认返利 5%：首充 100 → 邀请人得 5.00。
	s, err := referrer.RefreshSelf(ctx)
	if err != nil {
		t.Fatalf("RefreshSelf: %v", err)
	}
	if s.Balance != "5.00" {
		t.Fatalf("邀请人应获得首充返利 5.00，得到 %s", s.Balance)
	}

	// 第二笔充值不再触发返利。
	depositAndApprove(t, admin, invited, "50")
	if s, _ := referrer.RefreshSelf(ctx); s.Balance != "5.00" {
		t.Fatalf("返利只发一次，得到 %s", s.Balance)
	}
}

func TestDuplicateRatingBlockedAndQuotaReconciled(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	user := signupApprovedUser(t, baseURL, admin, "dave", "")
	ctx := context.Background()

	p := createProduct(t, admin, "测试产品", "0.50")

	res, err := user.SubmitRating(ctx, p.ID, 5, "不错")
	if err != nil {
		t.Fatalf("首次评分失败: %v", err)
	}
	if res.Earning != "0.50" {
		t.Fatalf("收益应为 0.50: %+v", res)
	}
	remaining := user.CurrentSession().Remaining
	if remaining != res.Remaining {
		t.Fatalf("本地额度未按服务端值校正: %d vs %d", remaining, res.Remaining)
	}

	// 第二次：客户端前置检查直接拦下，不发提交请求。
	if _, err := user.SubmitRating(ctx, p.ID, 4, ""); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("重复评分应被拦下，得到 %v", err)
	}
	if user.CurrentSession().Remaining != remaining {
		t.Fatalf("被拦下的提交不应扣额度")
	}

	// 绕开前置检查直接打服务端：唯一约束兜底，额度同样不扣。
	raw := client.NewCollection(user, "/api/ratings", client.DecodeRatingEntry, client.RatingEntry.EntityID)
	if _, err := raw.Create(ctx, map[string]any{"product_id": p.ID, "rating": 4}); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("服务端应拒绝重复评分，得到 %v", err)
	}
	if s, _ := user.RefreshSelf(ctx); s.Remaining != remaining {
		t.Fatalf("服务端拒绝后额度不应变化: %d vs %d", s.Remaining, remaining)
	}
}

func TestPayoutGatedByDailyQuota(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	user := signupApprovedUser(t, baseURL, admin, "erin", "")
	ctx := context.Background()

	depositAndApprove(t, admin, user, "100")
	if _, err := user.RefreshSelf(ctx); err != nil {
		t.Fatalf("RefreshSelf: %v", err)
	}

	detail := map[string]any{"address": "TVJ6rD8rG5Ax9PqBe"}

	// 今日任务未完成：客户端直接拦下。
	if _, err := user.SubmitPayout(ctx, "50", "usdt", detail); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("额度未用完时提现应被拦下，得到 %v", err)
	}

	// basic 套餐每日 5 次：做完任务后闸门打开。
	quota := user.CurrentSession().Remaining
	for i := 0; i < quota; i++ {
		p := createProduct(t, admin, "产品"+strconv.Itoa(i), "0.50")
		if _, err := user.SubmitRating(ctx, p.ID, 5, ""); err != nil {
			t.Fatalf("第 %d 次评分失败: %v", i+1, err)
		}
	}
	if got := user.CurrentSession().Remaining; got != 0 {
		t.Fatalf("额度应耗尽，剩 %d", got)
	}

	payout, err := user.SubmitPayout(ctx, "50", "usdt", detail)
	if err != nil {
		t.Fatalf("提现申请失败: %v", err)
	}
	if payout.Status != store.PayoutStatusPending {
		t.Fatalf("新提现单应为待处理: %+v", payout)
	}

	decided, err := admin.Payouts().Update(ctx, payout.ID, map[string]string{"action": "approve"})
	if err != nil {
		t.Fatalf("处理提现失败: %v", err)
	}
	if decided.Status != store.PayoutStatusCompleted {
		t.Fatalf("审批后应为已完成: %+v", decided)
	}

	// 100 充值 + 5×0.50 收益 - 50 提现。
	s, err := user.RefreshSelf(ctx)
	if err != nil {
		t.Fatalf("RefreshSelf: %v", err)
	}
	if s.Balance != "52.50" {
		t.Fatalf("期望余额 52.50，得到 %s", s.Balance)
	}
}

func TestDepositMethodWhitelist(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	user := signupApprovedUser(t, baseURL, admin, "grace", "")
	ctx := context.Background()

	col := user.FundPaymentsOfUser(user.CurrentSession().UserID)
	for _, method := range []string{"usdt_trc20", "bank", "card", "other"} {
		fp, err := col.CreateMultipart(ctx, map[string]string{
			"amount": "20",
			"method": method,
		}, nil)
		if err != nil {
			t.Fatalf("充值方式 %s 应被接受: %v", method, err)
		}
		if fp.Method != method {
			t.Fatalf("回传的充值方式应为 %s: %+v", method, fp)
		}
	}

	if _, err := col.CreateMultipart(ctx, map[string]string{
		"amount": "20",
		"method": "paypal",
	}, nil); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("未知充值方式应报业务错误，得到 %v", err)
	}
}

func TestOnlineDepositPayInitiation(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	user := signupApprovedUser(t, baseURL, admin, "heidi", "")
	ctx := context.Background()
	uid := user.CurrentSession().UserID

	chID, err := admin.CreatePaymentChannel(ctx, map[string]any{
		"type":            "epay",
		"name":            "易支付主渠道",
		"status":          1,
		"epay_gateway":    "https://pay.example.com/",
		"epay_partner_id": "1001",
		"epay_key":        "test-key",
	})
	if err != nil {
		t.Fatalf("创建支付渠道失败: %v", err)
	}

	fp, err := user.FundPaymentsOfUser(uid).CreateMultipart(ctx, map[string]string{
		"amount": "30",
		"method": "card",
	}, nil)
	if err != nil {
		t.Fatalf("提交充值失败: %v", err)
	}

	redirect, err := user.PayDeposit(ctx, fp.ID, chID, "")
	if err != nil {
		t.Fatalf("发起在线支付失败: %v", err)
	}
	if !strings.Contains(redirect, "pay.example.com") {
		t.Fatalf("跳转地址应指向网关: %s", redirect)
	}
	if !strings.Contains(redirect, "deposit_"+strconv.FormatInt(fp.ID, 10)) {
		t.Fatalf("跳转地址应携带业务单号: %s", redirect)
	}

	// 凭证类方式只走人工审核，不允许在线支付。
	bankFP, err := user.FundPaymentsOfUser(uid).CreateMultipart(ctx, map[string]string{
		"amount": "30",
		"method": "bank",
	}, nil)
	if err != nil {
		t.Fatalf("提交充值失败: %v", err)
	}
	if _, err := user.PayDeposit(ctx, bankFP.ID, chID, ""); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("bank 方式发起在线支付应报业务错误，得到 %v", err)
	}

	// 终态单据不可再发起支付。
	if _, err := admin.FundPayments().Update(ctx, fp.ID, map[string]string{"action": "approve"}); err != nil {
		t.Fatalf("审批充值失败: %v", err)
	}
	if _, err := user.PayDeposit(ctx, fp.ID, chID, ""); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("已通过的充值单发起支付应报业务错误，得到 %v", err)
	}

	// 禁用渠道直接拒绝。
	disabledID, err := admin.CreatePaymentChannel(ctx, map[string]any{
		"type":            "epay",
		"name":            "停用渠道",
		"status":          0,
		"epay_gateway":    "https://pay.example.com/",
		"epay_partner_id": "1001",
		"epay_key":        "test-key",
	})
	if err != nil {
		t.Fatalf("创建支付渠道失败: %v", err)
	}
	otherFP, err := user.FundPaymentsOfUser(uid).CreateMultipart(ctx, map[string]string{
		"amount": "30",
		"method": "other",
	}, nil)
	if err != nil {
		t.Fatalf("提交充值失败: %v", err)
	}
	if _, err := user.PayDeposit(ctx, otherFP.ID, disabledID, ""); !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("停用渠道应报业务错误，得到 %v", err)
	}
}

func TestSupportThreadEndToEnd(t *testing.T) {
	baseURL := newLiveServer(t)
	admin := bootstrapAdmin(t, baseURL)
	user := signupApprovedUser(t, baseURL, admin, "frank", "")
	ctx := context.Background()

	tk, err := user.CreateTicket(ctx, "充值没到账", "麻烦看下订单", nil)
	if err != nil {
		t.Fatalf("创建工单失败: %v", err)
	}

	if _, err := admin.ReplyTicket(ctx, tk.ID, "已在处理", nil); err != nil {
		t.Fatalf("管理员回复失败: %v", err)
	}

	thread, err := user.FetchTicket(ctx, tk.ID, 0)
	if err != nil {
		t.Fatalf("拉取工单失败: %v", err)
	}
	if len(thread.Replies) != 2 {
		t.Fatalf("应有首条消息 + 管理员回复: %+v", thread.Replies)
	}
	if !thread.Replies[1].IsAdmin {
		t.Fatalf("第二条应来自管理员: %+v", thread.Replies[1])
	}
	if thread.Unread == 0 {
		t.Fatalf("管理员回复后用户应有未读")
	}

	if err := user.MarkTicketRead(ctx, tk.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}
	thread, err = user.FetchTicket(ctx, tk.ID, 0)
	if err != nil {
		t.Fatalf("拉取工单失败: %v", err)
	}
	if thread.Unread != 0 {
		t.Fatalf("标记已读后未读数应清零，得到 %d", thread.Unread)
	}
}
