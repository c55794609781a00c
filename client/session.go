package client

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

const sessionCacheKey = "session"

// Session 是客户端持有的登录态快照。Balance/Remaining 等涉及金额与额度的字段
// 只接受服务端返回值，绝不在本地自行推算。
type Session struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Plan         string `json:"plan"`
	ReferralCode string `json:"referral_code"`
	Token        string `json:"token"`

	Balance   string `json:"balance"`
	Remaining int    `json:"remaining"`
}

// CurrentSession 返回当前会话的副本；未登录时返回 nil。
func (c *Client) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	if s == nil {
		_ = c.cache.Delete(sessionCacheKey)
		return
	}
	if raw, err := json.Marshal(s); err == nil {
		_ = c.cache.Set(sessionCacheKey, raw)
	}
}

func (c *Client) restoreSessionFromCache() {
	raw, ok := c.cache.Get(sessionCacheKey)
	if !ok {
		return
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil || s.Token == "" {
		_ = c.cache.Delete(sessionCacheKey)
		return
	}
	c.mu.Lock()
	c.session = &s
	c.mu.Unlock()
}

// clearLocalSession 清掉会话与全部本地缓存，
// 同一设备上的下一个会话不应看见上一个会话的数据。
func (c *Client) clearLocalSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	_ = c.cache.Clear()
}

// Login 登录成功后建立会话并立即拉取一次权威的余额与额度。
func (c *Client) Login(ctx context.Context, login, password string) (*Session, error) {
	if strings.TrimSpace(login) == "" || password == "" {
		return nil, newError(ErrorKindValidation, "请输入账号与密码")
	}
	data, err := c.doJSON(ctx, "POST", "/api/auth/login", map[string]string{
		"login":    strings.TrimSpace(login),
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	s := &Session{
		UserID:       data.Get("id").Int(),
		Email:        data.Get("email").String(),
		Username:     data.Get("username").String(),
		Role:         data.Get("role").String(),
		Plan:         data.Get("plan").String(),
		ReferralCode: data.Get("referral_code").String(),
		Token:        data.Get("token").String(),
	}
	if s.Token == "" {
		return nil, newError(ErrorKindNetwork, "登录响应缺少令牌")
	}
	c.setSession(s)
	if _, err := c.RefreshSelf(ctx); err != nil {
		if IsKind(err, ErrorKindAuth) {
			return nil, err
		}
		// 网络抖动：登录已成立，余额稍后再同步。
	}
	return c.CurrentSession(), nil
}

type SignupParams struct {
	Email        string
	Username     string
	Password     string
	ReferralCode string
}

// Signup 注册不建立会话：除首个账号外都要等管理员审核，统一走
// “注册 → 提示 → 单独登录”这一条契约。返回服务端的提示语。
func (c *Client) Signup(ctx context.Context, params SignupParams) (string, error) {
	if strings.TrimSpace(params.Email) == "" || strings.TrimSpace(params.Username) == "" || params.Password == "" {
		return "", newError(ErrorKindValidation, "请完整填写注册信息")
	}
	payload := map[string]string{
		"email":    strings.TrimSpace(params.Email),
		"username": strings.TrimSpace(params.Username),
		"password": params.Password,
	}
	if code := strings.TrimSpace(params.ReferralCode); code != "" {
		payload["referral_code"] = code
	}
	_, err := c.doJSON(ctx, "POST", "/api/auth/signup", payload)
	if err != nil {
		return "", err
	}
	return "注册成功，请等待管理员审核", nil
}

// Logout 先尝试让服务端作废令牌，无论成败本地会话与缓存都无条件清空。
func (c *Client) Logout(ctx context.Context) {
	if c.token() != "" {
		_, _ = c.doJSON(ctx, "GET", "/api/auth/logout", nil)
	}
	c.clearLocalSession()
}

// RefreshSelf 重新拉取 /api/user，用服务端副本校正余额、套餐与剩余额度。
func (c *Client) RefreshSelf(ctx context.Context) (*Session, error) {
	data, err := c.doJSON(ctx, "GET", "/api/user", nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.session != nil {
		c.session.Email = data.Get("email").String()
		c.session.Username = data.Get("username").String()
		c.session.Role = data.Get("role").String()
		c.session.Plan = data.Get("plan").String()
		c.session.ReferralCode = data.Get("referral_code").String()
		c.session.Balance = data.Get("balance").String()
		c.session.Remaining = clampRemaining(data.Get("remaining").Int())
	}
	s := c.session
	c.mu.Unlock()
	if s != nil {
		c.setSession(c.CurrentSession())
	}
	return c.CurrentSession(), nil
}

// UpdateUser 修改资料。用户名属于非权威的展示字段，允许先行更新本地；
// 套餐、状态这类需要服务端确认的字段一律等响应成功后再刷新。
func (c *Client) UpdateUser(ctx context.Context, userID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return newError(ErrorKindValidation, "没有要修改的字段")
	}
	if name, ok := fields["username"].(string); ok && strings.TrimSpace(name) != "" {
		c.mu.Lock()
		if c.session != nil && c.session.UserID == userID {
			c.session.Username = strings.TrimSpace(name)
		}
		c.mu.Unlock()
	}
	payload, err := PartialPayload(fields)
	if err != nil {
		return err
	}
	_, err = c.doJSON(ctx, "PATCH", "/api/user/"+strconv.FormatInt(userID, 10), payload)
	if err != nil {
		// 乐观改名失败：回源校正。
		if _, rerr := c.RefreshSelf(ctx); rerr != nil {
			return err
		}
		return err
	}
	if s := c.CurrentSession(); s != nil && s.UserID == userID {
		_, _ = c.RefreshSelf(ctx)
	}
	return nil
}

// reconcileRemaining 用服务端返回值校正本地额度，永不为负。
func (c *Client) reconcileRemaining(n int64) {
	c.mu.Lock()
	if c.session != nil {
		c.session.Remaining = clampRemaining(n)
	}
	c.mu.Unlock()
	if s := c.CurrentSession(); s != nil {
		c.setSession(s)
	}
}

func clampRemaining(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}
