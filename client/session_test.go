package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ratemall/client"
)

func fakeAuthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true, "", map[string]any{
			"id": 1, "email": "u@example.com", "username": "u1",
			"role": "user", "plan": "basic", "referral_code": "ABCD2345",
			"token": "rm-testtoken",
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true, "已退出登录", nil)
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer rm-testtoken" {
			w.WriteHeader(http.StatusUnauthorized)
			writeEnvelope(w, false, "令牌无效或已过期", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]any{
			"id": 1, "email": "u@example.com", "username": "u1",
			"role": "user", "plan": "basic", "referral_code": "ABCD2345",
			"balance": "12.50", "remaining": 3,
		})
	})
	return mux
}

func TestLoginEstablishesSessionWithServerBalance(t *testing.T) {
	srv := httptest.NewServer(fakeAuthHandler())
	t.Cleanup(srv.Close)

	cache := client.NewMemCache()
	c, err := client.New(srv.URL, client.WithCache(cache))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	s, err := c.Login(context.Background(), "u1", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Token != "rm-testtoken" {
		t.Fatalf("token 未保存: %+v", s)
	}
	if s.Balance != "12.50" || s.Remaining != 3 {
		t.Fatalf("余额与额度应来自服务端: %+v", s)
	}
	if _, ok := cache.Get("session"); !ok {
		t.Fatalf("会话未写入缓存")
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true, "", map[string]any{"id": 1, "token": "rm-dead"})
	})
	expired := false
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		if expired {
			w.WriteHeader(http.StatusUnauthorized)
			writeEnvelope(w, false, "令牌无效或已过期", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]any{"id": 1, "balance": "0.00", "remaining": 5})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	if _, err := c.Login(context.Background(), "u1", "x"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	expired = true
	_, err = c.RefreshSelf(context.Background())
	if !client.IsKind(err, client.ErrorKindAuth) {
		t.Fatalf("期望 auth 类错误，得到 %v", err)
	}
	if c.CurrentSession() != nil {
		t.Fatalf("401 后会话应被清空")
	}
}

func TestLogoutClearsSessionAndCache(t *testing.T) {
	srv := httptest.NewServer(fakeAuthHandler())
	t.Cleanup(srv.Close)

	cache := client.NewMemCache()
	c, err := client.New(srv.URL, client.WithCache(cache))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	if _, err := c.Login(context.Background(), "u1", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	// 同一设备上的领域数据快照也要随登出一起消失。
	_ = cache.Set("products", []byte(`[]`))

	c.Logout(context.Background())

	if c.CurrentSession() != nil {
		t.Fatalf("登出后会话应为 nil")
	}
	if _, ok := cache.Get("session"); ok {
		t.Fatalf("登出后会话缓存应被清理")
	}
	if _, ok := cache.Get("products"); ok {
		t.Fatalf("登出后领域缓存应被清理")
	}
}

func TestRestoreSessionFromCache(t *testing.T) {
	cache := client.NewMemCache()
	_ = cache.Set("session", []byte(`{"user_id":1,"username":"u1","token":"rm-old","balance":"3.00","remaining":2}`))

	c, err := client.New("http://127.0.0.1:0", client.WithCache(cache))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	s := c.CurrentSession()
	if s == nil || s.Token != "rm-old" || s.Remaining != 2 {
		t.Fatalf("应恢复缓存里的陈旧会话: %+v", s)
	}
}
