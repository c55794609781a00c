package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ratemall/client"
)

func TestPagerTrustsHasMoreFlag(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			// 短页但 has_more=true：不能以页长推断到底。
			writeEnvelope(w, true, "", map[string]any{
				"items":    []map[string]any{productDoc(1, "甲")},
				"has_more": true,
			})
		default:
			writeEnvelope(w, true, "", map[string]any{
				"items":    []map[string]any{productDoc(2, "乙"), productDoc(3, "丙")},
				"has_more": false,
			})
		}
	}))
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	pager := client.NewProductPager(c, "normal", 2)

	batch, err := pager.LoadMore(context.Background())
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if len(batch) != 1 || !pager.HasMore() {
		t.Fatalf("短页 + has_more=true 应继续展示加载更多: batch=%d hasMore=%v", len(batch), pager.HasMore())
	}

	if _, err := pager.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if pager.HasMore() {
		t.Fatalf("has_more=false 后不应再展示加载更多")
	}
	if got := len(pager.Items()); got != 3 {
		t.Fatalf("期望累计 3 条，得到 %d", got)
	}

	// 到底后的调用是空操作，不应再打后端。
	before := atomic.LoadInt32(&calls)
	if _, err := pager.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Fatalf("到底后不应再发请求")
	}
}

func TestPagerTracksAreIndependent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("type") {
		case "lucky":
			writeEnvelope(w, true, "", map[string]any{
				"items":    []map[string]any{productDoc(100, "幸运单")},
				"has_more": false,
			})
		default:
			writeEnvelope(w, true, "", map[string]any{
				"items":    []map[string]any{productDoc(1, "普通-" + q.Get("page"))},
				"has_more": true,
			})
		}
	}))
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	normal := client.NewProductPager(c, "normal", 20)
	lucky := client.NewProductPager(c, "lucky", 20)

	if _, err := normal.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore(normal): %v", err)
	}
	if _, err := lucky.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore(lucky): %v", err)
	}

	// 一条轨道翻页不影响另一条的游标与 has_more。
	if !normal.HasMore() || lucky.HasMore() {
		t.Fatalf("两条轨道应各自维护 has_more: normal=%v lucky=%v", normal.HasMore(), lucky.HasMore())
	}
	if _, err := normal.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore(normal): %v", err)
	}
	if got := normal.Items(); got[len(got)-1].Name != "普通-2" {
		t.Fatalf("normal 轨道应翻到第二页: %+v", got)
	}
	if got := lucky.Items(); len(got) != 1 || got[0].ID != 100 {
		t.Fatalf("lucky 轨道不应被影响: %+v", got)
	}
}
