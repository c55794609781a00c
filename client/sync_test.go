package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"ratemall/client"
)

func newFakeClient(t *testing.T, handler http.Handler) *client.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func writeEnvelope(w http.ResponseWriter, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    data,
	})
}

func productDoc(id int64, name string) map[string]any {
	return map[string]any{"id": id, "name": name, "income_per_rating": "0.50", "plan": "basic"}
}

func TestFetchAllReplacesLocalState(t *testing.T) {
	pages := [][]map[string]any{
		{productDoc(1, "甲"), productDoc(2, "乙")},
		{productDoc(3, "丙")},
	}
	call := 0
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pages[call]
		if call < len(pages)-1 {
			call++
		}
		writeEnvelope(w, true, "", page)
	}))

	col := c.Products()
	col.ListPath = "/api/products/all"

	first, err := col.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("期望 2 条，得到 %d", len(first))
	}

	second, err := col.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	// 整体替换：上一次过滤条件的结果不应残留。
	if len(second) != 1 || second[0].ID != 3 {
		t.Fatalf("期望只剩 id=3，得到 %+v", second)
	}
	if got := col.Items(); !reflect.DeepEqual(got, second) {
		t.Fatalf("本地副本与最后一次响应不一致: %+v", got)
	}
}

func TestFetchAllIdempotent(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, true, "", []map[string]any{productDoc(1, "甲")})
	}))
	col := c.Products()

	a, err := col.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	b, err := col.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("两次无变更拉取结果不一致: %+v vs %+v", a, b)
	}
}

func TestCreateAppendsServerCopy(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			// 服务端分配 id。
			writeEnvelope(w, true, "", productDoc(42, "新品"))
			return
		}
		writeEnvelope(w, true, "", []map[string]any{})
	}))
	col := c.Products()
	if _, err := col.FetchAll(context.Background(), nil); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	created, err := col.Create(context.Background(), map[string]any{"name": "新品"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != 42 {
		t.Fatalf("应采用服务端分配的 id，得到 %d", created.ID)
	}
	items := col.Items()
	if len(items) != 1 || items[0].ID != 42 {
		t.Fatalf("本地应追加服务端副本: %+v", items)
	}
}

func TestRemoveKeepsLocalOnFailure(t *testing.T) {
	fail := true
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			if fail {
				writeEnvelope(w, false, "不允许删除", nil)
				return
			}
			writeEnvelope(w, true, "已删除", nil)
		default:
			writeEnvelope(w, true, "", []map[string]any{productDoc(7, "甲")})
		}
	}))
	col := c.Products()
	if _, err := col.FetchAll(context.Background(), nil); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	err := col.Remove(context.Background(), 7)
	if !client.IsKind(err, client.ErrorKindBusiness) {
		t.Fatalf("期望业务类错误，得到 %v", err)
	}
	// 失败时绝不乐观删除。
	if items := col.Items(); len(items) != 1 {
		t.Fatalf("失败后本地不应变化: %+v", items)
	}

	fail = false
	if err := col.Remove(context.Background(), 7); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if items := col.Items(); len(items) != 0 {
		t.Fatalf("成功后应移除本地项: %+v", items)
	}
}

func TestUpdateReplacesWithServerCopy(t *testing.T) {
	c := newFakeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			// 服务端返回的完整副本才是权威状态（名字被服务端归一化）。
			writeEnvelope(w, true, "", productDoc(7, "服务端定稿"))
			return
		}
		writeEnvelope(w, true, "", []map[string]any{productDoc(7, "旧名")})
	}))
	col := c.Products()
	if _, err := col.FetchAll(context.Background(), nil); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	updated, err := col.Update(context.Background(), 7, map[string]any{"name": "随便改"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "服务端定稿" {
		t.Fatalf("应以服务端副本为准: %+v", updated)
	}
	if items := col.Items(); items[0].Name != "服务端定稿" {
		t.Fatalf("本地项未替换: %+v", items)
	}
}
