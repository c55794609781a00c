package client_test

import (
	"testing"

	"ratemall/client"
)

func TestMemCacheRoundTrip(t *testing.T) {
	c := client.NewMemCache()
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("不存在的 key 不应命中")
	}
	if err := c.Set("a", []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := c.Get("a")
	if !ok || string(v) != "x" {
		t.Fatalf("Get: got %q ok=%v", v, ok)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("Clear 后不应命中")
	}
}

func TestFileCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	c := client.NewFileCache(dir)
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := c.Set("session", []byte(`{"token":"rm-abc"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// 模拟进程重启：同目录重新打开要能读到快照。
	c2 := client.NewFileCache(dir)
	if err := c2.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	v, ok := c2.Get("session")
	if !ok || string(v) != `{"token":"rm-abc"}` {
		t.Fatalf("重开后未读到快照: %q ok=%v", v, ok)
	}

	if err := c2.Delete("session"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c2.Get("session"); ok {
		t.Fatalf("Delete 后不应命中")
	}
}
