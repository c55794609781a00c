package store_test

import (
	"strings"
	"testing"

	"ratemall/internal/store"
)

func TestOpenDBRejectsUnknownDriver(t *testing.T) {
	_, _, err := store.OpenDB("dev", "postgres", "", "")
	if err == nil {
		t.Fatalf("未知驱动应报错")
	}
	// 报错要指向本项目的配置项，运维照着改才有意义。
	if !strings.Contains(err.Error(), "RATEMALL_DB_DRIVER") {
		t.Fatalf("错误信息应提示 RATEMALL_DB_DRIVER: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := store.OpenSQLite("   ")
	if err == nil {
		t.Fatalf("空路径应报错")
	}
	if !strings.Contains(err.Error(), "RATEMALL_SQLITE_PATH") {
		t.Fatalf("错误信息应提示 RATEMALL_SQLITE_PATH: %v", err)
	}
}
