package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("Addr = %q; want :8080", cfg.Server.Addr)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("DB.Driver = %q; want sqlite", cfg.DB.Driver)
	}
	if cfg.DB.SQLitePath == "" {
		t.Fatalf("expected sqlite path default")
	}
	if !cfg.Deposit.MinAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("Deposit.MinAmount = %s; want 10", cfg.Deposit.MinAmount)
	}
}

func TestLoadFromEnv_EnvOverrides(t *testing.T) {
	t.Setenv("RATEMALL_ENV", "prod")
	t.Setenv("RATEMALL_ADDR", ":9090")
	t.Setenv("RATEMALL_DB_DSN", "user:pass@tcp(127.0.0.1:3306)/ratemall?parseTime=true")
	t.Setenv("RATEMALL_REFERRAL_BONUS_PERCENT", "0.1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Env != "prod" {
		t.Fatalf("Env = %q; want prod", cfg.Env)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("Addr = %q; want :9090", cfg.Server.Addr)
	}
	// 只配置 dsn 时推断为 mysql。
	if cfg.DB.Driver != "mysql" {
		t.Fatalf("DB.Driver = %q; want mysql", cfg.DB.Driver)
	}
	if !cfg.Referral.BonusPercent.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("BonusPercent = %s; want 0.1", cfg.Referral.BonusPercent)
	}
}

func TestNormalizeHTTPBaseURL(t *testing.T) {
	if v, err := NormalizeHTTPBaseURL("https://example.com/", "x"); err != nil || v != "https://example.com" {
		t.Fatalf("NormalizeHTTPBaseURL = %q, %v", v, err)
	}
	if _, err := NormalizeHTTPBaseURL("ftp://example.com", "x"); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
	if v, err := NormalizeHTTPBaseURL("", "x"); err != nil || v != "" {
		t.Fatalf("empty base url should pass through")
	}
}
