// Package config 负责读取并合并服务配置（环境变量为主），避免在业务代码里散落解析逻辑。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	Env      string
	Server   ServerConfig
	DB       DBConfig
	Security SecurityConfig
	Uploads  UploadsConfig
	Deposit  DepositConfig
	Referral ReferralConfig
	Payout   PayoutConfig
}

type ServerConfig struct {
	Addr          string
	PublicBaseURL string

	// HTTP 连接硬化：这些参数会直接映射到 net/http 的 http.Server。
	// WriteTimeout 保持为 0，以兼容工单 SSE 长连接响应。
	ReadHeaderTimeoutSeconds int
	ReadTimeoutSeconds       int
	IdleTimeoutSeconds       int
	MaxHeaderBytes           int

	// 请求体上限。普通 JSON API 1MB 起步；带图片的 multipart 单独放宽。
	PublicMaxBodyBytes    int64
	MultipartMaxBodyBytes int64
}

type DBConfig struct {
	// Driver 支持 mysql/sqlite；为空时根据 dsn 自动推断（有 dsn 推断为 mysql，否则 sqlite）。
	Driver string
	// DSN 仅用于 MySQL（示例：user:pass@tcp(127.0.0.1:3306)/ratemall?parseTime=true&charset=utf8mb4）
	DSN string
	// SQLitePath 是 SQLite 数据库文件路径（可包含 DSN query，如 ?_busy_timeout=30000）。
	SQLitePath string
}

type SecurityConfig struct {
	AllowOpenRegistration bool
	DisableSecureCookies  bool
}

type UploadsConfig struct {
	// Dir 存放凭证图片/商品图片/广告图片与工单附件。
	Dir string
}

type DepositConfig struct {
	// MinAmount 单笔充值下限（平台币）。
	MinAmount decimal.Decimal
}

type ReferralConfig struct {
	// BonusPercent 被推荐人首笔充值通过审核后，推荐人获得的返利比例（0.05 = 5%）。
	BonusPercent decimal.Decimal
}

type PayoutConfig struct {
	// MinAmount 单笔提现下限（平台币）。
	MinAmount decimal.Decimal
}

func LoadFromEnv() (Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return normalizeAndValidate(cfg)
}

func defaultConfig() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Addr: ":8080",

			ReadHeaderTimeoutSeconds: 5,
			ReadTimeoutSeconds:       30,
			IdleTimeoutSeconds:       120,
			MaxHeaderBytes:           1048576,

			PublicMaxBodyBytes:    1 << 20,  // 1MB
			MultipartMaxBodyBytes: 16 << 20, // 16MB
		},
		DB: DBConfig{
			SQLitePath: "./data/ratemall.db?_busy_timeout=30000",
		},
		Security: SecurityConfig{
			AllowOpenRegistration: true,
		},
		Uploads: UploadsConfig{
			Dir: "./data/uploads",
		},
		Deposit: DepositConfig{
			MinAmount: decimal.NewFromInt(10),
		},
		Referral: ReferralConfig{
			BonusPercent: decimal.NewFromInt(5).Div(decimal.NewFromInt(100)),
		},
		Payout: PayoutConfig{
			MinAmount: decimal.NewFromInt(1),
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RATEMALL_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("RATEMALL_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RATEMALL_PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("RATEMALL_SERVER_READ_HEADER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.ReadHeaderTimeoutSeconds = n
		}
	}
	if v := os.Getenv("RATEMALL_SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.ReadTimeoutSeconds = n
		}
	}
	if v := os.Getenv("RATEMALL_SERVER_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.IdleTimeoutSeconds = n
		}
	}
	if v := os.Getenv("RATEMALL_SERVER_MAX_HEADER_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.MaxHeaderBytes = n
		}
	}
	if v := os.Getenv("RATEMALL_PUBLIC_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.PublicMaxBodyBytes = n
		}
	}
	if v := os.Getenv("RATEMALL_MULTIPART_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MultipartMaxBodyBytes = n
		}
	}
	if v := os.Getenv("RATEMALL_DB_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	if v := os.Getenv("RATEMALL_DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("RATEMALL_SQLITE_PATH"); v != "" {
		cfg.DB.SQLitePath = v
	}
	if v := os.Getenv("RATEMALL_ALLOW_OPEN_REGISTRATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.AllowOpenRegistration = b
		}
	}
	if v := os.Getenv("RATEMALL_DISABLE_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.DisableSecureCookies = b
		}
	}
	if v := os.Getenv("RATEMALL_UPLOADS_DIR"); v != "" {
		cfg.Uploads.Dir = v
	}
	if v := os.Getenv("RATEMALL_DEPOSIT_MIN_AMOUNT"); v != "" {
		if d, err := parseDecimalNonNeg(v, 2); err == nil {
			cfg.Deposit.MinAmount = d
		}
	}
	if v := os.Getenv("RATEMALL_REFERRAL_BONUS_PERCENT"); v != "" {
		if d, err := parseDecimalNonNeg(v, 4); err == nil {
			cfg.Referral.BonusPercent = d
		}
	}
	if v := os.Getenv("RATEMALL_PAYOUT_MIN_AMOUNT"); v != "" {
		if d, err := parseDecimalNonNeg(v, 2); err == nil {
			cfg.Payout.MinAmount = d
		}
	}
}

func normalizeAndValidate(cfg Config) (Config, error) {
	publicBaseURL, err := NormalizeHTTPBaseURL(cfg.Server.PublicBaseURL, "server.public_base_url")
	if err != nil {
		return Config{}, err
	}
	cfg.Server.PublicBaseURL = publicBaseURL
	if cfg.Server.Addr == "" {
		return Config{}, errors.New("server.addr 不能为空")
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.DB.DSN = strings.TrimSpace(cfg.DB.DSN)
	cfg.DB.SQLitePath = strings.TrimSpace(cfg.DB.SQLitePath)

	if cfg.DB.Driver == "" {
		if cfg.DB.DSN != "" {
			cfg.DB.Driver = "mysql"
		} else {
			cfg.DB.Driver = "sqlite"
		}
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if cfg.DB.SQLitePath == "" {
			cfg.DB.SQLitePath = "./data/ratemall.db?_busy_timeout=30000"
		}
	case "mysql":
		if cfg.DB.DSN == "" {
			return Config{}, errors.New("db.dsn 不能为空（db.driver=mysql）")
		}
	default:
		return Config{}, fmt.Errorf("db.driver 不支持：%s（仅支持 mysql/sqlite）", cfg.DB.Driver)
	}

	cfg.Uploads.Dir = strings.TrimSpace(cfg.Uploads.Dir)
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = "./data/uploads"
	}

	if cfg.Referral.BonusPercent.IsNegative() || cfg.Referral.BonusPercent.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, errors.New("referral.bonus_percent 需在 [0,1] 之间")
	}

	return cfg, nil
}

func NormalizeHTTPBaseURL(raw string, label string) (string, error) {
	v := strings.TrimRight(strings.TrimSpace(raw), "/")
	if v == "" {
		return "", nil
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", fmt.Errorf("解析 %s 失败: %w", label, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s 仅支持 http/https", label)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%s host 不能为空", label)
	}
	return v, nil
}

func parseDecimalNonNeg(raw string, scale int32) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errors.New("金额为空")
	}
	if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "+"))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.New("金额格式不合法")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("金额不能为负数")
	}
	if d.Exponent() < -scale {
		return decimal.Zero, fmt.Errorf("最多支持 %d 位小数", scale)
	}
	return d.Truncate(scale), nil
}
