// Package store 负责数据库连接与迁移，避免业务层直接处理 schema 细节。
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// OpenDB 按驱动名打开数据库。driver 来自 RATEMALL_DB_DRIVER，
// 为空时由 config 层根据 DSN 推断，这里只接受已归一化的值。
func OpenDB(env string, driver string, mysqlDSN string, sqlitePath string) (*sql.DB, Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		db, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, "", err
		}
		return db, DialectSQLite, nil
	case "mysql":
		db, err := OpenMySQL(env, mysqlDSN)
		if err != nil {
			return nil, "", err
		}
		return db, DialectMySQL, nil
	default:
		return nil, "", fmt.Errorf("RATEMALL_DB_DRIVER 不支持：%q（可选 mysql/sqlite）", driver)
	}
}

func OpenMySQL(env string, dsn string) (*sql.DB, error) {
	db, err := newMySQLPool(dsn)
	if err != nil {
		return nil, err
	}

	// dev 下 MySQL 常与服务一起由 compose 拉起，容忍启动竞态；线上只 ping 一次。
	if env == "dev" {
		err = waitMySQLReady(db, dsn)
	} else {
		err = pingOnce(db)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("RATEMALL_SQLITE_PATH 不能为空")
	}

	// path 可带 query 形式的驱动选项（如 ?_busy_timeout=30000），建目录前先剥掉。
	filePath := path
	if i := strings.IndexByte(filePath, '?'); i >= 0 {
		filePath = filePath[:i]
	}
	if filePath != "" && filePath != ":memory:" && !strings.HasPrefix(filePath, "file::memory:") {
		if dir := filepath.Dir(filePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("创建 sqlite 数据目录失败: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(sqlite): %w", err)
	}
	// 评分入账、充值审批都是写事务；SQLite 多连接并发写只会互相顶锁，收敛为单连接。
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := pingOnce(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// WAL 是数据库文件级持久设置，执行一次即可。
	_, _ = db.Exec(`PRAGMA journal_mode=WAL`)
	return db, nil
}

func newMySQLPool(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(mysql): %w", err)
	}
	// 请求都是短行级事务（余额增减、状态翻转），连接占用时间很短，
	// 池子不必开大；上限对齐 MySQL 默认 max_connections 的零头。
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	return db, nil
}

func pingOnce(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db.Ping: %w", err)
	}
	return nil
}

// waitMySQLReady 在 dev 环境等待 MySQL 就绪，库不存在时自动建一次。
func waitMySQLReady(db *sql.DB, dsn string) error {
	const (
		maxWait    = 30 * time.Second
		maxBackoff = 2 * time.Second
	)

	deadline := time.Now().Add(maxWait)
	backoff := 200 * time.Millisecond
	waitLogged := false
	var lastErr error

	for time.Now().Before(deadline) {
		lastErr = pingOnce(db)
		if lastErr == nil {
			return nil
		}

		switch {
		case isUnknownDatabase(lastErr):
			if err := ensureMySQLDatabase(dsn); err != nil {
				return errors.Join(lastErr, err)
			}
			slog.Info("RATEMALL_DB_DSN 指向的数据库不存在，已自动创建并重试连接")
			continue
		case isAccessDenied(lastErr):
			// 账号/权限错误重试不会好转。
			return lastErr
		}

		if !waitLogged {
			slog.Info("等待 MySQL 就绪（dev）", "timeout", maxWait.String())
			waitLogged = true
		}
		time.Sleep(backoff)
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	if lastErr == nil {
		lastErr = driver.ErrBadConn
	}
	return lastErr
}

func mysqlErrNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return 0
	}
	return myErr.Number
}

func isUnknownDatabase(err error) bool {
	// 1049: ER_BAD_DB_ERROR
	return mysqlErrNumber(err) == 1049
}

func isAccessDenied(err error) bool {
	// 1045: ER_ACCESS_DENIED_ERROR / 1044: ER_DBACCESS_DENIED_ERROR
	n := mysqlErrNumber(err)
	return n == 1045 || n == 1044
}

func ensureMySQLDatabase(dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("解析 RATEMALL_DB_DSN 失败: %w", err)
	}
	if cfg.DBName == "" {
		return errors.New("RATEMALL_DB_DSN 未包含数据库名")
	}

	adminCfg := *cfg
	adminCfg.DBName = ""

	adminDB, err := sql.Open("mysql", adminCfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("sql.Open(admin): %w", err)
	}
	defer adminDB.Close()

	escaped := strings.ReplaceAll(cfg.DBName, "`", "``")
	stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", escaped)
	if cs := cfg.Params["charset"]; isSafeMySQLIdent(cs) {
		stmt += " DEFAULT CHARACTER SET " + cs
	}
	if col := cfg.Params["collation"]; isSafeMySQLIdent(col) {
		stmt += " DEFAULT COLLATE " + col
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

// isSafeMySQLIdent 限定 charset/collation 只含字母数字下划线，杜绝拼接注入。
func isSafeMySQLIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == '_', r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
