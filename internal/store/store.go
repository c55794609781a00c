// Package store 提供数据库读写的封装与基础约束，保证业务层只处理领域语义而不是 SQL 细节。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"

	"ratemall/internal/crypto"
)

const (
	UserRoleAdmin = "admin"
	UserRoleUser  = "user"
)

const (
	UserStatusPending  = 0
	UserStatusActive   = 1
	UserStatusDisabled = 2
)

const DefaultPlan = "basic"

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		dialect: DialectMySQL,
	}
}

func (s *Store) SetDialect(d Dialect) {
	if strings.TrimSpace(string(d)) == "" {
		return
	}
	s.dialect = d
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计用户失败: %w", err)
	}
	return n, nil
}

// newReferralCode 生成邀请码（大写字母+数字，8 位）。
var newReferralCode = mustReferralCodeGenerator()

func mustReferralCodeGenerator() func() string {
	gen, err := nanoid.CustomASCII("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", 8)
	if err != nil {
		panic(err)
	}
	return gen
}

func (s *Store) CreateUser(ctx context.Context, email string, username string, passwordHash []byte, role string, status int, referredBy *int64) (int64, error) {
	if role == "" {
		role = UserRoleUser
	}
	if strings.TrimSpace(username) == "" {
		return 0, errors.New("账号名不能为空")
	}

	// 邀请码理论上可能撞唯一键，重试几次即可。
	var lastErr error
	for i := 0; i < 3; i++ {
		code := newReferralCode()
		res, err := s.db.ExecContext(ctx, `
	INSERT INTO users(email, username, password_hash, role, plan, status, referral_code, referred_by, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, email, username, passwordHash, role, DefaultPlan, status, code, referredBy)
		if err != nil {
			lastErr = err
			if isUniqueViolation(err) && !strings.Contains(err.Error(), "referral_code") {
				return 0, fmt.Errorf("创建用户失败: %w", err)
			}
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("获取用户 id 失败: %w", err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("创建用户失败: %w", lastErr)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

const userColumns = `id, email, username, password_hash, role, plan, status, referral_code, referred_by, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var referredBy sql.NullInt64
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Plan, &u.Status, &u.ReferralCode, &referredBy, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if referredBy.Valid && referredBy.Int64 > 0 {
		v := referredBy.Int64
		u.ReferredBy = &v
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code=?`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, statusPtr *int, limit int) ([]User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if statusPtr != nil {
		q += ` WHERE status=?`
		args = append(args, *statusPtr)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描用户失败: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历用户失败: %w", err)
	}
	return out, nil
}

func (s *Store) ApproveUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET status=?, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND status=?
`, UserStatusActive, userID, UserStatusPending)
	if err != nil {
		return fmt.Errorf("审核用户失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID int64, status int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET status=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, status, userID)
	if err != nil {
		return fmt.Errorf("更新用户状态失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateUserPlan(ctx context.Context, userID int64, plan string) error {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return errors.New("plan 不能为空")
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET plan=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, plan, userID)
	if err != nil {
		return fmt.Errorf("更新用户套餐失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateUserUsername(ctx context.Context, userID int64, username string) error {
	username, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET username=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, username, userID)
	if err != nil {
		return fmt.Errorf("更新用户账号名失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateUserPasswordHash(ctx context.Context, userID int64, passwordHash []byte) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET password_hash=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("更新用户密码失败: %w", err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, userID)
	if err != nil {
		return fmt.Errorf("删除用户失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id=?`, userID); err != nil {
		return fmt.Errorf("清理用户会话失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_balances WHERE user_id=?`, userID); err != nil {
		return fmt.Errorf("清理用户余额失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// NormalizeUsername 校验并归一化账号名：3-32 位，字母/数字/下划线。
func NormalizeUsername(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if len(u) < 3 || len(u) > 32 {
		return "", errors.New("账号名长度需在 3-32 位之间")
	}
	for i := range u {
		c := u[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return "", errors.New("账号名仅允许字母、数字与下划线")
	}
	return u, nil
}

func (s *Store) CreateSession(ctx context.Context, userID int64, rawSession string, expiresAt time.Time) (int64, error) {
	sessionHash := crypto.TokenHash(rawSession)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO user_sessions(user_id, session_hash, expires_at, created_at, last_seen_at)
VALUES(?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`, userID, sessionHash, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("创建会话失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取会话 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetSessionByRaw(ctx context.Context, rawSession string) (UserSession, error) {
	sessionHash := crypto.TokenHash(rawSession)
	var sess UserSession
	err := s.db.QueryRowContext(ctx, `
SELECT id, user_id, session_hash, expires_at, created_at, last_seen_at
FROM user_sessions
WHERE session_hash=?
`, sessionHash).Scan(&sess.ID, &sess.UserID, &sess.SessionHash, &sess.ExpiresAt, &sess.CreatedAt, &sess.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserSession{}, sql.ErrNoRows
		}
		return UserSession{}, fmt.Errorf("查询会话失败: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id=?`, sess.ID)
		return UserSession{}, sql.ErrNoRows
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE user_sessions SET last_seen_at=CURRENT_TIMESTAMP WHERE id=?`, sess.ID)
	return sess, nil
}

type SessionAuth struct {
	UserID    int64
	SessionID int64
	Role      string
	Plan      string
}

// GetSessionAuthByRawToken 供 Bearer 鉴权中间件使用：一次查询取回会话与用户要素。
func (s *Store) GetSessionAuthByRawToken(ctx context.Context, rawSession string) (SessionAuth, error) {
	sessionHash := crypto.TokenHash(rawSession)
	var auth SessionAuth
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
SELECT
  u.id, se.id, u.role, u.plan, se.expires_at
FROM user_sessions se
JOIN users u ON u.id=se.user_id
WHERE se.session_hash=? AND u.status=?
`, sessionHash, UserStatusActive).Scan(&auth.UserID, &auth.SessionID, &auth.Role, &auth.Plan, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionAuth{}, sql.ErrNoRows
		}
		return SessionAuth{}, fmt.Errorf("查询会话鉴权失败: %w", err)
	}
	if time.Now().After(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id=?`, auth.SessionID)
		return SessionAuth{}, sql.ErrNoRows
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE user_sessions SET last_seen_at=CURRENT_TIMESTAMP WHERE id=?`, auth.SessionID)
	return auth, nil
}

func (s *Store) DeleteSessionByRaw(ctx context.Context, rawSession string) error {
	sessionHash := crypto.TokenHash(rawSession)
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE session_hash=?`, sessionHash)
	if err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

func (s *Store) DeleteSessionsByUserID(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id=?`, userID)
	if err != nil {
		return fmt.Errorf("清理用户会话失败: %w", err)
	}
	return nil
}
