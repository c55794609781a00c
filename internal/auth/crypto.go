package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// TokenPrefix 是接口令牌的统一前缀，便于在日志与工单里一眼认出本系统的令牌。
const TokenPrefix = "rm-"

const (
	passwordMinLen = 8
	// bcrypt 只取前 72 字节参与哈希，超出部分会被静默截断，这里直接拒绝。
	passwordMaxBytes = 72

	sessionTokenBytes = 32
)

func HashPassword(password string) ([]byte, error) {
	if len(password) < passwordMinLen {
		return nil, fmt.Errorf("密码长度至少 %d 位", passwordMinLen)
	}
	if len(password) > passwordMaxBytes {
		return nil, errors.New("密码过长")
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func CheckPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// NewSessionToken 生成一枚登录令牌（rm- 前缀 + 32 字节随机数的 URL-safe base64）。
// 持久化时只存 SHA-256 摘要，明文仅在登录响应里出现一次。
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
