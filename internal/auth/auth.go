// Package auth 提供统一的请求主体信息（bearer/cookie 会话）与密码、随机令牌工具。
package auth

import (
	"context"
)

type ActorType string

const (
	ActorTypeBearer  ActorType = "bearer"
	ActorTypeSession ActorType = "session"
)

type Principal struct {
	ActorType ActorType
	UserID    int64
	SessionID *int64
	Role      string
	Plan      string
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
