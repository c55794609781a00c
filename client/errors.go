package client

import (
	"errors"
	"fmt"
)

// 错误分类：所有经过 SDK 边界的错误统一归一化为 APIError，
// 调用方拿到的永远是 {Kind, Message} 这一种形状。
const (
	ErrorKindValidation = "validation"
	ErrorKindAuth       = "auth"
	ErrorKindNetwork    = "network"
	ErrorKindBusiness   = "business"
)

type APIError struct {
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind, message string) *APIError {
	if message == "" {
		message = "未知错误"
	}
	return &APIError{Kind: kind, Message: message}
}

// IsKind 判断 err（或其包裹链上）是否为指定分类的 APIError。
func IsKind(err error, kind string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == kind
}
