package client_test

import (
	"fmt"
	"testing"

	"ratemall/client"
)

func TestIsKindMatchesWrappedError(t *testing.T) {
	base := &client.APIError{Kind: client.ErrorKindBusiness, Message: "额度已用完"}
	wrapped := fmt.Errorf("提交评分: %w", base)

	if !client.IsKind(base, client.ErrorKindBusiness) {
		t.Fatalf("裸 APIError 应匹配")
	}
	if !client.IsKind(wrapped, client.ErrorKindBusiness) {
		t.Fatalf("包裹后的 APIError 也应匹配")
	}
	if client.IsKind(wrapped, client.ErrorKindAuth) {
		t.Fatalf("分类不同不应匹配")
	}
	if client.IsKind(nil, client.ErrorKindBusiness) {
		t.Fatalf("nil 不应匹配")
	}
}
