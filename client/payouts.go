package client

import (
	"context"
	"strings"
)

// SubmitPayout 提交提现申请。当日评分额度未用完时先在客户端拦下（省一次往返），
// 服务端会再做一次权威校验。
func (c *Client) SubmitPayout(ctx context.Context, amount, method string, detail map[string]any) (PayoutRequest, error) {
	s := c.CurrentSession()
	if s == nil {
		return PayoutRequest{}, newError(ErrorKindAuth, "未登录")
	}
	if strings.TrimSpace(amount) == "" {
		return PayoutRequest{}, newError(ErrorKindValidation, "请输入提现金额")
	}
	if s.Remaining > 0 {
		return PayoutRequest{}, newError(ErrorKindBusiness, "请先完成今日评分任务")
	}
	out, err := c.Payouts().Create(ctx, map[string]any{
		"amount": strings.TrimSpace(amount),
		"method": method,
		"detail": detail,
	})
	if err != nil {
		return PayoutRequest{}, err
	}
	// 提现会冻结到审批，余额以服务端为准。
	_, _ = c.RefreshSelf(ctx)
	return out, nil
}
