package client

import (
	"context"
	"strconv"
)

// PayDeposit 为一笔待审核充值单发起在线支付，返回网关跳转地址。
// 跳转和支付发生在浏览器侧，到账由服务端 webhook 确认，本地不做任何预记账。
func (c *Client) PayDeposit(ctx context.Context, paymentID, channelID int64, epayType string) (string, error) {
	payload := map[string]any{"payment_channel_id": channelID}
	if epayType != "" {
		payload["epay_type"] = epayType
	}
	data, err := c.doJSON(ctx, "POST", "/api/fund-payments/"+strconv.FormatInt(paymentID, 10)+"/pay", payload)
	if err != nil {
		return "", err
	}
	redirect := data.Get("redirect_url").String()
	if redirect == "" {
		return "", newError(ErrorKindBusiness, "网关未返回支付地址")
	}
	return redirect, nil
}
