package client

import (
	"context"
	"strconv"
)

// 管理面的零散动作，不适合套集合同步器的路径布局。

// ApproveUser 审核通过一个待激活账号。
func (c *Client) ApproveUser(ctx context.Context, userID int64) (User, error) {
	data, err := c.doJSON(ctx, "PATCH", "/api/user/"+strconv.FormatInt(userID, 10)+"/approve", struct{}{})
	if err != nil {
		return User{}, err
	}
	return DecodeUser(data), nil
}

// CreatePaymentChannel 新建一个支付渠道（stripe/epay），返回渠道 id。
func (c *Client) CreatePaymentChannel(ctx context.Context, params map[string]any) (int64, error) {
	data, err := c.doJSON(ctx, "POST", "/api/payment-channels", params)
	if err != nil {
		return 0, err
	}
	return data.Get("id").Int(), nil
}

// ModerateAd 审核广告：action 为 approve 或 reject。
func (c *Client) ModerateAd(ctx context.Context, adID int64, action string) (Ad, error) {
	data, err := c.doJSON(ctx, "PATCH", "/api/ads/"+strconv.FormatInt(adID, 10)+"/status", map[string]string{"action": action})
	if err != nil {
		return Ad{}, err
	}
	return DecodeAd(data), nil
}
