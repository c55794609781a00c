package client

import (
	"context"
	"strconv"
)

type RatingResult struct {
	RatingID     int64
	Earning      string
	Balance      string
	RatingsToday int64
	Remaining    int
	LuckyCleared bool
}

// FetchMyRatings 拉取当前用户的评分记录，用于“已评过”前置检查。
func (c *Client) FetchMyRatings(ctx context.Context) ([]RatingEntry, error) {
	s := c.CurrentSession()
	if s == nil {
		return nil, newError(ErrorKindAuth, "未登录")
	}
	data, err := c.doJSON(ctx, "GET", "/api/ratings/user/"+strconv.FormatInt(s.UserID, 10), nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, DecodeRatingEntry), nil
}

// HasRated 线性扫描评分列表判断该产品是否已评过。这只是 UX 层面的前置检查，
// 服务端的唯一约束才是权威判定。
func HasRated(ratings []RatingEntry, productID int64) bool {
	for _, r := range ratings {
		if r.ProductID == productID {
			return true
		}
	}
	return false
}

// SubmitRating 提交评分。额度与“已评过”都先在客户端预检以省一次往返，
// 但无论成败，本地 remaining 都以服务端返回值校正，绝不自行递减。
func (c *Client) SubmitRating(ctx context.Context, productID int64, rating int, comment string) (RatingResult, error) {
	s := c.CurrentSession()
	if s == nil {
		return RatingResult{}, newError(ErrorKindAuth, "未登录")
	}
	if productID <= 0 || rating < 1 || rating > 5 {
		return RatingResult{}, newError(ErrorKindValidation, "评分参数不正确")
	}
	if s.Remaining <= 0 {
		return RatingResult{}, newError(ErrorKindBusiness, "今日评分额度已用完")
	}
	if ratings, err := c.FetchMyRatings(ctx); err == nil && HasRated(ratings, productID) {
		return RatingResult{}, newError(ErrorKindBusiness, "该产品已评价过")
	}

	payload := map[string]any{
		"product_id": productID,
		"rating":     rating,
	}
	if comment != "" {
		payload["comment"] = comment
	}
	data, err := c.doJSON(ctx, "POST", "/api/ratings", payload)
	if err != nil {
		// 服务端拒绝时不得扣本地额度；回源一次校正，防止漂移。
		if IsKind(err, ErrorKindBusiness) {
			_, _ = c.RefreshSelf(ctx)
		}
		return RatingResult{}, err
	}

	res := RatingResult{
		RatingID:     data.Get("rating_id").Int(),
		Earning:      data.Get("earning").String(),
		Balance:      data.Get("balance").String(),
		RatingsToday: data.Get("ratings_today").Int(),
		Remaining:    clampRemaining(data.Get("remaining").Int()),
		LuckyCleared: data.Get("lucky_cleared").Bool(),
	}
	c.reconcileRemaining(data.Get("remaining").Int())
	c.mu.Lock()
	if c.session != nil {
		c.session.Balance = res.Balance
	}
	c.mu.Unlock()
	if snap := c.CurrentSession(); snap != nil {
		c.setSession(snap)
	}
	c.pushNotice(NoticeSuccess, "评分成功，收益 "+res.Earning)
	return res, nil
}

// LuckyDrawStatus 是当前用户的促销浮层状态；只读，所有余额变动都在服务端完成。
type LuckyDrawStatus struct {
	Active      bool
	OrderID     int64
	ProductID   int64
	ProductName string
	Amount      string
	Multiplier  string
}

// FetchLuckyDraw 进入页面以及 remaining 变化时调用，决定是否弹出幸运单浮层。
func (c *Client) FetchLuckyDraw(ctx context.Context) (LuckyDrawStatus, error) {
	data, err := c.doJSON(ctx, "GET", "/api/user/luckydraw", nil)
	if err != nil {
		return LuckyDrawStatus{}, err
	}
	return LuckyDrawStatus{
		Active:      data.Get("active").Bool(),
		OrderID:     data.Get("order_id").Int(),
		ProductID:   data.Get("product_id").Int(),
		ProductName: data.Get("product_name").String(),
		Amount:      data.Get("amount").String(),
		Multiplier:  data.Get("multiplier").String(),
	}, nil
}
