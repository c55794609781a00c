package store

import "errors"

var (
	// ErrInsufficientBalance 余额不足（提现/扣款路径）。
	ErrInsufficientBalance = errors.New("余额不足")
	// ErrAlreadyRated 同一用户对同一商品只允许评分一次。
	ErrAlreadyRated = errors.New("该商品已评分")
	// ErrQuotaExhausted 当日评分配额已用完。
	ErrQuotaExhausted = errors.New("今日评分次数已用完")
	// ErrOrderFinalized 资金单已处于终态，不允许再次流转。
	ErrOrderFinalized = errors.New("该订单已处理，不可重复操作")
	// ErrPayoutBlocked 仍有未完成的评分任务，暂不能提现。
	ErrPayoutBlocked = errors.New("请先完成今日评分任务再申请提现")
)
