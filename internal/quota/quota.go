// Package quota 定义套餐与每日评分配额的换算规则。
package quota

import "github.com/shopspring/decimal"

// Plan 描述一个套餐的任务额度与收益倍率。
type Plan struct {
	Name       string
	DailyQuota int
	Multiplier decimal.Decimal
}

var plans = map[string]Plan{
	"basic":   {Name: "basic", DailyQuota: 5, Multiplier: decimal.NewFromInt(1)},
	"gold":    {Name: "gold", DailyQuota: 10, Multiplier: decimal.RequireFromString("1.2")},
	"diamond": {Name: "diamond", DailyQuota: 20, Multiplier: decimal.RequireFromString("1.5")},
}

// Lookup 返回套餐定义；未知套餐按 basic 兜底，避免旧数据把用户卡死。
func Lookup(name string) Plan {
	if p, ok := plans[name]; ok {
		return p
	}
	return plans["basic"]
}

func IsValid(name string) bool {
	_, ok := plans[name]
	return ok
}

func Names() []string {
	return []string{"basic", "gold", "diamond"}
}

// Remaining 计算剩余可评分次数，永不为负。
func Remaining(planName string, ratedToday int) int {
	p := Lookup(planName)
	r := p.DailyQuota - ratedToday
	if r < 0 {
		return 0
	}
	return r
}
