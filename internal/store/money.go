package store

import "github.com/shopspring/decimal"

const (
	// AmountScale 平台币统一保留 2 位小数；入库前一律 Truncate。
	AmountScale = int32(2)
	// RateScale 比例类数值（返利比例/佣金倍率）保留 4 位小数。
	RateScale = int32(4)
)

var DefaultCommissionMultiplier = decimal.NewFromInt(1)
