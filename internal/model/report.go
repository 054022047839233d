package model

import "time"

// Report - данные для выгрузки в файл
type Report struct {
	CreatedAt time.Time
	Deposit   *DepositResult
	Rebalance *RebalanceResult
	Names     map[string]string
}
