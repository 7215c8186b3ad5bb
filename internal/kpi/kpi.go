// Package kpi - показатели закупщиков и отставание от лидера
package kpi

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partsmarket/models"
)

// Gap - сколько не хватает до лидера; 0, если лидер мы сами или нас обогнать некому
func Gap(personal, leader float64) float64 {
	if diff := leader - personal; diff > 0 {
		return diff
	}
	return 0
}

// Percent - отставание от лидера в процентах от его значения, округлённое до целого
func Percent(personal, leader float64) int {
	if leader == 0 {
		return 0
	}
	diff := leader - personal
	if diff <= 0 {
		return 0
	}
	return int(math.Round(diff / leader * 100))
}

const noLeader = "-"

type Department struct {
	Turnover decimal.Decimal `json:"turnover"`
}

type Personal struct {
	KPCount  int             `json:"kp_count"`
	KPSum    decimal.Decimal `json:"kp_sum"`
	WonCount int             `json:"won_count"`
	WonSum   decimal.Decimal `json:"won_sum"`
}

type Leaders struct {
	QuantityLeader string          `json:"quantity_leader"`
	QuantityVal    int             `json:"quantity_val"`
	SumLeader      string          `json:"sum_leader"`
	SumVal         decimal.Decimal `json:"sum_val"`
}

type Gaps struct {
	Quantity        float64 `json:"quantity"`
	QuantityPercent int     `json:"quantity_percent"`
	Sum             float64 `json:"sum"`
	SumPercent      int     `json:"sum_percent"`
}

// Dashboard - панель закупщика за текущий месяц
type Dashboard struct {
	Department Department `json:"department"`
	Personal   Personal   `json:"personal"`
	Leaders    Leaders    `json:"leaders"`
	Gaps       Gaps       `json:"gaps"`
}

// BuildDashboard собирает панель из агрегатов по всем закупщикам.
// Пользователь без строки получает нулевые личные показатели.
func BuildDashboard(userID uuid.UUID, rows []models.BuyerStat) Dashboard {
	d := Dashboard{
		Leaders: Leaders{QuantityLeader: noLeader, SumLeader: noLeader},
	}

	for _, r := range rows {
		d.Department.Turnover = d.Department.Turnover.Add(r.KPSum)

		if r.UserID == userID {
			d.Personal = Personal{KPCount: r.KPCount, KPSum: r.KPSum, WonCount: r.WonCount, WonSum: r.WonSum}
		}
		if r.KPCount > d.Leaders.QuantityVal {
			d.Leaders.QuantityVal = r.KPCount
			d.Leaders.QuantityLeader = r.Name
		}
		if r.KPSum.GreaterThan(d.Leaders.SumVal) {
			d.Leaders.SumVal = r.KPSum
			d.Leaders.SumLeader = r.Name
		}
	}

	mySum, _ := d.Personal.KPSum.Float64()
	leaderSum, _ := d.Leaders.SumVal.Float64()
	d.Gaps = Gaps{
		Quantity:        Gap(float64(d.Personal.KPCount), float64(d.Leaders.QuantityVal)),
		QuantityPercent: Percent(float64(d.Personal.KPCount), float64(d.Leaders.QuantityVal)),
		Sum:             Gap(mySum, leaderSum),
		SumPercent:      Percent(mySum, leaderSum),
	}
	return d
}
