package service

import "math"

// PlatformFeeRate доля платформы от базовой ставки учителя
const PlatformFeeRate = 0.10

// Price результат расчёта платы за занятие
type Price struct {
	PlatformFee   float64 `json:"platform_fee"`
	StudentAmount float64 `json:"student_amount"`
	TeacherPayout float64 `json:"teacher_payout"`
}

// CalcPrice выводит комиссию платформы, плату студента и выплату
// учителю из базовой ставки. Каждая величина округляется независимо,
// а не вычитанием из уже округлённого итога, поэтому fee + payout не
// обязаны сходиться с rate до копейки — это принятое поведение.
func CalcPrice(teacherRate float64) Price {
	fee := teacherRate * PlatformFeeRate
	return Price{
		PlatformFee:   round2(fee),
		StudentAmount: round2(teacherRate + fee),
		TeacherPayout: round2(teacherRate - fee),
	}
}

// round2 округляет до двух знаков, половина уходит вверх
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
