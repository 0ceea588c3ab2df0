package service

import "time"

// JoinPreWindow за сколько до начала занятия открывается вход
const JoinPreWindow = 15 * time.Minute

type JoinState string

const (
	JoinStateNotYet   JoinState = "not_yet"
	JoinStateJoinable JoinState = "joinable"
	JoinStateLive     JoinState = "live"
	JoinStateEnded    JoinState = "ended"
)

// JoinWindow результат расчёта окна входа.
// Remaining заполнен только в состоянии not_yet — время до открытия окна.
type JoinWindow struct {
	State     JoinState
	Remaining time.Duration
}

// CalcJoinWindow чистая функция (now, start, end) -> состояние входа.
// Сама она ничего не хранит: вызывающий пересчитывает её на своём тике.
func CalcJoinWindow(now, start, end time.Time) JoinWindow {
	opens := start.Add(-JoinPreWindow)

	switch {
	case now.After(end):
		return JoinWindow{State: JoinStateEnded}
	case !now.Before(start):
		return JoinWindow{State: JoinStateLive}
	case !now.Before(opens):
		return JoinWindow{State: JoinStateJoinable}
	default:
		return JoinWindow{State: JoinStateNotYet, Remaining: opens.Sub(now)}
	}
}
