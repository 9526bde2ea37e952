// Package clock абстрагирует время и таймеры, чтобы менеджеры сессии и 2FA
// вычисляли дедлайны по настенным часам и тестировались детерминированно.
package clock

import "time"

// Timer - отменяемый отложенный вызов.
type Timer interface {
	// Stop отменяет вызов. Возвращает false, если вызов уже состоялся или был отменен.
	Stop() bool
}

// Clock - источник текущего времени и отложенных вызовов.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// New возвращает системные часы.
func New() Clock {
	return realClock{}
}

// Now возвращает настенное время без монотонной составляющей: после сна хоста
// сравнения дедлайнов отражают реально прошедшее время.
func (realClock) Now() time.Time {
	return time.Now().Round(0)
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
