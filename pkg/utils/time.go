package utils

import "time"

// Календарные границы считаются в UTC: торговые сутки бота не зависят
// от зоны сервера и совпадают у риск-лимитов и статистики.

// DayStart возвращает начало календарного дня момента t в UTC
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameUTCDate сообщает, приходятся ли два момента на одну дату в UTC.
// Дневной лимит убытка сбрасывается при первой проверке новых суток,
// а не по таймеру.
func SameUTCDate(a, b time.Time) bool {
	return DayStart(a).Equal(DayStart(b))
}
