package utils

import (
	"math"
)

// math.go - чистые вычислительные функции торгового ядра: приведение
// объёмов и цен к шагам биржи, межбиржевые спреды, цены лимитных и
// догоняющих ордеров, PNL по ногам позиции. Состояния и побочных
// эффектов нет, всё пригодно для горячего пути.

// RoundToLotSize округляет объём вниз до кратного lotSize.
//
// Округление вниз не даёт ордеру превысить доступные средства:
// отбрасываемый остаток всегда меньше одного шага. При lotSize <= 0
// значение возвращается как есть.
//
//	RoundToLotSize(0.2374, 0.001) = 0.237
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет объём вверх до кратного lotSize. Нужен там,
// где требуется дотянуть объём до биржевого минимума (minQty).
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// RoundToLotSizeNearest округляет объём к ближайшему кратному lotSize.
// Половина шага уходит вверх.
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Round(value/lotSize) * lotSize
}

// RoundToTickSize округляет цену вниз до шага цены биржи.
//
// Биржи отклоняют ордера с ценой, не кратной tick size, поэтому
// перед отправкой лимитного ордера цену нужно привести к шагу.
func RoundToTickSize(price, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	return math.Floor(price/tickSize) * tickSize
}

// CrossVenueSpread расчитывает абсолютный межбиржевой спред.
//
// Формула:
//
//	spread = ask_продающей - bid_покупающей
//
// Положительное значение означает, что ask одной площадки выше bid другой,
// то есть продажа на первой и покупка на второй фиксируют разницу.
//
// Параметры:
//   - ask: цена ask на площадке продажи
//   - bid: цена bid на площадке покупки
//
// Возвращает:
//   - Спред в абсолютных единицах цены (не в процентах)
func CrossVenueSpread(ask, bid float64) float64 {
	return ask - bid
}

// SpreadPercent расчитывает спред между двумя ценами в процентах.
//
// Формула:
//
//	Спред (%) = ((P_высокая - P_низкая) / P_низкая) × 100
//
// Используется для отображения в дашборде; торговые решения
// принимаются по абсолютному спреду (CrossVenueSpread).
//
// Возвращает 0 если priceLow <= 0.
func SpreadPercent(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// LimitPrice расчитывает цену пассивного лимитного ордера внутри спреда.
//
// Покупка ставится чуть выше лучшего bid, продажа - чуть ниже лучшего ask.
// Ордер остаётся в книге, но стоит первым в очереди на своей стороне.
//
// Параметры:
//   - side: "buy" или "sell"
//   - bid, ask: лучшие котировки площадки
//   - offset: смещение агрессии (например, 0.01)
//
// Возвращает:
//   - Цена лимитного ордера; 0 при неизвестной стороне
func LimitPrice(side string, bid, ask, offset float64) float64 {
	switch side {
	case "buy":
		return bid + offset
	case "sell":
		return ask - offset
	default:
		return 0
	}
}

// ChasePrice расчитывает цену догоняющего ордера.
//
// Догоняющий ордер ставится прямо на противоположную сторону книги,
// чтобы гарантировать исполнение: покупка по текущему ask,
// продажа по текущему bid. Цена не улучшается - ордер пассивный,
// но немедленно сводится с лучшей встречной заявкой.
//
// Параметры:
//   - side: "buy" или "sell"
//   - bid, ask: лучшие котировки площадки
//
// Возвращает:
//   - Цена догоняющего ордера; 0 при неизвестной стороне
func ChasePrice(side string, bid, ask float64) float64 {
	switch side {
	case "buy":
		return ask
	case "sell":
		return bid
	default:
		return 0
	}
}

// CalculatePNL считает прибыль/убыток одной ноги позиции в валюте
// котировки. Лонг зарабатывает на росте, шорт - на падении:
//
//	long:  (current - entry) × qty
//	short: (entry - current) × qty
//
// Нулевой или отрицательный объём, как и неизвестная сторона, дают 0.
func CalculatePNL(side string, entry, current, qty float64) float64 {
	if qty <= 0 {
		return 0
	}

	switch side {
	case "long":
		return (current - entry) * qty
	case "short":
		return (entry - current) * qty
	default:
		return 0
	}
}

// CalculateTotalPNL расчитывает суммарный PNL двуногой позиции.
//
// Параметры:
//   - longEntry: цена входа в лонг
//   - longCurrent: текущая цена лонга
//   - shortEntry: цена входа в шорт
//   - shortCurrent: текущая цена шорта
//   - quantity: объём (одинаковый для обеих ног)
func CalculateTotalPNL(longEntry, longCurrent, shortEntry, shortCurrent, quantity float64) float64 {
	longPNL := CalculatePNL("long", longEntry, longCurrent, quantity)
	shortPNL := CalculatePNL("short", shortEntry, shortCurrent, quantity)
	return longPNL + shortPNL
}

// Abs - модуль числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min - меньшее из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max - большее из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp прижимает значение к диапазону [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return Max(lo, Min(value, hi))
}

// ClampInt прижимает целое значение к диапазону [lo, hi].
func ClampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
