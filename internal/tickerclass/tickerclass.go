// Package tickerclass отсеивает тикеры, которые не могут быть позицией портфеля:
// деривативы и бумаги с неподдерживаемых площадок.
package tickerclass

import (
	"regexp"
	"strings"
)

type Class int

const (
	Stock Class = iota
	Option
	Future
	UnsupportedExchange
	Malformed
)

func (c Class) String() string {
	switch c {
	case Stock:
		return "stock"
	case Option:
		return "option"
	case Future:
		return "future"
	case UnsupportedExchange:
		return "unsupported exchange"
	default:
		return "malformed"
	}
}

// суффиксы площадок после точки: SBER.ME, VTBR.MM
var allowedSuffixes = map[string]struct{}{
	"ME": {}, // Московская биржа
	"MM": {},
}

var deniedSuffixes = map[string]struct{}{
	"PK": {}, // OTC pink sheets
	"OB": {},
	"CN": {},
	"NE": {},
	"V":  {},
}

var (
	// OCC формат опциона: корень, дата YYMMDD, C/P, страйк из 8 цифр
	occOptionRe = regexp.MustCompile(`^[A-Z]{1,6}\d{6}[CP]\d{8}$`)
	// опционы на срочном рынке мосбиржи: SR300CF4, Si95000BL4
	fortsOptionRe = regexp.MustCompile(`^[A-Z]{2}\d{2,6}[A-Z]{2}\d[A-Z]?$`)
	// фьючерсы: SiZ4, SRH5, BRN5 и формат с =F
	futureRe      = regexp.MustCompile(`^[A-Z]{2}[FGHJKMNQUVXZ]\d$|^[A-Z]{1,4}=F$`)
	plainTickerRe = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)
)

// Classify ожидает тикер в верхнем регистре без пробелов по краям.
func Classify(symbol string) Class {
	if symbol == "" {
		return Malformed
	}

	if idx := strings.LastIndexByte(symbol, '.'); idx >= 0 {
		suffix := symbol[idx+1:]
		if _, ok := deniedSuffixes[suffix]; ok {
			return UnsupportedExchange
		}
		if _, ok := allowedSuffixes[suffix]; !ok {
			return UnsupportedExchange
		}
		symbol = symbol[:idx]
	}

	switch {
	case futureRe.MatchString(symbol):
		return Future
	case occOptionRe.MatchString(symbol), fortsOptionRe.MatchString(symbol):
		return Option
	case plainTickerRe.MatchString(symbol):
		return Stock
	default:
		return Malformed
	}
}

// StripExchange убирает суффикс площадки: SBER.ME -> SBER
func StripExchange(symbol string) string {
	if idx := strings.LastIndexByte(symbol, '.'); idx >= 0 {
		return symbol[:idx]
	}
	return symbol
}

func IsStock(symbol string) bool {
	return Classify(symbol) == Stock
}
