package domain

import "strings"

// validCurrencies is the fixed allow-list of ISO 4217 currency codes the
// service accepts for accounts and transfers.
var validCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "AUD": {}, "CAD": {},
	"CHF": {}, "CNY": {}, "INR": {}, "RUB": {}, "BRL": {}, "ZAR": {},
	"MXN": {}, "SGD": {}, "HKD": {}, "NOK": {}, "SEK": {}, "DKK": {},
	"PLN": {}, "TRY": {}, "NZD": {}, "KRW": {}, "THB": {}, "IDR": {},
}

// NormalizeCurrency upper-cases a currency code and reports whether it is in
// the supported set. The canonical form is always the upper-case code.
func NormalizeCurrency(code string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	_, ok := validCurrencies[upper]
	return upper, ok
}
