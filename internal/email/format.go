package email

import (
	"fmt"
	"strings"
)

var currencySymbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
}

// FormatAmount печатает сумму в минорных единицах: 15000 GBP -> £150.00
func FormatAmount(amount int64, currency string) string {
	currency = strings.ToUpper(currency)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	value := fmt.Sprintf("%d.%02d", amount/100, amount%100)
	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + value
	}
	return sign + value + " " + currency
}
