package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Japanese)

// FormatYen 整数円、桁区切り。例: ¥1,234 / -¥10,000
func FormatYen(amount decimal.Decimal) string {
	n := amount.Round(0).IntPart()
	if n < 0 {
		return printer.Sprintf("-¥%d", -n)
	}
	return printer.Sprintf("¥%d", n)
}

// Percent 以百分比表示比率，保留一位小数。例: 0.1234 -> "12.3%"
func Percent(ratio float64) string {
	return printer.Sprintf("%.1f%%", ratio*100)
}
