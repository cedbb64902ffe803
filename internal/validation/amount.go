// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Границы допустимой суммы спонсорства в центах.
const (
	MinAmountCents int64 = 50          // $0.50 — минимальная транзакция
	MaxAmountCents int64 = 100_000_000 // $1,000,000 — верхний предел здравого смысла
)

// ErrAmountInvalid возвращается, если строка суммы не разбирается в число.
var (
	ErrAmountInvalid = errors.New("invalid amount")
	// ErrAmountTooSmall возвращается для сумм ниже минимальной транзакции.
	ErrAmountTooSmall = errors.New("amount below minimum")
	// ErrAmountTooLarge возвращается для сумм выше допустимого предела.
	ErrAmountTooLarge = errors.New("amount above maximum")
)

var priceReplacer = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseAmount разбирает строку суммы вида "$1,234.50" в центы.
// Отрицательные суммы и более двух знаков после запятой не допускаются.
func ParseAmount(price string) (int64, error) {
	cleaned := priceReplacer.Replace(strings.TrimSpace(price))
	if cleaned == "" {
		return 0, fmt.Errorf("%w: empty price string", ErrAmountInvalid)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrAmountInvalid, price)
	}

	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative value %q", ErrAmountInvalid, price)
	}

	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: more than two decimal places in %q", ErrAmountInvalid, price)
	}

	return cents.IntPart(), nil
}

// CheckAmountBounds проверяет, что сумма в центах попадает в допустимые границы.
func CheckAmountBounds(cents int64) error {
	if cents < MinAmountCents {
		return fmt.Errorf("%w: minimum is %s", ErrAmountTooSmall, FormatAmountUSD(MinAmountCents))
	}
	if cents > MaxAmountCents {
		return fmt.Errorf("%w: maximum is %s", ErrAmountTooLarge, FormatAmountUSD(MaxAmountCents))
	}
	return nil
}

// FormatAmountUSD форматирует центы в строку вида "$10,000.00".
func FormatAmountUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	dollars := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	lead := len(dollars) % 3
	if lead > 0 {
		b.WriteString(dollars[:lead])
	}
	for i := lead; i < len(dollars); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(dollars[i : i+3])
	}

	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), cents%100)
}
