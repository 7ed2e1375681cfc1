// Package validation содержит функции валидации входных данных.
package validation

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinClientNameLength - минимальная длина имени клиента после обрезки пробелов.
const MinClientNameLength = 2

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail проверяет, что адрес имеет вид local@domain.tld.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidClientName проверяет длину имени клиента без учёта пробелов по краям.
func IsValidClientName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= MinClientNameLength
}

// IsValidAmount проверяет, что сумма конечна и строго положительна.
func IsValidAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount > 0
}

// IsValidVATRate проверяет, что ставка НДС лежит в диапазоне 0..100 процентов.
func IsValidVATRate(rate float64) bool {
	if math.IsNaN(rate) {
		return false
	}
	return rate >= 0 && rate <= 100
}
