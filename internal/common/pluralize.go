// Package common — pluralize.go содержит функции для правильного склонения
// русских числительных и форматирования сумм.
package common

import "fmt"

// pluralRu выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, ...)
//   - остальные → many (0, 5-20, 25-30, 100, ...)
func pluralRu(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizePoints возвращает форму слова «балл» для числа n.
//
//	PluralizePoints(1)  → "балл"
//	PluralizePoints(3)  → "балла"
//	PluralizePoints(11) → "баллов"
func PluralizePoints(n int64) string {
	return pluralRu(n, "балл", "балла", "баллов")
}

// PluralizeStrikes возвращает форму слова «страйк».
func PluralizeStrikes(n int) string {
	return pluralRu(int64(n), "страйк", "страйка", "страйков")
}

// PluralizeVotes возвращает форму слова «голос».
func PluralizeVotes(n int) string {
	return pluralRu(int64(n), "голос", "голоса", "голосов")
}

// FormatPoints форматирует баланс: FormatPoints(1500) → "1 500 баллов".
func FormatPoints(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizePoints(n))
}

// FormatPointsDelta создаёт строку вида "+100 баллов" или "-50 баллов".
func FormatPointsDelta(amount int64) string {
	if amount >= 0 {
		return "+" + FormatPoints(amount)
	}
	return FormatPoints(amount)
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
