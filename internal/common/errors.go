// Package common — errors.go определяет ошибки, которые используются во всех модулях бота.
//
// Ошибки делятся на пять видов (NotFound, Duplicate, Ineligible, Validation,
// Infrastructure). Конкретная ошибка хранит вид и текст для пользователя,
// поэтому обработчик может и проверить вид через errors.Is, и показать текст как есть.
package common

import (
	"errors"
	"fmt"
)

// Виды ошибок
var (
	// ErrNotFound — неизвестный пользователь или рекомендация
	ErrNotFound = errors.New("не найдено")
	// ErrDuplicate — повторная рекомендация или повторный голос
	ErrDuplicate = errors.New("уже существует")
	// ErrIneligible — действие запрещено этому пользователю (самоголос, блок, мало баллов)
	ErrIneligible = errors.New("действие недоступно")
	// ErrValidation — некорректные входные данные
	ErrValidation = errors.New("некорректные данные")
	// ErrInfrastructure — хранилище недоступно, можно повторить
	ErrInfrastructure = errors.New("хранилище временно недоступно")
)

// Error — ошибка с видом и сообщением для пользователя.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Unwrap позволяет писать errors.Is(err, common.ErrIneligible).
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ошибки баллов
var (
	// ErrInvalidAmount — нулевое изменение баланса
	ErrInvalidAmount = newError(ErrValidation, "сумма должна быть ненулевой")
	// ErrAwardNotPositive — начисление должно быть положительным
	ErrAwardNotPositive = newError(ErrValidation, "количество баллов должно быть положительным")
	// ErrAwardTooLarge — превышен лимит разового начисления
	ErrAwardTooLarge = newError(ErrValidation, "слишком большое начисление")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = newError(ErrNotFound, "пользователь не найден")
	// ErrSelfAward — оценщик пытается начислить баллы себе
	ErrSelfAward = newError(ErrIneligible, "нельзя начислять баллы самому себе")
	// ErrNotScorer — у пользователя нет роли оценщика
	ErrNotScorer = newError(ErrIneligible, "начислять баллы могут только оценщики")
)

// Ошибки рекомендаций и голосования
var (
	// ErrLinkInvalid — ссылка не распознана
	ErrLinkInvalid = newError(ErrValidation, "некорректная ссылка")
	// ErrCoinsTooLow — заявлено слишком мало монет
	ErrCoinsTooLow = newError(ErrValidation, "слишком мало монет для рекомендации")
	// ErrDuplicateRecommendation — такая ссылка от этого пользователя уже есть
	ErrDuplicateRecommendation = newError(ErrDuplicate, "вы уже рекомендовали эту ссылку")
	// ErrRecommendationNotFound — рекомендация не найдена
	ErrRecommendationNotFound = newError(ErrNotFound, "рекомендация не найдена")
	// ErrSelfVote — голос за собственную рекомендацию
	ErrSelfVote = newError(ErrIneligible, "нельзя голосовать за свою рекомендацию")
	// ErrNotEnoughPoints — баллов меньше порога для голосования
	ErrNotEnoughPoints = newError(ErrIneligible, "недостаточно баллов для голосования")
	// ErrVoterBlocked — голосующий временно заблокирован
	ErrVoterBlocked = newError(ErrIneligible, "вы временно не можете голосовать")
	// ErrVotingClosed — набрано максимальное число голосов
	ErrVotingClosed = newError(ErrIneligible, "голосование по этой рекомендации закрыто")
	// ErrDuplicateVote — повторный голос
	ErrDuplicateVote = newError(ErrDuplicate, "вы уже голосовали за эту рекомендацию")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = newError(ErrIneligible, "у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = newError(ErrIneligible, "неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = newError(ErrIneligible, "слишком много попыток, подождите 1 час")
	// ErrCannotBanAdmin — попытка закрыть доступ администратору
	ErrCannotBanAdmin = newError(ErrIneligible, "администратора нельзя забанить")
)

// Ошибки модерации
var (
	// ErrWordInvalid — пустое или многословное запрещённое слово
	ErrWordInvalid = newError(ErrValidation, "укажите одно слово")
	// ErrWordExists — слово уже в списке
	ErrWordExists = newError(ErrDuplicate, "это слово уже в списке")
	// ErrWordNotFound — слова нет в списке
	ErrWordNotFound = newError(ErrNotFound, "такого слова нет в списке")
	// ErrSupportEmpty — пустое обращение
	ErrSupportEmpty = newError(ErrValidation, "сообщение пустое")
	// ErrSupportTooLong — обращение длиннее лимита
	ErrSupportTooLong = newError(ErrValidation, "сообщение слишком длинное (максимум 500 символов)")
	// ErrSupportForbidden — в обращении запрещённое слово
	ErrSupportForbidden = newError(ErrValidation, "сообщение содержит запрещённые слова")
	// ErrSupportUnavailable — некому доставить обращение
	ErrSupportUnavailable = newError(ErrIneligible, "поддержка сейчас недоступна")
)

// Infra оборачивает ошибку хранилища в ErrInfrastructure.
func Infra(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

// IsRetryable — можно ли повторить операцию.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// GenericFailure — текст для пользователя, когда повторы не помогли.
const GenericFailure = "⚠️ Что-то пошло не так, попробуйте позже"

// UserMessage возвращает текст ошибки, который можно показать пользователю.
// Инфраструктурные и неизвестные ошибки превращаются в общее сообщение.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsRetryable(err) {
		return GenericFailure
	}
	for _, kind := range []error{ErrNotFound, ErrDuplicate, ErrIneligible, ErrValidation} {
		if errors.Is(err, kind) {
			return "❌ " + err.Error()
		}
	}
	return GenericFailure
}
