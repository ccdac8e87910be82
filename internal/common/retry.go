package common

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// DefaultRetryTries — сколько раз пытаемся выполнить операцию при сбое хранилища.
const DefaultRetryTries = 3

// Retry выполняет op с экспоненциальной задержкой.
// Повторяются только ошибки ErrInfrastructure, остальные возвращаются сразу.
func Retry(ctx context.Context, tries uint, op func() error) error {
	_, err := RetryValue(ctx, tries, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// RetryValue — то же, что Retry, но для операций с результатом.
func RetryValue[T any](ctx context.Context, tries uint, op func() (T, error)) (T, error) {
	if tries == 0 {
		tries = DefaultRetryTries
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Сбой хранилища, повторяем")
		return v, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(tries))
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
