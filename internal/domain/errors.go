package domain

import (
	"errors"
	"fmt"
)

// StateError — попытка недопустимого перехода статуса.
//
// Возвращается машиной состояний до записи в хранилище: операция,
// вызвавшая ошибку, не должна оставить частичных изменений.
type StateError struct {
	// Entity — "run" или "step".
	Entity string

	// From — текущий статус.
	From string

	// To — запрошенный статус.
	To string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s → %s", e.Entity, e.From, e.To)
}

// IsStateError проверяет, является ли ошибка StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
