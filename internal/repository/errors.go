package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateEmail はメールアドレスが登録済みであることを示す。
var ErrDuplicateEmail = errors.New("email already exists")

// ErrEventNotFound はイベントが存在しないことを示す。
var ErrEventNotFound = errors.New("event not found")

// ErrEventFull はイベントの定員に達していることを示す。
var ErrEventFull = errors.New("event is full")

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// isUniqueViolation はerrが一意制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
