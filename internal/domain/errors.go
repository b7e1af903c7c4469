package domain

import (
	"errors"
	"fmt"
	"net/http"
)

const invalidRequestErrorType = "invalid_request_error"

// InvalidRequestError — единственный тип ошибок валидации и поиска ресурсов.
// HTTPStatus повторяет код ответа реального API: 400 для некорректных
// параметров и 404 для ссылок на несуществующие объекты.
type InvalidRequestError struct {
	Message    string
	Param      string
	HTTPStatus int
}

// Error возвращает человекочитаемое сообщение без служебных полей.
func (e *InvalidRequestError) Error() string {
	return e.Message
}

// Type возвращает тип ошибки в терминах API.
func (e *InvalidRequestError) Type() string {
	return invalidRequestErrorType
}

// NewInvalidRequest создаёт ошибку 400 для параметра param.
func NewInvalidRequest(param, format string, args ...any) *InvalidRequestError {
	return &InvalidRequestError{
		Message:    fmt.Sprintf(format, args...),
		Param:      param,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound создаёт ошибку 404 для ссылки на отсутствующий объект.
func NewNotFound(param, format string, args ...any) *InvalidRequestError {
	return &InvalidRequestError{
		Message:    fmt.Sprintf(format, args...),
		Param:      param,
		HTTPStatus: http.StatusNotFound,
	}
}

// AsInvalidRequest извлекает InvalidRequestError из цепочки ошибок.
func AsInvalidRequest(err error) (*InvalidRequestError, bool) {
	var ire *InvalidRequestError
	if errors.As(err, &ire) {
		return ire, true
	}
	return nil, false
}

// IsInvalidRequest проверяет, является ли ошибка ошибкой запроса.
func IsInvalidRequest(err error) bool {
	_, ok := AsInvalidRequest(err)
	return ok
}

var (
	// ErrObjectNotFound возвращается хранилищем, если записи с таким типом и ID нет.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectAlreadyExists возвращается при повторной вставке того же ID.
	ErrObjectAlreadyExists = errors.New("object already exists")
	// ErrObjectTypeMismatch — запись найдена, но имеет другой Go-тип.
	ErrObjectTypeMismatch = errors.New("object type mismatch")
	// ErrChargeAlreadyCaptured — повторный capture уже списанного платежа.
	ErrChargeAlreadyCaptured = errors.New("charge already captured")
	// ErrCaptureAmountInvalid — сумма capture вне диапазона (0, amount].
	ErrCaptureAmountInvalid = errors.New("capture amount is out of range")
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyMethodMismatch — ключ уже занят запросом к другому RPC.
	ErrIdempotencyMethodMismatch = errors.New("idempotency key used with a different method")
	// ErrIdempotencyOutcomeInvalid — итог без терминального статуса.
	ErrIdempotencyOutcomeInvalid = errors.New("idempotency outcome must be done or failed")
	// ErrIdempotencyKeyNotFound — записи по ключу нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrInvalidFeePolicy — строка конфигурации комиссии не распознана.
	ErrInvalidFeePolicy = errors.New("invalid fee policy")
)

// IsIdempotencyConflict проверяет, связана ли ошибка с уже существующим ключом.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyMethodMismatch)
}
