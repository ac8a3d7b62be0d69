package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — общий предок всех ошибок «запись не найдена».
	ErrNotFound = errors.New("not found")
	// ErrListingNotFound возвращается, если объявление отсутствует в хранилище.
	ErrListingNotFound = fmt.Errorf("listing %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrReviewNotFound возвращается, если отзыв не найден.
	ErrReviewNotFound = fmt.Errorf("review %w", ErrNotFound)
	// ErrSellerNotFound возвращается, если продавец не найден.
	ErrSellerNotFound = fmt.Errorf("seller %w", ErrNotFound)

	// ErrInvalidTransition — нарушено предусловие по статусу заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInsufficientQuantity — на объявлении меньше единиц, чем запрошено.
	ErrInsufficientQuantity = errors.New("insufficient listing quantity")
	// ErrListingUnavailable — объявление не в статусе ACTIVE или принадлежит другому продавцу.
	ErrListingUnavailable = errors.New("listing unavailable")
	// ErrAlreadyExists — запись с таким идентификатором уже есть.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDuplicateReview — отзыв на этот заказ уже существует.
	ErrDuplicateReview = fmt.Errorf("review for order %w", ErrAlreadyExists)
	// ErrConflictRetryable — проиграна гонка на условном обновлении, операцию можно повторить целиком.
	ErrConflictRetryable = errors.New("concurrent update conflict, retry the operation")
	// ErrInvalidInput — запрос не прошёл валидацию на входе операции.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbiddenReviewer — отзыв пытается оставить не покупатель заказа.
	ErrForbiddenReviewer = errors.New("only the order buyer can review this order")

	// ErrCurrencyMismatch — позиции одного заказа выставлены в разных валютах.
	ErrCurrencyMismatch = fmt.Errorf("%w: items must share one currency", ErrInvalidInput)
	// ErrRatingOutOfRange — оценка вне диапазона [1,5].
	ErrRatingOutOfRange = fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, MinRating, MaxRating)
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind — транспортно-независимая категория ошибки для граничного слоя.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindNotFound      ErrorKind = "not_found"
	KindInvalidInput  ErrorKind = "invalid_input"
	KindPrecondition  ErrorKind = "failed_precondition"
	KindAlreadyExists ErrorKind = "already_exists"
	KindConflict      ErrorKind = "conflict"
	KindForbidden     ErrorKind = "forbidden"
	KindInternal      ErrorKind = "internal"
)

// Kind классифицирует ошибку по таксономии ядра.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInsufficientQuantity),
		errors.Is(err, ErrListingUnavailable):
		return KindPrecondition
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrConflictRetryable):
		return KindConflict
	case errors.Is(err, ErrForbiddenReviewer):
		return KindForbidden
	default:
		return KindInternal
	}
}

// IsNotFound проверяет, относится ли ошибка к «не найдено».
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict проверяет, является ли ошибка повторяемым конфликтом.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflictRetryable)
}

// OpError несёт контекст операции поверх доменной ошибки.
type OpError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp оборачивает err в OpError; nil остаётся nil.
func WrapOp(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OpError
	if errors.As(err, &existing) {
		return err
	}
	return &OpError{Op: op, Entity: entity, ID: id, Err: err}
}
