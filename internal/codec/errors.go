package codec

import "errors"

// Ошибки декодирования.
var (
	// ErrDecode — payload сообщения невозможно разобрать.
	// Такие сообщения не ретраятся: повторная доставка не сделает их валидными.
	ErrDecode = errors.New("decode task")

	// ErrUnsupportedVersion — неизвестная версия конверта.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
)

// DecodeError — ошибка декодирования с контекстом.
type DecodeError struct {
	Field   string // поле, вызвавшее ошибку (если известно)
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *DecodeError) Error() string {
	if e.Field != "" {
		return "decode task: " + e.Field + ": " + e.Message
	}
	return "decode task: " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is позволяет errors.Is(err, ErrDecode) для любой DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func newDecodeError(field, message string, err error) *DecodeError {
	return &DecodeError{Field: field, Message: message, Err: err}
}
