package apperrors

import "errors"

// Классы ошибок ядра. Сервисы оборачивают их через fmt.Errorf("...: %w"),
// HTTP-слой сопоставляет с кодами ответов через errors.Is.
var (
	// ErrInvalidInput - некорректные координаты, неизвестная категория и т.п. Не ретраится.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized - несоответствие роли или попытка чтения чужих данных. Не ретраится.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound - запрошенная сущность отсутствует
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition - нарушение правил жизненного цикла инцидента
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict - конкурентное обновление проиграло гонку; ретраится
	// ограниченное число раз внутри сервиса, после чего отдается вызывающему
	ErrConflict = errors.New("concurrent update conflict")

	// ErrUnavailable - хранилище или индекс недоступны в пределах таймаута
	ErrUnavailable = errors.New("store unavailable")
)
