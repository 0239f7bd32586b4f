package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists используется, когда запись по производному адресу уже существует.
	// Создание по занятому адресу — конфликт, а не перезапись.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrUnauthorized используется для ошибок авторизации (неверный вызывающий, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у вызывающего недостаточно прав для действия.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, повторная фиксация прохождения).
	ErrConflict = errors.New("resource state conflict")
)
