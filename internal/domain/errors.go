package domain

import "errors"

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID возвращается при повторном operation_id
	ErrDuplicateID = errors.New("duplicate operation id")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized возвращается при ошибке авторизации
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDatabaseConnection возвращается при ошибке подключения к БД
	ErrDatabaseConnection = errors.New("database connection error")
)
