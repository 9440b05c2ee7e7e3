package models

import "github.com/pkg/errors"

// Доменная таксономия ошибок. Сравнивать через errors.Is.
var (
	// ErrNotFound: tracked order, чекпоинт или нотификация не существует.
	ErrNotFound = errors.New("not found")

	// ErrNoOp: цель валидна, но операция бессмысленна
	// (например, Revert при единственном чекпоинте).
	ErrNoOp = errors.New("nothing to do")

	// ErrInvalidTransition: административный статус вне разрешённого графа.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidInput: запрос не прошёл валидацию до обращения к хранилищу.
	ErrInvalidInput = errors.New("invalid input")
)
