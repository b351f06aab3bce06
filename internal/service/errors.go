// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (pending-запрос на цель уже существует или цель не approved).
	ErrConflict = errors.New("конфликт — операция невозможна в текущем состоянии цели")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidState — запрос уже решён, повторное решение невозможно.
	ErrInvalidState = errors.New("запрос уже находится в терминальном статусе")
	// ErrForbidden — недостаточно прав для операции над ресурсом.
	ErrForbidden = errors.New("доступ запрещён")
)
