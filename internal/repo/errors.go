package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrConflict — outcome для этой задачи уже записан.
	// Для воркера это успех: другой обработчик успел раньше.
	ErrConflict = errors.New("outcome already recorded")
)
