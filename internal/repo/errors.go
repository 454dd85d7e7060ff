package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySettled — очки по матчу уже подсчитаны.
	ErrAlreadySettled = errors.New("match already settled")
)
