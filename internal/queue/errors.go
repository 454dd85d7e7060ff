package queue

import "errors"

// Ошибки пакета queue.
var (
	// ErrUnhealthy — брокер или Redis сейчас недоступны.
	ErrUnhealthy = errors.New("queue router unhealthy")

	// ErrUnknownLane — lane не объявлена в LaneSet.
	ErrUnknownLane = errors.New("unknown lane")

	// ErrInvalidLane — конфигурация lane некорректна.
	ErrInvalidLane = errors.New("invalid lane config")

	// ErrShutdown — роутер уже остановлен.
	ErrShutdown = errors.New("queue router shut down")
)
