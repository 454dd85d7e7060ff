package domain

import (
	"encoding/json"
	"time"
)

// DeadLetterEntry — неизменяемый снимок задачи, исчерпавшей все retry.
//
// Хранится в архиве до явного удаления оператором или истечения TTL.
type DeadLetterEntry struct {
	// TaskID — идентификатор доставки (ID сообщения).
	TaskID string `json:"task_id"`

	// Lane — очередь, в которой задача упала.
	Lane Lane `json:"lane"`

	// TaskType — тип задачи.
	TaskType TaskType `json:"task_type"`

	// IdempotencyKey — ключ задачи.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Payload — сырой payload задачи.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Reason — причина последней ошибки.
	Reason string `json:"reason"`

	// Attempts — сколько попыток было сделано.
	Attempts int `json:"attempts"`

	// FailedAt — время помещения в архив.
	FailedAt time.Time `json:"failed_at"`
}
