// Package deadletter хранит задачи, исчерпавшие все retry, для разбора оператором.
//
// Записи лежат в Redis под ключами dlq:{lane}:{taskId} с TTL (30 дней),
// индекс dlq:index — sorted set по времени падения. Вставка и обрезка
// индекса до MaxEntries выполняются одним Lua-скриптом: самые старые
// записи удаляются вместе с ключами.
package deadletter
