// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, флаг здоровья, идемпотентный Close)
//   - topology.go   — объявление exchanges, lane-очередей и DLQ
//   - publisher.go  — публикация задач в lane-очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Каждая lane — отдельная durable очередь lane.{name} с приоритетами и
// x-consumer-timeout, равным lock duration lane. Сообщения, отклонённые
// или просроченные брокером, уходят через DLX в dlq.tasks.
//
// Exchanges:
//   - kickoff.tasks — задачи, routing key = имя lane
//   - kickoff.dlq   — dead letter exchange
package mq
