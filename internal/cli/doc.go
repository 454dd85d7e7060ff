// Package cli реализует инструмент командной строки Kickoff.
//
// # Обзор
//
// CLI — клиентская утилита оператора. Работает через HTTP API,
// не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Kickoff API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	entries, total, err := client.ListDeadLetters(50, 0)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: kickoff dlq list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - dlq: list, count, delete, clear
//   - provider: list, disabled
//   - match: schedule, cancel
//   - reconcile
//
// Каждая группа создаётся через фабричную функцию (NewDLQCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
