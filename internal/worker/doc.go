// Package worker выполняет задачи жизненного цикла матчей.
//
// # Обзор
//
// Worker — stateless компонент системы Kickoff. Он потребляет lane-очереди
// RabbitMQ, в которые Queue Router промоутит наступившие задачи, и выполняет
// их executor'ами по типу задачи. Workers масштабируются горизонтально:
// несколько экземпляров потребляют одни и те же очереди.
//
// # Lanes
//
// Каждая lane обслуживается отдельным consumer'ом:
//   - prefetch равен concurrency lane, столько же задач выполняется параллельно;
//   - таймаут lane ограничивает всё выполнение задачи, включая retry;
//   - lock lane (x-consumer-timeout очереди) не меньше таймаута, поэтому
//     выполняющаяся задача не доставляется повторно.
//
// # Обработка задачи
//
//  1. Разбор сообщения; некорректное сообщение сразу уходит в DLQ
//  2. Проверка done-маркера: повторная доставка выполненной задачи подтверждается
//  3. Выполнение через executeWithRetry
//  4. Успех или пропуск → done-маркер, ack
//  5. Исчерпание попыток → запись в Dead Letter Archive, ack
//
// # Retry
//
// Retry выполняется в процессе, а не через requeue в RabbitMQ. Задержка
// берётся из resilience.Backoff по классу ошибки. Терминальные ошибки
// (исчерпан бюджет, отклонён ключ API) и ошибки разбора задачи не повторяются.
//
// # Executor'ы
//
//   - FeedExecutor — analyze, refresh_odds, fetch_lineups: данные из фида в match_data
//   - PredictExecutor — predict: волна прогнозов по одному матчу с политикой попыток
//   - LiveExecutor — monitor_live: опрос счёта каждые 2 минуты, затем settle
//   - SettleExecutor — settle: квоты и очки, ровно один раз на матч
//
// NewLifecycleRegistry собирает реестр со всеми executor'ами.
//
// Очередь dlq.tasks (сообщения, отклонённые брокером) разбирается
// HandleDeadLettered и тоже попадает в архив.
package worker
