// Package providers содержит клиентов внешних сервисов:
//   - HTTPProvider — провайдер прогнозов с batch-эндпоинтом
//   - FeedClient — источник данных матча (анализ, коэффициенты, составы, live-счёт)
//   - Catalogue — список провайдеров из YAML-файла
//
// Ошибки HTTP возвращаются как resilience.StatusError, ошибки разбора
// ответа оборачивают resilience.ErrParse, чтобы классификатор
// resilience.Classify получал точный класс ошибки.
package providers
