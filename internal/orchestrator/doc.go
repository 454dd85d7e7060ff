// Package orchestrator реализует Batch Prediction Orchestrator.
//
// Волна (wave) — один проход по набору матчей и включённых провайдеров:
//   - матчи режутся на батчи (по умолчанию 10), один запрос на батч и провайдера
//   - провайдеры обрабатываются параллельно, не более 5 одновременно
//   - батчи одного провайдера идут последовательно
//   - вся волна укладывается в бюджет времени (по умолчанию 4 минуты);
//     работа, не начатая до дедлайна, помечается как gave up, а не failed
//   - retry (по умолчанию 1) только для rate_limit и parse_error
//   - частичный успех батча сохраняется, для пропущенных матчей пишется
//     PredictionAttempt
//
// Ошибки одной пары (матч, провайдер) не прерывают ни батч, ни волну.
package orchestrator
