package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Task — доставленная задача жизненного цикла.
type Task struct {
	// ID — идентификатор доставки (ID сообщения).
	ID string

	Lane           domain.Lane
	Type           domain.TaskType
	IdempotencyKey string

	// Payload — разобранные данные задачи.
	Payload domain.TaskPayload

	// Raw — payload как пришёл из очереди (уходит в DLQ без изменений).
	Raw json.RawMessage

	// Attempt — номер текущей попытки выполнения в воркере, начиная с 1.
	Attempt int
}

// Executor — выполнение задачи конкретного типа.
//
// Ошибка означает, что задачу стоит повторить. Ситуации, когда делать
// нечего (матч начался, данные уже есть), возвращаются как Skipped.
type Executor interface {
	Execute(ctx context.Context, task *Task) (*ExecutionResult, error)
}

// ExecutionResult — результат выполнения задачи.
type ExecutionResult struct {
	// Outputs — данные для логов.
	Outputs map[string]any

	// Skipped — задача пропущена без ошибки.
	Skipped bool

	// Reason — почему пропущена.
	Reason string
}

// skipped — короткий конструктор пропуска.
func skipped(reason string) *ExecutionResult {
	return &ExecutionResult{Skipped: true, Reason: reason}
}

// Registry — реестр executor'ов по типу задачи.
type Registry struct {
	executors map[domain.TaskType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.TaskType]Executor)}
}

// Register добавляет executor для типа задачи.
func (r *Registry) Register(taskType domain.TaskType, executor Executor) {
	r.executors[taskType] = executor
}

// Get возвращает executor для типа задачи.
func (r *Registry) Get(taskType domain.TaskType) (Executor, error) {
	executor, ok := r.executors[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return executor, nil
}

// Types возвращает зарегистрированные типы.
func (r *Registry) Types() []domain.TaskType {
	types := make([]domain.TaskType, 0, len(r.executors))
	for _, t := range domain.AllTaskTypes {
		if _, ok := r.executors[t]; ok {
			types = append(types, t)
		}
	}
	return types
}
