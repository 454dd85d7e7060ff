package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/mq"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// HandleDeadLettered архивирует сообщение, которое брокер отправил в dlq.tasks
// (отклонено, истёк consumer timeout, переполнена очередь).
func (w *Worker) HandleDeadLettered(ctx context.Context, d *mq.Delivery) error {
	queueName, reason := d.DeathReason()

	lane := domain.Lane(d.Message.Lane)
	if lane == "" {
		lane = domain.Lane(strings.TrimPrefix(queueName, "lane."))
	}

	payload, err := json.Marshal(d.Message.Payload)
	if err != nil {
		payload = nil
	}

	if reason == "" {
		reason = "unknown"
	}

	entry := &domain.DeadLetterEntry{
		TaskID:         d.Message.ID,
		Lane:           lane,
		TaskType:       domain.TaskType(d.Message.Type),
		IdempotencyKey: d.IdempotencyKey(),
		Payload:        payload,
		Reason:         "dead-lettered by broker: " + reason,
		FailedAt:       w.now(),
	}

	logger := telemetry.WithLane(w.logger, string(lane))
	if w.archive == nil {
		logger.Error("dead-lettered message dropped, no archive configured", "task_id", entry.TaskID)
		return nil
	}

	if err := w.archive.Add(ctx, entry); err != nil {
		return fmt.Errorf("archive dead-lettered message: %w", err)
	}
	return nil
}
