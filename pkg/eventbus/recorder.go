package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/gridfn/pkg/events"
	"github.com/dukex/gridfn/pkg/models"
)

// HistoryWriter stores finished executions.
type HistoryWriter interface {
	Save(ctx context.Context, record models.ExecutionRecord) error
}

// RegisterHistoryRecorder stores every finished execution seen on bus.
func RegisterHistoryRecorder(bus EventSubscriber, history HistoryWriter, logger *slog.Logger) error {
	logger = logger.With("module", "history_recorder")

	save := func(ctx context.Context, record models.ExecutionRecord) error {
		err := history.Save(ctx, record)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record execution", "execution", record.ID, "error", err)

			return fmt.Errorf("failed to record execution %s: %w", record.ID, err)
		}

		return nil
	}

	err := bus.Handle(events.FunctionExecutionCompletedEvent, func(ctx context.Context, event any) error {
		e, ok := event.(*events.FunctionExecutionCompleted)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		return save(ctx, e.Record)
	})
	if err != nil {
		return err
	}

	return bus.Handle(events.FunctionExecutionFailedEvent, func(ctx context.Context, event any) error {
		e, ok := event.(*events.FunctionExecutionFailed)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		return save(ctx, e.Record)
	})
}
