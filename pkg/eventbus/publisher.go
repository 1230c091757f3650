package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/gridfn/pkg/events"
	"github.com/dukex/gridfn/pkg/models"
)

// ExecutionPublisher turns execution lifecycle callbacks into bus events.
// Publishing is best effort: a failure is logged and never reaches the
// client.
type ExecutionPublisher struct {
	bus      EventPublisher
	memberID string
	logger   *slog.Logger
}

func NewExecutionPublisher(bus EventPublisher, memberID string, logger *slog.Logger) *ExecutionPublisher {
	return &ExecutionPublisher{
		bus:      bus,
		memberID: memberID,
		logger:   logger.With("module", "execution_publisher"),
	}
}

func (p *ExecutionPublisher) ExecutionStarted(ctx context.Context, record models.ExecutionRecord) {
	p.publish(ctx, record)
}

func (p *ExecutionPublisher) ExecutionFinished(ctx context.Context, record models.ExecutionRecord) {
	p.publish(ctx, record)
}

func (p *ExecutionPublisher) publish(ctx context.Context, record models.ExecutionRecord) {
	event := events.FromRecord(record, p.memberID)

	err := p.bus.Publish(ctx, record.ID, event)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish execution event",
			"execution", record.ID,
			"type", string(event.GetType()),
			"error", err,
		)
	}
}
