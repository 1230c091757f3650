// Package events defines the notifications published about function
// executions.
package events

import (
	"time"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "gridfn.function.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	FunctionExecutionStartedEvent   EventType = "function.execution.started"
	FunctionExecutionCompletedEvent EventType = "function.execution.completed"
	FunctionExecutionFailedEvent    EventType = "function.execution.failed"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	MemberID    string    `json:"member_id,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
}

type FunctionExecutionStarted struct {
	BaseEvent

	FunctionID   string `json:"function_id"`
	RegionName   string `json:"region_name"`
	ConnectionID string `json:"connection_id"`
	HasResult    bool   `json:"has_result"`
	IsReExecute  bool   `json:"is_re_execute"`
}

func (e FunctionExecutionStarted) GetType() EventType {
	return FunctionExecutionStartedEvent
}

// FunctionExecutionCompleted carries the full record so subscribers can
// store it.
type FunctionExecutionCompleted struct {
	BaseEvent

	Record   models.ExecutionRecord `json:"record"`
	Duration time.Duration          `json:"duration"`
}

func (e FunctionExecutionCompleted) GetType() EventType {
	return FunctionExecutionCompletedEvent
}

type FunctionExecutionFailed struct {
	BaseEvent

	Record      models.ExecutionRecord `json:"record"`
	FailureKind string                 `json:"failure_kind"`
	Error       string                 `json:"error"`
}

func (e FunctionExecutionFailed) GetType() EventType {
	return FunctionExecutionFailedEvent
}

// FromRecord builds the event matching the status of record.
func FromRecord(record models.ExecutionRecord, memberID string) interface{ GetType() EventType } {
	switch record.Status {
	case models.ExecutionStatusRunning:
		base := NewBaseEvent(FunctionExecutionStartedEvent, record.ID)
		base.MemberID = memberID

		return FunctionExecutionStarted{
			BaseEvent:    base,
			FunctionID:   record.FunctionID,
			RegionName:   record.RegionName,
			ConnectionID: record.ConnectionID,
			HasResult:    record.HasResult,
			IsReExecute:  record.IsReExecute,
		}
	case models.ExecutionStatusFailed:
		base := NewBaseEvent(FunctionExecutionFailedEvent, record.ID)
		base.MemberID = memberID

		return FunctionExecutionFailed{
			BaseEvent:   base,
			Record:      record,
			FailureKind: record.FailureKind,
			Error:       record.Error,
		}
	default:
		base := NewBaseEvent(FunctionExecutionCompletedEvent, record.ID)
		base.MemberID = memberID

		return FunctionExecutionCompleted{
			BaseEvent: base,
			Record:    record,
			Duration:  record.Duration(),
		}
	}
}
