package mq

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/messaging"
	"github.com/shandysiswandi/mailmerge/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Messaging
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) PublishBatchCompleted(ctx context.Context, summary entity.BatchSummary) error {
	ctx, span := m.ins.Tracer("mailmerge.outbound.mq").Start(ctx, "PublishBatchCompleted")
	defer span.End()

	body, err := json.Marshal(event.BatchCompletedMessage{
		BatchID:    summary.BatchID,
		Success:    summary.Success,
		Message:    summary.Message,
		Attempted:  summary.Attempted,
		Sent:       summary.Sent,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		FinishedAt: summary.StartedAt.Add(summary.Duration),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.BatchCompletedDestination, messaging.OutgoingMessage{
		Body:    body,
		Headers: map[string]string{keyOfCorrelationID: cID},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
