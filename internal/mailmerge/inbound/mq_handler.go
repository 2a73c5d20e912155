package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/messaging"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   ucConsumer
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID := msg.Header(keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func assetInput(a *event.AssetMessage) *usecase.AssetInput {
	if a == nil {
		return nil
	}
	return &usecase.AssetInput{
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Content:     a.Content,
		ObjectKey:   a.ObjectKey,
	}
}

// BatchRequested sends a blast requested over the broker. Undecodable bodies
// are dropped (acked) since a redelivery cannot fix them.
func (h *MQHandler) BatchRequested(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("mailmerge.inbound.mq").Start(ctx, "BatchRequested")
	defer span.End()

	body := msg.Body()
	slog.InfoContext(ctx, "consume: mailmerge batch requested", "msg_size", len(body))

	var payload event.BatchRequestedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of batch requested", "msg_body", string(body), "error", err)
		return nil
	}

	if err := h.uc.ConsumeBatchRequest(ctx, usecase.ConsumeBatchRequestInput{
		BatchID: payload.BatchID,
		Blast: usecase.SendBlastInput{
			Subject:               payload.Subject,
			Message:               payload.Message,
			RecipientsFileContent: payload.RecipientsFileContent,
			Attachment:            assetInput(payload.Attachment),
			Banner:                assetInput(payload.Banner),
		},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume batch requested", "batch_id", payload.BatchID, "error", err)
		return err
	}

	return nil
}
