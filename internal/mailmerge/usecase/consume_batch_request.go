package usecase

import (
	"context"
	"log/slog"
)

type ConsumeBatchRequestInput struct {
	BatchID string
	Blast   SendBlastInput
}

// ConsumeBatchRequest sends a blast requested over the message broker. The
// batch id doubles as the idempotency key so a redelivered request is not sent
// twice.
func (s *Usecase) ConsumeBatchRequest(ctx context.Context, in ConsumeBatchRequestInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeBatchRequest")
	defer span.End()

	in.Blast.BatchID = in.BatchID
	if in.BatchID != "" && in.Blast.IdempotencyKey == "" {
		in.Blast.IdempotencyKey = "batch:" + in.BatchID
	}

	out := s.SendBlast(ctx, in.Blast)
	if !out.Success {
		slog.WarnContext(ctx, "requested email blast was not sent", "batch_id", in.BatchID, "message", out.Message)
		return nil
	}

	slog.InfoContext(ctx, "requested email blast sent", "batch_id", in.BatchID, "message", out.Message, "replayed", out.Replayed)
	return nil
}
