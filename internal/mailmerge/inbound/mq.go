package inbound

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goroutine"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/messaging"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/shared/event"
)

func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Messaging,
	uuid uid.StringID,
	uc ucConsumer,
	ins instrument.Instrumentation,
) {
	if !cfg.GetBool("mailmerge.consumer_enabled") {
		return
	}

	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	concurrency := cfg.GetInt("mailmerge.consumer_concurrency")
	if concurrency <= 0 {
		concurrency = 1
	}

	var consumers = []struct {
		name       string
		subject    string
		queueGroup string
		handler    messaging.Handler
	}{
		{
			name:       event.BatchRequestedConsumerMailmerge,
			subject:    event.BatchRequestedDestination,
			queueGroup: event.BatchRequestedConsumerMailmerge,
			handler:    mqHandler.BatchRequested,
		},
	}

	for _, consumer := range consumers {
		err := routine.Go(ctx, func(pCtx context.Context) error {
			slog.InfoContext(ctx, "Running job for handling consumer", "consumer", consumer.name)
			return messenger.Consume(pCtx,
				consumer.subject,
				consumer.handler,
				messaging.WithQueueGroup(consumer.queueGroup),
				messaging.WithAutoAck(true),
				messaging.WithConcurrency(concurrency),
			)
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to start consumer", "consumer", consumer.name, "error", err)
		}
	}
}
