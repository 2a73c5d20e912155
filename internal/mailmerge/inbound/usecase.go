package inbound

import (
	"context"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
)

type ucConsumer interface {
	ConsumeBatchRequest(ctx context.Context, in usecase.ConsumeBatchRequestInput) error
}

type uc interface {
	ucConsumer

	SendBlast(ctx context.Context, in usecase.SendBlastInput) usecase.SendBlastOutput
	ValidateUpload(ctx context.Context, in usecase.ValidateUploadInput) usecase.ValidateUploadOutput
	ScheduleBlast(ctx context.Context, in usecase.ScheduleBlastInput) (*entity.Schedule, error)
	CancelSchedule(ctx context.Context, in usecase.CancelScheduleInput) error
}
