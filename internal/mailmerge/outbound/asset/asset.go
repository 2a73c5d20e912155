package asset

import (
	"context"
	"errors"
	"path"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goerror"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Asset struct {
	store storage.Storage
	ins   instrument.Instrumentation
}

func New(store storage.Storage, ins instrument.Instrumentation) *Asset {
	return &Asset{store: store, ins: ins}
}

func (a *Asset) Load(ctx context.Context, key string, maxBytes int64) (*entity.Asset, error) {
	ctx, span := a.ins.Tracer("mailmerge.outbound.asset").Start(ctx, "Load")
	defer span.End()

	span.SetAttributes(attribute.String("object_key", key))

	data, info, err := storage.ReadAll(ctx, a.store, key, maxBytes)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		err = goerror.ErrNotFound
	case errors.Is(err, storage.ErrTooLarge):
		err = errors.Join(usecase.ErrAssetTooLarge, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &entity.Asset{
		Filename:    path.Base(key),
		ContentType: info.ContentType,
		Content:     data,
	}, nil
}
