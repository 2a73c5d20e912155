package mailmerge

import (
	"context"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/inbound"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/outbound/asset"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/outbound/email"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/outbound/mq"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
	"github.com/shandysiswandi/mailmerge/internal/pkg/clock"
	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goroutine"
	"github.com/shandysiswandi/mailmerge/internal/pkg/idempotency"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/messaging"
	"github.com/shandysiswandi/mailmerge/internal/pkg/router"
	"github.com/shandysiswandi/mailmerge/internal/pkg/storage"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/pkg/validator"
)

type Dependency struct {
	Ctx         context.Context
	Config      config.Config
	Instrument  instrument.Instrumentation
	UUID        uid.StringID
	Clock       clock.Clocker
	Goroutine   *goroutine.Manager
	Validator   validator.Validator
	Router      *router.Router
	Messaging   messaging.Messaging
	Storage     storage.Storage
	Idempotency idempotency.Idempotency
	// Mail opens one SMTP transport per batch.
	Mail email.Factory
}

// Module is the running mailmerge module.
type Module struct {
	uc *usecase.Usecase
}

func New(dep Dependency) (*Module, error) {
	uc := usecase.NewMailmerge(usecase.Dependency{
		Config:      dep.Config,
		UUID:        dep.UUID,
		Clock:       dep.Clock,
		Validator:   dep.Validator,
		Instrument:  dep.Instrument,
		RepoMail:    email.New(dep.Mail, dep.Instrument),
		RepoAsset:   asset.New(dep.Storage, dep.Instrument),
		RepoMQ:      mq.NewMessaging(dep.Messaging, dep.Instrument),
		Idempotency: dep.Idempotency,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return &Module{uc: uc}, nil
}

// Close drops pending schedules and waits for scheduled blasts that already
// started.
func (m *Module) Close(context.Context) error {
	m.uc.StopSchedules()
	return nil
}
