package email

import (
	"context"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Factory opens a mail transport for one batch.
type Factory func(ctx context.Context) (mail.Mail, error)

type Mail struct {
	open Factory
	ins  instrument.Instrumentation
}

func New(open Factory, ins instrument.Instrumentation) *Mail {
	return &Mail{open: open, ins: ins}
}

func (m *Mail) Open(ctx context.Context) (usecase.Transport, error) {
	ctx, span := m.ins.Tracer("mailmerge.outbound.email").Start(ctx, "Open")
	defer span.End()

	client, err := m.open(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Session{client: client, ins: m.ins}, nil
}

// Session is a traced handle to one batch's transport.
type Session struct {
	client mail.Mail
	ins    instrument.Instrumentation
}

func (s *Session) Send(ctx context.Context, msg mail.Message) error {
	ctx, span := s.ins.Tracer("mailmerge.outbound.email").Start(ctx, "Send")
	defer span.End()

	span.SetAttributes(attribute.Int("attachments", len(msg.Attachments)))

	if err := s.client.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (s *Session) Close() error {
	return s.client.Close()
}
