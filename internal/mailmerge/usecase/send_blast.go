package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/merge"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goerror"
	"github.com/shandysiswandi/mailmerge/internal/pkg/idempotency"
	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
	"github.com/shandysiswandi/mailmerge/internal/pkg/stacktrace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errBlastUnsuccessful = errors.New("email blast was not successful")

type (
	SendBlastInput struct {
		BatchID               string      `json:"batch_id" validate:"omitempty,max=128"`
		IdempotencyKey        string      `json:"idempotency_key" validate:"omitempty,max=255"`
		Subject               string      `json:"subject" validate:"max=998"`
		Message               string      `json:"message"`
		RecipientsFileContent string      `json:"recipients_file_content"`
		Attachment            *AssetInput `json:"attachment"`
		Banner                *AssetInput `json:"banner"`
	}

	SendBlastOutput struct {
		Success  bool                 `json:"success"`
		Message  string               `json:"message"`
		Summary  *entity.BatchSummary `json:"summary,omitempty"`
		Replayed bool                 `json:"-"`
	}
)

// SendBlast runs one mail-merge batch. It never returns an error: every
// failure, including a panic, is reported through the output message.
//
// A started batch is not cut short when the caller goes away: every row still
// reaches the transport. ctx contributes its values (trace, correlation id) only.
func (s *Usecase) SendBlast(ctx context.Context, in SendBlastInput) (out SendBlastOutput) {
	ctx, span := s.startSpan(context.WithoutCancel(ctx), "SendBlast")
	defer span.End()

	defer func() {
		if rvr := recover(); rvr != nil {
			slog.ErrorContext(ctx, "panic while sending email blast", "batch_id", in.BatchID, "panic", rvr, "stack", stacktrace.InternalPaths(debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			out = SendBlastOutput{Message: msgUnexpected}
		}
	}()

	if err := s.validator.Validate(in); err != nil {
		slog.WarnContext(ctx, "invalid email blast input", "error", err)
		return SendBlastOutput{Message: msgInvalidInput}
	}

	if in.BatchID == "" {
		in.BatchID = s.uuid.Generate()
	}
	span.SetAttributes(attribute.String("batch_id", in.BatchID))

	if in.IdempotencyKey == "" || s.idem == nil {
		return s.sendBlast(ctx, in)
	}

	return s.sendBlastOnce(ctx, in)
}

// sendBlastOnce remembers a successful result under the idempotency key so a
// repeated submission replays it instead of mailing everyone again. Failed
// batches release the key.
func (s *Usecase) sendBlastOnce(ctx context.Context, in SendBlastInput) SendBlastOutput {
	var out SendBlastOutput
	raw, replayed, err := s.idem.Do(ctx, in.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
		out = s.sendBlast(ctx, in)
		if !out.Success {
			return nil, errBlastUnsuccessful
		}
		return json.Marshal(out)
	})

	switch {
	case errors.Is(err, errBlastUnsuccessful):
		return out
	case errors.Is(err, idempotency.ErrInProgress):
		slog.WarnContext(ctx, "email blast already in progress", "idempotency_key", in.IdempotencyKey)
		return SendBlastOutput{Message: msgInProgress}
	case err != nil && out.Success:
		// sent, but the result could not be stored
		slog.ErrorContext(ctx, "failed to store email blast result", "idempotency_key", in.IdempotencyKey, "error", err)
		return out
	case err != nil:
		slog.ErrorContext(ctx, "failed to acquire idempotency key", "idempotency_key", in.IdempotencyKey, "error", err)
		return SendBlastOutput{Message: msgUnexpected}
	}

	if !replayed {
		return out
	}

	var stored SendBlastOutput
	if err := json.Unmarshal(raw, &stored); err != nil {
		slog.ErrorContext(ctx, "failed to decode stored email blast result", "idempotency_key", in.IdempotencyKey, "error", err)
		return SendBlastOutput{Message: msgUnexpected}
	}
	stored.Replayed = true

	slog.InfoContext(ctx, "email blast replayed from idempotency key", "idempotency_key", in.IdempotencyKey)
	return stored
}

func (s *Usecase) sendBlast(ctx context.Context, in SendBlastInput) SendBlastOutput {
	table, err := merge.ParseTable(in.RecipientsFileContent)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse recipient file", "batch_id", in.BatchID, "error", err)
		return SendBlastOutput{Message: msgEmptyFile}
	}

	attachment, err := s.loadAsset(ctx, in.Attachment)
	if err != nil {
		slog.WarnContext(ctx, "failed to load attachment", "batch_id", in.BatchID, "error", err)
		return SendBlastOutput{Message: assetMessage(err)}
	}

	banner, err := s.loadAsset(ctx, in.Banner)
	if err != nil {
		slog.WarnContext(ctx, "failed to load banner", "batch_id", in.BatchID, "error", err)
		return SendBlastOutput{Message: assetMessage(err)}
	}

	transport, err := s.repoMail.Open(ctx)
	if errors.Is(err, mail.ErrSMTPCredentialsRequired) {
		slog.ErrorContext(ctx, "email credentials are not configured", "batch_id", in.BatchID)
		return SendBlastOutput{Message: msgNoCredentials}
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to open mail transport", "batch_id", in.BatchID, "error", err)
		return SendBlastOutput{Message: msgUnexpected}
	}

	summary, err := s.DispatchBatch(ctx, DispatchInput{
		BatchID:    in.BatchID,
		Table:      table,
		Subject:    in.Subject,
		Body:       in.Message,
		Banner:     banner,
		Attachment: attachment,
	}, transport)

	var mce *merge.MissingColumnError
	if errors.As(err, &mce) {
		slog.WarnContext(ctx, "recipient file is missing required columns", "batch_id", in.BatchID, "columns", mce.Columns)
		return SendBlastOutput{Message: missingColumnsMessage(mce.Columns)}
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to dispatch batch", "batch_id", in.BatchID, "error", err)
		return SendBlastOutput{Message: msgUnexpected}
	}

	s.publishCompleted(ctx, summary)

	return SendBlastOutput{Success: summary.Success, Message: summary.Message, Summary: summary}
}

func (s *Usecase) publishCompleted(ctx context.Context, summary *entity.BatchSummary) {
	if s.repoMQ == nil {
		return
	}

	if err := s.repoMQ.PublishBatchCompleted(ctx, *summary); err != nil {
		slog.ErrorContext(ctx, "failed to publish batch completed", "batch_id", summary.BatchID, "error", err)
	}
}

func assetMessage(err error) string {
	switch {
	case errors.Is(err, ErrAssetTooLarge):
		return msgAssetTooLarge
	case errors.Is(err, goerror.ErrNotFound):
		return msgAssetNotFound
	default:
		return msgInvalidAsset
	}
}
