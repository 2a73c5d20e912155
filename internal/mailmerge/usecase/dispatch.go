package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/merge"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goroutine"
	"github.com/shandysiswandi/mailmerge/internal/pkg/stacktrace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type DispatchInput struct {
	BatchID    string
	Table      *entity.RecipientTable
	Subject    string
	Body       string
	Banner     *entity.Asset
	Attachment *entity.Asset
}

// recipientJob is everything one send needs. Templates and the composer are
// shared read-only across jobs.
type recipientJob struct {
	row       int
	values    []string
	header    []string
	emailIdx  int
	required  []merge.Field
	subject   *merge.Template
	body      *merge.Template
	composer  *merge.Composer
	transport Transport
}

// DispatchBatch sends one message per row of in.Table and returns the summary
// once every send has settled. transport is closed before it returns.
//
// A header missing a required column fails with *merge.MissingColumnError
// before anything is sent. Per-row problems never abort the batch.
func (s *Usecase) DispatchBatch(ctx context.Context, in DispatchInput, transport Transport) (*entity.BatchSummary, error) {
	ctx, span := s.startSpan(ctx, "DispatchBatch")
	defer span.End()

	defer func() {
		if err := transport.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close mail transport", "batch_id", in.BatchID, "error", err)
		}
	}()

	salutation := s.salutation()
	required := merge.RequiredColumns(salutation)
	if err := merge.CheckColumns(in.Table.Header, required); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for key, headers := range merge.Collisions(in.Table.Header) {
		slog.WarnContext(ctx, "recipient file headers collide, the later column wins", "batch_id", in.BatchID, "field", key, "headers", headers)
	}

	opts := []merge.ComposerOption{merge.WithSalutation(salutation), merge.WithAttachment(in.Attachment)}
	if in.Banner != nil {
		opts = append(opts, merge.WithBanner(in.Banner, s.bannerCID()))
	}

	base := recipientJob{
		header:    in.Table.Header,
		emailIdx:  merge.HeaderIndex(in.Table.Header)[merge.EmailColumn],
		required:  required[1:],
		subject:   merge.Compile(in.Subject),
		body:      merge.Compile(in.Body),
		composer:  merge.NewComposer(opts...),
		transport: transport,
	}

	summary := &entity.BatchSummary{BatchID: in.BatchID, StartedAt: s.clock.Now()}
	span.SetAttributes(attribute.String("batch_id", in.BatchID), attribute.Int("rows", len(in.Table.Rows)))

	// Buffered to the row count so a worker never waits on the aggregator.
	outcomes := make(chan entity.DispatchOutcome, len(in.Table.Rows))
	routine := goroutine.NewManager(s.maxConcurrency())

	for i, row := range in.Table.Rows {
		job := base
		job.row = i + 1
		job.values = row

		err := routine.Go(ctx, func(ctx context.Context) error {
			outcomes <- s.sendRecipient(ctx, job)
			return nil
		})
		if err != nil {
			outcomes <- entity.DispatchOutcome{
				Row:       job.row,
				Recipient: strings.TrimSpace(entity.Cell(row, job.emailIdx)),
				Status:    entity.OutcomeStatusFailed,
				Reason:    err.Error(),
			}
		}
	}

	go func() {
		if err := routine.Wait(); err != nil {
			slog.ErrorContext(ctx, "dispatch workers returned errors", "batch_id", in.BatchID, "error", err)
		}
		close(outcomes)
	}()

	for o := range outcomes {
		summary.Record(o)
		if s.recipients != nil {
			s.recipients.Add(ctx, 1, metric.WithAttributes(attribute.String("status", o.Status.String())))
		}
		if o.Status == entity.OutcomeStatusFailed {
			slog.WarnContext(ctx, "failed to send email to recipient", "batch_id", in.BatchID, "row", o.Row, "recipient", o.Recipient, "error", o.Reason)
		}
	}

	summary.Duration = s.clock.Now().Sub(summary.StartedAt)
	summary.Success = summary.Sent > 0 || summary.Attempted == 0
	if summary.Success {
		summary.Message = sentMessage(summary)
	} else {
		summary.Message = msgNoneSent
	}

	if s.duration != nil {
		s.duration.Record(ctx, summary.Duration.Seconds(), metric.WithAttributes(attribute.Bool("success", summary.Success)))
	}
	span.SetAttributes(
		attribute.Int("sent", summary.Sent),
		attribute.Int("failed", summary.Failed),
		attribute.Int("skipped", summary.Skipped),
	)

	slog.InfoContext(ctx, "batch dispatched",
		"batch_id", in.BatchID,
		"attempted", summary.Attempted,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration_ms", summary.Duration.Milliseconds(),
	)

	return summary, nil
}

// sendRecipient never panics: a panic becomes a failed outcome so the summary
// still counts the row exactly once.
func (s *Usecase) sendRecipient(ctx context.Context, job recipientJob) (out entity.DispatchOutcome) {
	out = entity.DispatchOutcome{
		Row:       job.row,
		Recipient: strings.TrimSpace(entity.Cell(job.values, job.emailIdx)),
	}

	defer func() {
		if rvr := recover(); rvr != nil {
			slog.ErrorContext(ctx, "panic while sending to recipient", "row", job.row, "panic", rvr, "stack", stacktrace.InternalPaths(debug.Stack()))
			out.Status = entity.OutcomeStatusFailed
			out.Reason = fmt.Sprintf("panic: %v", rvr)
		}
	}()

	if out.Recipient == "" {
		out.Status = entity.OutcomeStatusSkipped
		out.Reason = "missing email address"
		return out
	}

	binding := merge.Bind(job.header, job.values)
	for _, f := range job.required {
		if strings.TrimSpace(binding[f.Key]) == "" {
			out.Status = entity.OutcomeStatusSkipped
			out.Reason = "missing " + f.Key
			return out
		}
	}

	msg, err := job.composer.Compose(out.Recipient, job.subject.Render(binding), job.body.Render(binding), binding)
	if err != nil {
		out.Status = entity.OutcomeStatusSkipped
		out.Reason = err.Error()
		return out
	}

	start := time.Now()
	if err := job.transport.Send(ctx, msg); err != nil {
		out.Status = entity.OutcomeStatusFailed
		out.Reason = err.Error()
		return out
	}

	slog.DebugContext(ctx, "email sent", "row", job.row, "recipient", out.Recipient, "latency_ms", time.Since(start).Milliseconds())
	out.Status = entity.OutcomeStatusSent
	return out
}
