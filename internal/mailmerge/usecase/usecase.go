package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/merge"
	"github.com/shandysiswandi/mailmerge/internal/pkg/clock"
	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
	"github.com/shandysiswandi/mailmerge/internal/pkg/idempotency"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/pkg/validator"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

const (
	defaultSalutation      = "<p>Dear Professor {{LastName}},</p><p>&nbsp;</p>"
	defaultBannerCIDDomain = "mailmerge.local"
	defaultMaxConcurrency  = 10
	defaultMaxAssetBytes   = 10 << 20
)

// Transport is the mail handle used for one batch. DispatchBatch closes it.
type Transport interface {
	Send(ctx context.Context, msg mail.Message) error
	Close() error
}

type repoMail interface {
	Open(ctx context.Context) (Transport, error)
}

type repoAsset interface {
	Load(ctx context.Context, key string, maxBytes int64) (*entity.Asset, error)
}

type repoMQ interface {
	PublishBatchCompleted(ctx context.Context, summary entity.BatchSummary) error
}

type Usecase struct {
	cfg        config.Config
	uuid       uid.StringID
	clock      clock.Clocker
	validator  validator.Validator
	ins        instrument.Instrumentation
	repoMail   repoMail
	repoAsset  repoAsset
	repoMQ     repoMQ
	idem       idempotency.Idempotency
	recipients metric.Int64Counter
	duration   metric.Float64Histogram

	schedMu   sync.Mutex
	schedules map[string]*scheduled
	stopped   bool
	running   sync.WaitGroup
	pending   atomic.Int64
}

type Dependency struct {
	Config      config.Config
	UUID        uid.StringID
	Clock       clock.Clocker
	Validator   validator.Validator
	Instrument  instrument.Instrumentation
	RepoMail    repoMail
	RepoAsset   repoAsset
	RepoMQ      repoMQ
	Idempotency idempotency.Idempotency
}

func NewMailmerge(dep Dependency) *Usecase {
	meter := dep.Instrument.Meter("mailmerge.usecase")

	recipients, err := meter.Int64Counter("mailmerge.recipients",
		metric.WithDescription("Recipients processed, by outcome status"),
	)
	if err != nil {
		slog.Error("failed to create mailmerge recipients counter", "error", err)
	}

	duration, err := meter.Float64Histogram("mailmerge.batch.duration",
		metric.WithDescription("Time to dispatch one batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Error("failed to create mailmerge batch duration histogram", "error", err)
	}

	return &Usecase{
		cfg:        dep.Config,
		uuid:       dep.UUID,
		clock:      dep.Clock,
		validator:  dep.Validator,
		ins:        dep.Instrument,
		repoMail:   dep.RepoMail,
		repoAsset:  dep.RepoAsset,
		repoMQ:     dep.RepoMQ,
		idem:       dep.Idempotency,
		recipients: recipients,
		duration:   duration,
		schedules:  make(map[string]*scheduled),
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("mailmerge.usecase").Start(ctx, name)
}

func (s *Usecase) salutation() *merge.Template {
	if s.cfg.IsSet("mailmerge.salutation") {
		return merge.Compile(s.cfg.GetString("mailmerge.salutation"))
	}
	return merge.Compile(defaultSalutation)
}

func (s *Usecase) bannerCID() string {
	domain := s.cfg.GetString("mailmerge.banner_cid_domain")
	if domain == "" {
		domain = defaultBannerCIDDomain
	}
	return "banner-" + s.uuid.Generate() + "@" + domain
}

func (s *Usecase) maxConcurrency() int {
	if n := s.cfg.GetInt("mailmerge.dispatch.max_concurrency"); n > 0 {
		return n
	}
	return defaultMaxConcurrency
}

func (s *Usecase) maxAssetBytes() int64 {
	if n := s.cfg.GetInt64("mailmerge.max_asset_bytes"); n > 0 {
		return n
	}
	return defaultMaxAssetBytes
}
