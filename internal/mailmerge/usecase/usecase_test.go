package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/pkg/clock"
	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
	"github.com/shandysiswandi/mailmerge/internal/pkg/idempotency"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/pkg/validator"
)

const testConfig = `
mailmerge:
  salutation: "<p>Dear Professor {{LastName}},</p>"
  banner_cid_domain: test.local
  max_asset_bytes: 1024
  dispatch:
    max_concurrency: 4
`

type fakeTransport struct {
	mu     sync.Mutex
	sent   []mail.Message
	calls  int
	closed int
	reject map[string]error
	panics map[string]bool
}

func (f *fakeTransport) Send(ctx context.Context, msg mail.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	to := msg.To[0]
	if f.panics[to] {
		panic("transport exploded for " + to)
	}
	if err := f.reject[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeRepoMail struct {
	transport *fakeTransport
	err       error
	panic     bool
}

func (f *fakeRepoMail) Open(context.Context) (Transport, error) {
	if f.panic {
		panic("open exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.transport, nil
}

type fakeRepoAsset struct {
	assets map[string]*entity.Asset
}

func (f *fakeRepoAsset) Load(_ context.Context, key string, _ int64) (*entity.Asset, error) {
	a, ok := f.assets[key]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *a
	return &cp, nil
}

type fakeRepoMQ struct {
	mu        sync.Mutex
	summaries []entity.BatchSummary
}

func (f *fakeRepoMQ) PublishBatchCompleted(_ context.Context, summary entity.BatchSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, summary)
	return nil
}

// memoryIdempotency mirrors idempotency.StateTracker without Redis.
type memoryIdempotency struct {
	mu      sync.Mutex
	results map[string][]byte
	calls   int
}

func (m *memoryIdempotency) Do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	m.mu.Lock()
	if r, ok := m.results[key]; ok {
		m.mu.Unlock()
		return r, true, nil
	}
	m.calls++
	m.mu.Unlock()

	r, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	m.results[key] = r
	m.mu.Unlock()
	return r, false, nil
}

var _ idempotency.Idempotency = (*memoryIdempotency)(nil)

type testDeps struct {
	uc        *Usecase
	transport *fakeTransport
	repoMail  *fakeRepoMail
	repoMQ    *fakeRepoMQ
	idem      *memoryIdempotency
}

func newTestUsecase(t *testing.T) testDeps {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfig), nil)
	if err != nil {
		t.Fatalf("config error: %v", err)
	}

	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator error: %v", err)
	}

	transport := &fakeTransport{reject: map[string]error{}, panics: map[string]bool{}}
	repoMail := &fakeRepoMail{transport: transport}
	repoMQ := &fakeRepoMQ{}
	idem := &memoryIdempotency{results: map[string][]byte{}}

	uc := NewMailmerge(Dependency{
		Config:      cfg,
		UUID:        uid.Static("fixed-id"),
		Clock:       clock.New(),
		Validator:   v,
		Instrument:  instrument.NewNoop(),
		RepoMail:    repoMail,
		RepoAsset:   &fakeRepoAsset{assets: map[string]*entity.Asset{"banners/top.png": {Content: []byte("png-bytes"), ContentType: "image/png"}}},
		RepoMQ:      repoMQ,
		Idempotency: idem,
	})

	return testDeps{uc: uc, transport: transport, repoMail: repoMail, repoMQ: repoMQ, idem: idem}
}
