package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goerror"
)

type scheduled struct {
	entity.Schedule
	timer *time.Timer
}

type (
	ScheduleBlastInput struct {
		SendAt time.Time
		Blast  SendBlastInput
	}

	CancelScheduleInput struct {
		ID string `validate:"required,max=64"`
	}
)

// ScheduleBlast runs Blast at SendAt. Until then the schedule can be cancelled,
// and a cancelled schedule never sends anything.
func (s *Usecase) ScheduleBlast(ctx context.Context, in ScheduleBlastInput) (*entity.Schedule, error) {
	ctx, span := s.startSpan(ctx, "ScheduleBlast")
	defer span.End()

	if err := s.validator.Validate(in.Blast); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	now := s.clock.Now()
	if !in.SendAt.After(now) {
		return nil, goerror.NewInvalidInput(nil, "send_at", "send_at must be in the future")
	}

	sch := &scheduled{Schedule: entity.Schedule{
		ID:     s.uuid.Generate(),
		SendAt: in.SendAt,
		Status: entity.ScheduleStatusPending,
	}}

	// the request context ends with the request; keep its values only
	runCtx := context.WithoutCancel(ctx)

	s.schedMu.Lock()
	if s.stopped {
		s.schedMu.Unlock()
		return nil, goerror.NewBusiness("Scheduling is unavailable while the service shuts down", goerror.CodeUnavailable)
	}
	s.schedules[sch.ID] = sch
	sch.timer = time.AfterFunc(in.SendAt.Sub(now), func() { s.runSchedule(runCtx, sch.ID, in.Blast) })
	s.schedMu.Unlock()
	s.pending.Inc()

	slog.InfoContext(ctx, "email blast scheduled", "schedule_id", sch.ID, "send_at", in.SendAt)

	out := sch.Schedule
	return &out, nil
}

// CancelSchedule stops a pending schedule.
func (s *Usecase) CancelSchedule(ctx context.Context, in CancelScheduleInput) error {
	ctx, span := s.startSpan(ctx, "CancelSchedule")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	sch, ok := s.schedules[in.ID]
	if !ok {
		return goerror.NewBusiness("Schedule not found", goerror.CodeNotFound)
	}
	if sch.Status != entity.ScheduleStatusPending {
		return goerror.NewBusiness("Schedule is already running", goerror.CodeConflict)
	}

	sch.timer.Stop()
	sch.Status = entity.ScheduleStatusCancelled
	delete(s.schedules, in.ID)
	s.pending.Dec()

	slog.InfoContext(ctx, "email blast schedule cancelled", "schedule_id", in.ID)
	return nil
}

// PendingSchedules reports how many schedules are waiting to run.
func (s *Usecase) PendingSchedules() int64 {
	return s.pending.Load()
}

// StopSchedules drops every pending schedule, refuses new ones and waits for
// schedules that already started sending. It is called on shutdown.
func (s *Usecase) StopSchedules() {
	s.schedMu.Lock()
	s.stopped = true
	for id, sch := range s.schedules {
		if sch.Status == entity.ScheduleStatusPending && sch.timer.Stop() {
			s.pending.Dec()
			delete(s.schedules, id)
			slog.Warn("email blast schedule dropped on shutdown", "schedule_id", id, "send_at", sch.SendAt)
		}
	}
	s.schedMu.Unlock()

	s.running.Wait()
}

func (s *Usecase) runSchedule(ctx context.Context, id string, blast SendBlastInput) {
	s.schedMu.Lock()
	sch, ok := s.schedules[id]
	if !ok || sch.Status != entity.ScheduleStatusPending {
		s.schedMu.Unlock()
		return
	}
	if s.stopped {
		// fired while StopSchedules was running, after its timer.Stop lost the race
		delete(s.schedules, id)
		s.schedMu.Unlock()
		s.pending.Dec()
		slog.WarnContext(ctx, "email blast schedule dropped on shutdown", "schedule_id", id, "send_at", sch.SendAt)
		return
	}
	sch.Status = entity.ScheduleStatusRunning
	s.running.Add(1)
	s.schedMu.Unlock()
	s.pending.Dec()

	defer func() {
		s.schedMu.Lock()
		delete(s.schedules, id)
		s.schedMu.Unlock()
		s.running.Done()
	}()

	if blast.BatchID == "" {
		blast.BatchID = id
	}

	out := s.SendBlast(ctx, blast)
	slog.InfoContext(ctx, "scheduled email blast finished", "schedule_id", id, "success", out.Success, "message", out.Message)
}
