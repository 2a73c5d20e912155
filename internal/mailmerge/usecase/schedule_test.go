package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/mailmerge/internal/pkg/goerror"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func sendCount(d testDeps) int {
	d.transport.mu.Lock()
	defer d.transport.mu.Unlock()
	return d.transport.calls
}

func TestScheduleBlast_Runs(t *testing.T) {
	// Arrange
	d := newTestUsecase(t)
	blast := SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"}

	// Act
	sch, err := d.uc.ScheduleBlast(context.Background(), ScheduleBlastInput{SendAt: time.Now().Add(20 * time.Millisecond), Blast: blast})

	// Assert
	if err != nil {
		t.Fatalf("ScheduleBlast error: %v", err)
	}
	if sch.ID == "" || d.uc.PendingSchedules() != 1 {
		t.Fatalf("unexpected schedule %+v pending %d", sch, d.uc.PendingSchedules())
	}
	waitFor(t, func() bool { return sendCount(d) == 1 })
	waitFor(t, func() bool { return d.uc.PendingSchedules() == 0 })
}

func TestScheduleBlast_CancelledNeverSends(t *testing.T) {
	// Arrange
	d := newTestUsecase(t)
	blast := SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"}
	sch, err := d.uc.ScheduleBlast(context.Background(), ScheduleBlastInput{SendAt: time.Now().Add(50 * time.Millisecond), Blast: blast})
	if err != nil {
		t.Fatalf("ScheduleBlast error: %v", err)
	}

	// Act
	err = d.uc.CancelSchedule(context.Background(), CancelScheduleInput{ID: sch.ID})

	// Assert
	if err != nil {
		t.Fatalf("CancelSchedule error: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if got := sendCount(d); got != 0 {
		t.Fatalf("cancelled schedule sent %d emails", got)
	}
	if d.uc.PendingSchedules() != 0 {
		t.Fatalf("expected no pending schedules, got %d", d.uc.PendingSchedules())
	}
}

func TestScheduleBlast_PastTimeRejected(t *testing.T) {
	d := newTestUsecase(t)

	_, err := d.uc.ScheduleBlast(context.Background(), ScheduleBlastInput{SendAt: time.Now().Add(-time.Minute)})

	var gerr *goerror.Error
	if !errors.As(err, &gerr) || gerr.Code() != goerror.CodeInvalidInput {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestCancelSchedule_NotFound(t *testing.T) {
	d := newTestUsecase(t)

	err := d.uc.CancelSchedule(context.Background(), CancelScheduleInput{ID: "missing"})

	var gerr *goerror.Error
	if !errors.As(err, &gerr) || gerr.Code() != goerror.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStopSchedules(t *testing.T) {
	d := newTestUsecase(t)
	blast := SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"}
	if _, err := d.uc.ScheduleBlast(context.Background(), ScheduleBlastInput{SendAt: time.Now().Add(time.Hour), Blast: blast}); err != nil {
		t.Fatalf("ScheduleBlast error: %v", err)
	}

	d.uc.StopSchedules()

	if d.uc.PendingSchedules() != 0 {
		t.Fatalf("expected no pending schedules, got %d", d.uc.PendingSchedules())
	}

	_, err := d.uc.ScheduleBlast(context.Background(), ScheduleBlastInput{SendAt: time.Now().Add(time.Hour), Blast: blast})
	var gerr *goerror.Error
	if !errors.As(err, &gerr) || gerr.Code() != goerror.CodeUnavailable {
		t.Fatalf("expected unavailable after stop, got %v", err)
	}
}

func TestRunSchedule_FiredAfterStopIsDropped(t *testing.T) {
	// Arrange
	d := newTestUsecase(t)
	blast := SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"}
	sch, err := d.uc.ScheduleBlast(context.Background(), ScheduleBlastInput{SendAt: time.Now().Add(time.Hour), Blast: blast})
	if err != nil {
		t.Fatalf("ScheduleBlast error: %v", err)
	}

	// the timer fired but StopSchedules already marked the usecase stopped
	d.uc.schedMu.Lock()
	d.uc.stopped = true
	d.uc.schedules[sch.ID].timer.Stop()
	d.uc.schedMu.Unlock()

	// Act
	d.uc.runSchedule(context.Background(), sch.ID, blast)

	// Assert
	if d.uc.PendingSchedules() != 0 {
		t.Fatalf("expected no pending schedules, got %d", d.uc.PendingSchedules())
	}
	if d.transport.calls != 0 {
		t.Fatalf("a schedule fired after shutdown must not send, got %d calls", d.transport.calls)
	}
	d.uc.schedMu.Lock()
	_, ok := d.uc.schedules[sch.ID]
	d.uc.schedMu.Unlock()
	if ok {
		t.Fatal("schedule must be removed")
	}
}
