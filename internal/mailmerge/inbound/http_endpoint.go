package inbound

import (
	"strings"
	"time"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goerror"
	"github.com/shandysiswandi/mailmerge/internal/pkg/router"
)

const headerIdempotencyKey = "Idempotency-Key"

type HTTPEndpoint struct {
	uc uc
}

// SendBlast sends one personalized email per recipient row.
// @Summary Send email blast
// @Description Merges the subject and message into every recipient row and sends the emails. The result always carries success and a human readable message.
// @Tags Mailmerge
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays the stored result for a repeated submission"
// @Param request body BlastRequest true "Blast payload"
// @Success 200 {object} router.successResponse{data=BlastResponse} "Blast result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/mailmerge/blasts [post]
func (h *HTTPEndpoint) SendBlast(r *router.Request) (any, error) {
	var req BlastRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out := h.uc.SendBlast(r.Context(), req.input(r.GetHeader(headerIdempotencyKey)))

	return newBlastResponse(out), nil
}

// ValidateUpload checks a recipient file before sending.
// @Summary Validate recipient file
// @Description Reports the first problem in the recipient file: missing header, invalid email or missing salutation field.
// @Tags Mailmerge
// @Accept json
// @Produce json
// @Param request body ValidationRequest true "Recipient file"
// @Success 200 {object} router.successResponse{data=ValidationResponse} "Validation result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/mailmerge/validations [post]
func (h *HTTPEndpoint) ValidateUpload(r *router.Request) (any, error) {
	var req ValidationRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out := h.uc.ValidateUpload(r.Context(), usecase.ValidateUploadInput{FileContent: req.FileData})

	return ValidationResponse{IsValid: out.IsValid, ErrorMessage: out.ErrorMessage}, nil
}

// ScheduleBlast sends an email blast later.
// @Summary Schedule email blast
// @Description Sends the blast at send_at unless the schedule is cancelled first. Schedules live in memory and do not survive a restart.
// @Tags Mailmerge
// @Accept json
// @Produce json
// @Param request body ScheduleRequest true "Schedule payload"
// @Success 201 {object} router.successResponse{data=ScheduleResponse} "Schedule created"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/mailmerge/schedules [post]
func (h *HTTPEndpoint) ScheduleBlast(r *router.Request) (any, error) {
	var req ScheduleRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sendAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.SendAt))
	if err != nil {
		return nil, goerror.NewInvalidInput(nil, "send_at", "send_at must be an RFC3339 timestamp")
	}

	sch, err := h.uc.ScheduleBlast(r.Context(), usecase.ScheduleBlastInput{
		SendAt: sendAt,
		Blast:  req.input(r.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		return nil, err
	}

	return newScheduleResponse(sch), nil
}

// CancelSchedule cancels a pending schedule.
// @Summary Cancel scheduled blast
// @Description Cancels a schedule that has not started yet. A cancelled schedule sends nothing.
// @Tags Mailmerge
// @Param id path string true "Schedule ID"
// @Success 204 "No Content"
// @Failure 404 {object} router.errorResponse "Schedule not found"
// @Failure 409 {object} router.errorResponse "Schedule already running"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/mailmerge/schedules/{id} [delete]
func (h *HTTPEndpoint) CancelSchedule(r *router.Request) (any, error) {
	return nil, h.uc.CancelSchedule(r.Context(), usecase.CancelScheduleInput{ID: r.GetParam("id")})
}
