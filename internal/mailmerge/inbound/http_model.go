package inbound

import (
	"net/http"
	"time"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/usecase"
)

type AssetRequest struct {
	Filename    string `json:"filename" example:"brochure.pdf"`
	ContentType string `json:"content_type,omitempty" example:"application/pdf"`
	Content     string `json:"content,omitempty"`
	ObjectKey   string `json:"object_key,omitempty" example:"uploads/brochure.pdf"`
}

func (a *AssetRequest) input() *usecase.AssetInput {
	if a == nil {
		return nil
	}
	return &usecase.AssetInput{
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Content:     a.Content,
		ObjectKey:   a.ObjectKey,
	}
}

type BlastRequest struct {
	BatchID               string        `json:"batch_id,omitempty"`
	Subject               string        `json:"subject" example:"Research collaboration with {{Lastname}}"`
	Message               string        `json:"message" example:"<p>I am writing to you today...</p>"`
	RecipientsFileContent string        `json:"recipients_file_content" example:"email,last name\nada@example.com,Lovelace"`
	Attachment            *AssetRequest `json:"attachment,omitempty"`
	Banner                *AssetRequest `json:"banner,omitempty"`
}

func (b BlastRequest) input(idempotencyKey string) usecase.SendBlastInput {
	return usecase.SendBlastInput{
		BatchID:               b.BatchID,
		IdempotencyKey:        idempotencyKey,
		Subject:               b.Subject,
		Message:               b.Message,
		RecipientsFileContent: b.RecipientsFileContent,
		Attachment:            b.Attachment.input(),
		Banner:                b.Banner.input(),
	}
}

type BatchSummaryResponse struct {
	BatchID   string `json:"batch_id"`
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

type BlastResponse struct {
	Success  bool                  `json:"success"`
	Msg      string                `json:"message"`
	Replayed bool                  `json:"replayed,omitempty"`
	Summary  *BatchSummaryResponse `json:"summary,omitempty"`
}

func (b BlastResponse) Message() string { return b.Msg }

func newBlastResponse(out usecase.SendBlastOutput) BlastResponse {
	resp := BlastResponse{Success: out.Success, Msg: out.Message, Replayed: out.Replayed}
	if out.Summary != nil {
		resp.Summary = &BatchSummaryResponse{
			BatchID:   out.Summary.BatchID,
			Attempted: out.Summary.Attempted,
			Sent:      out.Summary.Sent,
			Skipped:   out.Summary.Skipped,
			Failed:    out.Summary.Failed,
		}
	}
	return resp
}

type ValidationRequest struct {
	FileData string `json:"file_data" example:"email,last name\nada@example.com,Lovelace"`
}

type ValidationResponse struct {
	IsValid      bool   `json:"is_valid"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type ScheduleRequest struct {
	SendAt string `json:"send_at" example:"2026-01-02T15:04:05Z"`
	BlastRequest
}

type ScheduleResponse struct {
	ID     string    `json:"id"`
	SendAt time.Time `json:"send_at"`
	Status string    `json:"status"`
}

func (ScheduleResponse) StatusCode() int { return http.StatusCreated }

func (ScheduleResponse) Message() string { return "email blast has been scheduled" }

func newScheduleResponse(s *entity.Schedule) ScheduleResponse {
	return ScheduleResponse{ID: s.ID, SendAt: s.SendAt, Status: s.Status.String()}
}
