package usecase

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/shandysiswandi/mailmerge/internal/pkg/mail"
)

func TestSendBlast(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	png := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	tests := []struct {
		name        string
		in          SendBlastInput
		setup       func(d testDeps)
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "success",
			in:          SendBlastInput{Subject: "Hi", Message: "<p>x</p>", RecipientsFileContent: "email,last name\na@x.com,A\nb@x.com,B"},
			wantSuccess: true,
			wantMessage: "Your email blast has been successfully sent to 2 of 2 recipients.",
		},
		{
			name:        "empty file",
			in:          SendBlastInput{Subject: "Hi", RecipientsFileContent: "  \n "},
			wantMessage: msgEmptyFile,
		},
		{
			name:        "missing email column",
			in:          SendBlastInput{Subject: "Hi", RecipientsFileContent: "name,lastname\nAda,L"},
			wantMessage: `The recipient file must contain an "email" column. Please check your file.`,
		},
		{
			name:        "missing several columns",
			in:          SendBlastInput{Subject: "Hi", RecipientsFileContent: "name,phone\nAda,1"},
			wantMessage: `The recipient file must contain the following columns: "email", "LastName". Please check your file.`,
		},
		{
			name:        "invalid attachment name",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A", Attachment: &AssetInput{Filename: "../etc/passwd", Content: pdf}},
			wantMessage: msgInvalidInput,
		},
		{
			name:        "undecodable attachment",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A", Attachment: &AssetInput{Filename: "a.pdf", Content: "%%%not base64%%%"}},
			wantMessage: msgInvalidAsset,
		},
		{
			name:        "attachment too large",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A", Attachment: &AssetInput{Filename: "a.bin", Content: base64.StdEncoding.EncodeToString(make([]byte, 2048))}},
			wantMessage: msgAssetTooLarge,
		},
		{
			name:        "credentials missing",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"},
			setup:       func(d testDeps) { d.repoMail.err = mail.ErrSMTPCredentialsRequired },
			wantMessage: msgNoCredentials,
		},
		{
			name:        "transport open fails",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"},
			setup:       func(d testDeps) { d.repoMail.err = mail.ErrSMTPHostPortRequired },
			wantMessage: msgUnexpected,
		},
		{
			name:        "panic is recovered",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"},
			setup:       func(d testDeps) { d.repoMail.panic = true },
			wantMessage: msgUnexpected,
		},
		{
			name: "assets inline and by object key",
			in: SendBlastInput{
				RecipientsFileContent: "email,lastname\na@x.com,A",
				Attachment:            &AssetInput{Filename: "a.pdf", Content: pdf},
				Banner:                &AssetInput{Filename: "top.png", ObjectKey: "banners/top.png"},
			},
			wantSuccess: true,
			wantMessage: "Your email blast has been successfully sent to 1 of 1 recipients.",
		},
		{
			name:        "banner object missing",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A", Banner: &AssetInput{Filename: "x.png", ObjectKey: "nope"}},
			wantMessage: msgInvalidAsset,
		},
		{
			name:        "banner data uri",
			in:          SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A", Banner: &AssetInput{Filename: "b.png", Content: png}},
			wantSuccess: true,
			wantMessage: "Your email blast has been successfully sent to 1 of 1 recipients.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			d := newTestUsecase(t)
			if tt.setup != nil {
				tt.setup(d)
			}

			// Act
			out := d.uc.SendBlast(context.Background(), tt.in)

			// Assert
			if out.Success != tt.wantSuccess {
				t.Fatalf("success = %v, want %v (message %q)", out.Success, tt.wantSuccess, out.Message)
			}
			if out.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", out.Message, tt.wantMessage)
			}
		})
	}
}

func TestSendBlast_ComposesAssets(t *testing.T) {
	// Arrange
	d := newTestUsecase(t)
	in := SendBlastInput{
		Subject:               "Hello {{LastName}}",
		Message:               "<p>Body</p>",
		RecipientsFileContent: "email,last name\na@x.com,Lovelace",
		Attachment:            &AssetInput{Filename: "a.pdf", Content: base64.StdEncoding.EncodeToString([]byte("%PDF"))},
		Banner:                &AssetInput{Filename: "b.png", Content: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))},
	}

	// Act
	out := d.uc.SendBlast(context.Background(), in)

	// Assert
	if !out.Success {
		t.Fatalf("expected success, got %q", out.Message)
	}
	msg := d.transport.sent[0]
	if msg.Subject != "Hello Lovelace" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected banner and attachment, got %d", len(msg.Attachments))
	}
	banner, file := msg.Attachments[0], msg.Attachments[1]
	if !banner.Inline || banner.ContentType != "image/png" || string(banner.Content) != "png" {
		t.Fatalf("unexpected banner %+v", banner)
	}
	if file.Inline || file.Filename != "a.pdf" || file.Encoding != mail.EncodingBase64 || string(file.Content) != "%PDF" {
		t.Fatalf("unexpected attachment %+v", file)
	}
	if len(d.repoMQ.summaries) != 1 || d.repoMQ.summaries[0].Sent != 1 {
		t.Fatalf("expected one completed event, got %+v", d.repoMQ.summaries)
	}
}

func TestSendBlast_IdempotencyKeyReplays(t *testing.T) {
	// Arrange
	d := newTestUsecase(t)
	in := SendBlastInput{IdempotencyKey: "click-1", RecipientsFileContent: "email,lastname\na@x.com,A\nb@x.com,B"}

	// Act
	first := d.uc.SendBlast(context.Background(), in)
	second := d.uc.SendBlast(context.Background(), in)

	// Assert
	if !first.Success || first.Replayed {
		t.Fatalf("unexpected first result %+v", first)
	}
	if !second.Replayed || second.Message != first.Message {
		t.Fatalf("expected replay of %q, got %+v", first.Message, second)
	}
	if d.transport.calls != 2 {
		t.Fatalf("expected recipients mailed once, got %d sends", d.transport.calls)
	}
}

func TestSendBlast_FailedBatchReleasesIdempotencyKey(t *testing.T) {
	d := newTestUsecase(t)
	in := SendBlastInput{IdempotencyKey: "click-2", RecipientsFileContent: "name\nAda"}

	first := d.uc.SendBlast(context.Background(), in)
	in.RecipientsFileContent = "email,lastname\na@x.com,A"
	second := d.uc.SendBlast(context.Background(), in)

	if first.Success || !second.Success || second.Replayed {
		t.Fatalf("unexpected results %+v then %+v", first, second)
	}
}

func TestConsumeBatchRequest(t *testing.T) {
	d := newTestUsecase(t)
	in := ConsumeBatchRequestInput{BatchID: "b-1", Blast: SendBlastInput{RecipientsFileContent: "email,lastname\na@x.com,A"}}

	if err := d.uc.ConsumeBatchRequest(context.Background(), in); err != nil {
		t.Fatalf("ConsumeBatchRequest error: %v", err)
	}
	if err := d.uc.ConsumeBatchRequest(context.Background(), in); err != nil {
		t.Fatalf("ConsumeBatchRequest redelivery error: %v", err)
	}

	if d.transport.calls != 1 {
		t.Fatalf("redelivered request must not resend, got %d sends", d.transport.calls)
	}
	if _, ok := d.idem.results["batch:b-1"]; !ok {
		t.Fatal("expected the batch id to be used as idempotency key")
	}
	if d.repoMQ.summaries[0].BatchID != "b-1" {
		t.Fatalf("unexpected batch id %q", d.repoMQ.summaries[0].BatchID)
	}
}
