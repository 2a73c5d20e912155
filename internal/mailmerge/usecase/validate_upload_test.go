package usecase

import (
	"context"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
		wantMsg string
	}{
		{name: "valid", content: "Email,Last Name\na@x.com,Lovelace\n\"b@x.com\",\"Hopper, Grace\"", valid: true},
		{name: "empty", content: "   ", wantMsg: msgEmptyFile},
		{name: "no email header", content: "name,lastname\nA,B", wantMsg: "Header 'email' is missing."},
		{name: "no last name header", content: "email,name\na@x.com,A", wantMsg: "Header 'lastname' is missing."},
		{name: "bad email", content: "email,lastname\na@x.com,A\nb@x.com,B\nnot-an-email,C", wantMsg: "Invalid email format on row 3: 'not-an-email'"},
		{name: "empty email", content: "email,lastname\n,A", wantMsg: "Invalid email format on row 1: ''"},
		{name: "missing last name", content: "email,lastname\na@x.com,A\nb@x.com,B\nc@x.com,C\nd@x.com,D\ne@x.com,  ", wantMsg: "Missing lastname on row 5."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestUsecase(t)

			out := d.uc.ValidateUpload(context.Background(), ValidateUploadInput{FileContent: tt.content})

			if out.IsValid != tt.valid {
				t.Fatalf("IsValid = %v, want %v (%q)", out.IsValid, tt.valid, out.ErrorMessage)
			}
			if out.ErrorMessage != tt.wantMsg {
				t.Fatalf("ErrorMessage = %q, want %q", out.ErrorMessage, tt.wantMsg)
			}
		})
	}
}
