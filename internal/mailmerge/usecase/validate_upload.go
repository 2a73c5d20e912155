package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/merge"
)

type (
	ValidateUploadInput struct {
		FileContent string
	}

	ValidateUploadOutput struct {
		IsValid      bool
		ErrorMessage string
	}
)

// ValidateUpload checks a recipient file before it is sent and reports the
// first problem found. Row numbers count data rows from 1.
func (s *Usecase) ValidateUpload(ctx context.Context, in ValidateUploadInput) ValidateUploadOutput {
	ctx, span := s.startSpan(ctx, "ValidateUpload")
	defer span.End()

	table, err := merge.ParseTable(in.FileContent)
	if err != nil {
		return ValidateUploadOutput{ErrorMessage: msgEmptyFile}
	}

	msg := s.firstUploadProblem(table)
	if msg != "" {
		slog.InfoContext(ctx, "recipient file rejected", "reason", msg)
		return ValidateUploadOutput{ErrorMessage: msg}
	}

	return ValidateUploadOutput{IsValid: true}
}

func (s *Usecase) firstUploadProblem(table *entity.RecipientTable) string {
	required := merge.RequiredColumns(s.salutation())
	idx := merge.HeaderIndex(table.Header)

	for _, f := range required {
		if _, ok := idx[f.Key]; !ok {
			return fmt.Sprintf("Header '%s' is missing.", f.Key)
		}
	}

	for i, row := range table.Rows {
		binding := merge.Bind(table.Header, row)

		email := strings.TrimSpace(binding[merge.EmailColumn])
		if err := s.validator.Var(email, "required,email"); err != nil {
			return fmt.Sprintf("Invalid email format on row %d: '%s'", i+1, email)
		}

		for _, f := range required[1:] {
			if strings.TrimSpace(binding[f.Key]) == "" {
				return fmt.Sprintf("Missing %s on row %d.", f.Key, i+1)
			}
		}
	}

	return ""
}
