package usecase

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
)

const (
	msgNoneSent       = "No emails were sent. Please check your contact list and server logs."
	msgEmptyFile      = "The recipient file is empty. Please upload a file with a header row and at least one recipient."
	msgInvalidInput   = "Invalid data provided."
	msgNoCredentials  = "Email credentials are not configured on the server."
	msgUnexpected     = "Failed to send emails. Please check server logs for details."
	msgInProgress     = "This email blast is already being sent. Please wait for it to finish."
	msgInvalidAsset   = "The attachment or banner could not be read. Please upload the file again."
	msgAssetTooLarge  = "The attachment or banner is too large."
	msgAssetNotFound  = "The attachment or banner could not be found."
)

func sentMessage(sum *entity.BatchSummary) string {
	msg := fmt.Sprintf("Your email blast has been successfully sent to %d of %d recipients.", sum.Sent, sum.Attempted)
	if sum.Failed > 0 || sum.Skipped > 0 {
		msg += fmt.Sprintf(" %d failed, %d skipped.", sum.Failed, sum.Skipped)
	}
	return msg
}

func missingColumnsMessage(columns []string) string {
	if len(columns) == 1 {
		return fmt.Sprintf("The recipient file must contain an %q column. Please check your file.", columns[0])
	}

	quoted := lo.Map(columns, func(c string, _ int) string { return fmt.Sprintf("%q", c) })
	return "The recipient file must contain the following columns: " + strings.Join(quoted, ", ") + ". Please check your file."
}
