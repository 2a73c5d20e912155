package merge

import (
	"github.com/samber/lo"
)

// EmailColumn is the column holding each recipient's address.
const EmailColumn = "email"

// RequiredColumns is the email column followed by every field the salutation
// references.
func RequiredColumns(salutation *Template) []Field {
	required := []Field{{Name: EmailColumn, Key: EmailColumn}}
	if salutation != nil {
		required = append(required, salutation.Fields()...)
	}
	return lo.UniqBy(required, func(f Field) string { return f.Key })
}

// CheckColumns returns a *MissingColumnError naming every required field absent
// from header. Matching uses NormalizeHeader on both sides.
func CheckColumns(header []string, required []Field) error {
	idx := HeaderIndex(header)

	missing := lo.FilterMap(required, func(f Field, _ int) (string, bool) {
		_, ok := idx[f.Key]
		return f.Name, !ok
	})
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}

	return nil
}
