package merge

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyInput is returned by ParseTable for empty or whitespace-only input.
	ErrEmptyInput = errors.New("merge: recipient file is empty")
	// ErrMissingRecipientAddress is returned by Compose for an empty address.
	ErrMissingRecipientAddress = errors.New("merge: missing recipient address")
)

// MissingColumnError names every required column absent from a header, in
// the order they are required.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return "merge: missing required columns: " + strings.Join(e.Columns, ", ")
}
