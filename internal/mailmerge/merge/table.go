package merge

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
)

// ParseTable parses CSV text into a header and data rows.
//
// The first non-blank line is the header. Commas inside a balanced pair of
// double quotes do not split a field. Tokens are trimmed and their surrounding
// quotes removed. Blank lines yield no row. Both LF and CRLF are accepted.
func ParseTable(raw string) (*entity.RecipientTable, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyInput
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	lines = lo.Filter(lines, func(l string, _ int) bool {
		return strings.TrimSpace(l) != ""
	})

	table := &entity.RecipientTable{
		Header: splitLine(lines[0]),
		Rows:   make([][]string, 0, len(lines)-1),
	}
	for _, l := range lines[1:] {
		table.Rows = append(table.Rows, splitLine(l))
	}

	return table, nil
}

func splitLine(line string) []string {
	line = strings.TrimSuffix(line, "\r")

	// An odd quote count leaves the last quote unmatched; it does not open a
	// quoted section.
	lastQuote := -1
	if strings.Count(line, `"`)%2 == 1 {
		lastQuote = strings.LastIndexByte(line, '"')
	}

	var (
		fields  []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			if i != lastQuote {
				inQuote = !inQuote
			}
		case ',':
			if !inQuote {
				fields = append(fields, cleanToken(line[start:i]))
				start = i + 1
			}
		}
	}

	return append(fields, cleanToken(line[start:]))
}

func cleanToken(tok string) string {
	tok = strings.TrimSpace(tok)
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return strings.TrimSpace(strings.ReplaceAll(tok[1:len(tok)-1], `""`, `"`))
	}
	return strings.TrimSpace(strings.Trim(tok, `"`))
}
