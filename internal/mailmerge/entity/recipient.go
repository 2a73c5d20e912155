package entity

// RecipientTable is a parsed recipient list. Rows keep file order and may be
// shorter or longer than Header.
type RecipientTable struct {
	Header []string
	Rows   [][]string
}

// Cell returns row[i], or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// FieldBinding maps a normalized header name to one row's value.
type FieldBinding map[string]string

// Asset is a decoded file supplied with a blast (attachment or banner).
type Asset struct {
	Filename    string
	ContentType string
	Content     []byte
}
