package merge

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
)

// Field is a placeholder as written in a template and its lookup key.
type Field struct {
	Name string
	Key  string
}

type segment struct {
	text  string
	field *Field
}

// Template is a compiled template. Rendering is pure string substitution.
type Template struct {
	segments []segment
	size     int
}

// Compile parses s into literal text and {{name}} placeholders. Any text is a
// valid template: an unterminated "{{" is kept as literal text. Triple braces
// ({{{name}}}) are accepted and behave the same.
func Compile(s string) *Template {
	t := &Template{size: len(s)}

	for s != "" {
		open := strings.Index(s, "{{")
		if open < 0 {
			break
		}

		rest := s[open+2:]
		closing := strings.Index(rest, "}}")
		if closing < 0 {
			break
		}

		name := rest[:closing]
		tail := rest[closing+2:]
		if strings.HasPrefix(name, "{") && strings.HasPrefix(tail, "}") {
			name, tail = name[1:], tail[1:]
		}
		name = strings.TrimSpace(name)

		if open > 0 {
			t.segments = append(t.segments, segment{text: s[:open]})
		}
		t.segments = append(t.segments, segment{field: &Field{Name: name, Key: NormalizeHeader(name)}})
		s = tail
	}

	if s != "" {
		t.segments = append(t.segments, segment{text: s})
	}

	return t
}

// Render substitutes every placeholder with its bound value, or "" when the
// binding has no such key.
func (t *Template) Render(binding entity.FieldBinding) string {
	var b strings.Builder
	b.Grow(t.size)
	for _, seg := range t.segments {
		if seg.field == nil {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(binding[seg.field.Key])
	}
	return b.String()
}

// Fields returns the distinct placeholders in order of first appearance.
// Placeholders that normalize to an empty key are left out.
func (t *Template) Fields() []Field {
	fields := lo.FilterMap(t.segments, func(seg segment, _ int) (Field, bool) {
		if seg.field == nil || seg.field.Key == "" {
			return Field{}, false
		}
		return *seg.field, true
	})
	return lo.UniqBy(fields, func(f Field) string { return f.Key })
}
