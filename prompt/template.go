// Package prompt renders stage prompts from templates.
// Templates reference record fields using {{field}} syntax:
//   - {{product_name}}, {{product_id}} - any field of the record or extra variables
//   - {{product_name|simplify}} - first five words, at most 30 characters
//   - {{answer|trim}} - surrounding whitespace removed
//
// A placeholder whose field is missing is an error, so a typo never ships an empty prompt.
package prompt

import (
	"regexp"
	"strings"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/pipeline"
)

// Values supplies placeholder values. catalog.Record satisfies it.
type Values interface {
	Lookup(key string) (string, bool)
}

// Vars is a plain map of placeholder values
type Vars map[string]string

// Lookup implements Values
func (v Vars) Lookup(key string) (string, bool) {
	val, ok := v[key]
	return val, ok
}

// Merge layers values so that earlier sources win.
type Merge []Values

// Lookup implements Values
func (m Merge) Lookup(key string) (string, bool) {
	for _, v := range m {
		if v == nil {
			continue
		}
		if val, ok := v.Lookup(key); ok {
			return val, true
		}
	}
	return "", false
}

// Template represents a parsed prompt template with placeholders for record fields
type Template struct {
	raw      string
	segments []segment
}

// segment represents either a literal string or a placeholder
type segment struct {
	literal bool
	content string // for literal: the text; for placeholder: the field name
	filter  string
}

var (
	// Match {{field}} or {{field|filter}}
	placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*(?:\|\s*([a-z]+)\s*)?\}\}`)
)

// filters lists the value transforms a placeholder may name
var filters = map[string]func(string) string{
	"simplify": pipeline.Simplify,
	"trim":     strings.TrimSpace,
	"lower":    strings.ToLower,
}

// Parse creates a Template from a raw template string
func Parse(raw string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty template")
	}

	t := &Template{raw: raw}
	matches := placeholderPattern.FindAllStringSubmatchIndex(raw, -1)

	lastEnd := 0
	for _, match := range matches {
		start, end := match[0], match[1]
		field := raw[match[2]:match[3]]

		var filter string
		if match[4] >= 0 {
			filter = raw[match[4]:match[5]]
			if _, ok := filters[filter]; !ok {
				return nil, errors.Newf("invalid placeholder {{%s|%s}}: unknown filter %q", field, filter, filter)
			}
		}

		if start > lastEnd {
			t.segments = append(t.segments, segment{literal: true, content: raw[lastEnd:start]})
		}
		t.segments = append(t.segments, segment{content: field, filter: filter})
		lastEnd = end
	}

	if lastEnd < len(raw) {
		t.segments = append(t.segments, segment{literal: true, content: raw[lastEnd:]})
	}
	return t, nil
}

// MustParse is Parse for templates known at compile time
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Execute interpolates the template with values
func (t *Template) Execute(values Values) (string, error) {
	var result strings.Builder
	result.Grow(len(t.raw) * 2)

	for _, seg := range t.segments {
		if seg.literal {
			result.WriteString(seg.content)
			continue
		}

		var value string
		var ok bool
		if values != nil {
			value, ok = values.Lookup(seg.content)
		}
		if !ok {
			return "", errors.Wrapf(errors.ErrNotFound, "no value for {{%s}}", seg.content)
		}
		if seg.filter != "" {
			value = filters[seg.filter](value)
		}
		result.WriteString(value)
	}

	return result.String(), nil
}

// GetPlaceholders returns all placeholder field names in the template, in order of appearance
func (t *Template) GetPlaceholders() []string {
	var placeholders []string
	seen := map[string]bool{}
	for _, seg := range t.segments {
		if !seg.literal && !seen[seg.content] {
			seen[seg.content] = true
			placeholders = append(placeholders, seg.content)
		}
	}
	return placeholders
}

// Raw returns the original template string
func (t *Template) Raw() string {
	return t.raw
}
