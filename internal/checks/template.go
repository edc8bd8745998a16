package checks

import (
	"sort"
	"strings"

	"branchcheck/internal/ddl"
	"branchcheck/internal/domain"
)

// Template is a parsed check query. Placeholders are written {{ key }}.
type Template struct {
	text   string
	params []string
}

// ParseTemplate scans text for placeholders and records the distinct keys.
// An unterminated tag or a tag that is not a bare identifier is rejected.
func ParseTemplate(text string) (*Template, error) {
	seen := make(map[string]bool)
	_, err := expand(text, func(key string) (string, bool) {
		seen[key] = true
		return "", false
	})
	if err != nil {
		return nil, err
	}

	params := make([]string, 0, len(seen))
	for k := range seen {
		params = append(params, k)
	}
	sort.Strings(params)
	return &Template{text: text, params: params}, nil
}

// Text returns the raw template text.
func (t *Template) Text() string { return t.text }

// Parameters returns the sorted substitution keys the template references.
func (t *Template) Parameters() []string {
	out := make([]string, len(t.params))
	copy(out, t.params)
	return out
}

// Execute substitutes every placeholder. The first placeholder, in template
// order, with no entry in subs fails with a MissingParameterError naming it.
func (t *Template) Execute(check string, subs map[string]string) (string, error) {
	var missing string
	out, err := expand(t.text, func(key string) (string, bool) {
		v, ok := subs[key]
		if !ok && missing == "" {
			missing = key
		}
		return v, ok
	})
	if err != nil {
		return "", err
	}
	if missing != "" {
		return "", domain.ErrMissingParameter(check, missing)
	}
	return out, nil
}

// expand walks text replacing {{ key }} tags with lookup results. Tags the
// lookup does not resolve are written back unchanged.
func expand(text string, lookup func(string) (string, bool)) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(text) {
		if !strings.HasPrefix(text[i:], "{{") {
			out.WriteByte(text[i])
			i++
			continue
		}
		end := strings.Index(text[i+2:], "}}")
		if end < 0 {
			return "", domain.ErrValidation("unterminated placeholder at offset %d", i)
		}
		raw := text[i : i+2+end+2]
		key := strings.TrimSpace(text[i+2 : i+2+end])
		if err := ddl.ValidateIdentifier(key); err != nil {
			return "", domain.ErrValidation("placeholder %q: %v", raw, err)
		}
		if v, ok := lookup(key); ok {
			out.WriteString(v)
		} else {
			out.WriteString(raw)
		}
		i += end + 4
	}
	return out.String(), nil
}
