package catalog

import (
	"strings"
	"unicode"
)

// Answer keys travel under two conventions: catalogs and the rendering layer
// use camelCase (mobilePhone), storage and the public API use snake_case
// (mobile_phone). A compound key "a|b" names two independently addressable
// answer keys behind one control.

// ToSnake converts a camelCase key to snake_case. Keys already in snake_case
// pass through unchanged. Trailing digits stay attached to the final word
// (copingStrategy2 -> coping_strategy2).
func ToSnake(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamel converts a snake_case key back to camelCase.
func ToCamel(key string) string {
	parts := strings.Split(key, "_")
	var b strings.Builder
	b.Grow(len(key))
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// SplitCompound splits a pipe-delimited compound key into its component keys.
// A plain key yields a single-element slice.
func SplitCompound(key string) []string {
	if !strings.Contains(key, "|") {
		return []string{key}
	}
	parts := strings.Split(key, "|")
	keys := parts[:0]
	for _, p := range parts {
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// AnswerKeys walks every question's actions, including nested groups, and
// returns the set of storage-convention answer keys the catalog declares,
// in first-seen order.
func AnswerKeys(questions []Question) []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(raw string) {
		for _, k := range SplitCompound(raw) {
			k = ToSnake(k)
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	for _, q := range questions {
		for _, a := range q.Actions {
			if a.AnswerKey != "" {
				add(a.AnswerKey)
			}
			for _, g := range a.Groups {
				if g.AnswerKey != "" {
					add(g.AnswerKey)
				}
			}
		}
	}
	return keys
}
