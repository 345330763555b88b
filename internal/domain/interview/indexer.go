package interview

import (
	"strings"
	"unicode"

	"github.com/careflow/careflow/internal/platform/catalog"
)

// SectionIndex is the flattened view of every active module's catalog: one
// ordered sequence of section uids, with lookups from uid to position and
// from answer key to the first section declaring it. It is rebuilt whenever
// active-module membership changes and cached otherwise.
type SectionIndex struct {
	order       []string
	pos         map[string]int
	sectionKeys map[string][]string
	keySection  map[string]string
}

// newSectionIndex flattens per-module question sequences, already ordered by
// module priority, into one index.
func newSectionIndex(moduleQuestions [][]catalog.Question) *SectionIndex {
	idx := &SectionIndex{
		pos:         make(map[string]int),
		sectionKeys: make(map[string][]string),
		keySection:  make(map[string]string),
	}
	for _, questions := range moduleQuestions {
		for _, q := range questions {
			if _, ok := idx.pos[q.UID]; ok {
				continue
			}
			idx.pos[q.UID] = len(idx.order)
			idx.order = append(idx.order, q.UID)

			keys := catalog.AnswerKeys([]catalog.Question{q})
			idx.sectionKeys[q.UID] = keys
			for _, k := range keys {
				if _, ok := idx.keySection[k]; !ok {
					idx.keySection[k] = q.UID
				}
			}
		}
	}
	return idx
}

// IndexOf returns the position of a section in the flattened sequence, or -1
// when absent. Callers treat -1 as "before everything".
func (x *SectionIndex) IndexOf(uid string) int {
	if uid == "" {
		return -1
	}
	if p, ok := x.pos[uid]; ok {
		return p
	}
	return -1
}

// SectionFor returns the first section declaring the given answer key. Keys
// ending in digits retry with the trailing digits stripped, so numbered
// repeating fields fall back to their base key's section.
func (x *SectionIndex) SectionFor(key string) (string, bool) {
	if uid, ok := x.keySection[key]; ok {
		return uid, true
	}
	base := strings.TrimRightFunc(key, unicode.IsDigit)
	if base != key && base != "" {
		if uid, ok := x.keySection[base]; ok {
			return uid, true
		}
	}
	return "", false
}

// SectionKeys returns the answer keys declared by a section.
func (x *SectionIndex) SectionKeys(uid string) []string {
	return x.sectionKeys[uid]
}

// Sections returns the flattened uid sequence.
func (x *SectionIndex) Sections() []string {
	return x.order
}
