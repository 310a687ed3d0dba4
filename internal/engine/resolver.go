package engine

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// resolveVote matches a structured vote label against the menu options.
// Votes only ever match exactly (case-insensitive): the label came from
// the poll we sent, so anything else is a deselect or stale vote.
func resolveVote(options []domain.MenuOption, label string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(opt.Label, label) {
			return opt.ID, true
		}
	}
	return "", false
}

// resolveText maps free text to a menu option id. Matching strategies,
// first hit wins:
//
//  1. exact label match (case-insensitive)
//  2. fuzzy containment with emoji stripped from the label, in either
//     direction ("quero sim por favor" matches "Sim")
//  3. 1-based ordinal ("2" selects the second option)
func resolveText(options []domain.MenuOption, body string) (string, bool) {
	clean := strings.ToLower(strings.TrimSpace(body))
	if clean == "" {
		return "", false
	}

	for _, opt := range options {
		if strings.ToLower(opt.Label) == clean {
			return opt.ID, true
		}
	}

	for _, opt := range options {
		label := strings.TrimSpace(stripEmoji(strings.ToLower(opt.Label)))
		if label == "" {
			continue
		}
		if strings.Contains(label, clean) || strings.Contains(clean, label) {
			return opt.ID, true
		}
	}

	if idx, err := strconv.Atoi(clean); err == nil {
		if idx >= 1 && idx <= len(options) {
			return options[idx-1].ID, true
		}
	}

	return "", false
}

// stripEmoji removes emoji and other pictographic symbols so "👍 Sim"
// still matches "sim".
func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.So, r) {
			return -1
		}
		// Variation selectors and zero-width joiners travel with emoji.
		if r == 0xFE0F || r == 0x200D {
			return -1
		}
		return r
	}, s)
}
