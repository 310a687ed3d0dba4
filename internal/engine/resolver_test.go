package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

var menuOptions = []domain.MenuOption{
	{ID: "opt-yes", Label: "👍 Sim"},
	{ID: "opt-no", Label: "Não"},
	{ID: "opt-later", Label: "Falar depois"},
}

func TestResolveTextExactMatch(t *testing.T) {
	id, ok := resolveText(menuOptions, "não")
	assert.True(t, ok)
	assert.Equal(t, "opt-no", id)
}

func TestResolveTextFuzzyIgnoresEmoji(t *testing.T) {
	id, ok := resolveText(menuOptions, "sim")
	assert.True(t, ok)
	assert.Equal(t, "opt-yes", id)
}

func TestResolveTextFuzzyContainment(t *testing.T) {
	// Reply contains the label.
	id, ok := resolveText(menuOptions, "quero sim por favor")
	assert.True(t, ok)
	assert.Equal(t, "opt-yes", id)

	// Reply is contained in the label.
	id, ok = resolveText(menuOptions, "depois")
	assert.True(t, ok)
	assert.Equal(t, "opt-later", id)
}

func TestResolveTextOrdinal(t *testing.T) {
	id, ok := resolveText(menuOptions, "2")
	assert.True(t, ok)
	assert.Equal(t, "opt-no", id)

	_, ok = resolveText(menuOptions, "4")
	assert.False(t, ok, "ordinal out of range")

	_, ok = resolveText(menuOptions, "0")
	assert.False(t, ok, "ordinals are 1-based")
}

func TestResolveTextExactWinsOverOrdinal(t *testing.T) {
	options := []domain.MenuOption{
		{ID: "opt-two", Label: "2"},
		{ID: "opt-one", Label: "1"},
	}
	id, ok := resolveText(options, "2")
	assert.True(t, ok)
	assert.Equal(t, "opt-two", id, "label match takes precedence over position")
}

func TestResolveTextNoMatch(t *testing.T) {
	_, ok := resolveText(menuOptions, "talvez")
	assert.False(t, ok)

	_, ok = resolveText(menuOptions, "   ")
	assert.False(t, ok)
}

func TestResolveVoteExactOnly(t *testing.T) {
	id, ok := resolveVote(menuOptions, "não")
	assert.True(t, ok)
	assert.Equal(t, "opt-no", id)

	_, ok = resolveVote(menuOptions, "nao")
	assert.False(t, ok, "votes never match fuzzily")

	_, ok = resolveVote(menuOptions, "2")
	assert.False(t, ok, "votes never match ordinally")
}

func TestStripEmoji(t *testing.T) {
	assert.Equal(t, " sim", stripEmoji("👍 sim"))
	assert.Equal(t, "ver video", stripEmoji("ver video"))
}
