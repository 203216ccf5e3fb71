package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripEmoji(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Meal Plan", "Meal Plan"},
		{"leading emoji", "🥗 Meal Plan", " Meal Plan"},
		{"gap collapsed", "Drink 💧 water", "Drink water"},
		{"dingbat and selector", "✅️ Done", " Done"},
		{"zwj sequence", "👨‍🍳 Chef", " Chef"},
		{"bullet kept", "• eggs", "• eggs"},
		{"newlines kept", "a 🍎\nb", "a \nb"},
		{"arrow pictograph", "Swap ↔️ rice", "Swap rice"},
		{"information source", "ℹ️ Note", " Note"},
		{"trade mark", "Greek yoghurt™ cup", "Greek yoghurt cup"},
		{"part alternation mark", "〽 go", " go"},
		{"circled ideographs", "㊗㊙ done", " done"},
		{"curved arrows", "⤴️⤵️ up", " up"},
		{"plain arrow kept", "oats → porridge", "oats → porridge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripEmoji(tt.in))
		})
	}
}

func TestIsPictographic(t *testing.T) {
	for _, r := range []rune{0x00A9, 0x203C, 0x2049, 0x2122, 0x2139, 0x2194, 0x21AA, 0x2934, 0x3030, 0x303D, 0x3297, 0x3299, 0x1F957} {
		assert.True(t, IsPictographic(r), "%U", r)
	}
	for _, r := range []rune{'a', 0x00E9, 0x2022, 0x2192, 0x3298, 0x20AC} {
		assert.False(t, IsPictographic(r), "%U", r)
	}
}

func TestStripBold(t *testing.T) {
	assert.Equal(t, "Breakfast: oats", StripBold("**Breakfast:** oats"))
	assert.Equal(t, "Lunch", StripBold("__Lunch__"))
	assert.Equal(t, "dangling", StripBold("**dangling"))
}

func TestCleanForRender(t *testing.T) {
	assert.Equal(t, "Protein target", CleanForRender("  **Protein target** 💪 "))
	assert.Equal(t, "Tip: drink water", CleanForRender("Ø=ÜTip: drink water"))
}
